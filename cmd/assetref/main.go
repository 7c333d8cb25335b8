// Command assetref indexes and searches identifier references between the
// assets of a game project.
package main

import "github.com/mesh-intelligence/assetref/internal/cli"

func main() {
	cli.Execute()
}
