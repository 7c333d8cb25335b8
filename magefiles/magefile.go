//go:build mage

// Package main provides build targets for the assetref project using Mage.
//
// Usage:
//
//	mage build          Compile the assetref binary to bin/
//	mage install        Install assetref to GOPATH/bin
//	mage clean          Remove build artifacts
//	mage test:all       Run all tests
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Write a coverage profile to bin/cover.out
//	mage lint           Run golangci-lint
//	mage vet            Run go vet
package main

const (
	binGo      = "go"
	binaryName = "assetref"
	binaryDir  = "bin"
	cmdDir     = "./cmd/assetref"
	modulePath = "github.com/mesh-intelligence/assetref"
)
