// Package types defines the records, configuration and standard errors shared
// by the asset reference index: asset records keyed by a 32-character
// identifier, dependency edges between identifiers, and the file fingerprint
// used to decide whether a cached fact is still valid.
package types
