package assetref

// Version is the release version of the module.
const Version = "0.1.0"

// Commit is the source revision, set at link time by the build.
var Commit = ""
