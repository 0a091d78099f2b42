package main

// Set at build time with -ldflags "-X main.VERSION=..."
var (
	// VERSION is the release version of nfc-balance
	VERSION string = "0.0.0"
	// GITCOMMIT is the git commit hash the binary was built from
	GITCOMMIT string = "unknown"
	// BUILDTIME is when the binary was built
	BUILDTIME string = "unknown"
)
