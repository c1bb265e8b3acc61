// Package version holds the accesslog build version.
package version

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/ehrlich-b/accesslog/internal/version.Version=v1.2.0" ./cmd/accesslog
var Version = "dev"
