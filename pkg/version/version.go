// Package version exposes build metadata injected at link time.
package version

import "strings"

const unknown = "unknown"

var (
	// AppVersion is intended to be overridden at build time:
	// go build -ldflags="-X github.com/lockward/lockward/pkg/version.AppVersion=v1.2.3"
	AppVersion = "dev"

	// GitCommit is intended to be overridden at build time.
	GitCommit = unknown

	// BuildTime is intended to be overridden at build time (RFC3339).
	BuildTime = unknown
)

// Info contains version metadata for an application.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Current returns the current build version metadata.
func Current(serviceName string) Info {
	service := strings.TrimSpace(serviceName)
	if service == "" {
		service = unknown
	}
	return Info{
		Service:   service,
		Version:   orDefault(AppVersion, "dev"),
		Commit:    orDefault(GitCommit, unknown),
		BuildTime: orDefault(BuildTime, unknown),
	}
}

func orDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
