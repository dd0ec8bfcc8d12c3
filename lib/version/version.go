// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes build identification injected at link time.
package version

import "fmt"

// Set via -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/27inator/KPM-cursor/lib/version.Version=1.4.0 \
//	  -X github.com/27inator/KPM-cursor/lib/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X github.com/27inator/KPM-cursor/lib/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns the full build identification line.
func Info() string {
	return fmt.Sprintf("pea-agent %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// Short returns just the version string.
func Short() string {
	return Version
}
