// Package version exposes build information injected through ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/traffical/traffical-go/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// SDKName identifies this client in decision and track events.
const SDKName = "traffical-go"

// Info describes the running build.
type Info struct {
	SDK       string `json:"sdk" yaml:"sdk"`
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildTime string `json:"buildTime" yaml:"buildTime"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build information. A "dev" build installed with
// go install reports the module version recorded by the toolchain instead.
func Get() Info {
	v := Version
	if v == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return Info{
		SDK:       SDKName,
		Version:   v,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line form printed by "traffical version --short".
func (i Info) String() string {
	commit := i.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s %s (%s, %s, %s)", i.SDK, i.Version, commit, i.GoVersion, i.Platform)
}

// UserAgent returns the User-Agent header value for component,
// e.g. "traffical-cli/1.2.0".
func UserAgent(component string) string {
	return component + "/" + Version
}
