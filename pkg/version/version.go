// Package version reports what build of augment2api is running.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Version and Commit are stamped with
// -ldflags "-X github.com/xingyunzhou/augment2api/pkg/version.Version=v1.0.0".
// Unset values fall back to the VCS data the go tool embeds.
var (
	Version = "dev"
	Commit  = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

func Current() Info {
	info := Info{
		Version:   strings.TrimSpace(Version),
		Commit:    strings.TrimSpace(Commit),
		GoVersion: runtime.Version(),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	vcs := map[string]string{}
	for _, s := range bi.Settings {
		vcs[s.Key] = s.Value
	}
	if info.Commit == "" {
		info.Commit = vcs["vcs.revision"]
	}
	info.BuildTime = vcs["vcs.time"]
	info.Modified = vcs["vcs.modified"] == "true"
	return info
}

// String renders "augment2api <version> (<short commit>[, modified]) <go version>".
func (i Info) String() string {
	var b strings.Builder
	b.WriteString("augment2api ")
	b.WriteString(i.Version)
	if i.Commit != "" {
		b.WriteString(" (")
		b.WriteString(shortCommit(i.Commit))
		if i.Modified {
			b.WriteString(", modified")
		}
		b.WriteString(")")
	}
	b.WriteString(" ")
	b.WriteString(i.GoVersion)
	if i.BuildTime != "" {
		b.WriteString("\nbuilt ")
		b.WriteString(i.BuildTime)
	}
	return b.String()
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
