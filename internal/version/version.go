// Package version reports the posdisplay release and build metadata.
package version

import (
	"fmt"
	"strings"
)

// CommitHash is set with -ldflags "-X .../internal/version.CommitHash=...".
var CommitHash string

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	// appPreRelease may only use [0-9A-Za-z-].
	appPreRelease = ""
)

const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

// Version returns the semantic version.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if pre := normalize(appPreRelease); pre != "" {
		v += "-" + pre
	}
	return v
}

// RichVersion appends the commit hash when the build carries one.
func RichVersion() string {
	v := Version()
	if hash := strings.TrimSpace(CommitHash); hash != "" {
		return fmt.Sprintf("%s commit_hash=%s", v, normalize(hash))
	}
	return v
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(semanticAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
