// Package version reports the noderunner build version.
//
// Commit is set with -ldflags "-X .../internal/version.Commit=<hash>".
package version

import (
	"fmt"
	"strings"
)

// Commit is the git commit the binary was built from, if known.
var Commit string

const (
	major = 1
	minor = 0
	patch = 0

	// preRelease may only use [0-9A-Za-z-].
	preRelease = ""
)

// Version returns the semantic version.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if pr := sanitize(preRelease); pr != "" {
		v += "-" + pr
	}
	return v
}

// Full returns Version followed by the commit, when known.
func Full() string {
	if c := strings.TrimSpace(Commit); c != "" {
		return Version() + " commit=" + c
	}
	return Version()
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			return r
		}
		return -1
	}, s)
}
