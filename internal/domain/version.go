package domain

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CanonicalVersion turns an upstream tag such as "1.4.0" or "release-v1.4"
// into a semver string with a leading "v". It returns "" when the tag is
// not a semantic version.
func CanonicalVersion(tag string) string {
	v := strings.TrimSpace(tag)
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	v = strings.TrimPrefix(v, "release-")
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// IsNewerVersion reports whether candidate is strictly newer than current.
// Pre-release ordering follows semver, so v1.2.0 is newer than v1.2.0-rc.1.
// An empty current version treats any valid candidate as newer. Tags that
// are not semantic versions fall back to inequality.
func IsNewerVersion(candidate, current string) bool {
	c, cur := CanonicalVersion(candidate), CanonicalVersion(current)
	switch {
	case c == "":
		return candidate != "" && candidate != current
	case strings.TrimSpace(current) == "":
		return true
	case cur == "":
		return candidate != current
	default:
		return semver.Compare(c, cur) > 0
	}
}

// IsMajorBump reports whether to crosses a major version boundary from from.
// For v0 versions a minor bump counts as major.
func IsMajorBump(from, to string) bool {
	f, t := CanonicalVersion(from), CanonicalVersion(to)
	if f == "" || t == "" {
		return false
	}
	if semver.Major(f) != semver.Major(t) {
		return true
	}
	return semver.Major(f) == "v0" && semver.MajorMinor(f) != semver.MajorMinor(t)
}

// LatestVersion returns the highest semantic version among tags, or "".
func LatestVersion(tags []string) string {
	var best, bestTag string
	for _, tag := range tags {
		v := CanonicalVersion(tag)
		if v == "" {
			continue
		}
		if best == "" || semver.Compare(v, best) > 0 {
			best, bestTag = v, tag
		}
	}
	return bestTag
}
