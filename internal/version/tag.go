package version

import (
	"regexp"
	"strconv"
	"strings"
)

// Channel is a release channel; each channel owns one tag family.
type Channel int

const (
	Stable Channel = iota
	Beta
)

var tagPattern = regexp.MustCompile(`^(stable|beta)-v(\d+)\.(\d+)\.(\d+)$`)

// Prefix returns the tag prefix for the channel ("stable-v" or "beta-v").
func (c Channel) Prefix() string {
	if c == Beta {
		return "beta-v"
	}
	return "stable-v"
}

func (c Channel) String() string {
	if c == Beta {
		return "beta"
	}
	return "stable"
}

// Tag is a release tag: a channel plus a numeric version.
type Tag struct {
	Channel Channel
	Version Version
}

func (t Tag) String() string {
	return t.Channel.Prefix() + t.Version.String()
}

// ParseTag parses "stable-vX.Y.Z" or "beta-vX.Y.Z". Anything else reports ok=false.
func ParseTag(s string) (Tag, bool) {
	m := tagPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Tag{}, false
	}
	var nums [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return Tag{}, false
		}
		nums[i] = n
	}
	ch := Stable
	if m[1] == "beta" {
		ch = Beta
	}
	return Tag{Channel: ch, Version: Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}}, true
}

// LatestTag returns the tag of channel ch with the numerically greatest version.
// Strings outside either tag family are skipped. When two tags carry the same
// triple the first one seen wins.
func LatestTag(tags []string, ch Channel) (Tag, bool) {
	var (
		best  Tag
		found bool
	)
	for _, s := range tags {
		t, ok := ParseTag(s)
		if !ok || t.Channel != ch {
			continue
		}
		if !found || t.Version.Compare(best.Version) > 0 {
			best = t
			found = true
		}
	}
	return best, found
}
