package version

import (
	"regexp"
	"strings"
)

var semverPattern = regexp.MustCompile(`^v(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)(-beta\.[0-9]+)?$`)

// Validation is the result of checking a user-supplied release version.
type Validation struct {
	Raw          string
	Normalized   string
	Valid        bool
	IsPrerelease bool
}

// Validate normalizes raw to a leading "v" and checks it against vX.Y.Z or vX.Y.Z-beta.N.
// Channel tags (stable-vX.Y.Z, beta-vX.Y.Z) are accepted as-is; beta tags are prereleases.
func Validate(raw string) Validation {
	v := Validation{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if t, ok := ParseTag(trimmed); ok {
		v.Normalized = t.String()
		v.Valid = true
		v.IsPrerelease = t.Channel == Beta
		return v
	}
	v.Normalized = "v" + strings.TrimLeft(trimmed, "v")
	v.Valid = semverPattern.MatchString(v.Normalized)
	v.IsPrerelease = strings.Contains(v.Normalized, "-beta.")
	return v
}
