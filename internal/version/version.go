package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Position selects a component of a version triple (1=major, 2=minor, 3=patch).
type Position int

const (
	Major Position = 1
	Minor Position = 2
	Patch Position = 3
)

// Version is a numeric major.minor.patch triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "X.Y.Z" leniently: components that are not integers read as 0
// and missing components are padded with 0. Extra components are ignored.
func ParseVersion(s string) Version {
	parts := strings.Split(strings.TrimSpace(s), ".")
	nums := [3]int{}
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			n = 0
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1. Comparison is numeric per component.
func (v Version) Compare(o Version) int {
	a := [3]int{v.Major, v.Minor, v.Patch}
	b := [3]int{o.Major, o.Minor, o.Patch}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Bump increments the component at p and zeroes every component after it.
// Positions outside Major..Patch return v unchanged.
func (v Version) Bump(p Position) Version {
	switch p {
	case Major:
		return Version{Major: v.Major + 1}
	case Minor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	case Patch:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
	return v
}

// Increment is the string form of Bump: Increment("1.2.3", 2) == "1.3.0".
func Increment(version string, position int) string {
	return ParseVersion(version).Bump(Position(position)).String()
}
