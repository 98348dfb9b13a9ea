// Package version computes the next release tag for a branch from the
// set of existing stable-v*/beta-v* tags. It performs no I/O.
package version

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultInitialVersion is used when a policy leaves DefaultVersion empty.
const DefaultInitialVersion = "beta-v0.0.1"

// ErrInvalidBranch is returned for any source branch other than main or beta.
var ErrInvalidBranch = errors.New("invalid branch for release")

// Policy configures resolution.
type Policy struct {
	SourceBranch   string `yaml:"source_branch"`
	DefaultVersion string `yaml:"default_version"`
}

// Rule names the policy row that produced a resolution.
type Rule string

const (
	RuleBetaPatch      Rule = "beta-patch"
	RuleBetaFromStable Rule = "beta-from-stable"
	RulePromote        Rule = "promote"
	RuleStablePatch    Rule = "stable-patch"
	RuleDefault        Rule = "default"
)

// Resolved is the outcome of Resolve.
type Resolved struct {
	Version      string
	IsPrerelease bool
	Tag          Tag
	Rule         Rule
}

// ChannelForBranch maps a source branch to its release channel.
// Branch names are trimmed and compared case-insensitively.
func ChannelForBranch(branch string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(branch)) {
	case "main":
		return Stable, nil
	case "beta":
		return Beta, nil
	}
	return 0, fmt.Errorf("%w: %q (only main and beta are released)", ErrInvalidBranch, branch)
}

// NormalizeBranch returns the canonical "main" or "beta" for branch.
func NormalizeBranch(branch string) (string, error) {
	ch, err := ChannelForBranch(branch)
	if err != nil {
		return "", err
	}
	if ch == Stable {
		return "main", nil
	}
	return "beta", nil
}

// Resolve computes the next release version for p.SourceBranch given the known tags.
//
// beta: bump the latest beta patch, else bump the latest stable minor, else the default.
// main: promote the latest beta unchanged, else bump the latest stable patch, else the default.
func Resolve(p Policy, tags []string) (Resolved, error) {
	ch, err := ChannelForBranch(p.SourceBranch)
	if err != nil {
		return Resolved{}, err
	}
	beta, hasBeta := LatestTag(tags, Beta)
	stable, hasStable := LatestTag(tags, Stable)

	var (
		next Version
		rule Rule
	)
	switch {
	case ch == Beta && hasBeta:
		next, rule = beta.Version.Bump(Patch), RuleBetaPatch
	case ch == Beta && hasStable:
		next, rule = stable.Version.Bump(Minor), RuleBetaFromStable
	case ch == Stable && hasBeta:
		next, rule = beta.Version, RulePromote
	case ch == Stable && hasStable:
		next, rule = stable.Version.Bump(Patch), RuleStablePatch
	default:
		next, rule = defaultVersion(p.DefaultVersion), RuleDefault
	}
	t := Tag{Channel: ch, Version: next}
	return Resolved{
		Version:      t.String(),
		IsPrerelease: ch == Beta,
		Tag:          t,
		Rule:         rule,
	}, nil
}

// defaultVersion reads the numeric part of a configured default such as
// "beta-v0.0.1", "stable-v1.0.0", "v0.1.0" or "0.1.0".
func defaultVersion(s string) Version {
	if s == "" {
		s = DefaultInitialVersion
	}
	if t, ok := ParseTag(s); ok {
		return t.Version
	}
	s = strings.TrimSpace(s)
	for _, prefix := range []string{Stable.Prefix(), Beta.Prefix(), "v"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	return ParseVersion(s)
}
