package core

import (
	"context"
)

// LowestMatching returns the lowest listed release inside rng. Unlisted
// releases are only considered when nothing listed matches. Returns nil if
// no release matches.
func LowestMatching(releases []Release, rng VersionRange) *Version {
	var best, fallback *Version
	for _, r := range releases {
		v, err := ParseVersion(r.Number)
		if err != nil || !rng.Satisfies(v) {
			continue
		}
		if r.Status == StatusUnlisted {
			if fallback == nil || v.Compare(*fallback) < 0 {
				fallback = &v
			}
			continue
		}
		if best == nil || v.Compare(*best) < 0 {
			best = &v
		}
	}
	if best != nil {
		return best
	}
	return fallback
}

// FetchLowestMatching lists the releases of name on src and returns the lowest
// one inside rng. Returns a NotFoundError if nothing matches.
func FetchLowestMatching(ctx context.Context, src Source, name string, rng VersionRange) (*Version, error) {
	releases, err := src.FetchReleases(ctx, name)
	if err != nil {
		return nil, err
	}
	if v := LowestMatching(releases, rng); v != nil {
		return v, nil
	}
	return nil, &NotFoundError{Source: src.Name(), Name: name, Version: rng.String()}
}
