package cli

import (
	"fmt"
	"strings"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/vpn"
)

type profileSource interface {
	Profile(id string) (vpn.Profile, bool)
	Profiles() []vpn.Profile
}

// findProfile resolves a profile by exact id, then by case-insensitive name,
// then by id prefix. Names and prefixes matching several profiles are
// rejected.
func findProfile(src profileSource, query string) (vpn.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return vpn.Profile{}, fmt.Errorf("%w: empty name", common.ErrProfileNotFound)
	}
	if p, ok := src.Profile(query); ok {
		return p, nil
	}

	lower := strings.ToLower(query)
	profiles := src.Profiles()

	var byName []vpn.Profile
	for _, p := range profiles {
		if strings.ToLower(p.Name) == lower {
			byName = append(byName, p)
		}
	}
	if p, err := single(byName, query); p != nil || err != nil {
		return deref(p), err
	}

	var byPrefix []vpn.Profile
	for _, p := range profiles {
		if strings.HasPrefix(strings.ToLower(p.ID), lower) {
			byPrefix = append(byPrefix, p)
		}
	}
	if p, err := single(byPrefix, query); p != nil || err != nil {
		return deref(p), err
	}

	return vpn.Profile{}, fmt.Errorf("%w: %s", common.ErrProfileNotFound, query)
}

func single(matches []vpn.Profile, query string) (*vpn.Profile, error) {
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	}
	ids := make([]string, 0, len(matches))
	for _, p := range matches {
		ids = append(ids, shortID(p.ID))
	}
	return nil, fmt.Errorf("%w: %q matches %s", common.ErrAmbiguousName, query, strings.Join(ids, ", "))
}

func deref(p *vpn.Profile) vpn.Profile {
	if p == nil {
		return vpn.Profile{}
	}
	return *p
}

// shortID truncates an id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
