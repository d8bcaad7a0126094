package vpn

import (
	"slices"
	"sort"
)

// Feature names a capability a profile needs in order to be used.
type Feature string

// Features derived from profile content.
const (
	FeatureDNS              Feature = "dns"
	FeatureHTTPProxy        Feature = "http_proxy"
	FeatureInteractiveLogin Feature = "interactive_login"
	FeatureOnDemand         Feature = "on_demand"
	FeatureRouting          Feature = "routing"
	FeatureSharing          Feature = "sharing"
	FeatureTV               Feature = "tv"
)

// FeatureSet is an unordered set of features.
type FeatureSet map[Feature]struct{}

// NewFeatureSet builds a set from the given features.
func NewFeatureSet(features ...Feature) FeatureSet {
	s := make(FeatureSet, len(features))
	for _, f := range features {
		s[f] = struct{}{}
	}
	return s
}

// Add inserts f into the set.
func (s FeatureSet) Add(f Feature) {
	s[f] = struct{}{}
}

// Has reports whether f is in the set.
func (s FeatureSet) Has(f Feature) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the features in lexical order.
func (s FeatureSet) Sorted() []Feature {
	if len(s) == 0 {
		return nil
	}
	out := make([]Feature, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SharingFlag describes where a profile is visible besides this device.
type SharingFlag string

const (
	// SharingShared means the profile is present in the remote store.
	SharingShared SharingFlag = "shared"
	// SharingTV means the profile is available on TV devices.
	SharingTV SharingFlag = "tv"
)

// ProfileHeader is the read-only projection of a profile used for listing.
// Headers are derived from the registry state and never persisted.
type ProfileHeader struct {
	ID               string
	Name             string
	ModuleTypes      []ModuleType
	Fingerprint      string
	SharingFlags     []SharingFlag
	RequiredFeatures []Feature
}

// NewHeader derives the header of p.
func NewHeader(p Profile, shared bool, required FeatureSet) ProfileHeader {
	var flags []SharingFlag
	if shared {
		flags = append(flags, SharingShared)
		if p.Attributes.IsAvailableForTV {
			flags = append(flags, SharingTV)
		}
	}
	return ProfileHeader{
		ID:               p.ID,
		Name:             p.Name,
		ModuleTypes:      p.ModuleTypes(),
		Fingerprint:      p.Attributes.Fingerprint,
		SharingFlags:     flags,
		RequiredFeatures: required.Sorted(),
	}
}

// IsShared reports whether the header carries the shared flag.
func (h ProfileHeader) IsShared() bool {
	return slices.Contains(h.SharingFlags, SharingShared)
}

// IsTV reports whether the header carries the TV flag.
func (h ProfileHeader) IsTV() bool {
	return slices.Contains(h.SharingFlags, SharingTV)
}
