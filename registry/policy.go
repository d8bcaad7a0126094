package registry

import "github.com/yllada/vpn-registry/vpn"

// InclusionPolicy decides which profiles belong to this installation and
// what they require.
type InclusionPolicy interface {
	// IsIncluded reports whether p belongs in the registry.
	IsIncluded(p vpn.Profile) bool
	// RequiredFeatures returns the features p needs, or nil.
	RequiredFeatures(p vpn.Profile) vpn.FeatureSet
	// WillRebuild may rewrite a builder before a local save. An error
	// aborts the save.
	WillRebuild(b *vpn.Builder) (*vpn.Builder, error)
}

// AllowAll includes every profile and requires nothing.
type AllowAll struct{}

// IsIncluded implements InclusionPolicy.
func (AllowAll) IsIncluded(vpn.Profile) bool { return true }

// RequiredFeatures implements InclusionPolicy.
func (AllowAll) RequiredFeatures(vpn.Profile) vpn.FeatureSet { return nil }

// WillRebuild implements InclusionPolicy.
func (AllowAll) WillRebuild(b *vpn.Builder) (*vpn.Builder, error) { return b, nil }
