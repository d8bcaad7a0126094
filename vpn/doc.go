// Package vpn provides the VPN profile model for VPN Registry.
//
// This package defines the values every other package exchanges:
//
//   - Profile: immutable snapshot of one VPN configuration
//   - Builder: mutable copy used to derive a new Profile
//   - ProfileHeader: read-only projection used for listing
//   - FeatureSet: capabilities a profile requires
//
// # Immutability
//
// A Profile is never modified in place. Edits go through Builder:
//
//	b := profile.Builder()
//	b.Name = "Office"
//	edited, err := b.Stamp(time.Now()).Build()
//
// Stamp assigns a new fingerprint, which is how the registry tells a
// locally edited profile apart from the copy held by the remote store.
//
// # Serialization
//
// Profiles are written as YAML documents by the file stores and as JSON
// by the key/value and SQL stores (see codec.go).
package vpn
