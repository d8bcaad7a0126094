package events

import (
	"time"

	"github.com/yllada/vpn-registry/vpn"
)

// Type identifies the kind of registry event.
type Type int

const (
	// TypeReady fires once, when every configured store finished its first load.
	TypeReady Type = iota
	// TypeLocalProfilesChanged fires after each reload from the local store.
	TypeLocalProfilesChanged
	// TypeRefresh carries the recomputed headers.
	TypeRefresh
	// TypeSaved carries a written profile and the value it replaced.
	TypeSaved
	// TypeRemoved carries the ids removed through the registry.
	TypeRemoved
	// TypeStartRemoteImport opens an import window.
	TypeStartRemoteImport
	// TypeStopRemoteImport closes an import window.
	TypeStopRemoteImport
	// TypeRemoteImportingToggled reports whether remote importing is enabled.
	TypeRemoteImportingToggled
)

// String returns a human-readable name for the event type.
func (t Type) String() string {
	switch t {
	case TypeReady:
		return "ready"
	case TypeLocalProfilesChanged:
		return "local_profiles_changed"
	case TypeRefresh:
		return "refresh"
	case TypeSaved:
		return "saved"
	case TypeRemoved:
		return "removed"
	case TypeStartRemoteImport:
		return "start_remote_import"
	case TypeStopRemoteImport:
		return "stop_remote_import"
	case TypeRemoteImportingToggled:
		return "remote_importing_toggled"
	default:
		return "unknown"
	}
}

// Event is one notification published on the bus. Only the fields relevant
// to Type are set.
type Event struct {
	// Seq increases by one for every event published on a bus.
	Seq uint64
	// Time is when the event was published.
	Time time.Time
	Type Type

	// Headers is set for TypeRefresh, keyed by profile id.
	Headers map[string]vpn.ProfileHeader
	// Profile is set for TypeSaved.
	Profile *vpn.Profile
	// Previous is set for TypeSaved when the profile replaced an existing one.
	Previous *vpn.Profile
	// IDs is set for TypeRemoved.
	IDs []string
	// Enabled is set for TypeRemoteImportingToggled.
	Enabled bool
}

// Ready builds a TypeReady event.
func Ready() Event { return Event{Type: TypeReady} }

// LocalProfilesChanged builds a TypeLocalProfilesChanged event.
func LocalProfilesChanged() Event { return Event{Type: TypeLocalProfilesChanged} }

// Refresh builds a TypeRefresh event.
func Refresh(headers map[string]vpn.ProfileHeader) Event {
	return Event{Type: TypeRefresh, Headers: headers}
}

// Saved builds a TypeSaved event. previous is nil for new profiles.
func Saved(profile vpn.Profile, previous *vpn.Profile) Event {
	return Event{Type: TypeSaved, Profile: &profile, Previous: previous}
}

// Removed builds a TypeRemoved event.
func Removed(ids []string) Event { return Event{Type: TypeRemoved, IDs: ids} }

// StartRemoteImport builds a TypeStartRemoteImport event.
func StartRemoteImport() Event { return Event{Type: TypeStartRemoteImport} }

// StopRemoteImport builds a TypeStopRemoteImport event.
func StopRemoteImport() Event { return Event{Type: TypeStopRemoteImport} }

// RemoteImportingToggled builds a TypeRemoteImportingToggled event.
func RemoteImportingToggled(enabled bool) Event {
	return Event{Type: TypeRemoteImportingToggled, Enabled: enabled}
}
