// Package vpn provides the VPN profile model.
// This file contains the Profile value, its modules and attributes,
// and the Builder used to produce modified copies.
package vpn

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/yllada/vpn-registry/common"
)

// ModuleType identifies the kind of a profile module.
type ModuleType string

// Known module types.
const (
	ModuleOpenVPN   ModuleType = "OpenVPN"
	ModuleWireGuard ModuleType = "WireGuard"
	ModuleDNS       ModuleType = "DNS"
	ModuleHTTPProxy ModuleType = "HTTPProxy"
	ModuleIP        ModuleType = "IP"
	ModuleOnDemand  ModuleType = "OnDemand"
)

// Module is one building block of a profile, for example the OpenVPN
// connection itself or a DNS override applied on top of it.
type Module struct {
	// ID is unique within the owning profile.
	ID string `json:"id" yaml:"id"`
	// Type selects how the remaining fields are interpreted.
	Type ModuleType `json:"type" yaml:"type"`
	// ConfigPath points to the provider configuration file (.ovpn, .conf).
	ConfigPath string `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	// Username is the optional username for authentication.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	// InteractiveLogin means credentials are asked for on every connection.
	InteractiveLogin bool `json:"interactive_login,omitempty" yaml:"interactive_login,omitempty"`
	// Routes contains IP addresses or CIDR networks, e.g. ["10.0.0.0/8"].
	Routes []string `json:"routes,omitempty" yaml:"routes,omitempty"`
	// Servers lists DNS or proxy servers, depending on Type.
	Servers []string `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// Equal reports whether two modules hold the same values.
func (m Module) Equal(o Module) bool {
	return m.ID == o.ID &&
		m.Type == o.Type &&
		m.ConfigPath == o.ConfigPath &&
		m.Username == o.Username &&
		m.InteractiveLogin == o.InteractiveLogin &&
		slices.Equal(m.Routes, o.Routes) &&
		slices.Equal(m.Servers, o.Servers)
}

func (m Module) clone() Module {
	m.Routes = slices.Clone(m.Routes)
	m.Servers = slices.Clone(m.Servers)
	return m
}

// Attributes carries the bookkeeping fields of a profile.
type Attributes struct {
	// Fingerprint changes whenever the profile content changes locally.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
	// LastUpdate is when the profile was last edited locally.
	LastUpdate time.Time `json:"last_update" yaml:"last_update"`
	// IsAvailableForTV marks the profile as usable on TV devices.
	IsAvailableForTV bool `json:"is_available_for_tv,omitempty" yaml:"is_available_for_tv,omitempty"`
}

// Equal reports whether two attribute sets hold the same values.
func (a Attributes) Equal(o Attributes) bool {
	return a.Fingerprint == o.Fingerprint &&
		a.LastUpdate.Equal(o.LastUpdate) &&
		a.IsAvailableForTV == o.IsAvailableForTV
}

// Profile represents a VPN connection profile.
//
// A Profile is an immutable snapshot: code outside this package must not
// mutate the slices it exposes. Changes go through Builder, which always
// produces a new value.
type Profile struct {
	// ID is a unique identifier for the profile (UUID format).
	ID string `json:"id" yaml:"id"`
	// Name is a human-readable name for the profile. Not unique.
	Name string `json:"name" yaml:"name"`
	// Modules are the ordered building blocks of the profile.
	Modules []Module `json:"modules,omitempty" yaml:"modules,omitempty"`
	// ActiveModuleIDs lists the modules enabled when connecting.
	ActiveModuleIDs []string `json:"active_module_ids,omitempty" yaml:"active_module_ids,omitempty"`
	// Attributes holds fingerprint, timestamps and availability flags.
	Attributes Attributes `json:"attributes" yaml:"attributes"`
}

// Equal reports full value equality, fingerprint included.
func (p Profile) Equal(o Profile) bool {
	return p.ID == o.ID &&
		p.Name == o.Name &&
		slices.EqualFunc(p.Modules, o.Modules, Module.Equal) &&
		slices.Equal(p.ActiveModuleIDs, o.ActiveModuleIDs) &&
		p.Attributes.Equal(o.Attributes)
}

// ModuleTypes returns the type of every module, in module order.
func (p Profile) ModuleTypes() []ModuleType {
	types := make([]ModuleType, 0, len(p.Modules))
	for _, m := range p.Modules {
		types = append(types, m.Type)
	}
	return types
}

// HasModule reports whether the profile contains a module of the given type.
func (p Profile) HasModule(t ModuleType) bool {
	for _, m := range p.Modules {
		if m.Type == t {
			return true
		}
	}
	return false
}

// Builder returns a mutable copy of the profile.
func (p Profile) Builder() *Builder {
	modules := make([]Module, 0, len(p.Modules))
	for _, m := range p.Modules {
		modules = append(modules, m.clone())
	}
	return &Builder{
		ID:              p.ID,
		Name:            p.Name,
		Modules:         modules,
		ActiveModuleIDs: slices.Clone(p.ActiveModuleIDs),
		Attributes:      p.Attributes,
	}
}

// BuilderWithNewID returns a mutable copy carrying a fresh identifier.
func (p Profile) BuilderWithNewID() *Builder {
	b := p.Builder()
	b.ID = common.GenerateID()
	return b
}

// ToJSON converts the profile to a JSON string.
// Useful for debugging and logging.
func (p Profile) ToJSON() string {
	data, _ := json.MarshalIndent(p, "", "  ")
	return string(data)
}

// Builder is the mutable counterpart of Profile.
type Builder struct {
	ID              string
	Name            string
	Modules         []Module
	ActiveModuleIDs []string
	Attributes      Attributes
}

// NewBuilder starts a profile with a fresh identifier.
func NewBuilder(name string) *Builder {
	return &Builder{
		ID:   common.GenerateID(),
		Name: name,
	}
}

// Stamp sets a new fingerprint and last-update time.
func (b *Builder) Stamp(now time.Time) *Builder {
	b.Attributes.Fingerprint = common.GenerateFingerprint()
	b.Attributes.LastUpdate = now
	return b
}

// Build validates the builder and returns an immutable Profile.
func (b *Builder) Build() (Profile, error) {
	if err := b.Validate(); err != nil {
		return Profile{}, err
	}
	modules := make([]Module, 0, len(b.Modules))
	for _, m := range b.Modules {
		modules = append(modules, m.clone())
	}
	if len(modules) == 0 {
		modules = nil
	}
	return Profile{
		ID:              b.ID,
		Name:            b.Name,
		Modules:         modules,
		ActiveModuleIDs: slices.Clone(b.ActiveModuleIDs),
		Attributes:      b.Attributes,
	}, nil
}

// Validate checks that the builder has all required fields.
func (b *Builder) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("%w: profile id is required", common.ErrInvalidProfile)
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: profile name is required", common.ErrInvalidProfile)
	}

	seen := make(map[string]bool, len(b.Modules))
	for _, m := range b.Modules {
		if m.ID == "" {
			return fmt.Errorf("%w: module id is required", common.ErrInvalidProfile)
		}
		if seen[m.ID] {
			return fmt.Errorf("%w: duplicate module id %s", common.ErrInvalidProfile, m.ID)
		}
		seen[m.ID] = true
	}
	for _, id := range b.ActiveModuleIDs {
		if !seen[id] {
			return fmt.Errorf("%w: active module %s does not exist", common.ErrInvalidProfile, id)
		}
	}
	return nil
}
