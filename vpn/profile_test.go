package vpn

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-registry/common"
)

func sampleProfile(t *testing.T) Profile {
	t.Helper()
	b := NewBuilder("Office")
	b.Modules = []Module{
		{ID: "ovpn", Type: ModuleOpenVPN, ConfigPath: "/etc/office.ovpn", Username: "alice"},
		{ID: "dns", Type: ModuleDNS, Servers: []string{"1.1.1.1"}},
	}
	b.ActiveModuleIDs = []string{"ovpn", "dns"}
	p, err := b.Stamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)).Build()
	require.NoError(t, err)
	return p
}

func TestBuilder_CopiesAreIndependent(t *testing.T) {
	p := sampleProfile(t)

	b := p.Builder()
	b.Modules[1].Servers[0] = "9.9.9.9"
	b.ActiveModuleIDs[0] = "dns"

	assert.Equal(t, "1.1.1.1", p.Modules[1].Servers[0])
	assert.Equal(t, "ovpn", p.ActiveModuleIDs[0])
}

func TestBuilder_StampChangesFingerprint(t *testing.T) {
	p := sampleProfile(t)

	edited, err := p.Builder().Stamp(time.Now()).Build()
	require.NoError(t, err)

	assert.Equal(t, p.ID, edited.ID)
	assert.NotEqual(t, p.Attributes.Fingerprint, edited.Attributes.Fingerprint)
	assert.False(t, p.Equal(edited))
}

func TestBuilderWithNewID(t *testing.T) {
	p := sampleProfile(t)

	dup, err := p.BuilderWithNewID().Build()
	require.NoError(t, err)

	assert.NotEqual(t, p.ID, dup.ID)
	assert.Equal(t, p.Name, dup.Name)
	assert.Equal(t, p.ModuleTypes(), dup.ModuleTypes())
}

func TestBuilder_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *Builder)
		wantErr bool
	}{
		{"valid", func(b *Builder) {}, false},
		{"empty name", func(b *Builder) { b.Name = "  " }, true},
		{"empty id", func(b *Builder) { b.ID = "" }, true},
		{"module without id", func(b *Builder) { b.Modules = append(b.Modules, Module{Type: ModuleIP}) }, true},
		{"duplicate module id", func(b *Builder) { b.Modules = append(b.Modules, Module{ID: "dns", Type: ModuleIP}) }, true},
		{"unknown active module", func(b *Builder) { b.ActiveModuleIDs = []string{"missing"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sampleProfile(t).Builder()
			tt.mutate(b)
			_, err := b.Build()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrInvalidProfile))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestProfile_Equal(t *testing.T) {
	p := sampleProfile(t)

	same, err := p.Builder().Build()
	require.NoError(t, err)
	assert.True(t, p.Equal(same))

	b := p.Builder()
	b.Modules[0].Routes = []string{"10.0.0.0/8"}
	routed, err := b.Build()
	require.NoError(t, err)
	assert.False(t, p.Equal(routed))
}

func TestNewHeader(t *testing.T) {
	b := sampleProfile(t).Builder()
	b.Attributes.IsAvailableForTV = true
	p, err := b.Build()
	require.NoError(t, err)

	local := NewHeader(p, false, nil)
	assert.Empty(t, local.SharingFlags)
	assert.Nil(t, local.RequiredFeatures)
	assert.Equal(t, []ModuleType{ModuleOpenVPN, ModuleDNS}, local.ModuleTypes)

	shared := NewHeader(p, true, NewFeatureSet(FeatureTV, FeatureDNS))
	assert.True(t, shared.IsShared())
	assert.True(t, shared.IsTV())
	assert.Equal(t, []Feature{FeatureDNS, FeatureTV}, shared.RequiredFeatures)
	assert.Equal(t, p.Attributes.Fingerprint, shared.Fingerprint)
}

func TestYAMLRoundTrip(t *testing.T) {
	p := sampleProfile(t)

	data, err := EncodeYAML([]Profile{p})
	require.NoError(t, err)

	decoded, err := DecodeYAML(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.True(t, p.Equal(decoded[0]), "decoded profile differs:\n%s", decoded[0].ToJSON())
}

func TestDecodeYAML_RejectsUnknownFields(t *testing.T) {
	_, err := DecodeYAML([]byte("profiles:\n  - id: a\n    name: x\n    color: red\n"))
	assert.Error(t, err)

	profiles, err := DecodeYAML([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, profiles)
}
