// Package policy decides which profiles an installation keeps and what
// each one requires.
package policy

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/vpn"
)

// ProfileEnv is the environment include expressions are evaluated against.
type ProfileEnv struct {
	ID      string   `expr:"id"`
	Name    string   `expr:"name"`
	Modules []string `expr:"modules"`
	TV      bool     `expr:"tv"`
}

// NewProfileEnv projects p for expression evaluation.
func NewProfileEnv(p vpn.Profile) ProfileEnv {
	types := p.ModuleTypes()
	modules := make([]string, 0, len(types))
	for _, t := range types {
		modules = append(modules, string(t))
	}
	return ProfileEnv{
		ID:      p.ID,
		Name:    p.Name,
		Modules: modules,
		TV:      p.Attributes.IsAvailableForTV,
	}
}

// Policy is the configurable inclusion policy.
type Policy struct {
	program  *vm.Program
	source   string
	platform string
	logger   *slog.Logger
}

// Compile checks an include expression. An empty expression includes
// every profile.
func Compile(include string) (*vm.Program, error) {
	if strings.TrimSpace(include) == "" {
		return nil, nil
	}
	program, err := expr.Compile(include, expr.Env(ProfileEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid include expression: %w", err)
	}
	return program, nil
}

// New builds a policy for the given platform (common.PlatformDesktop or
// common.PlatformTV) and include expression.
func New(platform, include string) (*Policy, error) {
	switch platform {
	case "", common.PlatformDesktop, common.PlatformTV:
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", common.ErrConfigInvalid, platform)
	}
	program, err := Compile(include)
	if err != nil {
		return nil, err
	}
	return &Policy{
		program:  program,
		source:   include,
		platform: platform,
		logger:   common.Component("policy"),
	}, nil
}

// IsIncluded evaluates the platform rule and the include expression.
// Evaluation errors exclude the profile.
func (p *Policy) IsIncluded(profile vpn.Profile) bool {
	if p.platform == common.PlatformTV && !profile.Attributes.IsAvailableForTV {
		return false
	}
	if p.program == nil {
		return true
	}
	output, err := expr.Run(p.program, NewProfileEnv(profile))
	if err != nil {
		p.logger.Warn("include expression failed", "id", profile.ID, "expression", p.source, "error", err)
		return false
	}
	result, ok := output.(bool)
	return ok && result
}

// RequiredFeatures derives the features a profile needs from its modules.
func (p *Policy) RequiredFeatures(profile vpn.Profile) vpn.FeatureSet {
	features := vpn.NewFeatureSet()
	for _, m := range profile.Modules {
		switch m.Type {
		case vpn.ModuleOnDemand:
			features.Add(vpn.FeatureOnDemand)
		case vpn.ModuleDNS:
			features.Add(vpn.FeatureDNS)
		case vpn.ModuleHTTPProxy:
			features.Add(vpn.FeatureHTTPProxy)
		case vpn.ModuleIP:
			features.Add(vpn.FeatureRouting)
		case vpn.ModuleOpenVPN, vpn.ModuleWireGuard:
			if m.InteractiveLogin {
				features.Add(vpn.FeatureInteractiveLogin)
			}
		}
	}
	if profile.Attributes.IsAvailableForTV {
		features.Add(vpn.FeatureTV)
	}
	if len(features) == 0 {
		return nil
	}
	return features
}

// WillRebuild normalizes a profile before a local save: the name is
// trimmed and repeated module ids keep their first occurrence.
func (p *Policy) WillRebuild(b *vpn.Builder) (*vpn.Builder, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return nil, fmt.Errorf("%w: profile name is required", common.ErrInvalidProfile)
	}

	seen := make(map[string]bool, len(b.Modules))
	modules := b.Modules[:0]
	for _, m := range b.Modules {
		if seen[m.ID] {
			p.logger.Debug("dropping duplicate module", "profile", b.ID, "module", m.ID)
			continue
		}
		seen[m.ID] = true
		modules = append(modules, m)
	}
	b.Modules = modules
	return b, nil
}
