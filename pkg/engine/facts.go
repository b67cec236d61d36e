package engine

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FactProvider exposes the host identity the recipe dispatches on.
type FactProvider interface {
	// DistroID returns the distribution id, e.g. "Ubuntu".
	DistroID() string

	// DistroRelease returns the release string, e.g. "12.04".
	DistroRelease() string

	// DistroCodename returns the release codename, e.g. "precise".
	DistroCodename() string

	// Architecture returns the CPU architecture as reported by the host.
	Architecture() string
}

// StaticFacts is a FactProvider backed by fixed values.
// Field names follow the facter keys so fact dumps can be loaded directly.
type StaticFacts struct {
	ID       string `json:"lsbdistid" yaml:"lsbdistid" validate:"required"`
	Release  string `json:"lsbdistrelease" yaml:"lsbdistrelease" validate:"required"`
	Codename string `json:"lsbdistcodename" yaml:"lsbdistcodename"`
	Arch     string `json:"architecture" yaml:"architecture"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
}

// DistroID implements FactProvider.
func (f StaticFacts) DistroID() string { return f.ID }

// DistroRelease implements FactProvider.
func (f StaticFacts) DistroRelease() string { return f.Release }

// DistroCodename implements FactProvider.
func (f StaticFacts) DistroCodename() string { return f.Codename }

// Architecture implements FactProvider.
func (f StaticFacts) Architecture() string { return f.Arch }

// Snapshot copies any FactProvider into a StaticFacts value.
func Snapshot(p FactProvider) StaticFacts {
	if sf, ok := p.(StaticFacts); ok {
		return sf
	}
	if sf, ok := p.(*StaticFacts); ok && sf != nil {
		return *sf
	}
	return StaticFacts{
		ID:       p.DistroID(),
		Release:  p.DistroRelease(),
		Codename: p.DistroCodename(),
		Arch:     p.Architecture(),
	}
}

// LoadFactsFile reads a YAML or JSON facts document.
func LoadFactsFile(path string) (*StaticFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}
	return ParseFacts(data)
}

// ParseFacts decodes a YAML or JSON facts document.
// Unquoted YAML releases such as 12.04 keep their literal text.
func ParseFacts(data []byte) (*StaticFacts, error) {
	var facts StaticFacts
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return nil, NewPermanentError("failed to parse facts", err).WithCode(ErrCodeValidation)
	}
	facts.ID = strings.TrimSpace(facts.ID)
	facts.Release = strings.TrimSpace(facts.Release)
	if facts.ID == "" || facts.Release == "" {
		return nil, NewPermanentError("facts must include lsbdistid and lsbdistrelease", nil).
			WithCode(ErrCodeValidation)
	}
	return &facts, nil
}

// NormalizeArch maps architecture names onto the ones used in MongoDB
// download URLs. i386 becomes i686; everything else passes through.
func NormalizeArch(arch string) string {
	if arch == "i386" {
		return "i686"
	}
	return arch
}
