// Package playbooks resolves playbook identifiers to loaded documents
// through an ordered chain of providers.
package playbooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/schema"
)

// extProbes is the fixed extension probe order for bare playbook names.
var extProbes = []string{"", ".yaml", ".yml"}

// Provider loads playbooks from one source. Load returns (nil, nil) when
// the identifier is not one of the provider's documents, so the registry
// can try the next provider.
type Provider interface {
	Supports(identifier string) bool
	Load(identifier string) (*schema.Playbook, error)
}

type namedProvider struct {
	name string
	p    Provider
}

// Registry composes providers in registration order. Absolute and
// explicit-relative identifiers are used as-is; bare names are probed
// against the search roots with the fixed extension order.
type Registry struct {
	providers []namedProvider
	roots     []string
}

// NewRegistry creates a registry with the given search roots for bare
// playbook names.
func NewRegistry(searchRoots ...string) *Registry {
	return &Registry{roots: searchRoots}
}

// Register appends a provider under a diagnostic name.
func (r *Registry) Register(name string, p Provider) {
	r.providers = append(r.providers, namedProvider{name: name, p: p})
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.providers))
	for i, np := range r.providers {
		out[i] = np.name
	}
	return out
}

// Load resolves an identifier to a playbook, trying each candidate path
// against each provider in registration order.
func (r *Registry) Load(identifier string) (*schema.Playbook, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, fault.New(fault.ConfigInvalid, "empty playbook identifier")
	}
	for _, candidate := range r.candidates(identifier) {
		for _, np := range r.providers {
			if !np.p.Supports(candidate) {
				continue
			}
			pb, err := np.p.Load(candidate)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", np.name, err)
			}
			if pb != nil {
				return pb, nil
			}
		}
	}
	return nil, fault.New(fault.NotFound, "playbook %q not found", identifier).
		WithGuidance(fmt.Sprintf("Registered providers: %s", strings.Join(r.Names(), ", ")))
}

func (r *Registry) candidates(identifier string) []string {
	explicit := filepath.IsAbs(identifier) ||
		strings.HasPrefix(identifier, "./") ||
		strings.HasPrefix(identifier, "../")
	if explicit {
		return probe(identifier)
	}
	var out []string
	for _, root := range r.roots {
		out = append(out, probe(filepath.Join(root, identifier))...)
	}
	if len(out) == 0 {
		out = probe(identifier)
	}
	return out
}

func probe(base string) []string {
	out := make([]string, 0, len(extProbes))
	for _, ext := range extProbes {
		out = append(out, base+ext)
	}
	return out
}

// FileProvider loads playbook YAML files from the filesystem.
type FileProvider struct{}

// Supports reports whether the candidate looks like a playbook file that
// exists on disk.
func (FileProvider) Supports(identifier string) bool {
	ext := filepath.Ext(identifier)
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	info, err := os.Stat(identifier)
	return err == nil && !info.IsDir()
}

// Load parses and validates the playbook file.
func (FileProvider) Load(identifier string) (*schema.Playbook, error) {
	pb, errs := schema.ValidateFile(identifier)
	if len(errs) > 0 {
		return nil, fmt.Errorf("playbook %s invalid: %w", identifier, errs[0])
	}
	return pb, nil
}
