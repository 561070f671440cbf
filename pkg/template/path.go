package template

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/catalystworks/catalyst/pkg/fault"
)

var schemeRe = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// extProbes is the fixed extension probe order: as supplied, .md, .json,
// extensionless.
var extProbes = []string{"", ".md", ".json"}

// PathResolver maps protocol references of the form scheme://relative/path
// to filesystem locations under per-scheme root directories. Only the
// configured schemes are accepted; traversal out of a root is rejected.
type PathResolver struct {
	roots map[string]string
}

// NewPathResolver creates a resolver over a closed scheme→root allow-list.
func NewPathResolver(roots map[string]string) *PathResolver {
	owned := make(map[string]string, len(roots))
	for scheme, root := range roots {
		owned[scheme] = root
	}
	return &PathResolver{roots: owned}
}

// Schemes returns the allow-listed protocol names.
func (r *PathResolver) Schemes() []string {
	out := make([]string, 0, len(r.roots))
	for s := range r.roots {
		out = append(out, s)
	}
	return out
}

// Resolve maps a protocol reference to a concrete path under the scheme's
// root, probing extensions in the fixed order and returning the first
// candidate that exists. When no candidate exists, the as-supplied
// candidate is returned and existence is left to the caller.
func (r *PathResolver) Resolve(ref string) (string, error) {
	scheme, rest, ok := strings.Cut(ref, "://")
	if !ok || !schemeRe.MatchString(scheme) {
		return "", fault.New(fault.ConfigInvalid, "malformed protocol reference %q", ref).
			WithGuidance("Use the form scheme://relative/path")
	}
	root, known := r.roots[scheme]
	if !known {
		return "", fault.New(fault.ConfigInvalid, "unknown protocol %q in %q", scheme, ref).
			WithGuidance("Only registered protocols may be referenced")
	}
	if rest == "" {
		return "", fault.New(fault.ConfigInvalid, "empty path in protocol reference %q", ref)
	}
	if err := checkConfined(rest, ref); err != nil {
		return "", err
	}

	candidates := make([]string, 0, len(extProbes)+1)
	for _, ext := range extProbes {
		candidates = append(candidates, rest+ext)
	}
	if ext := filepath.Ext(rest); ext != "" {
		candidates = append(candidates, strings.TrimSuffix(rest, ext))
	}

	first := ""
	for _, candidate := range candidates {
		if err := checkConfined(candidate, ref); err != nil {
			return "", err
		}
		resolved := filepath.Join(root, filepath.FromSlash(candidate))
		if !confinedTo(root, resolved) {
			return "", traversalFault(ref)
		}
		if first == "" {
			first = resolved
		}
		if _, err := os.Stat(resolved); err == nil {
			return resolved, nil
		}
	}
	return first, nil
}

// checkConfined rejects absolute paths and parent-directory segments.
// Applied both before and after extension probing.
func checkConfined(rel, ref string) error {
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) || filepath.IsAbs(filepath.FromSlash(rel)) {
		return traversalFault(ref)
	}
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return traversalFault(ref)
		}
	}
	return nil
}

func confinedTo(root, resolved string) bool {
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func traversalFault(ref string) *fault.Fault {
	return fault.New(fault.SandboxViolation, "path escapes protocol root in %q", ref).
		WithGuidance("Protocol paths must be relative and stay under their root directory")
}
