package ecosystem

import (
	"errors"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/repobuilder/internal/logfields"
)

// Dependency scopes.
const (
	ScopeRuntime  = "runtime"
	ScopeDev      = "dev"
	ScopeBuild    = "build"
	ScopeOptional = "optional"
	ScopePeer     = "peer"
	ScopeIndirect = "indirect"
	ScopeTest     = "test"
)

// Dependency is one declared dependency read from a manifest.
type Dependency struct {
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Scope    string `json:"scope"`
	Manifest string `json:"manifest"`
}

// DependencySet is the dependency inventory of one descriptor.
type DependencySet struct {
	Descriptor   BuildDescriptor `json:"descriptor"`
	Dependencies []Dependency    `json:"dependencies"`
	Error        string          `json:"error,omitempty"`
}

// ErrNoManifest is returned by adapters asked to list dependencies of a
// directory without a parseable manifest.
var ErrNoManifest = errors.New("no dependency manifest")

// ListDependencies reads the declared dependencies of every descriptor. Parse
// failures are recorded on the set and logged to logger.
func (r *Registry) ListDependencies(root string, descriptors []BuildDescriptor, logger *slog.Logger) []DependencySet {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]DependencySet, 0, len(descriptors))
	for _, d := range descriptors {
		set := DependencySet{Descriptor: d, Dependencies: []Dependency{}}
		a, ok := r.Lookup(d.Kind)
		if !ok {
			set.Error = "no adapter registered"
			out = append(out, set)
			continue
		}
		deps, err := a.Dependencies(filepath.Join(root, filepath.FromSlash(d.Dir)))
		switch {
		case errors.Is(err, ErrNoManifest):
		case err != nil:
			logger.Warn("Failed to list dependencies",
				logfields.Ecosystem(string(d.Kind)),
				logfields.Path(d.Dir),
				logfields.Error(err))
			set.Error = err.Error()
		default:
			for i := range deps {
				if d.Dir != "" && d.Dir != "." {
					deps[i].Manifest = d.Dir + "/" + deps[i].Manifest
				}
			}
			set.Dependencies = deps
		}
		out = append(out, set)
	}
	return out
}
