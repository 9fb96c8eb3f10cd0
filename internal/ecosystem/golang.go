package ecosystem

import (
	"fmt"
	"os"

	"golang.org/x/mod/modfile"
)

// GoAdapter handles Go modules.
type GoAdapter struct{}

func (GoAdapter) Kind() Kind { return KindGo }

func (GoAdapter) Signature() Signature {
	return Signature{
		Lockfiles:  []string{"go.sum"},
		Manifests:  []string{"go.mod"},
		Extensions: []string{".go"},
	}
}

func (GoAdapter) Plan(_ string, desc *BuildDescriptor) error {
	desc.Tool = "go"
	if desc.Specificity == SpecificityHeuristic {
		desc.ResolveCommand = nil
		desc.BuildCommand = append([]string{"go", "build", "-o", os.DevNull}, baseNames(desc.ManifestPaths)...)
		return nil
	}
	desc.ResolveCommand = []string{"go", "mod", "download"}
	desc.BuildCommand = []string{"go", "test", "./..."}
	return nil
}

func (GoAdapter) Dependencies(dir string) ([]Dependency, error) {
	data, err := readManifest(dir, "go.mod")
	if err != nil {
		return nil, err
	}
	f, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse go.mod: %w", err)
	}
	deps := make([]Dependency, 0, len(f.Require))
	for _, r := range f.Require {
		scope := ScopeRuntime
		if r.Indirect {
			scope = ScopeIndirect
		}
		deps = append(deps, Dependency{
			Name:     r.Mod.Path,
			Version:  r.Mod.Version,
			Scope:    scope,
			Manifest: "go.mod",
		})
	}
	return deps, nil
}
