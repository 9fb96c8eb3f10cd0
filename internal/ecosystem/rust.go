package ecosystem

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// RustAdapter handles Cargo projects.
type RustAdapter struct{}

func (RustAdapter) Kind() Kind { return KindRust }

func (RustAdapter) Signature() Signature {
	return Signature{
		Lockfiles:  []string{"Cargo.lock"},
		Manifests:  []string{"Cargo.toml"},
		Extensions: []string{".rs"},
	}
}

func (RustAdapter) Plan(dir string, desc *BuildDescriptor) error {
	if desc.Specificity == SpecificityHeuristic {
		desc.Tool = "rustc"
		files := baseNames(desc.ManifestPaths)
		entry, crateType := files[0], "lib"
		for _, f := range files {
			if f == "main.rs" {
				entry, crateType = f, "bin"
				break
			}
			if f == "lib.rs" {
				entry = f
			}
		}
		desc.ResolveCommand = nil
		desc.BuildCommand = []string{"rustc", "--edition", "2021", "--crate-type", crateType, "--emit=metadata", "--out-dir", ".repobuilder-rustc", entry}
		return nil
	}
	desc.Tool = "cargo"
	desc.ResolveCommand = []string{"cargo", "fetch"}
	if fileExists(dir, "Cargo.lock") {
		desc.BuildCommand = []string{"cargo", "build", "--locked"}
	} else {
		desc.BuildCommand = []string{"cargo", "build"}
	}
	return nil
}

type cargoManifest struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Workspace         struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}

func (RustAdapter) Dependencies(dir string) ([]Dependency, error) {
	data, err := readManifest(dir, "Cargo.toml")
	if err != nil {
		return nil, err
	}
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse Cargo.toml: %w", err)
	}
	var deps []Dependency
	deps = appendCargoDeps(deps, m.Dependencies, ScopeRuntime)
	deps = appendCargoDeps(deps, m.Workspace.Dependencies, ScopeRuntime)
	deps = appendCargoDeps(deps, m.DevDependencies, ScopeDev)
	deps = appendCargoDeps(deps, m.BuildDependencies, ScopeBuild)
	return deps, nil
}

// appendCargoDeps handles both `name = "1.0"` and `name = { version = "1.0" }`.
func appendCargoDeps(deps []Dependency, table map[string]any, scope string) []Dependency {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := Dependency{Name: name, Scope: scope, Manifest: "Cargo.toml"}
		switch v := table[name].(type) {
		case string:
			d.Version = v
		case map[string]any:
			if ver, ok := v["version"].(string); ok {
				d.Version = ver
			} else if p, ok := v["path"].(string); ok {
				d.Version = "path:" + p
			} else if g, ok := v["git"].(string); ok {
				d.Version = "git:" + g
			}
			if opt, ok := v["optional"].(bool); ok && opt && scope == ScopeRuntime {
				d.Scope = ScopeOptional
			}
		}
		deps = append(deps, d)
	}
	return deps
}
