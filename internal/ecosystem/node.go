package ecosystem

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NodeAdapter handles npm, yarn and pnpm projects.
type NodeAdapter struct{}

func (NodeAdapter) Kind() Kind { return KindNode }

func (NodeAdapter) Signature() Signature {
	return Signature{
		Lockfiles:  []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml"},
		Manifests:  []string{"package.json"},
		Extensions: []string{".js", ".ts"},
	}
}

// npmDefaultTest is the placeholder "npm init" writes.
const npmDefaultTest = "no test specified"

type packageJSON struct {
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func readPackageJSON(dir string) (*packageJSON, error) {
	data, err := readManifest(dir, "package.json")
	if err != nil {
		return nil, err
	}
	var p packageJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	return &p, nil
}

func (NodeAdapter) Plan(dir string, desc *BuildDescriptor) error {
	if desc.Specificity == SpecificityHeuristic {
		desc.ResolveCommand = nil
		files := baseNames(desc.ManifestPaths)
		for _, f := range files {
			if strings.HasSuffix(f, ".js") {
				desc.Tool = "node"
				desc.BuildCommand = []string{"node", "--check", f}
				return nil
			}
		}
		desc.Tool = "npx"
		desc.BuildCommand = append([]string{"npx", "--yes", "-p", "typescript", "tsc", "--noEmit"}, files...)
		return nil
	}

	pkg, err := readPackageJSON(dir)
	if err != nil {
		return err
	}

	switch {
	case fileExists(dir, "yarn.lock"):
		desc.Tool = "yarn"
		desc.ResolveCommand = []string{"yarn", "install", "--frozen-lockfile"}
	case fileExists(dir, "pnpm-lock.yaml"):
		desc.Tool = "pnpm"
		desc.ResolveCommand = []string{"pnpm", "install", "--frozen-lockfile"}
	case fileExists(dir, "package-lock.json"):
		desc.Tool = "npm"
		desc.ResolveCommand = []string{"npm", "ci"}
	default:
		desc.Tool = "npm"
		desc.ResolveCommand = []string{"npm", "install"}
	}

	test, hasTest := pkg.Scripts["test"]
	_, hasBuild := pkg.Scripts["build"]
	switch {
	case hasTest && !strings.Contains(test, npmDefaultTest):
		desc.BuildCommand = []string{desc.Tool, "test"}
	case hasBuild:
		desc.BuildCommand = []string{desc.Tool, "run", "build"}
	default:
		desc.BuildCommand = []string{"npm", "run", "--if-present", "build"}
	}
	return nil
}

func (NodeAdapter) Dependencies(dir string) ([]Dependency, error) {
	pkg, err := readPackageJSON(dir)
	if err != nil {
		return nil, err
	}
	var deps []Dependency
	for _, group := range []struct {
		m     map[string]string
		scope string
	}{
		{pkg.Dependencies, ScopeRuntime},
		{pkg.DevDependencies, ScopeDev},
		{pkg.PeerDependencies, ScopePeer},
		{pkg.OptionalDependencies, ScopeOptional},
	} {
		names := make([]string, 0, len(group.m))
		for name := range group.m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			deps = append(deps, Dependency{Name: name, Version: group.m[name], Scope: group.scope, Manifest: "package.json"})
		}
	}
	return deps, nil
}
