package ecosystem

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// PythonAdapter handles pip and poetry projects. pip projects build inside a
// project-local virtual environment.
type PythonAdapter struct{}

func (PythonAdapter) Kind() Kind { return KindPython }

func (PythonAdapter) Signature() Signature {
	return Signature{
		Lockfiles:  []string{"poetry.lock", "Pipfile.lock", "uv.lock"},
		Manifests:  []string{"pyproject.toml", "setup.py", "requirements.txt", "setup.cfg"},
		Extensions: []string{".py"},
	}
}

const (
	venvPip    = ".venv/bin/pip"
	venvPython = ".venv/bin/python"
)

type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry *struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func readPyproject(dir string) (*pyproject, error) {
	data, err := readManifest(dir, "pyproject.toml")
	if err != nil {
		return nil, err
	}
	var p pyproject
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, fmt.Errorf("parse pyproject.toml: %w", err)
	}
	return &p, nil
}

// hasPythonTests reports whether dir carries a pytest-discoverable test suite.
func hasPythonTests(dir string) bool {
	if dirExists(dir, "tests") || dirExists(dir, "test") || fileExists(dir, "pytest.ini") || fileExists(dir, "conftest.py") {
		return true
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "test_*.py"))
	return len(matches) > 0
}

func usesPoetry(dir string) bool {
	if fileExists(dir, "poetry.lock") {
		return true
	}
	p, err := readPyproject(dir)
	return err == nil && p.Tool.Poetry != nil
}

func (PythonAdapter) Plan(dir string, desc *BuildDescriptor) error {
	if desc.Specificity == SpecificityHeuristic {
		desc.Tool = "python3"
		desc.ResolveCommand = nil
		desc.BuildCommand = []string{"python3", "-m", "compileall", "-q", "."}
		return nil
	}

	tests := hasPythonTests(dir)
	if usesPoetry(dir) {
		desc.Tool = "poetry"
		desc.ResolveCommand = []string{"poetry", "install", "--no-interaction"}
		if tests {
			desc.BuildCommand = []string{"poetry", "run", "pytest", "-q"}
		} else {
			desc.BuildCommand = []string{"poetry", "run", "python", "-m", "compileall", "-q", "."}
		}
		return nil
	}

	desc.Tool = "pip"
	desc.Prepare = [][]string{{"python3", "-m", "venv", ".venv"}}
	switch {
	case fileExists(dir, "requirements.txt"):
		desc.ResolveCommand = []string{venvPip, "install", "-r", "requirements.txt"}
	case fileExists(dir, "pyproject.toml"), fileExists(dir, "setup.py"), fileExists(dir, "setup.cfg"):
		desc.ResolveCommand = []string{venvPip, "install", "-e", "."}
	}
	if tests {
		desc.Prepare = append(desc.Prepare, []string{venvPip, "install", "-q", "pytest"})
		desc.BuildCommand = []string{venvPython, "-m", "pytest", "-q"}
	} else {
		desc.BuildCommand = []string{venvPython, "-m", "compileall", "-q", "-x", `\.venv`, "."}
	}
	return nil
}

func (PythonAdapter) Dependencies(dir string) ([]Dependency, error) {
	var deps []Dependency
	found := false

	if data, err := os.ReadFile(filepath.Join(dir, "requirements.txt")); err == nil {
		found = true
		deps = append(deps, parseRequirements(data, "requirements.txt")...)
	}

	p, err := readPyproject(dir)
	switch {
	case err == ErrNoManifest:
	case err != nil:
		return deps, err
	default:
		found = true
		for _, spec := range p.Project.Dependencies {
			deps = append(deps, parseRequirementLine(spec, ScopeRuntime, "pyproject.toml"))
		}
		extras := make([]string, 0, len(p.Project.OptionalDependencies))
		for extra := range p.Project.OptionalDependencies {
			extras = append(extras, extra)
		}
		sort.Strings(extras)
		for _, extra := range extras {
			for _, spec := range p.Project.OptionalDependencies[extra] {
				deps = append(deps, parseRequirementLine(spec, ScopeOptional, "pyproject.toml"))
			}
		}
		if poetry := p.Tool.Poetry; poetry != nil {
			deps = appendPoetryDeps(deps, poetry.Dependencies, ScopeRuntime)
			deps = appendPoetryDeps(deps, poetry.DevDependencies, ScopeDev)
			groups := make([]string, 0, len(poetry.Group))
			for g := range poetry.Group {
				groups = append(groups, g)
			}
			sort.Strings(groups)
			for _, g := range groups {
				scope := ScopeDev
				if g == "test" {
					scope = ScopeTest
				}
				deps = appendPoetryDeps(deps, poetry.Group[g].Dependencies, scope)
			}
		}
	}

	if !found {
		return nil, ErrNoManifest
	}
	return deps, nil
}

func appendPoetryDeps(deps []Dependency, table map[string]any, scope string) []Dependency {
	names := make([]string, 0, len(table))
	for name := range table {
		if strings.EqualFold(name, "python") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := Dependency{Name: name, Scope: scope, Manifest: "pyproject.toml"}
		switch v := table[name].(type) {
		case string:
			d.Version = v
		case map[string]any:
			if ver, ok := v["version"].(string); ok {
				d.Version = ver
			}
		}
		deps = append(deps, d)
	}
	return deps
}

func parseRequirements(data []byte, manifest string) []Dependency {
	var deps []Dependency
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		deps = append(deps, parseRequirementLine(line, ScopeRuntime, manifest))
	}
	return deps
}

// parseRequirementLine splits a PEP 508 requirement into name and version spec.
func parseRequirementLine(spec, scope, manifest string) Dependency {
	spec = strings.TrimSpace(spec)
	if i := strings.Index(spec, ";"); i >= 0 {
		spec = strings.TrimSpace(spec[:i])
	}
	name, version := spec, ""
	if i := strings.IndexAny(spec, "=<>!~[ @("); i >= 0 {
		name = strings.TrimSpace(spec[:i])
		version = strings.TrimSpace(spec[i:])
		if strings.HasPrefix(version, "[") {
			if j := strings.Index(version, "]"); j >= 0 {
				version = strings.TrimSpace(version[j+1:])
			}
		}
		version = strings.Trim(version, "()")
	}
	return Dependency{Name: name, Version: version, Scope: scope, Manifest: manifest}
}
