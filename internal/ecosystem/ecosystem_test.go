package ecosystem

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func TestKindPriority(t *testing.T) {
	assert.Equal(t, []Kind{KindGo, KindRust, KindNode, KindPython, KindMaven, KindGradle}, AllKinds())
	assert.Less(t, KindGo.Priority(), KindRust.Priority())
	assert.Less(t, KindNode.Priority(), KindPython.Priority())
	assert.Equal(t, 6, Kind("cobol").Priority())

	k, err := ParseKind(" Rust ")
	require.NoError(t, err)
	assert.Equal(t, KindRust, k)
	_, err = ParseKind("cobol")
	require.Error(t, err)
}

func TestSpecificityText(t *testing.T) {
	b, err := SpecificityLockfile.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "lockfile", string(b))

	var s Specificity
	require.NoError(t, s.UnmarshalText([]byte("heuristic")))
	assert.Equal(t, SpecificityHeuristic, s)
	require.Error(t, s.UnmarshalText([]byte("vibes")))
}

func TestRegistryAdaptersInPriorityOrder(t *testing.T) {
	reg := DefaultRegistry()
	var kinds []Kind
	for _, a := range reg.Adapters() {
		kinds = append(kinds, a.Kind())
	}
	assert.Equal(t, AllKinds(), kinds)

	_, ok := reg.Lookup(KindMaven)
	assert.True(t, ok)
	err := NewRegistry().Plan(t.TempDir(), &BuildDescriptor{Kind: KindGo})
	require.Error(t, err)
}

func TestGoPlanAndDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod": "module example.com/x\n\ngo 1.22\n\nrequire (\n\tgithub.com/a/b v1.2.3\n\tgithub.com/c/d v0.1.0 // indirect\n)\n",
	})
	desc := &BuildDescriptor{Kind: KindGo, Specificity: SpecificityManifest}
	require.NoError(t, GoAdapter{}.Plan(dir, desc))
	assert.Equal(t, "go", desc.Tool)
	assert.Equal(t, []string{"go", "mod", "download"}, desc.ResolveCommand)
	assert.Equal(t, []string{"go", "test", "./..."}, desc.BuildCommand)

	deps, err := GoAdapter{}.Dependencies(dir)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, Dependency{Name: "github.com/a/b", Version: "v1.2.3", Scope: ScopeRuntime, Manifest: "go.mod"}, deps[0])
	assert.Equal(t, ScopeIndirect, deps[1].Scope)

	heuristic := &BuildDescriptor{Kind: KindGo, Specificity: SpecificityHeuristic, ManifestPaths: []string{"cmd/main.go"}}
	require.NoError(t, GoAdapter{}.Plan(dir, heuristic))
	assert.Nil(t, heuristic.ResolveCommand)
	assert.Equal(t, "main.go", heuristic.BuildCommand[len(heuristic.BuildCommand)-1])
}

func TestRustPlanAndDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Cargo.toml": `[package]
name = "demo"

[dependencies]
serde = { version = "1.0", optional = true }
anyhow = "1"
local = { path = "../local" }

[dev-dependencies]
proptest = "1.4"
`,
	})
	desc := &BuildDescriptor{Kind: KindRust, Specificity: SpecificityManifest}
	require.NoError(t, RustAdapter{}.Plan(dir, desc))
	assert.Equal(t, []string{"cargo", "build"}, desc.BuildCommand)

	writeFiles(t, dir, map[string]string{"Cargo.lock": ""})
	require.NoError(t, RustAdapter{}.Plan(dir, desc))
	assert.Equal(t, []string{"cargo", "build", "--locked"}, desc.BuildCommand)

	deps, err := RustAdapter{}.Dependencies(dir)
	require.NoError(t, err)
	require.Len(t, deps, 4)
	assert.Equal(t, "anyhow", deps[0].Name)
	assert.Equal(t, "path:../local", deps[1].Version)
	assert.Equal(t, ScopeOptional, deps[2].Scope)
	assert.Equal(t, Dependency{Name: "proptest", Version: "1.4", Scope: ScopeDev, Manifest: "Cargo.toml"}, deps[3])
}

func TestNodePlanToolSelection(t *testing.T) {
	cases := []struct {
		name    string
		files   map[string]string
		tool    string
		resolve []string
		build   []string
	}{
		{
			name:    "npm with lockfile and test script",
			files:   map[string]string{"package.json": `{"scripts":{"test":"jest"}}`, "package-lock.json": "{}"},
			tool:    "npm",
			resolve: []string{"npm", "ci"},
			build:   []string{"npm", "test"},
		},
		{
			name:    "yarn with build script",
			files:   map[string]string{"package.json": `{"scripts":{"build":"tsc"}}`, "yarn.lock": ""},
			tool:    "yarn",
			resolve: []string{"yarn", "install", "--frozen-lockfile"},
			build:   []string{"yarn", "run", "build"},
		},
		{
			name:    "pnpm ignores placeholder test",
			files:   map[string]string{"package.json": `{"scripts":{"test":"echo \"Error: no test specified\" && exit 1"}}`, "pnpm-lock.yaml": ""},
			tool:    "pnpm",
			resolve: []string{"pnpm", "install", "--frozen-lockfile"},
			build:   []string{"npm", "run", "--if-present", "build"},
		},
		{
			name:    "npm without lockfile",
			files:   map[string]string{"package.json": `{}`},
			tool:    "npm",
			resolve: []string{"npm", "install"},
			build:   []string{"npm", "run", "--if-present", "build"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tc.files)
			desc := &BuildDescriptor{Kind: KindNode, Specificity: SpecificityManifest}
			require.NoError(t, NodeAdapter{}.Plan(dir, desc))
			assert.Equal(t, tc.tool, desc.Tool)
			assert.Equal(t, tc.resolve, desc.ResolveCommand)
			assert.Equal(t, tc.build, desc.BuildCommand)
		})
	}
}

func TestNodeDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"package.json": `{"dependencies":{"react":"^18.0.0","axios":"1.6.0"},"devDependencies":{"jest":"^29"}}`,
	})
	deps, err := NodeAdapter{}.Dependencies(dir)
	require.NoError(t, err)
	require.Len(t, deps, 3)
	assert.Equal(t, "axios", deps[0].Name)
	assert.Equal(t, "react", deps[1].Name)
	assert.Equal(t, ScopeDev, deps[2].Scope)

	_, err = NodeAdapter{}.Dependencies(t.TempDir())
	require.ErrorIs(t, err, ErrNoManifest)
}

func TestPythonPlan(t *testing.T) {
	t.Run("pip with requirements and no tests", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"requirements.txt": "requests\n"})
		desc := &BuildDescriptor{Kind: KindPython, Specificity: SpecificityManifest}
		require.NoError(t, PythonAdapter{}.Plan(dir, desc))
		assert.Equal(t, "pip", desc.Tool)
		assert.Equal(t, [][]string{{"python3", "-m", "venv", ".venv"}}, desc.Prepare)
		assert.Equal(t, []string{venvPip, "install", "-r", "requirements.txt"}, desc.ResolveCommand)
		assert.Equal(t, venvPython, desc.BuildCommand[0])
		assert.Contains(t, desc.BuildCommand, "compileall")
	})

	t.Run("pip with tests", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"setup.py": "", "tests/test_x.py": ""})
		desc := &BuildDescriptor{Kind: KindPython, Specificity: SpecificityManifest}
		require.NoError(t, PythonAdapter{}.Plan(dir, desc))
		assert.Equal(t, []string{venvPip, "install", "-e", "."}, desc.ResolveCommand)
		assert.Equal(t, []string{venvPython, "-m", "pytest", "-q"}, desc.BuildCommand)
		assert.Len(t, desc.Prepare, 2)
	})

	t.Run("poetry from pyproject table", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"pyproject.toml": "[tool.poetry]\nname = \"x\"\n"})
		desc := &BuildDescriptor{Kind: KindPython, Specificity: SpecificityManifest}
		require.NoError(t, PythonAdapter{}.Plan(dir, desc))
		assert.Equal(t, "poetry", desc.Tool)
		assert.Equal(t, []string{"poetry", "install", "--no-interaction"}, desc.ResolveCommand)
		assert.Empty(t, desc.Prepare)
	})
}

func TestPythonDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"requirements.txt": "# comment\nrequests>=2.31 # http\n-r other.txt\nuvicorn[standard]==0.29\nclick\n",
		"pyproject.toml": `[project]
dependencies = ["httpx>=0.27", "rich; python_version > '3.8'"]

[tool.poetry.dependencies]
python = "^3.10"
pydantic = { version = "^2.0" }

[tool.poetry.group.test.dependencies]
pytest = "^8"
`,
	})
	deps, err := PythonAdapter{}.Dependencies(dir)
	require.NoError(t, err)

	byName := map[string]Dependency{}
	for _, d := range deps {
		byName[d.Name] = d
	}
	assert.Equal(t, ">=2.31", byName["requests"].Version)
	assert.Equal(t, "==0.29", byName["uvicorn"].Version)
	assert.Equal(t, "", byName["click"].Version)
	assert.Equal(t, ">=0.27", byName["httpx"].Version)
	assert.Contains(t, byName, "rich")
	assert.Equal(t, "^2.0", byName["pydantic"].Version)
	assert.Equal(t, ScopeTest, byName["pytest"].Scope)
	assert.NotContains(t, byName, "python")

	_, err = PythonAdapter{}.Dependencies(t.TempDir())
	require.ErrorIs(t, err, ErrNoManifest)
}

func TestMavenDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"pom.xml": `<?xml version="1.0"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <dependencies>
    <dependency>
      <groupId>org.slf4j</groupId>
      <artifactId>slf4j-api</artifactId>
      <version>2.0.9</version>
    </dependency>
    <dependency>
      <groupId>junit</groupId>
      <artifactId>junit</artifactId>
      <version>4.13.2</version>
      <scope>test</scope>
    </dependency>
  </dependencies>
</project>`})
	deps, err := MavenAdapter{}.Dependencies(dir)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "org.slf4j:slf4j-api", deps[0].Name)
	assert.Equal(t, ScopeTest, deps[1].Scope)

	desc := &BuildDescriptor{Kind: KindMaven, Specificity: SpecificityManifest}
	require.NoError(t, MavenAdapter{}.Plan(dir, desc))
	assert.Equal(t, []string{"mvn", "-B", "-q", "dependency:resolve"}, desc.ResolveCommand)
}

func TestGradlePlanAndDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"build.gradle.kts": "dependencies {\n    implementation(\"com.google.guava:guava:33.0.0-jre\")\n    testImplementation(\"org.junit.jupiter:junit-jupiter:5.10.0\")\n}\n",
		"gradlew":          "#!/bin/sh\n",
	})
	desc := &BuildDescriptor{Kind: KindGradle, Specificity: SpecificityManifest}
	require.NoError(t, GradleAdapter{}.Plan(dir, desc))
	assert.Equal(t, "./gradlew", desc.Tool)
	assert.Equal(t, []string{"./gradlew", "--no-daemon", "build"}, desc.BuildCommand)

	deps, err := GradleAdapter{}.Dependencies(dir)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, Dependency{Name: "com.google.guava:guava", Version: "33.0.0-jre", Scope: ScopeRuntime, Manifest: "build.gradle.kts"}, deps[0])
	assert.Equal(t, ScopeTest, deps[1].Scope)
}

func TestListDependenciesPrefixesManifestDir(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"svc/package.json": `{"dependencies":{"left-pad":"1.0.0"}}`,
		"bad/go.mod":       "module \"unterminated\n",
	})
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	sets := DefaultRegistry().ListDependencies(root, []BuildDescriptor{
		{Kind: KindNode, Dir: "svc"},
		{Kind: KindGo, Dir: "bad"},
		{Kind: KindRust, Dir: "."},
	}, logger)
	require.Len(t, sets, 3)
	require.Len(t, sets[0].Dependencies, 1)
	assert.Equal(t, "svc/package.json", sets[0].Dependencies[0].Manifest)
	assert.NotEmpty(t, sets[1].Error)
	assert.Empty(t, sets[2].Error)
	assert.Empty(t, sets[2].Dependencies)
	assert.Contains(t, logs.String(), "Failed to list dependencies")
	assert.Contains(t, logs.String(), "path=bad")
}
