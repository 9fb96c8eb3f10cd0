package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
)

func makeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		content := ""
		if filepath.Base(f) == "package.json" {
			content = "{}"
		}
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return root
}

func kindsAndDirs(descs []ecosystem.BuildDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = string(d.Kind) + "@" + d.Dir
	}
	return out
}

func TestDetectEmptyTree(t *testing.T) {
	root := makeTree(t, "README.md", "docs/guide.txt")
	descs, err := Detect(t.Context(), root)
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestDetectOrdering(t *testing.T) {
	root := makeTree(t,
		"package.json",
		"go.mod", "go.sum",
		"requirements.txt",
		"services/api/Cargo.toml", "services/api/Cargo.lock",
	)
	descs, err := Detect(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"go@.",              // lockfile, depth 0
		"rust@services/api", // lockfile, depth 2
		"node@.",            // manifest, depth 0, node before python
		"python@.",
	}, kindsAndDirs(descs))

	assert.Equal(t, ecosystem.SpecificityLockfile, descs[0].Specificity)
	assert.Equal(t, []string{"go.mod", "go.sum"}, descs[0].ManifestPaths)
	assert.Equal(t, 2, descs[1].Depth)
	assert.Equal(t, []string{"cargo", "build", "--locked"}, descs[1].BuildCommand)
}

func TestDetectLockfileRequiresManifestInSameDir(t *testing.T) {
	root := makeTree(t, "yarn.lock", "web/package.json")
	descs, err := Detect(t.Context(), root)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "web", descs[0].Dir)
	assert.Equal(t, ecosystem.SpecificityManifest, descs[0].Specificity)
	assert.Equal(t, "npm", descs[0].Tool)
}

func TestDetectSkipsVendoredDirectories(t *testing.T) {
	root := makeTree(t,
		"node_modules/dep/package.json",
		"vendor/github.com/x/go.mod",
		".venv/lib/setup.py",
		"target/Cargo.toml",
	)
	descs, err := Detect(t.Context(), root)
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestDetectRespectsMaxDepth(t *testing.T) {
	root := makeTree(t, "a/b/c/d/go.mod")
	descs, err := New(ecosystem.DefaultRegistry()).Detect(t.Context(), root)
	require.NoError(t, err)
	assert.Empty(t, descs)

	descs, err = New(ecosystem.DefaultRegistry(), WithMaxDepth(4)).Detect(t.Context(), root)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "a/b/c/d", descs[0].Dir)
}

func TestDetectHeuristicOnlyWithoutManifest(t *testing.T) {
	root := makeTree(t, "scripts/deep/tool.py", "scripts/run.py", "scripts/util.py", "main.go", "go.mod")
	descs, err := Detect(t.Context(), root)
	require.NoError(t, err)
	require.Len(t, descs, 2)

	assert.Equal(t, ecosystem.KindGo, descs[0].Kind)
	assert.Equal(t, ecosystem.SpecificityManifest, descs[0].Specificity)

	py := descs[1]
	assert.Equal(t, ecosystem.KindPython, py.Kind)
	assert.Equal(t, ecosystem.SpecificityHeuristic, py.Specificity)
	assert.Equal(t, "scripts", py.Dir)
	assert.Equal(t, []string{"scripts/run.py", "scripts/util.py"}, py.ManifestPaths)
}

func TestDetectOneDescriptorPerKindAndDirectory(t *testing.T) {
	root := makeTree(t, "pyproject.toml", "setup.py", "requirements.txt", "poetry.lock")
	descs, err := Detect(t.Context(), root)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, ecosystem.SpecificityLockfile, descs[0].Specificity)
	assert.Equal(t, "poetry", descs[0].Tool)
	assert.Len(t, descs[0].ManifestPaths, 4)
}

func TestDetectDropsUnplannableDescriptor(t *testing.T) {
	root := makeTree(t, "go.mod")
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte("{not json"), 0o600))
	descs, err := Detect(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go@."}, kindsAndDirs(descs))
}

func TestDetectCanceled(t *testing.T) {
	root := makeTree(t, "go.mod")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := Detect(ctx, root)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDetectMissingRoot(t *testing.T) {
	_, err := Detect(t.Context(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestSortTieBreakByPriorityThenDir(t *testing.T) {
	descs := []ecosystem.BuildDescriptor{
		{Kind: ecosystem.KindGradle, Specificity: ecosystem.SpecificityManifest, Depth: 1, Dir: "a"},
		{Kind: ecosystem.KindMaven, Specificity: ecosystem.SpecificityManifest, Depth: 1, Dir: "b"},
		{Kind: ecosystem.KindMaven, Specificity: ecosystem.SpecificityManifest, Depth: 1, Dir: "a"},
		{Kind: ecosystem.KindGo, Specificity: ecosystem.SpecificityHeuristic, Depth: 0, Dir: "."},
	}
	Sort(descs)
	assert.Equal(t, []string{"maven@a", "maven@b", "gradle@a", "go@."}, kindsAndDirs(descs))
}
