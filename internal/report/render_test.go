package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repobuilder/internal/build"
	"git.home.luguber.info/inful/repobuilder/internal/build/queue"
	"git.home.luguber.info/inful/repobuilder/internal/cache"
	"git.home.luguber.info/inful/repobuilder/internal/coordinator"
	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/history"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

var (
	t0      = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	nodeD   = ecosystem.BuildDescriptor{Kind: ecosystem.KindNode, Tool: "npm", Dir: "web", Specificity: ecosystem.SpecificityLockfile}
	goD     = ecosystem.BuildDescriptor{Kind: ecosystem.KindGo, Tool: "go", Dir: ".", Specificity: ecosystem.SpecificityManifest}
	testRef = repository.RepositoryRef{Owner: "acme", Name: "widget", Fingerprint: "0123456789abcdef"}
)

func numbered(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n") + "\n"
}

func failingReport() *build.BuildReport {
	attempts := []build.BuildAttempt{
		{Descriptor: nodeD, Phase: build.PhaseResolve, Outcome: build.OutcomeDependencyError, Command: []string{"npm", "ci"},
			ExitCode: 1, Stderr: numbered(30), StartedAt: t0, EndedAt: t0.Add(time.Second)},
		{Descriptor: goD, Phase: build.PhaseBuild, Outcome: build.OutcomeBuildSucceeded, Command: []string{"go", "test", "./..."},
			Stdout: "ok", StartedAt: t0.Add(time.Second), EndedAt: t0.Add(3 * time.Second)},
	}
	return build.NewReport(testRef, attempts, t0, t0.Add(3*time.Second))
}

func TestDiagnostics(t *testing.T) {
	lines, more := Diagnostics(build.BuildAttempt{Stderr: numbered(25)}, 20)
	assert.Len(t, lines, 20)
	assert.Equal(t, "line 1", lines[0])
	assert.Equal(t, 5, more)

	lines, more = Diagnostics(build.BuildAttempt{Stderr: "  \n", Stdout: "only stdout\n"}, 20)
	assert.Equal(t, []string{"only stdout"}, lines)
	assert.Zero(t, more)

	lines, _ = Diagnostics(build.BuildAttempt{}, 20)
	assert.Empty(t, lines)
}

func TestRenderListsAttemptsInOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, failingReport(), Options{DiagnosticLines: 3}))
	out := buf.String()

	assert.Contains(t, out, "acme/widget@0123456789ab")
	assert.Contains(t, out, "SUCCEEDED")
	first := strings.Index(out, "node/npm at web")
	second := strings.Index(out, "go/go at ./")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)

	assert.Contains(t, out, "$ npm ci")
	assert.Contains(t, out, "line 3")
	assert.NotContains(t, out, "line 4")
	assert.Contains(t, out, "27 more lines")
	assert.NotContains(t, out, "| ok", "successful attempts show no diagnostics")
	assert.Contains(t, out, "Built with")
}

func TestRenderNoBuildSystemAndCached(t *testing.T) {
	r := build.NewReport(testRef, nil, t0, t0)
	r.FromCache = true
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, Options{}))
	assert.Contains(t, buf.String(), "NO BUILD SYSTEM")
	assert.Contains(t, buf.String(), "[cached]")
}

func TestRenderAllAndSummary(t *testing.T) {
	ok := failingReport()
	none := build.NewReport(repository.RepositoryRef{Owner: "acme", Name: "docs"}, nil, t0, t0)
	none.FromCache = true
	results := []queue.Result{
		{Ref: ok.Repository, Report: ok},
		{Ref: none.Repository, Report: none},
		{Ref: repository.RepositoryRef{Owner: "acme", Name: "gone"}, Err: errors.New("staging failed")},
	}
	sum := Summarize(results)
	assert.Equal(t, Summary{Succeeded: 1, NoBuildSystem: 1, Errors: 1, Cached: 1}, sum)

	var buf bytes.Buffer
	require.NoError(t, RenderAll(&buf, results, Options{}))
	out := buf.String()
	assert.Contains(t, out, "staging failed")
	assert.Contains(t, out, "1 succeeded, 0 failed, 0 canceled, 1 without build system, 1 errors (1 from cache)")
}

func TestRenderCanceledReport(t *testing.T) {
	r := build.NewReport(testRef, []build.BuildAttempt{
		{Descriptor: goD, Phase: build.PhaseBuild, Outcome: build.OutcomeCanceled, ExitCode: -1,
			Error: "context canceled", StartedAt: t0, EndedAt: t0.Add(time.Second)},
	}, t0, t0.Add(time.Second))
	require.True(t, r.Canceled())

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, Options{}))
	out := buf.String()
	assert.Contains(t, out, "CANCELED")
	assert.NotContains(t, out, "FAILED")
	assert.Contains(t, out, "result not cached")

	sum := Summarize([]queue.Result{{Ref: testRef, Report: r}, {Ref: testRef, Report: failingReport()}})
	assert.Equal(t, Summary{Succeeded: 1, Canceled: 1}, sum)
}

func TestRenderAllEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderAll(&buf, nil, Options{}))
	assert.Contains(t, buf.String(), "Nothing to build")
	assert.Contains(t, buf.String(), "0 succeeded, 0 failed")
}

func TestJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, failingReport()))
	var decoded build.BuildReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, build.VerdictSucceeded, decoded.Verdict)
	require.Len(t, decoded.Attempts, 2)
	assert.Equal(t, ecosystem.KindNode, decoded.Attempts[0].Descriptor.Kind)
}

func TestRenderDescriptors(t *testing.T) {
	d := goD
	d.ResolveCommand = []string{"go", "mod", "download"}
	d.BuildCommand = []string{"go", "test", "./..."}
	var buf bytes.Buffer
	require.NoError(t, RenderDescriptors(&buf, []ecosystem.BuildDescriptor{d}))
	assert.Contains(t, buf.String(), "go mod download")
	assert.Contains(t, buf.String(), "go test ./...")

	buf.Reset()
	require.NoError(t, RenderDescriptors(&buf, nil))
	assert.Contains(t, buf.String(), "No detectable build system")
}

func TestRenderAnalysis(t *testing.T) {
	a := &coordinator.Analysis{
		Repository:  testRef,
		Descriptors: []ecosystem.BuildDescriptor{goD},
		Dependencies: []ecosystem.DependencySet{{
			Descriptor: goD,
			Dependencies: []ecosystem.Dependency{
				{Name: "github.com/stretchr/testify", Version: "v1.11.1", Scope: ecosystem.ScopeRuntime, Manifest: "go.mod"},
			},
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderAnalysis(&buf, a))
	assert.Contains(t, buf.String(), "github.com/stretchr/testify v1.11.1")
	assert.Contains(t, buf.String(), "(1 dependencies)")
}

func TestRenderStatsAndHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderStats(&buf, cache.Stats{Enabled: true, Dir: ".cache", DiskEntries: 3, DiskBytes: 2048}))
	assert.Contains(t, buf.String(), "2.0 KiB")
	assert.Contains(t, buf.String(), ".cache")
	assert.NotContains(t, buf.String(), "last error")

	buf.Reset()
	require.NoError(t, RenderStats(&buf, cache.Stats{Enabled: true, LastError: "[cache] Failed to write cache entry"}))
	assert.Contains(t, buf.String(), "Failed to write cache entry")

	buf.Reset()
	require.NoError(t, RenderHistory(&buf, []history.Run{{
		Repository: "acme/widget", Fingerprint: "0123456789abcdef", Verdict: build.VerdictAllFailed,
		Attempts: 2, StartedAt: t0, FinishedAt: t0.Add(time.Minute),
	}}))
	assert.Contains(t, buf.String(), "acme/widget@0123456789ab")
	assert.Contains(t, buf.String(), "FAILED")

	buf.Reset()
	require.NoError(t, RenderHistory(&buf, nil))
	assert.Contains(t, buf.String(), "No builds recorded")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 MiB", formatBytes(1536*1024))
}
