package repository

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameFilter(t *testing.T) {
	f, err := NewNameFilter([]string{"api-*", "acme/core"}, []string{"*-deprecated"})
	require.NoError(t, err)

	cases := []struct {
		ref    RepositoryRef
		expect bool
	}{
		{RepositoryRef{Owner: "acme", Name: "api-users"}, true},
		{RepositoryRef{Owner: "acme", Name: "api-deprecated"}, false},
		{RepositoryRef{Owner: "acme", Name: "core"}, true},
		{RepositoryRef{Owner: "other", Name: "core"}, false},
		{RepositoryRef{Owner: "acme", Name: "random"}, false},
	}
	for _, c := range cases {
		ok, _ := f.Include(c.ref)
		assert.Equal(t, c.expect, ok, c.ref.FullName())
	}
}

func TestNameFilterExcludePrecedence(t *testing.T) {
	f, err := NewNameFilter([]string{"*"}, []string{"secret-*"})
	require.NoError(t, err)
	ok, reason := f.Include(RepositoryRef{Owner: "x", Name: "secret-config"})
	assert.False(t, ok)
	assert.Equal(t, "excluded_by_pattern", reason)

	var nilFilter *NameFilter
	ok, _ = nilFilter.Include(RepositoryRef{Owner: "x", Name: "y"})
	assert.True(t, ok)
}

func TestFilterKeepsOrderAndTruncates(t *testing.T) {
	refs := []RepositoryRef{
		{Owner: "a", Name: "one", Stars: 500},
		{Owner: "a", Name: "two", Stars: 10},
		{Owner: "a", Name: "three", Stars: 150},
		{Owner: "a", Name: "four", Stars: 100},
		{Owner: "a", Name: "five", Stars: 9000},
	}
	got := Filter(refs, 100, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].Name)
	assert.Equal(t, "three", got[1].Name)
	assert.Equal(t, "four", got[2].Name)
	assert.Equal(t, "two", refs[1].Name, "input must not be modified")

	assert.Len(t, Filter(refs, 0, 0), 5)
}

func TestParseFullName(t *testing.T) {
	ref, err := ParseFullName("https://github.com/acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", ref.Owner)
	assert.Equal(t, "widget", ref.Name)
	assert.Equal(t, "https://github.com/acme/widget.git", ref.CloneURL)

	ref, err = ParseFullName("acme/widget@abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", ref.Fingerprint)
	assert.Equal(t, "acme/widget@abc123", ref.String())

	_, err = ParseFullName("widget")
	require.Error(t, err)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
repositories:
  - full_name: acme/widget@deadbeef
    stars: 1200
  - owner: other
    name: tool
    stars: 50
    description: a tool
`), 0o600))

	refs, err := FileSource{Path: path}.Candidates(t.Context())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "acme/widget", refs[0].FullName())
	assert.Equal(t, "deadbeef", refs[0].Fingerprint)
	assert.Equal(t, 1200, refs[0].Stars)
	assert.Equal(t, "other/tool", refs[1].FullName())
	assert.Equal(t, "a tool", refs[1].Description)
}

func TestFileSourceRejectsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repositories:\n  - name: orphan\n"), 0o600))
	_, err := FileSource{Path: path}.Candidates(t.Context())
	require.Error(t, err)
}

func TestFilteredSource(t *testing.T) {
	names, err := NewNameFilter(nil, []string{"*-legacy"})
	require.NoError(t, err)
	src := FilteredSource{
		Source: StaticSource{
			{Owner: "a", Name: "one", Stars: 500},
			{Owner: "a", Name: "two-legacy", Stars: 900},
			{Owner: "a", Name: "three", Stars: 10},
			{Owner: "a", Name: "four", Stars: 300},
			{Owner: "a", Name: "five", Stars: 200},
		},
		Names:      names,
		MinStars:   100,
		MaxResults: 2,
	}
	refs, err := src.Candidates(t.Context())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "one", refs[0].Name)
	assert.Equal(t, "four", refs[1].Name)
}

func TestHTTPArchiveFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widget/tarball/abc" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPArchiveFetcher(srv.URL, "tok")
	rc, err := f.Fetch(t.Context(), RepositoryRef{Owner: "acme", Name: "widget", Fingerprint: "abc"})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "archive-bytes", string(data))

	_, err = f.Fetch(t.Context(), RepositoryRef{Owner: "acme", Name: "widget", Fingerprint: "zzz"})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Temporary())
}
