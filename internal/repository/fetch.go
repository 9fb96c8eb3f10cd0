package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ArchiveFetcher downloads a repository snapshot as a gzip-compressed tarball.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, ref RepositoryRef) (io.ReadCloser, error)
}

// HTTPStatusError reports a non-2xx archive response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Temporary reports whether the status is worth retrying.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPArchiveFetcher fetches archives from ArchiveURL, falling back to the
// GitHub tarball endpoint for the ref's fingerprint.
type HTTPArchiveFetcher struct {
	httpClient *http.Client
	apiURL     string
	token      string
}

// NewHTTPArchiveFetcher creates a fetcher for the given API base URL.
func NewHTTPArchiveFetcher(apiURL, token string) *HTTPArchiveFetcher {
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &HTTPArchiveFetcher{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		apiURL:     apiURL,
		token:      token,
	}
}

func (f *HTTPArchiveFetcher) Fetch(ctx context.Context, ref RepositoryRef) (io.ReadCloser, error) {
	url := ref.ArchiveURL
	if url == "" {
		if ref.Fingerprint == "" {
			return nil, fmt.Errorf("fetch %s: no archive url and no fingerprint", ref.FullName())
		}
		url = GitHubArchiveURL(f.apiURL, ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "repobuilder")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
