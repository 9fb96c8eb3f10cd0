package repository

import (
	"fmt"
	"strings"
)

// RepositoryRef identifies one candidate repository. It is a value type and is
// never modified after it has been fetched.
type RepositoryRef struct {
	Owner       string `json:"owner" yaml:"owner"`
	Name        string `json:"name" yaml:"name"`
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	ArchiveURL  string `json:"archive_url,omitempty" yaml:"archive_url,omitempty"`
	CloneURL    string `json:"clone_url,omitempty" yaml:"clone_url,omitempty"`
	Stars       int    `json:"stars,omitempty" yaml:"stars,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// LocalPath is set for repositories staged from a local directory.
	LocalPath string `json:"local_path,omitempty" yaml:"local_path,omitempty"`
}

// FullName returns "owner/name".
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Name
}

func (r RepositoryRef) String() string {
	if r.Fingerprint == "" {
		return r.FullName()
	}
	fp := r.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	return r.FullName() + "@" + fp
}

// WithFingerprint returns a copy of r carrying fp.
func (r RepositoryRef) WithFingerprint(fp string) RepositoryRef {
	r.Fingerprint = fp
	return r
}

// ParseFullName parses "owner/name" (optionally "owner/name@revision") into a
// RepositoryRef with GitHub clone and archive URLs.
func ParseFullName(s string) (RepositoryRef, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "https://github.com/")
	s = strings.TrimSuffix(s, ".git")

	var rev string
	if at := strings.LastIndex(s, "@"); at >= 0 {
		rev = s[at+1:]
		s = s[:at]
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepositoryRef{}, fmt.Errorf("invalid repository name %q: expected owner/name", s)
	}
	ref := RepositoryRef{
		Owner:       parts[0],
		Name:        parts[1],
		Fingerprint: rev,
	}
	ref.CloneURL = fmt.Sprintf("https://github.com/%s/%s.git", ref.Owner, ref.Name)
	return ref, nil
}

// GitHubArchiveURL returns the tarball URL for a fingerprinted ref.
func GitHubArchiveURL(apiURL string, r RepositoryRef) string {
	apiURL = strings.TrimSuffix(apiURL, "/")
	return fmt.Sprintf("%s/repos/%s/%s/tarball/%s", apiURL, r.Owner, r.Name, r.Fingerprint)
}
