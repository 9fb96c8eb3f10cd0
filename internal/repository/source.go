package repository

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source produces ranked candidates. Ranking is the producer's concern; the
// order returned is preserved by every consumer.
type Source interface {
	Candidates(ctx context.Context) ([]RepositoryRef, error)
}

// RevisionResolver produces the content fingerprint for a repository that was
// listed without one.
type RevisionResolver interface {
	Resolve(ctx context.Context, ref RepositoryRef) (string, error)
}

// StaticSource returns a fixed list of candidates.
type StaticSource []RepositoryRef

func (s StaticSource) Candidates(context.Context) ([]RepositoryRef, error) {
	out := make([]RepositoryRef, len(s))
	copy(out, s)
	return out, nil
}

// candidatesFile is the on-disk format of a FileSource.
type candidatesFile struct {
	Repositories []candidateEntry `yaml:"repositories"`
}

type candidateEntry struct {
	RepositoryRef `yaml:",inline"`
	FullName      string `yaml:"full_name,omitempty"`
}

// FileSource reads candidates from a YAML file:
//
//	repositories:
//	  - full_name: owner/name
//	    stars: 1200
//	  - owner: other
//	    name: tool
//	    fingerprint: 4f1c...
type FileSource struct {
	Path string
}

func (s FileSource) Candidates(ctx context.Context) ([]RepositoryRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}
	var f candidatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse candidates file %s: %w", s.Path, err)
	}

	refs := make([]RepositoryRef, 0, len(f.Repositories))
	for i, e := range f.Repositories {
		ref := e.RepositoryRef
		if e.FullName != "" {
			parsed, err := ParseFullName(e.FullName)
			if err != nil {
				return nil, fmt.Errorf("candidate %d: %w", i, err)
			}
			ref.Owner, ref.Name = parsed.Owner, parsed.Name
			if ref.Fingerprint == "" {
				ref.Fingerprint = parsed.Fingerprint
			}
			if ref.CloneURL == "" {
				ref.CloneURL = parsed.CloneURL
			}
		}
		if ref.Owner == "" || ref.Name == "" {
			return nil, fmt.Errorf("candidate %d: owner and name are required", i)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// FilteredSource applies the name filter, then the popularity and result-count
// limits, to another source's candidates without reordering them.
type FilteredSource struct {
	Source     Source
	Names      *NameFilter
	MinStars   int
	MaxResults int
}

func (s FilteredSource) Candidates(ctx context.Context) ([]RepositoryRef, error) {
	refs, err := s.Source.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	if s.Names != nil {
		kept := make([]RepositoryRef, 0, len(refs))
		for _, r := range refs {
			if ok, _ := s.Names.Include(r); ok {
				kept = append(kept, r)
			}
		}
		refs = kept
	}
	return Filter(refs, s.MinStars, s.MaxResults), nil
}
