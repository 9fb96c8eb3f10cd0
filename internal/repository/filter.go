package repository

import (
	"fmt"
	"regexp"
	"strings"
)

// NameFilter decides whether repositories should be included by matching
// "owner/name" or the bare name against glob patterns.
type NameFilter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewNameFilter constructs a NameFilter from glob patterns.
// Empty include slice means include all (unless excluded).
func NewNameFilter(includeGlobs, excludeGlobs []string) (*NameFilter, error) {
	compile := func(globs []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(globs))
		for _, g := range globs {
			if strings.TrimSpace(g) == "" {
				continue
			}
			r, err := regexp.Compile(globToRegex(g))
			if err != nil {
				return nil, fmt.Errorf("compile glob %s: %w", g, err)
			}
			out = append(out, r)
		}
		return out, nil
	}
	incs, err := compile(includeGlobs)
	if err != nil {
		return nil, err
	}
	excs, err := compile(excludeGlobs)
	if err != nil {
		return nil, err
	}
	return &NameFilter{include: incs, exclude: excs}, nil
}

// Include reports whether ref passes the filter, with a reason when it does not.
func (f *NameFilter) Include(ref RepositoryRef) (bool, string) {
	if f == nil {
		return true, ""
	}
	match := func(rx *regexp.Regexp) bool {
		return rx.MatchString(ref.FullName()) || rx.MatchString(ref.Name)
	}
	for _, rx := range f.exclude {
		if match(rx) {
			return false, "excluded_by_pattern"
		}
	}
	if len(f.include) == 0 {
		return true, ""
	}
	for _, rx := range f.include {
		if match(rx) {
			return true, ""
		}
	}
	return false, "not_in_includes"
}

// Filter keeps candidates with at least minStars stars, in their original
// order, and truncates the result to maxResults (0 means unlimited). The input
// slice is not modified and candidates are never re-ranked.
func Filter(refs []RepositoryRef, minStars, maxResults int) []RepositoryRef {
	out := make([]RepositoryRef, 0, len(refs))
	for _, r := range refs {
		if r.Stars < minStars {
			continue
		}
		out = append(out, r)
		if maxResults > 0 && len(out) == maxResults {
			break
		}
	}
	return out
}

// globToRegex converts a shell-style glob to a regex string (anchored).
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '|', '^', '$', '{', '}', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteString("$")
	return b.String()
}
