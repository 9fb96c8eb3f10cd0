package ecosystem

import (
	"fmt"
	"path"
	"strings"
)

// Kind is one supported build ecosystem.
type Kind string

const (
	KindGo     Kind = "go"
	KindRust   Kind = "rust"
	KindNode   Kind = "node"
	KindPython Kind = "python"
	KindMaven  Kind = "maven"
	KindGradle Kind = "gradle"
)

// priorityOrder breaks ties between descriptors of equal specificity and depth.
var priorityOrder = []Kind{KindGo, KindRust, KindNode, KindPython, KindMaven, KindGradle}

// AllKinds returns every kind in tie-break priority order.
func AllKinds() []Kind {
	out := make([]Kind, len(priorityOrder))
	copy(out, priorityOrder)
	return out
}

// Priority returns the tie-break rank of k; lower sorts first. Unknown kinds sort last.
func (k Kind) Priority() int {
	for i, p := range priorityOrder {
		if p == k {
			return i
		}
	}
	return len(priorityOrder)
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k.Priority() == len(priorityOrder) {
		return "", fmt.Errorf("unknown ecosystem %q", s)
	}
	return k, nil
}

// Specificity ranks how strong the evidence for a descriptor is.
type Specificity int

const (
	SpecificityHeuristic Specificity = 1
	SpecificityManifest  Specificity = 2
	SpecificityLockfile  Specificity = 3
)

func (s Specificity) String() string {
	switch s {
	case SpecificityLockfile:
		return "lockfile"
	case SpecificityManifest:
		return "manifest"
	case SpecificityHeuristic:
		return "heuristic"
	default:
		return "unknown"
	}
}

// MarshalText renders the specificity by name in reports.
func (s Specificity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a specificity name.
func (s *Specificity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "lockfile":
		*s = SpecificityLockfile
	case "manifest":
		*s = SpecificityManifest
	case "heuristic":
		*s = SpecificityHeuristic
	default:
		return fmt.Errorf("unknown specificity %q", string(b))
	}
	return nil
}

// Signature lists the file names that identify an ecosystem.
type Signature struct {
	Lockfiles  []string
	Manifests  []string
	Extensions []string
}

// IsLockfile reports whether name is one of the signature's lockfiles.
func (s Signature) IsLockfile(name string) bool { return contains(s.Lockfiles, name) }

// IsManifest reports whether name is one of the signature's manifests.
func (s Signature) IsManifest(name string) bool { return contains(s.Manifests, name) }

// MatchesExtension reports whether name has one of the heuristic extensions.
func (s Signature) MatchesExtension(name string) bool {
	return contains(s.Extensions, path.Ext(name))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// BuildDescriptor is one inferred way to build a project subtree.
type BuildDescriptor struct {
	Kind        Kind        `json:"kind"`
	Tool        string      `json:"tool"`
	Dir         string      `json:"dir"`
	Specificity Specificity `json:"specificity"`
	Depth       int         `json:"depth"`
	// ManifestPaths are relative to the repository root. Heuristic descriptors
	// list the matching source files instead.
	ManifestPaths []string `json:"manifest_paths"`

	// Prepare runs before ResolveCommand under the same budget.
	Prepare        [][]string `json:"prepare,omitempty"`
	ResolveCommand []string   `json:"resolve_command,omitempty"`
	BuildCommand   []string   `json:"build_command"`
}

// String renders "kind/tool at dir".
func (d BuildDescriptor) String() string {
	dir := d.Dir
	if dir == "" || dir == "." {
		dir = "./"
	}
	return fmt.Sprintf("%s/%s at %s", d.Kind, d.Tool, dir)
}
