// Package detect infers which build systems apply to a staged repository tree.
package detect

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
)

// DefaultMaxDepth bounds how many directory levels below the root are scanned.
const DefaultMaxDepth = 3

// skipDirs are vendored or generated trees that never hold the project's own build.
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"target":       {},
	"build":        {},
	"dist":         {},
	".venv":        {},
	"__pycache__":  {},
}

// Detector walks a tree and emits ordered build descriptors.
type Detector struct {
	registry *ecosystem.Registry
	maxDepth int
	logger   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithMaxDepth sets the scan depth; values below 1 keep the default.
func WithMaxDepth(depth int) Option {
	return func(d *Detector) {
		if depth > 0 {
			d.maxDepth = depth
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a detector over the adapters in reg.
func New(reg *ecosystem.Registry, opts ...Option) *Detector {
	d := &Detector{registry: reg, maxDepth: DefaultMaxDepth, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect is a convenience wrapper using the default registry and depth.
func Detect(ctx context.Context, root string) ([]ecosystem.BuildDescriptor, error) {
	return New(ecosystem.DefaultRegistry()).Detect(ctx, root)
}

// tree is the scanned file listing: slash-separated directory -> file names.
type tree struct {
	dirs  []string
	files map[string][]string
}

func (d *Detector) scan(ctx context.Context, root string) (*tree, error) {
	t := &tree{files: make(map[string][]string)}
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			d.logger.Debug("Skipping unreadable path", logfields.Path(p), logfields.Error(err))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel != "." {
				if _, skip := skipDirs[entry.Name()]; skip {
					return fs.SkipDir
				}
				if depthOf(rel) > d.maxDepth {
					return fs.SkipDir
				}
			}
			t.dirs = append(t.dirs, rel)
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		dir := path.Dir(rel)
		t.files[dir] = append(t.files[dir], entry.Name())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// depthOf returns 0 for the root and 1 for its direct children.
func depthOf(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func joinRel(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// Detect walks root and returns descriptors ordered by specificity (desc),
// depth (asc), ecosystem priority and directory. An empty result is not an error.
func (d *Detector) Detect(ctx context.Context, root string) ([]ecosystem.BuildDescriptor, error) {
	t, err := d.scan(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	var out []ecosystem.BuildDescriptor
	for _, adapter := range d.registry.Adapters() {
		sig := adapter.Signature()
		found := d.manifestDescriptors(t, adapter.Kind(), sig)
		if len(found) == 0 {
			if h, ok := heuristicDescriptor(t, adapter.Kind(), sig); ok {
				found = append(found, h)
			}
		}
		for _, desc := range found {
			if err := adapter.Plan(filepath.Join(root, filepath.FromSlash(desc.Dir)), &desc); err != nil {
				d.logger.Warn("Discarding unplannable descriptor",
					logfields.Ecosystem(string(desc.Kind)),
					logfields.Path(desc.Dir),
					logfields.Error(err))
				continue
			}
			out = append(out, desc)
		}
	}

	Sort(out)
	for i, desc := range out {
		d.logger.Debug("Detected build system",
			slog.Int("rank", i),
			logfields.Ecosystem(string(desc.Kind)),
			logfields.Tool(desc.Tool),
			logfields.Path(desc.Dir),
			slog.String("specificity", desc.Specificity.String()))
	}
	return out, nil
}

func (d *Detector) manifestDescriptors(t *tree, kind ecosystem.Kind, sig ecosystem.Signature) []ecosystem.BuildDescriptor {
	var out []ecosystem.BuildDescriptor
	for _, dir := range t.dirs {
		var manifests, locks []string
		for _, name := range t.files[dir] {
			switch {
			case sig.IsManifest(name):
				manifests = append(manifests, joinRel(dir, name))
			case sig.IsLockfile(name):
				locks = append(locks, joinRel(dir, name))
			}
		}
		if len(manifests) == 0 {
			continue
		}
		spec := ecosystem.SpecificityManifest
		if len(locks) > 0 {
			spec = ecosystem.SpecificityLockfile
		}
		paths := append(locks, manifests...)
		sort.Strings(paths)
		out = append(out, ecosystem.BuildDescriptor{
			Kind:          kind,
			Dir:           dir,
			Specificity:   spec,
			Depth:         depthOf(dir),
			ManifestPaths: paths,
		})
	}
	return out
}

// heuristicDescriptor roots a descriptor at the shallowest directory holding
// source files with the kind's extensions.
func heuristicDescriptor(t *tree, kind ecosystem.Kind, sig ecosystem.Signature) (ecosystem.BuildDescriptor, bool) {
	if len(sig.Extensions) == 0 {
		return ecosystem.BuildDescriptor{}, false
	}
	best := ""
	bestDepth := -1
	for _, dir := range t.dirs {
		depth := depthOf(dir)
		if bestDepth >= 0 && (depth > bestDepth || (depth == bestDepth && dir >= best)) {
			continue
		}
		for _, name := range t.files[dir] {
			if sig.MatchesExtension(name) {
				best, bestDepth = dir, depth
				break
			}
		}
	}
	if bestDepth < 0 {
		return ecosystem.BuildDescriptor{}, false
	}
	var files []string
	for _, name := range t.files[best] {
		if sig.MatchesExtension(name) {
			files = append(files, joinRel(best, name))
		}
	}
	sort.Strings(files)
	return ecosystem.BuildDescriptor{
		Kind:          kind,
		Dir:           best,
		Specificity:   ecosystem.SpecificityHeuristic,
		Depth:         bestDepth,
		ManifestPaths: files,
	}, true
}

// Sort orders descriptors in place by specificity (desc), depth (asc),
// ecosystem priority, then directory.
func Sort(descs []ecosystem.BuildDescriptor) {
	sort.SliceStable(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if a.Specificity != b.Specificity {
			return a.Specificity > b.Specificity
		}
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if pa, pb := a.Kind.Priority(), b.Kind.Priority(); pa != pb {
			return pa < pb
		}
		return a.Dir < b.Dir
	})
}
