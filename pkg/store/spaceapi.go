package store

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/radiumlabs/radium/pkg/adapter"
	"github.com/radiumlabs/radium/pkg/layout"
)

// Scope says where a dependency materializes: shared under the store root,
// discoverable by any parent, or local under the parent's private
// local-deps subtree, dying with the parent.
type Scope string

const (
	ScopeShared Scope = "shared"
	ScopeLocal  Scope = "local"
)

// ReadOptions slices a file read by line. StartLine is 1-based and clamped
// at the first line; zero MaxLines means to the end.
type ReadOptions struct {
	StartLine int
	MaxLines  int
}

// ReadDirOptions controls directory listing. Recursive returns relative
// paths of everything below the directory; zero MaxResults means unbounded.
type ReadDirOptions struct {
	Recursive  bool
	MaxResults int
}

// DepOptions controls a Dep call. Zero-value scope means shared. Export
// selects which export of the dependency the symlink points at: empty or
// "." is the default export, "*" bypasses the exports map and targets the
// content root. Runtime is shallow-merged over the parent's runtime for the
// child build.
type DepOptions struct {
	Scope   Scope
	Export  string
	Runtime map[string]any
}

// dirAPI is the file-operation surface bound to one directory. Relative
// paths are joined under the root; the engine does not prevent escapes via
// "..", mirroring the lookup-by-join contract.
type dirAPI struct {
	a    adapter.Adapter
	root string
}

func (d *dirAPI) abs(rel string) string {
	return path.Join(d.root, rel)
}

func (d *dirAPI) WriteFile(ctx context.Context, rel string, data []byte) error {
	return d.a.WriteFile(ctx, d.abs(rel), data)
}

func (d *dirAPI) ReadFile(ctx context.Context, rel string, opts *ReadOptions) ([]byte, error) {
	raw, err := d.a.ReadFile(ctx, d.abs(rel))
	if err != nil {
		return nil, err
	}
	if opts == nil || (opts.StartLine == 0 && opts.MaxLines == 0) {
		return raw, nil
	}
	lines := strings.Split(string(raw), "\n")
	start := opts.StartLine - 1
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := len(lines)
	if opts.MaxLines > 0 && start+opts.MaxLines < end {
		end = start + opts.MaxLines
	}
	return []byte(strings.Join(lines[start:end], "\n")), nil
}

func (d *dirAPI) Mkdir(ctx context.Context, rel string) error {
	return d.a.Mkdir(ctx, d.abs(rel))
}

func (d *dirAPI) ReadDir(ctx context.Context, rel string, opts *ReadDirOptions) ([]string, error) {
	if opts == nil || !opts.Recursive {
		names, err := d.a.ReadDir(ctx, d.abs(rel))
		if err != nil {
			return nil, err
		}
		if opts != nil && opts.MaxResults > 0 && len(names) > opts.MaxResults {
			names = names[:opts.MaxResults]
		}
		return names, nil
	}

	var out []string
	var walk func(sub string) error
	walk = func(sub string) error {
		names, err := d.a.ReadDir(ctx, d.abs(sub))
		if err != nil {
			return err
		}
		for _, name := range names {
			child := path.Join(sub, name)
			out = append(out, child)
			if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
				return nil
			}
			info, err := d.a.Stat(ctx, d.abs(child))
			if err == nil && info.IsDirectory {
				if err := walk(child); err != nil {
					return err
				}
				if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
					return nil
				}
			}
		}
		return nil
	}
	if err := walk(rel); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *dirAPI) Stat(ctx context.Context, rel string) (adapter.FileInfo, error) {
	return d.a.Stat(ctx, d.abs(rel))
}

func (d *dirAPI) Remove(ctx context.Context, rel string, opts adapter.RemoveOptions) error {
	return d.a.Remove(ctx, d.abs(rel), opts)
}

// Copy duplicates a file or directory tree within the bound directory.
func (d *dirAPI) Copy(ctx context.Context, srcRel, destRel string) error {
	src, dest := d.abs(srcRel), d.abs(destRel)
	info, err := d.a.Stat(ctx, src)
	if err != nil {
		return err
	}
	if info.IsDirectory {
		if err := d.a.Mkdir(ctx, dest); err != nil {
			return err
		}
		names, err := d.a.ReadDir(ctx, src)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := d.Copy(ctx, path.Join(srcRel, name), path.Join(destRel, name)); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := d.a.ReadFile(ctx, src)
	if err != nil {
		return err
	}
	return d.a.WriteFile(ctx, dest, data)
}

// Move renames a file or directory within the bound directory.
func (d *dirAPI) Move(ctx context.Context, srcRel, destRel string) error {
	return d.a.Rename(ctx, d.abs(srcRel), d.abs(destRel))
}

func (d *dirAPI) Glob(ctx context.Context, pattern string, opts adapter.GlobOptions) ([]string, error) {
	return d.a.Glob(ctx, d.root, pattern, opts)
}

func (d *dirAPI) Grep(ctx context.Context, re *regexp.Regexp, opts adapter.GrepOptions) ([]string, error) {
	return d.a.Grep(ctx, d.root, re, opts)
}

// LocalSpace is the sub-API over a space's private directory. The surface
// is deliberately narrow: no copy, move, glob or grep, keeping the private
// tree out of the user-level search surface.
type LocalSpace struct {
	d dirAPI
}

func (l *LocalSpace) WriteFile(ctx context.Context, rel string, data []byte) error {
	return l.d.WriteFile(ctx, rel, data)
}

func (l *LocalSpace) ReadFile(ctx context.Context, rel string, opts *ReadOptions) ([]byte, error) {
	return l.d.ReadFile(ctx, rel, opts)
}

func (l *LocalSpace) Mkdir(ctx context.Context, rel string) error {
	return l.d.Mkdir(ctx, rel)
}

func (l *LocalSpace) ReadDir(ctx context.Context, rel string, opts *ReadDirOptions) ([]string, error) {
	return l.d.ReadDir(ctx, rel, opts)
}

func (l *LocalSpace) Stat(ctx context.Context, rel string) (adapter.FileInfo, error) {
	return l.d.Stat(ctx, rel)
}

func (l *LocalSpace) Remove(ctx context.Context, rel string, opts adapter.RemoveOptions) error {
	return l.d.Remove(ctx, rel, opts)
}

// BuildSpace is the space-build API an initializer works through. It is
// bound to the temp directory and disappears when the build completes.
type BuildSpace struct {
	dirAPI

	// Path is the absolute content directory inside the temp tree.
	Path string
	// Local operates on the private directory.
	Local *LocalSpace

	store   *Store
	dataDir string // temp data dir; anchor for local-scoped deps
	runtime map[string]any
	deps    []Dependency
}

// Dep materializes a dependency space and mounts it at mountPath inside
// this build's content directory via a relative symlink. It returns the
// absolute path the mount resolves to. The dependency list records calls in
// order; the records land in this space's manifest.
func (b *BuildSpace) Dep(ctx context.Context, mountPath string, kind *Kind, input any, opts *DepOptions) (string, error) {
	if opts == nil {
		opts = &DepOptions{}
	}
	scope := opts.Scope
	if scope == "" {
		scope = ScopeShared
	}

	anchor := ""
	if scope == ScopeLocal {
		anchor = b.dataDir
	}
	childRuntime := mergeRuntime(b.runtime, opts.Runtime)

	child, err := b.store.ensure(ctx, kind, input, nil, anchor, childRuntime)
	if err != nil {
		return "", err
	}

	var target string
	if opts.Export == "*" {
		target = child.Path
	} else {
		name := opts.Export
		if name == "" {
			name = "."
		}
		rel, ok := child.Manifest.Exports[name]
		if !ok {
			return "", &ExportNotFoundError{
				Kind:      child.Kind,
				Requested: name,
				Available: exportNames(child.Manifest.Exports),
			}
		}
		target = path.Join(child.Path, rel)
	}

	linkPath := path.Join(b.Path, mountPath)
	relTarget := layout.RelativeTarget(linkPath, target)
	if err := b.store.adapter.Symlink(ctx, relTarget, linkPath); err != nil {
		return "", fmt.Errorf("mount %s: %w", mountPath, err)
	}

	b.deps = append(b.deps, Dependency{
		MountPath: mountPath,
		Origin:    child.Origin,
		Scope:     scope,
		Export:    opts.Export,
	})
	return target, nil
}

// CommandSpace is the API a command handler works through: the space-build
// surface minus Dep, bound to the final content directory.
type CommandSpace struct {
	dirAPI

	// Path is the absolute content directory of the materialized space.
	Path string
	// Local operates on the private directory.
	Local *LocalSpace
}

func mergeRuntime(parent, extra map[string]any) map[string]any {
	if len(parent) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(parent)+len(extra))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func exportNames(exports map[string]string) []string {
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
