package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxLinkDepth bounds symlink resolution so loops surface as errors instead
// of hanging.
const maxLinkDepth = 32

type entryKind int

const (
	entryFile entryKind = iota
	entryDir
	entrySymlink
)

type memEntry struct {
	kind    entryKind
	data    []byte
	target  string
	modTime time.Time
}

// Mem is an in-memory Adapter backed by a single flat map from absolute path
// to entry. It supports symlink entries with bounded resolution depth and is
// safe for concurrent use.
type Mem struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

// NewMem returns an empty in-memory adapter containing only the root
// directory.
func NewMem() *Mem {
	return &Mem{entries: map[string]*memEntry{
		"/": {kind: entryDir, modTime: time.Now()},
	}}
}

var _ Adapter = (*Mem)(nil)

// Hash returns the lowercase hex SHA-256 of data.
func (m *Mem) Hash(_ context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// resolve walks p component by component, substituting symlink targets as it
// goes. followLast controls whether a symlink at the final component is
// resolved too. Missing intermediate entries are not an error; the caller
// decides what absence means.
func (m *Mem) resolve(p string, followLast bool) (string, error) {
	p = path.Clean(p)
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("resolve %q: path must be absolute", p)
	}

	depth := 0
	for {
		comps := splitComponents(p)
		cur := "/"
		restart := false
		for i, c := range comps {
			cur = path.Join(cur, c)
			e := m.entries[cur]
			if e == nil || e.kind != entrySymlink {
				continue
			}
			last := i == len(comps)-1
			if last && !followLast {
				continue
			}
			depth++
			if depth > maxLinkDepth {
				return "", fmt.Errorf("resolve %q: %w (depth > %d)", p, ErrSymlinkLoop, maxLinkDepth)
			}
			target := e.target
			if !strings.HasPrefix(target, "/") {
				target = path.Join(path.Dir(cur), target)
			}
			p = path.Join(append([]string{target}, comps[i+1:]...)...)
			restart = true
			break
		}
		if !restart {
			return path.Clean(cur), nil
		}
	}
}

func splitComponents(p string) []string {
	var comps []string
	for _, c := range strings.Split(p, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return comps
}

// mkdirAll creates directory entries for p and every missing ancestor.
// Callers hold the write lock.
func (m *Mem) mkdirAll(p string) error {
	cur := "/"
	for _, c := range splitComponents(p) {
		cur = path.Join(cur, c)
		e := m.entries[cur]
		if e == nil {
			m.entries[cur] = &memEntry{kind: entryDir, modTime: time.Now()}
			continue
		}
		if e.kind == entryFile {
			return fmt.Errorf("mkdir %s: not a directory", cur)
		}
	}
	return nil
}

func (m *Mem) ReadFile(_ context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rp, err := m.resolve(p, true)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	e := m.entries[rp]
	if e == nil {
		return nil, fmt.Errorf("read %s: %w", p, ErrNotFound)
	}
	if e.kind != entryFile {
		return nil, fmt.Errorf("read %s: is a directory", p)
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (m *Mem) WriteFile(_ context.Context, p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rp, err := m.resolve(p, true)
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if e := m.entries[rp]; e != nil && e.kind == entryDir {
		return fmt.Errorf("write %s: is a directory", p)
	}
	if err := m.mkdirAll(path.Dir(rp)); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.entries[rp] = &memEntry{kind: entryFile, data: stored, modTime: time.Now()}
	return nil
}

func (m *Mem) Mkdir(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rp, err := m.resolve(p, true)
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return m.mkdirAll(rp)
}

func (m *Mem) ReadDir(_ context.Context, p string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rp, err := m.resolve(p, true)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", p, err)
	}
	e := m.entries[rp]
	if e == nil {
		return nil, fmt.Errorf("readdir %s: %w", p, ErrNotFound)
	}
	if e.kind != entryDir {
		return nil, fmt.Errorf("readdir %s: not a directory", p)
	}
	return m.childNames(rp), nil
}

// childNames lists immediate children of the directory at rp. Callers hold
// at least the read lock.
func (m *Mem) childNames(rp string) []string {
	prefix := rp
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]bool{}
	for k := range m.entries {
		if k == rp || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Mem) Stat(_ context.Context, p string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rp, err := m.resolve(p, true)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, err)
	}
	e := m.entries[rp]
	if e == nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, ErrNotFound)
	}
	return FileInfo{
		IsFile:      e.kind == entryFile,
		IsDirectory: e.kind == entryDir,
		Size:        int64(len(e.data)),
		ModTime:     e.modTime,
	}, nil
}

func (m *Mem) Exists(_ context.Context, p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rp, err := m.resolve(p, true)
	if err != nil {
		return false
	}
	return m.entries[rp] != nil
}

func (m *Mem) Remove(_ context.Context, p string, opts RemoveOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rp, err := m.resolve(p, false)
	if err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	e := m.entries[rp]
	if e == nil {
		return fmt.Errorf("remove %s: %w", p, ErrNotFound)
	}
	if e.kind == entryDir {
		children := m.childNames(rp)
		if len(children) > 0 && !opts.Recursive {
			return fmt.Errorf("remove %s: directory not empty", p)
		}
		prefix := rp + "/"
		for k := range m.entries {
			if strings.HasPrefix(k, prefix) {
				delete(m.entries, k)
			}
		}
	}
	delete(m.entries, rp)
	return nil
}

func (m *Mem) Rename(_ context.Context, src, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, err := m.resolve(src, false)
	if err != nil {
		return fmt.Errorf("rename %s: %w", src, err)
	}
	rd, err := m.resolve(dest, false)
	if err != nil {
		return fmt.Errorf("rename to %s: %w", dest, err)
	}
	if m.entries[rs] == nil {
		return fmt.Errorf("rename %s: %w", src, ErrNotFound)
	}
	if m.entries[rd] != nil {
		return fmt.Errorf("rename %s to %s: destination exists", src, dest)
	}
	if err := m.mkdirAll(path.Dir(rd)); err != nil {
		return fmt.Errorf("rename to %s: %w", dest, err)
	}

	moved := map[string]*memEntry{}
	prefix := rs + "/"
	for k, e := range m.entries {
		if k == rs {
			moved[rd] = e
			delete(m.entries, k)
		} else if strings.HasPrefix(k, prefix) {
			moved[rd+k[len(rs):]] = e
			delete(m.entries, k)
		}
	}
	for k, e := range moved {
		m.entries[k] = e
	}
	return nil
}

func (m *Mem) Symlink(_ context.Context, target, linkPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lp := path.Clean(linkPath)
	if m.entries[lp] != nil {
		return fmt.Errorf("symlink %s: already exists", linkPath)
	}
	if err := m.mkdirAll(path.Dir(lp)); err != nil {
		return fmt.Errorf("symlink %s: %w", linkPath, err)
	}
	m.entries[lp] = &memEntry{kind: entrySymlink, target: target, modTime: time.Now()}
	return nil
}

func (m *Mem) Glob(_ context.Context, rootDir, pattern string, opts GlobOptions) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	root, err := m.resolve(rootDir, true)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", rootDir, err)
	}

	var out []string
	for _, rel := range m.filesUnder(root) {
		if globIgnored(opts.Ignore, rel) || !globMatch(pattern, rel) {
			continue
		}
		out = append(out, rel)
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
	}
	return out, nil
}

// filesUnder lists paths of file entries below root, relative to root,
// sorted. Symlinks that resolve to files are included; symlinked
// directories are not descended into.
func (m *Mem) filesUnder(root string) []string {
	prefix := root
	if prefix != "/" {
		prefix += "/"
	}
	var rels []string
	for k, e := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		switch e.kind {
		case entryFile:
			rels = append(rels, k[len(prefix):])
		case entrySymlink:
			rp, err := m.resolve(k, true)
			if err == nil {
				if t := m.entries[rp]; t != nil && t.kind == entryFile {
					rels = append(rels, k[len(prefix):])
				}
			}
		}
	}
	sort.Strings(rels)
	return rels
}

func (m *Mem) Grep(_ context.Context, rootDir string, re *regexp.Regexp, opts GrepOptions) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	root, err := m.resolve(rootDir, true)
	if err != nil {
		return nil, fmt.Errorf("grep %s: %w", rootDir, err)
	}

	var out []string
	for _, rel := range m.filesUnder(root) {
		if opts.Include != "" && !globMatch(opts.Include, rel) {
			continue
		}
		rp, err := m.resolve(path.Join(root, rel), true)
		if err != nil {
			continue
		}
		e := m.entries[rp]
		if e == nil || e.kind != entryFile {
			continue
		}
		for i, line := range strings.Split(string(e.data), "\n") {
			if !re.MatchString(line) {
				continue
			}
			out = append(out, fmt.Sprintf("%s:%d:%s", rel, i+1, line))
			if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
				return out, nil
			}
		}
	}
	return out, nil
}
