package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// OS is an Adapter over the native filesystem. It holds no state beyond the
// handles acquired per call.
type OS struct{}

// NewOS returns the native-filesystem adapter.
func NewOS() *OS {
	return &OS{}
}

var _ Adapter = (*OS)(nil)

func isPlatformNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (*OS) Hash(_ context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (*OS) ReadFile(_ context.Context, p string) ([]byte, error) {
	return os.ReadFile(p)
}

func (*OS) WriteFile(_ context.Context, p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("write %s: mkdir: %w", p, err)
	}
	return os.WriteFile(p, data, 0o644)
}

func (*OS) Mkdir(_ context.Context, p string) error {
	return os.MkdirAll(p, 0o755)
}

func (*OS) ReadDir(_ context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (*OS) Stat(_ context.Context, p string) (FileInfo, error) {
	info, err := os.Stat(p)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		IsFile:      info.Mode().IsRegular(),
		IsDirectory: info.IsDir(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}, nil
}

func (*OS) Exists(_ context.Context, p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (*OS) Remove(_ context.Context, p string, opts RemoveOptions) error {
	if opts.Recursive {
		return os.RemoveAll(p)
	}
	return os.Remove(p)
}

func (*OS) Rename(_ context.Context, src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("rename to %s: mkdir: %w", dest, err)
	}
	return os.Rename(src, dest)
}

func (*OS) Symlink(_ context.Context, target, linkPath string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return fmt.Errorf("symlink %s: mkdir: %w", linkPath, err)
	}
	return os.Symlink(target, linkPath)
}

// walkFiles lists file paths under rootDir relative to it, slash-separated
// and sorted. Symlinks that resolve to regular files are included; symlinked
// directories are not descended into.
func walkFiles(rootDir string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(rootDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(p)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
		}
		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rels)
	return rels, nil
}

func (*OS) Glob(_ context.Context, rootDir, pattern string, opts GlobOptions) ([]string, error) {
	rels, err := walkFiles(rootDir)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", rootDir, err)
	}
	var out []string
	for _, rel := range rels {
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

func (*OS) Grep(_ context.Context, rootDir string, re *regexp.Regexp, opts GrepOptions) ([]string, error) {
	rels, err := walkFiles(rootDir)
	if err != nil {
		return nil, fmt.Errorf("grep %s: %w", rootDir, err)
	}
	var out []string
	for _, rel := range rels {
		if opts.Include != "" && !globMatch(opts.Include, rel) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(rootDir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
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
