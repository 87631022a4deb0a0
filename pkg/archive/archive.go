// Package archive moves materialized spaces between stores as
// zstd-compressed tarballs. Dependency symlinks are stored with their
// relative targets, so once the same shared dependencies exist under the
// destination root the mounts resolve again; local-scoped dependencies
// travel inside the archive. Native filesystem only.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/radiumlabs/radium/pkg/layout"
)

// ErrNotASpace reports an export target that is not a space data directory.
var ErrNotASpace = errors.New("not a space data directory")

// ErrUnsafePath reports an archive entry that would escape the store root.
var ErrUnsafePath = errors.New("unsafe path in archive")

// Export writes the space rooted at dataDir (its manifest, content
// directory, private directory and local-deps subtree) to w as a
// zstd-compressed tar. Entry names are <kind>/<shard>/<dataId>/..., so the
// archive lands at the same layout position on import.
func Export(dataDir string, w io.Writer) error {
	if _, err := os.Stat(filepath.Join(dataDir, layout.ManifestFileName)); err != nil {
		return fmt.Errorf("export %s: %w", dataDir, ErrNotASpace)
	}

	// kind/shard/dataId relative prefix from the directory structure.
	id := filepath.Base(dataDir)
	shard := filepath.Base(filepath.Dir(dataDir))
	kind := filepath.Base(filepath.Dir(filepath.Dir(dataDir)))
	prefix := path.Join(kind, shard, id)

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("export %s: %w", dataDir, err)
	}
	tw := tar.NewWriter(enc)

	err = filepath.WalkDir(dataDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dataDir, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		switch {
		case d.IsDir():
			return tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir, Name: name + "/", Mode: 0o755,
			})
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeSymlink, Name: name, Linkname: target, Mode: 0o777,
			})
		default:
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeReg, Name: name, Size: info.Size(), Mode: 0o644,
			}); err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("export %s: %w", dataDir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("export %s: %w", dataDir, err)
	}
	return enc.Close()
}

// Import extracts a space archive under storeRoot's data tree. An already
// present space (manifest exists at the target) is left untouched and the
// archive is drained, making import idempotent. Returns the imported (or
// existing) data directory.
func Import(storeRoot string, r io.Reader) (string, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return "", fmt.Errorf("import: %w", err)
	}
	defer dec.Close()
	tr := tar.NewReader(dec)

	dataRoot := filepath.Join(storeRoot, layout.DataDirName)
	var dataDir string
	skip := false

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("import: %w", err)
		}

		name := path.Clean(hdr.Name)
		if name == "." || strings.HasPrefix(name, "..") || path.IsAbs(name) {
			return "", fmt.Errorf("import %q: %w", hdr.Name, ErrUnsafePath)
		}
		parts := strings.Split(name, "/")
		if len(parts) < 3 {
			return "", fmt.Errorf("import %q: %w", hdr.Name, ErrUnsafePath)
		}

		if dataDir == "" {
			dataDir = filepath.Join(dataRoot, parts[0], parts[1], parts[2])
			if _, err := os.Stat(filepath.Join(dataDir, layout.ManifestFileName)); err == nil {
				skip = true
			}
		}
		if skip {
			continue
		}

		dest := filepath.Join(dataRoot, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return "", fmt.Errorf("import %q: %w", name, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return "", fmt.Errorf("import %q: %w", name, err)
			}
			if err := os.Symlink(hdr.Linkname, dest); err != nil && !os.IsExist(err) {
				return "", fmt.Errorf("import %q: %w", name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return "", fmt.Errorf("import %q: %w", name, err)
			}
			f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
			if err != nil {
				return "", fmt.Errorf("import %q: %w", name, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return "", fmt.Errorf("import %q: %w", name, err)
			}
			if err := f.Close(); err != nil {
				return "", fmt.Errorf("import %q: %w", name, err)
			}
		}
	}

	if dataDir == "" {
		return "", fmt.Errorf("import: empty archive")
	}
	return dataDir, nil
}
