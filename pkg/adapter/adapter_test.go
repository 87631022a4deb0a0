package adapter

import (
	"context"
	"path"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// each returns both reference adapters with a fresh root, so the contract
// tests run against the full capability set of each.
func each(t *testing.T) map[string]struct {
	a    Adapter
	root string
} {
	t.Helper()
	mem := NewMem()
	require.NoError(t, mem.Mkdir(context.Background(), "/root"))
	return map[string]struct {
		a    Adapter
		root string
	}{
		"mem": {a: mem, root: "/root"},
		"os":  {a: NewOS(), root: t.TempDir()},
	}
}

func TestHashIsSHA256Hex(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			h, err := tc.a.Hash(ctx, []byte("hello world"))
			require.NoError(t, err)
			assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", h)
			assert.Len(t, h, 64)
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			p := path.Join(tc.root, "a/b/c.txt")
			require.NoError(t, tc.a.WriteFile(ctx, p, []byte("payload")))

			got, err := tc.a.ReadFile(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), got)

			// Parent directories were created implicitly.
			assert.True(t, tc.a.Exists(ctx, path.Join(tc.root, "a/b")))
		})
	}
}

func TestWriteFileCopiesInput(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			p := path.Join(tc.root, "f.txt")
			buf := []byte("original")
			require.NoError(t, tc.a.WriteFile(ctx, p, buf))
			buf[0] = 'X'

			got, err := tc.a.ReadFile(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, []byte("original"), got)
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			_, err := tc.a.ReadFile(ctx, path.Join(tc.root, "nope"))
			require.Error(t, err)
			assert.True(t, IsNotFound(err), "want not-found, got %v", err)
		})
	}
}

func TestMkdirIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			d := path.Join(tc.root, "x/y/z")
			require.NoError(t, tc.a.Mkdir(ctx, d))
			require.NoError(t, tc.a.Mkdir(ctx, d))

			info, err := tc.a.Stat(ctx, d)
			require.NoError(t, err)
			assert.True(t, info.IsDirectory)
		})
	}
}

func TestReadDirListsNames(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(tc.root, "d/one.txt"), []byte("1")))
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(tc.root, "d/two.txt"), []byte("2")))
			require.NoError(t, tc.a.Mkdir(ctx, path.Join(tc.root, "d/sub")))

			names, err := tc.a.ReadDir(ctx, path.Join(tc.root, "d"))
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"one.txt", "two.txt", "sub"}, names)
		})
	}
}

func TestReadDirFollowsSymlinkOnDir(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(tc.root, "real/f.txt"), []byte("x")))
			require.NoError(t, tc.a.Symlink(ctx, "real", path.Join(tc.root, "alias")))

			names, err := tc.a.ReadDir(ctx, path.Join(tc.root, "alias"))
			require.NoError(t, err)
			assert.Equal(t, []string{"f.txt"}, names)
		})
	}
}

func TestStatFollowsSymlinks(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			p := path.Join(tc.root, "target.txt")
			require.NoError(t, tc.a.WriteFile(ctx, p, []byte("abc")))
			link := path.Join(tc.root, "link.txt")
			require.NoError(t, tc.a.Symlink(ctx, "target.txt", link))

			info, err := tc.a.Stat(ctx, link)
			require.NoError(t, err)
			assert.True(t, info.IsFile)
			assert.EqualValues(t, 3, info.Size)
		})
	}
}

func TestRemoveNonEmptyDirRequiresRecursive(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			d := path.Join(tc.root, "full")
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(d, "f"), []byte("x")))

			require.Error(t, tc.a.Remove(ctx, d, RemoveOptions{}))
			require.NoError(t, tc.a.Remove(ctx, d, RemoveOptions{Recursive: true}))
			assert.False(t, tc.a.Exists(ctx, d))
		})
	}
}

func TestRenameMovesSubtree(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			src := path.Join(tc.root, "srcdir")
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(src, "deep/file.txt"), []byte("v")))

			dest := path.Join(tc.root, "parent/destdir")
			require.NoError(t, tc.a.Rename(ctx, src, dest))

			assert.False(t, tc.a.Exists(ctx, src))
			got, err := tc.a.ReadFile(ctx, path.Join(dest, "deep/file.txt"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)
		})
	}
}

func TestRenameFailsOnOccupiedDestination(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			src := path.Join(tc.root, "a")
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(src, "f"), []byte("1")))
			dest := path.Join(tc.root, "b")
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(dest, "f"), []byte("2")))

			require.Error(t, tc.a.Rename(ctx, src, dest))
			// The winner's content at the destination is intact.
			got, err := tc.a.ReadFile(ctx, path.Join(dest, "f"))
			require.NoError(t, err)
			assert.Equal(t, []byte("2"), got)
		})
	}
}

func TestSymlinkRelativeTarget(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(tc.root, "lib/index.js"), []byte("js")))
			link := path.Join(tc.root, "app/node/lib")
			require.NoError(t, tc.a.Symlink(ctx, "../../lib", link))

			got, err := tc.a.ReadFile(ctx, path.Join(link, "index.js"))
			require.NoError(t, err)
			assert.Equal(t, []byte("js"), got)
		})
	}
}

func TestGlob(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			files := []string{"main.go", "util.go", "docs/readme.md", "src/a.go", "src/deep/b.go"}
			for _, f := range files {
				require.NoError(t, tc.a.WriteFile(ctx, path.Join(tc.root, f), []byte("x")))
			}

			got, err := tc.a.Glob(ctx, tc.root, "*.go", GlobOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"main.go", "util.go"}, got)

			got, err = tc.a.Glob(ctx, tc.root, "**/*.go", GlobOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"main.go", "src/a.go", "src/deep/b.go", "util.go"}, got)

			got, err = tc.a.Glob(ctx, tc.root, "**/*.go", GlobOptions{Ignore: []string{"src"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"main.go", "util.go"}, got)

			got, err = tc.a.Glob(ctx, tc.root, "**/*.go", GlobOptions{MaxResults: 2})
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestGrep(t *testing.T) {
	ctx := context.Background()
	for name, tc := range each(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(tc.root, "a.txt"), []byte("hello\nworld\nhello again")))
			require.NoError(t, tc.a.WriteFile(ctx, path.Join(tc.root, "sub/b.txt"), []byte("nothing")))

			got, err := tc.a.Grep(ctx, tc.root, regexp.MustCompile(`hello`), GrepOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"a.txt:1:hello", "a.txt:3:hello again"}, got)

			got, err = tc.a.Grep(ctx, tc.root, regexp.MustCompile(`.`), GrepOptions{Include: "sub/*.txt"})
			require.NoError(t, err)
			assert.Equal(t, []string{"sub/b.txt:1:nothing"}, got)

			got, err = tc.a.Grep(ctx, tc.root, regexp.MustCompile(`hello`), GrepOptions{MaxResults: 1})
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}
