// Package adapter defines the platform boundary the store engine builds on:
// file I/O, directory manipulation, symlinks, search, and SHA-256 hashing.
// Two reference implementations ship with it: Mem, a flat in-memory map used
// by tests and embedders without a filesystem, and OS, which wraps native
// primitives. The engine never interprets adapter errors beyond "the path
// exists or it doesn't".
package adapter

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ErrNotFound reports a path that does not exist. The Mem adapter wraps it
// into its errors; the OS adapter surfaces the platform's not-exist error
// instead, so callers should test with IsNotFound rather than errors.Is.
var ErrNotFound = errors.New("not found")

// ErrSymlinkLoop reports that symlink resolution exceeded the maximum depth.
var ErrSymlinkLoop = errors.New("symlink loop")

// FileInfo describes a path. Stat follows symlinks, so a link to a file
// reports as a file.
type FileInfo struct {
	IsFile      bool
	IsDirectory bool
	Size        int64
	ModTime     time.Time
}

// RemoveOptions controls Remove. Non-recursive removal of a non-empty
// directory fails.
type RemoveOptions struct {
	Recursive bool
}

// GlobOptions bounds a Glob call. Zero MaxResults means unbounded.
type GlobOptions struct {
	Ignore     []string
	MaxResults int
}

// GrepOptions bounds a Grep call. Include filters candidate files by glob
// pattern; zero MaxResults means unbounded.
type GrepOptions struct {
	Include    string
	MaxResults int
}

// Adapter is the capability set the engine consumes for every platform
// interaction. Inputs are absolute slash-separated paths unless noted.
type Adapter interface {
	// Hash returns the lowercase 64-hex SHA-256 of data.
	Hash(ctx context.Context, data []byte) (string, error)

	// ReadFile returns the contents of the file at p, failing with a
	// not-found error if it is missing.
	ReadFile(ctx context.Context, p string) ([]byte, error)

	// WriteFile stores data at p, creating parent directories as needed.
	// The stored copy is independent of the caller's slice.
	WriteFile(ctx context.Context, p string, data []byte) error

	// Mkdir creates the directory at p and any missing parents. It is
	// idempotent when the directory already exists.
	Mkdir(ctx context.Context, p string) error

	// ReadDir lists the names of entries in the directory at p, following a
	// symlink at p itself.
	ReadDir(ctx context.Context, p string) ([]string, error)

	// Stat describes the path at p, following symlinks.
	Stat(ctx context.Context, p string) (FileInfo, error)

	// Exists reports whether p resolves to an existing entry. It never
	// fails: a broken symlink or a symlink loop reports false.
	Exists(ctx context.Context, p string) bool

	// Remove deletes the entry at p. Directories require Recursive unless
	// empty.
	Remove(ctx context.Context, p string, opts RemoveOptions) error

	// Rename moves src to dest, creating dest's parents as needed. The move
	// is atomic at the destination path: no observer sees a partial entry.
	Rename(ctx context.Context, src, dest string) error

	// Symlink creates a symbolic link at linkPath pointing to target, which
	// may be relative to linkPath's directory. Parents of linkPath are
	// created as needed.
	Symlink(ctx context.Context, target, linkPath string) error

	// Glob returns paths relative to rootDir matching pattern. Patterns
	// match full relative paths; "**" crosses directory boundaries.
	Glob(ctx context.Context, rootDir, pattern string, opts GlobOptions) ([]string, error)

	// Grep scans files under rootDir for lines matching re, returning
	// "relpath:line:content" entries.
	Grep(ctx context.Context, rootDir string, re *regexp.Regexp, opts GrepOptions) ([]string, error)
}

// IsNotFound reports whether err came from a missing path, regardless of
// which adapter produced it.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || isPlatformNotExist(err)
}
