// Package layout decides every on-disk path for the store: data-directory
// placement with a 2-character fan-out, temp-directory naming, and the
// relative-path math behind dependency symlinks. All functions are pure;
// paths are absolute, slash-separated.
package layout

import (
	"path"
	"strings"

	"github.com/radiumlabs/radium/pkg/canonical"
)

const (
	// DataDirName is the root of the shared space tree under a store root.
	DataDirName = ".radium-fs-data"
	// LocalDepsDirName holds a space's local-scoped dependencies, mirroring
	// the outer layout recursively.
	LocalDepsDirName = ".radium-fs-local-deps"
	// ManifestFileName sits inside each data directory. Its existence is the
	// space's existence.
	ManifestFileName = ".radium-fs-manifest.json"
	// ContentDirName is the public content directory of a space.
	ContentDirName = "space"
	// PrivateDirName is the private directory, excluded from user search.
	PrivateDirName = "local"
	// TempPrefix marks in-progress build directories. Lookups skip entries
	// with this prefix.
	TempPrefix = ".tmp-"
)

// HashInput builds the byte stream whose SHA-256 is a space's dataId:
// the kind name, a single NUL separator, then the canonical serialization
// of the effective cache key. A nil key hashes as the empty object, so nil
// and {} produce the same identity.
func HashInput(kindName string, effectiveKey any) []byte {
	if effectiveKey == nil {
		effectiveKey = map[string]any{}
	}
	var b strings.Builder
	b.WriteString(kindName)
	b.WriteByte(0x00)
	b.WriteString(canonical.Marshal(effectiveKey))
	return []byte(b.String())
}

// Shard returns the fan-out directory for a dataId: its first two hex
// characters.
func Shard(dataID string) string {
	return dataID[:2]
}

// SharedDataDir returns the data directory for a shared space:
// <storeRoot>/.radium-fs-data/<kind>/<xx>/<dataId>.
func SharedDataDir(storeRoot, kindName, dataID string) string {
	return path.Join(storeRoot, DataDirName, kindName, Shard(dataID), dataID)
}

// LocalDataDir returns the data directory for a local-scoped dependency of
// the space whose data directory is parentDataDir.
func LocalDataDir(parentDataDir, kindName, dataID string) string {
	return path.Join(parentDataDir, LocalDepsDirName, kindName, Shard(dataID), dataID)
}

// TempDir returns the transient build directory for dataDir: a sibling named
// .tmp-<dataId>-<suffix>.
func TempDir(dataDir, suffix string) string {
	return path.Join(path.Dir(dataDir), TempPrefix+path.Base(dataDir)+"-"+suffix)
}

// IsTempName reports whether a directory entry name belongs to an
// in-progress build.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

// ContentDir returns <dataDir>/space, the public content directory.
func ContentDir(dataDir string) string {
	return path.Join(dataDir, ContentDirName)
}

// PrivateDir returns <dataDir>/local, the private directory.
func PrivateDir(dataDir string) string {
	return path.Join(dataDir, PrivateDirName)
}

// ManifestPath returns the manifest file path inside dataDir.
func ManifestPath(dataDir string) string {
	return path.Join(dataDir, ManifestFileName)
}

// RelativeTarget computes the symlink target stored at linkPath so it
// resolves to target: the relative path from linkPath's directory to target,
// by common-prefix elimination over slash-separated components. An empty
// result collapses to ".". Relative targets are what let a whole store root
// be relocated without rewriting links.
func RelativeTarget(linkPath, target string) string {
	from := splitPath(path.Dir(linkPath))
	to := splitPath(target)

	common := 0
	for common < len(from) && common < len(to) && from[common] == to[common] {
		common++
	}

	parts := make([]string, 0, len(from)-common+len(to)-common)
	for i := common; i < len(from); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)

	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

func splitPath(p string) []string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}
