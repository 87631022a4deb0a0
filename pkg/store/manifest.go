package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/radiumlabs/radium/pkg/adapter"
	"github.com/radiumlabs/radium/pkg/layout"
)

// manifestVersion tags the on-disk format for forward-compatible parsing.
const manifestVersion = 1

// Origin is the triple that locates a space in the store: what produced it.
// CacheKey is the derived key object, not the function, so an origin read
// back from disk recomputes the same dataId.
type Origin struct {
	Kind     string `json:"kind"`
	Input    any    `json:"input"`
	CacheKey any    `json:"cacheKey,omitempty"`
}

// effectiveKey mirrors Kind.effectiveKey for a persisted origin: the stored
// cacheKey acts as a constant function.
func (o Origin) effectiveKey() any {
	if o.CacheKey != nil {
		return o.CacheKey
	}
	return o.Input
}

// Dependency records one dep() call in the order it was made. MountPath is
// relative to the parent's content directory and may contain slashes.
type Dependency struct {
	MountPath string `json:"mountPath"`
	Origin    Origin `json:"origin"`
	Scope     Scope  `json:"scope"`
	Export    string `json:"export,omitempty"`
}

// CommandRecord is one entry of a space's command history.
type CommandRecord struct {
	Command    any            `json:"command"`
	ExecutedAt string         `json:"executedAt"`
	Result     *CommandOutput `json:"result,omitempty"`
}

// CommandOutput is the recorded result of a command that returned one.
type CommandOutput struct {
	Exports  map[string]string `json:"exports,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// Manifest is the authoritative serialized description of one materialized
// space. Its presence on disk is the space's presence.
type Manifest struct {
	Version      int               `json:"version"`
	Origin       Origin            `json:"origin"`
	Exports      map[string]string `json:"exports"`
	Dependencies []Dependency      `json:"dependencies,omitempty"`
	Commands     []CommandRecord   `json:"commands,omitempty"`
	Metadata     map[string]any    `json:"metadata"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

// readManifest loads and parses the manifest inside dataDir. A missing file
// surfaces as a not-found adapter error.
func readManifest(ctx context.Context, a adapter.Adapter, dataDir string) (*Manifest, error) {
	raw, err := a.ReadFile(ctx, layout.ManifestPath(dataDir))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", dataDir, err)
	}
	return &m, nil
}

// writeManifest serializes m into dataDir.
func writeManifest(ctx context.Context, a adapter.Adapter, dataDir string, m *Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest %s: %w", dataDir, err)
	}
	return a.WriteFile(ctx, layout.ManifestPath(dataDir), append(raw, '\n'))
}

// absoluteExports resolves manifest export paths against the content
// directory. The persisted values stay relative so a relocated store keeps
// working; handles recompute absolutes from them.
func absoluteExports(contentDir string, exports map[string]string) map[string]string {
	out := make(map[string]string, len(exports))
	for name, rel := range exports {
		out[name] = path.Join(contentDir, rel)
	}
	return out
}
