package store

import (
	"context"
	"fmt"
	"path"

	"github.com/radiumlabs/radium/pkg/adapter"
	"github.com/radiumlabs/radium/pkg/layout"
)

// dataIDForOrigin recomputes a space's identity from a persisted origin.
// The stored cacheKey, when present, acts as a constant function.
func (s *Store) dataIDForOrigin(ctx context.Context, o Origin) (string, error) {
	id, err := s.adapter.Hash(ctx, layout.HashInput(o.Kind, o.effectiveKey()))
	if err != nil {
		return "", fmt.Errorf("derive dataId for %q: %w", o.Kind, err)
	}
	return id, nil
}

// Find returns the shared space for origin, or nil when none exists.
func (s *Store) Find(ctx context.Context, origin Origin) (*Space, error) {
	dataID, err := s.dataIDForOrigin(ctx, origin)
	if err != nil {
		return nil, err
	}
	dataDir := layout.SharedDataDir(s.root, origin.Kind, dataID)
	m, err := readManifest(ctx, s.adapter, dataDir)
	if err != nil {
		if adapter.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.newSpace(s.kindByName(origin.Kind), dataID, dataDir, m), nil
}

// Has reports whether the shared space for origin exists, by the presence
// of its manifest.
func (s *Store) Has(ctx context.Context, origin Origin) (bool, error) {
	dataID, err := s.dataIDForOrigin(ctx, origin)
	if err != nil {
		return false, err
	}
	dataDir := layout.SharedDataDir(s.root, origin.Kind, dataID)
	return s.adapter.Exists(ctx, layout.ManifestPath(dataDir)), nil
}

// Remove deletes the shared space for origin, including its local-deps
// subtree, and purges its per-space event subscriptions. Removing an absent
// space is a no-op.
func (s *Store) Remove(ctx context.Context, origin Origin) error {
	dataID, err := s.dataIDForOrigin(ctx, origin)
	if err != nil {
		return err
	}
	dataDir := layout.SharedDataDir(s.root, origin.Kind, dataID)
	if s.adapter.Exists(ctx, dataDir) {
		if err := s.adapter.Remove(ctx, dataDir, adapter.RemoveOptions{Recursive: true}); err != nil {
			return fmt.Errorf("remove %q: %w", origin.Kind, err)
		}
	}
	s.bus.Purge(dataID)
	return nil
}

// List scans the shared data tree and returns a handle for every readable
// space, optionally restricted to one kind. In-progress temp directories
// and entries without a readable manifest are skipped silently.
func (s *Store) List(ctx context.Context, kindName string) ([]*Space, error) {
	dataRoot := path.Join(s.root, layout.DataDirName)

	var kindNames []string
	if kindName != "" {
		kindNames = []string{kindName}
	} else {
		names, err := s.adapter.ReadDir(ctx, dataRoot)
		if err != nil {
			if adapter.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		kindNames = names
	}

	var spaces []*Space
	for _, kn := range kindNames {
		kindDir := path.Join(dataRoot, kn)
		shards, err := s.adapter.ReadDir(ctx, kindDir)
		if err != nil {
			continue
		}
		for _, shard := range shards {
			ids, err := s.adapter.ReadDir(ctx, path.Join(kindDir, shard))
			if err != nil {
				continue
			}
			for _, id := range ids {
				if layout.IsTempName(id) {
					continue
				}
				dataDir := path.Join(kindDir, shard, id)
				m, err := readManifest(ctx, s.adapter, dataDir)
				if err != nil {
					continue
				}
				spaces = append(spaces, s.newSpace(s.kindByName(kn), id, dataDir, m))
			}
		}
	}
	return spaces, nil
}
