// Package store implements the content-addressed filesystem-space cache:
// deterministic identity, the atomic build protocol, recursive dependency
// mounting, command execution with persisted history, and the layered event
// bus. Everything runs over a pluggable adapter, so the same engine serves
// the native filesystem and the in-memory one.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radiumlabs/radium/pkg/adapter"
	"github.com/radiumlabs/radium/pkg/event"
	"github.com/radiumlabs/radium/pkg/layout"
)

// Config configures a Store. Zero value means: native-filesystem adapter,
// no locker, no runtime.
type Config struct {
	// Adapter is the platform boundary. Defaults to the OS adapter.
	Adapter adapter.Adapter
	// Locker, when set, serializes concurrent builds per dataId. Builds are
	// correct without it; it only removes duplicated work.
	Locker Locker
	// Runtime is passed through to every initializer; nested dep builds see
	// it shallow-merged with their DepOptions.Runtime.
	Runtime map[string]any
}

// Store is the engine. All operations are safe for concurrent use.
type Store struct {
	root    string
	adapter adapter.Adapter
	bus     *event.Bus
	locker  Locker
	runtime map[string]any
	now     func() time.Time

	mu    sync.Mutex
	kinds map[string]*Kind
}

// New opens a store rooted at the given directory. The data tree is created
// lazily on first build.
func New(root string, cfg Config) *Store {
	a := cfg.Adapter
	if a == nil {
		a = adapter.NewOS()
	}
	return &Store{
		root:    root,
		adapter: a,
		bus:     event.NewBus(),
		locker:  cfg.Locker,
		runtime: cfg.Runtime,
		now:     time.Now,
		kinds:   make(map[string]*Kind),
	}
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// Adapter returns the platform adapter the store was opened with.
func (s *Store) Adapter() adapter.Adapter {
	return s.adapter
}

// On subscribes h to every event the store emits. The returned function
// removes the subscription.
func (s *Store) On(h event.Handler) func() {
	return s.bus.On(h)
}

// EnsureOptions tunes one Ensure call. The On* callbacks fire at the same
// points as the matching global events, in addition to global subscribers.
type EnsureOptions struct {
	// NoCache forces a rebuild: an existing space is removed before the
	// initializer runs again.
	NoCache  bool
	OnStart  func(event.Event)
	OnCached func(event.Event)
	OnDone   func(event.Event)
	OnError  func(event.Event)
}

// Ensure materializes the space for (kind, input), serving it from cache
// when it already exists. The context cancels lock acquisition and is
// exposed to the initializer; it is checked once before the build begins.
func (s *Store) Ensure(ctx context.Context, kind *Kind, input any, opts *EnsureOptions) (*Space, error) {
	return s.ensure(ctx, kind, input, opts, "", s.runtime)
}

// ensure is the reentrant build path. A non-empty localAnchor places the
// space under that data directory's local-deps subtree instead of the
// shared layout; Dep passes the parent's temp data dir here for
// local-scoped dependencies.
func (s *Store) ensure(ctx context.Context, kind *Kind, input any, opts *EnsureOptions, localAnchor string, runtime map[string]any) (*Space, error) {
	if kind == nil {
		return nil, fmt.Errorf("%w: nil kind", ErrValidation)
	}
	if opts == nil {
		opts = &EnsureOptions{}
	}
	s.registerKind(kind)

	effKey := kind.effectiveKey(input)
	dataID, err := s.adapter.Hash(ctx, layout.HashInput(kind.name, effKey))
	if err != nil {
		return nil, fmt.Errorf("derive dataId for %q: %w", kind.name, err)
	}

	var dataDir string
	if localAnchor != "" {
		dataDir = layout.LocalDataDir(localAnchor, kind.name, dataID)
	} else {
		dataDir = layout.SharedDataDir(s.root, kind.name, dataID)
	}

	if s.locker != nil {
		handle, err := s.locker.Acquire(ctx, dataID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrAborted, err)
			}
			return nil, err
		}
		defer handle.Release()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, err)
	}

	existing, err := readManifest(ctx, s.adapter, dataDir)
	if err != nil && !adapter.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		if !opts.NoCache {
			sp := s.newSpace(kind, dataID, dataDir, existing)
			e := event.Event{
				Type: event.InitCached, Kind: kind.name, DataID: dataID,
				Input: input, Path: sp.Path,
			}
			s.bus.Emit(e)
			if opts.OnCached != nil {
				opts.OnCached(e)
			}
			return sp, nil
		}
		if err := s.adapter.Remove(ctx, dataDir, adapter.RemoveOptions{Recursive: true}); err != nil {
			return nil, fmt.Errorf("rebuild %q: clear old space: %w", kind.name, err)
		}
	}

	startEvt := event.Event{Type: event.InitStart, Kind: kind.name, DataID: dataID, Input: input}
	s.bus.Emit(startEvt)
	if opts.OnStart != nil {
		opts.OnStart(startEvt)
	}

	sp, err := s.build(ctx, kind, input, effKey, dataID, dataDir, runtime)
	if err != nil {
		errEvt := event.Event{
			Type: event.InitError, Kind: kind.name, DataID: dataID,
			Input: input, Err: unwrapUser(err),
		}
		s.bus.Emit(errEvt)
		if opts.OnError != nil {
			opts.OnError(errEvt)
		}
		return nil, err
	}

	doneEvt := event.Event{
		Type: event.InitDone, Kind: kind.name, DataID: dataID, Input: input,
		Path: sp.Path, Exports: sp.Exports, Metadata: sp.Manifest.Metadata,
	}
	s.bus.Emit(doneEvt)
	if opts.OnDone != nil {
		opts.OnDone(doneEvt)
	}
	return sp, nil
}

// build runs the initializer inside a fresh temp directory and promotes the
// result with an atomic rename. On any failure the temp tree is removed
// best-effort before the error surfaces.
func (s *Store) build(ctx context.Context, kind *Kind, input, effKey any, dataID, dataDir string, runtime map[string]any) (*Space, error) {
	tempDir := layout.TempDir(dataDir, uuid.NewString()[:8])
	contentDir := layout.ContentDir(tempDir)
	privateDir := layout.PrivateDir(tempDir)

	cleanup := func() {
		_ = s.adapter.Remove(ctx, tempDir, adapter.RemoveOptions{Recursive: true})
	}

	if err := s.adapter.Mkdir(ctx, contentDir); err != nil {
		return nil, fmt.Errorf("build %q: %w", kind.name, err)
	}
	if err := s.adapter.Mkdir(ctx, privateDir); err != nil {
		cleanup()
		return nil, fmt.Errorf("build %q: %w", kind.name, err)
	}

	bs := &BuildSpace{
		dirAPI:  dirAPI{a: s.adapter, root: contentDir},
		Path:    contentDir,
		Local:   &LocalSpace{d: dirAPI{a: s.adapter, root: privateDir}},
		store:   s,
		dataDir: tempDir,
		runtime: runtime,
	}
	bctx := &BuildContext{
		Input:   input,
		Runtime: runtime,
		Space:   bs,
		Emit: func(payload any) {
			// The space handle does not exist during a build, so custom
			// events reach the global channel only.
			s.bus.Emit(event.Event{
				Type: event.Custom, Kind: kind.name, DataID: dataID, Payload: payload,
			})
		},
	}

	res, err := kind.onInit(ctx, bctx)
	if err != nil {
		cleanup()
		return nil, &UserInitError{Kind: kind.name, Err: err}
	}
	if res == nil {
		res = &InitResult{}
	}

	origin := Origin{Kind: kind.name, Input: input}
	if kind.cacheKey != nil {
		origin.CacheKey = effKey
	}
	now := s.timestamp()
	metadata := res.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	manifest := &Manifest{
		Version:      manifestVersion,
		Origin:       origin,
		Exports:      normalizeExports(res.Export, res.Exports),
		Dependencies: bs.deps,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := writeManifest(ctx, s.adapter, tempDir, manifest); err != nil {
		cleanup()
		return nil, fmt.Errorf("build %q: %w", kind.name, err)
	}

	if err := s.adapter.Rename(ctx, tempDir, dataDir); err != nil {
		cleanup()
		if !s.adapter.Exists(ctx, dataDir) {
			return nil, fmt.Errorf("build %q: %w: %v", kind.name, ErrFinalizeFailed, err)
		}
		// A concurrent builder won the rename. Determinism makes its output
		// equivalent to ours; adopt its manifest.
	}

	final, err := readManifest(ctx, s.adapter, dataDir)
	if err != nil {
		return nil, fmt.Errorf("build %q: read back manifest: %w", kind.name, err)
	}
	return s.newSpace(kind, dataID, dataDir, final), nil
}

func (s *Store) newSpace(kind *Kind, dataID, dataDir string, m *Manifest) *Space {
	contentDir := layout.ContentDir(dataDir)
	return &Space{
		DataID:   dataID,
		Kind:     m.Origin.Kind,
		Origin:   m.Origin,
		Path:     contentDir,
		Exports:  absoluteExports(contentDir, m.Exports),
		Manifest: m,
		store:    s,
		kind:     kind,
	}
}

func (s *Store) registerKind(k *Kind) {
	s.mu.Lock()
	s.kinds[k.name] = k
	s.mu.Unlock()
}

func (s *Store) kindByName(name string) *Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kinds[name]
}

// timestamp returns the current time in ISO-8601 form for manifests.
func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// unwrapUser exposes the original user error on error events while the
// engine's wrapped form propagates to the caller.
func unwrapUser(err error) error {
	if ue, ok := err.(*UserInitError); ok {
		return ue.Err
	}
	return err
}
