// Package watch observes a store root on the native filesystem and reports
// spaces materialized, updated, or removed by any process. It watches the
// manifest files that define space existence, so a half-renamed temp
// directory is never reported. Built on fsnotify; debounced.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/radiumlabs/radium/pkg/layout"
)

// ChangeKind describes what happened to a space.
type ChangeKind int

const (
	SpaceAdded   ChangeKind = iota // manifest appeared
	SpaceUpdated                   // manifest rewritten (command execution)
	SpaceRemoved                   // data directory deleted
)

// Change is one observed store mutation.
type Change struct {
	Kind    ChangeKind
	DataDir string // absolute data directory of the space
	KindDir string // kind name from the layout position
	DataID  string
}

// Watcher monitors one store root for manifest changes.
type Watcher struct {
	Root    string
	Changes <-chan Change

	changes  chan Change
	done     chan struct{}
	notifier *fsnotify.Watcher
}

// New creates a watcher for the given store root. The data tree does not
// need to exist yet; it is picked up when the first build creates it.
func New(storeRoot string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ch := make(chan Change, 16)
	return &Watcher{
		Root:     storeRoot,
		Changes:  ch,
		changes:  ch,
		done:     make(chan struct{}),
		notifier: fw,
	}, nil
}

// Start begins watching. Directories already present are registered
// immediately; kind, shard and space directories created later are added as
// they appear.
func (w *Watcher) Start() error {
	if err := w.notifier.Add(w.Root); err != nil {
		return err
	}
	w.addTree(w.dataRoot())
	go w.loop()
	return nil
}

// Stop closes the watcher and its channel.
func (w *Watcher) Stop() {
	w.notifier.Close()
	<-w.done
	close(w.changes)
}

func (w *Watcher) dataRoot() string {
	return filepath.Join(w.Root, layout.DataDirName)
}

// addTree registers watches for root and every directory below it, down to
// the space data directories. Missing paths are ignored.
func (w *Watcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if layout.IsTempName(d.Name()) {
			return filepath.SkipDir
		}
		depth := w.depthOf(p)
		if depth > 3 {
			return filepath.SkipDir
		}
		_ = w.notifier.Add(p)
		return nil
	})
}

// depthOf returns the component count of p below the data root: 1 = kind
// dir, 2 = shard dir, 3 = space data dir. Zero for the data root itself,
// negative for anything outside it.
func (w *Watcher) depthOf(p string) int {
	rel, err := filepath.Rel(w.dataRoot(), p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return -1
	}
	if rel == "." {
		return 0
	}
	return len(strings.Split(filepath.ToSlash(rel), "/"))
}

const debounce = 100 * time.Millisecond

func (w *Watcher) loop() {
	defer close(w.done)

	type pendingChange struct {
		change Change
		at     time.Time
	}
	pending := make(map[string]pendingChange)
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	record := func(dataDir string, kind ChangeKind) {
		pending[dataDir] = pendingChange{
			change: Change{
				Kind:    kind,
				DataDir: dataDir,
				KindDir: filepath.Base(filepath.Dir(filepath.Dir(dataDir))),
				DataID:  filepath.Base(dataDir),
			},
			at: time.Now(),
		}
	}

	for {
		select {
		case ev, ok := <-w.notifier.Events:
			if !ok {
				for _, p := range pending {
					w.changes <- p.change
				}
				return
			}
			w.handle(ev, record)

		case <-ticker.C:
			now := time.Now()
			for key, p := range pending {
				if now.Sub(p.at) >= debounce {
					w.changes <- p.change
					delete(pending, key)
				}
			}

		case _, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, record func(string, ChangeKind)) {
	name := filepath.Base(ev.Name)
	depth := w.depthOf(ev.Name)

	switch {
	case depth >= 0 && depth <= 2 && ev.Has(fsnotify.Create):
		// A kind or shard directory appeared: extend the watch tree. The
		// walk also catches space directories that landed inside it before
		// the watch was in place.
		if layout.IsTempName(name) {
			return
		}
		w.addTree(ev.Name)
		w.scanForSpaces(ev.Name, record)

	case depth == 3:
		if layout.IsTempName(name) {
			return
		}
		switch {
		case ev.Has(fsnotify.Create):
			// An atomic rename landed. Only report it once the manifest is
			// in place.
			if _, err := os.Stat(filepath.Join(ev.Name, layout.ManifestFileName)); err == nil {
				record(ev.Name, SpaceAdded)
				_ = w.notifier.Add(ev.Name)
			}
		case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
			record(ev.Name, SpaceRemoved)
		}

	case depth == 4 && name == layout.ManifestFileName:
		dataDir := filepath.Dir(ev.Name)
		switch {
		case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
			record(dataDir, SpaceUpdated)
		case ev.Has(fsnotify.Remove):
			record(dataDir, SpaceRemoved)
		}
	}
}

// scanForSpaces reports spaces whose directories already exist under a
// freshly watched subtree.
func (w *Watcher) scanForSpaces(root string, record func(string, ChangeKind)) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if layout.IsTempName(d.Name()) {
			return filepath.SkipDir
		}
		if w.depthOf(p) == 3 {
			if _, err := os.Stat(filepath.Join(p, layout.ManifestFileName)); err == nil {
				record(p, SpaceAdded)
				_ = w.notifier.Add(p)
			}
			return filepath.SkipDir
		}
		return nil
	})
}
