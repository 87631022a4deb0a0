package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/radiumlabs/radium/pkg/adapter"
	"github.com/radiumlabs/radium/pkg/event"
	"github.com/radiumlabs/radium/pkg/layout"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New("/store", Config{Adapter: adapter.NewMem()})
}

// recorder collects bus events for order assertions.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// tags renders the recorded stream as "type kind" strings.
func (r *recorder) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = string(e.Type) + " " + e.Kind
	}
	return out
}

func greetingKind(t *testing.T, initCount *int) *Kind {
	t.Helper()
	k, err := NewKind(KindConfig{
		Name: "greeting",
		OnInit: func(ctx context.Context, b *BuildContext) (*InitResult, error) {
			if initCount != nil {
				*initCount++
			}
			input := b.Input.(map[string]any)
			msg := fmt.Sprintf("Hello, %s!", input["name"])
			if err := b.Space.WriteFile(ctx, "hello.txt", []byte(msg)); err != nil {
				return nil, err
			}
			return &InitResult{Exports: map[string]string{"greeting": "hello.txt"}}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewKind: %v", err)
	}
	return k
}

func TestNewKindValidation(t *testing.T) {
	_, err := NewKind(KindConfig{Name: "  "})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("empty name: got %v, want ErrValidation", err)
	}
	_, err = NewKind(KindConfig{Name: "x"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("missing initializer: got %v, want ErrValidation", err)
	}
}

func TestEnsureBuildThenCacheHit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	rec := &recorder{}
	st.On(rec.handle)

	initCount := 0
	k := greetingKind(t, &initCount)
	input := map[string]any{"name": "World", "lang": "en"}

	sp, err := st.Ensure(ctx, k, input, nil)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if initCount != 1 {
		t.Fatalf("onInit calls = %d, want 1", initCount)
	}
	if len(sp.DataID) != 64 {
		t.Errorf("dataId length = %d, want 64", len(sp.DataID))
	}
	if !strings.HasSuffix(sp.Path, "/space") {
		t.Errorf("path %q should end with /space", sp.Path)
	}
	if got := sp.Exports["greeting"]; !strings.HasSuffix(got, "/space/hello.txt") {
		t.Errorf("exports.greeting = %q", got)
	}
	if _, ok := sp.Exports["."]; !ok {
		t.Error("exports must always contain the default export")
	}

	data, err := st.Adapter().ReadFile(ctx, sp.Exports["greeting"])
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "Hello, World!" {
		t.Errorf("content = %q", data)
	}

	sp2, err := st.Ensure(ctx, k, map[string]any{"lang": "en", "name": "World"}, nil)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if initCount != 1 {
		t.Fatalf("cache hit still ran onInit (%d calls)", initCount)
	}
	if sp2.DataID != sp.DataID || sp2.Path != sp.Path {
		t.Error("cache hit returned a different space")
	}

	want := []string{"init:start greeting", "init:done greeting", "init:cached greeting"}
	got := rec.tags()
	if len(got) != len(want) {
		t.Fatalf("event stream %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q (stream %v)", i, got[i], want[i], got)
		}
	}
}

func TestEnsureCallbacks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	k := greetingKind(t, nil)
	input := map[string]any{"name": "cb"}

	var calls []string
	opts := &EnsureOptions{
		OnStart:  func(event.Event) { calls = append(calls, "start") },
		OnCached: func(event.Event) { calls = append(calls, "cached") },
		OnDone:   func(event.Event) { calls = append(calls, "done") },
		OnError:  func(event.Event) { calls = append(calls, "error") },
	}
	if _, err := st.Ensure(ctx, k, input, opts); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := st.Ensure(ctx, k, input, opts); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	want := "start,done,cached"
	if got := strings.Join(calls, ","); got != want {
		t.Fatalf("callbacks = %q, want %q", got, want)
	}
}

func TestDataIDDeterministicAcrossKeyOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	k := greetingKind(t, nil)

	a, err := st.Ensure(ctx, k, map[string]any{"a": 1, "b": 2, "name": "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Ensure(ctx, k, map[string]any{"name": "x", "b": 2, "a": 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.DataID != b.DataID || a.Path != b.Path {
		t.Fatalf("key order changed identity: %s vs %s", a.DataID, b.DataID)
	}
}

func TestCacheKeyReducesIdentity(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	initCount := 0
	k, err := NewKind(KindConfig{
		Name: "ck",
		CacheKey: func(input any) any {
			return map[string]any{"name": input.(map[string]any)["name"]}
		},
		OnInit: func(ctx context.Context, b *BuildContext) (*InitResult, error) {
			initCount++
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := st.Ensure(ctx, k, map[string]any{"name": "a", "debug": true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Ensure(ctx, k, map[string]any{"name": "a", "debug": false}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.DataID != b.DataID {
		t.Fatal("cacheKey should make debug-only differences identical")
	}
	if initCount != 1 {
		t.Fatalf("onInit ran %d times, want 1", initCount)
	}
	if a.Manifest.Origin.CacheKey == nil {
		t.Error("manifest origin should record the derived cacheKey")
	}

	c, err := st.Ensure(ctx, k, map[string]any{"name": "other"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.DataID == a.DataID {
		t.Error("different cacheKey fields must change identity")
	}
}

func TestNilInputMatchesEmptyObject(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	initCount := 0
	k, err := NewKind(KindConfig{
		Name: "empty",
		OnInit: func(ctx context.Context, b *BuildContext) (*InitResult, error) {
			initCount++
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := st.Ensure(ctx, k, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Ensure(ctx, k, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.DataID != b.DataID {
		t.Fatal("nil input and empty object must hash identically")
	}
	if initCount != 1 {
		t.Fatalf("onInit ran %d times, want 1", initCount)
	}
}

func TestEnsureNoCacheRebuilds(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	initCount := 0
	k := greetingKind(t, &initCount)
	input := map[string]any{"name": "again"}

	first, err := st.Ensure(ctx, k, input, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := st.Ensure(ctx, k, input, &EnsureOptions{NoCache: true})
	if err != nil {
		t.Fatal(err)
	}
	if initCount != 2 {
		t.Fatalf("onInit ran %d times, want 2", initCount)
	}
	if second.Manifest.UpdatedAt == first.Manifest.UpdatedAt {
		t.Error("forced rebuild should refresh updatedAt")
	}
}

func TestInitFailureCleansUp(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	rec := &recorder{}
	st.On(rec.handle)

	boom := errors.New("boom")
	k, err := NewKind(KindConfig{
		Name: "failing",
		OnInit: func(ctx context.Context, b *BuildContext) (*InitResult, error) {
			if err := b.Space.WriteFile(ctx, "partial.txt", []byte("x")); err != nil {
				return nil, err
			}
			return nil, boom
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	sp, err := st.Ensure(ctx, k, nil, nil)
	if sp != nil {
		t.Fatal("failed build returned a space")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("error should wrap the original: %v", err)
	}
	var uie *UserInitError
	if !errors.As(err, &uie) {
		t.Fatalf("error should be a UserInitError: %v", err)
	}

	ok, err := st.Has(ctx, Origin{Kind: "failing"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("failed build must not be observable")
	}

	// No temp directory survives the failure: the shard level is empty.
	kindDir := "/store/.radium-fs-data/failing"
	if st.Adapter().Exists(ctx, kindDir) {
		shards, _ := st.Adapter().ReadDir(ctx, kindDir)
		for _, shard := range shards {
			entries, _ := st.Adapter().ReadDir(ctx, kindDir+"/"+shard)
			if len(entries) > 0 {
				t.Errorf("leftover entries under %s/%s: %v", kindDir, shard, entries)
			}
		}
	}

	got := rec.tags()
	want := []string{"init:start failing", "init:error failing"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("event stream %v, want %v", got, want)
	}
	if rec.events[1].Err != boom {
		t.Errorf("init:error should carry the original error, got %v", rec.events[1].Err)
	}
}

func TestEnsureAbortedContext(t *testing.T) {
	st := newTestStore(t)
	k := greetingKind(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.Ensure(ctx, k, map[string]any{"name": "x"}, nil)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("got %v, want ErrAborted", err)
	}
}

func TestFindHasRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	k := greetingKind(t, nil)
	input := map[string]any{"name": "rt"}

	sp, err := st.Ensure(ctx, k, input, nil)
	if err != nil {
		t.Fatal(err)
	}

	found, err := st.Find(ctx, sp.Origin)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil {
		t.Fatal("Find returned nil for an existing space")
	}
	if found.DataID != sp.DataID || found.Path != sp.Path {
		t.Error("Find returned a different space")
	}

	ok, err := st.Has(ctx, sp.Origin)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Has should report true")
	}

	if err := st.Remove(ctx, sp.Origin); err != nil {
		t.Fatal(err)
	}
	ok, err = st.Has(ctx, sp.Origin)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Has should report false after Remove")
	}
	found, err = st.Find(ctx, sp.Origin)
	if err != nil {
		t.Fatal(err)
	}
	if found != nil {
		t.Error("Find should return nil after Remove")
	}

	// Removing again is a no-op.
	if err := st.Remove(ctx, sp.Origin); err != nil {
		t.Fatal(err)
	}
}

func TestFindMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sp, err := st.Find(ctx, Origin{Kind: "never", Input: map[string]any{"a": 1}})
	if err != nil {
		t.Fatal(err)
	}
	if sp != nil {
		t.Fatal("Find on an absent origin should return nil")
	}
}

func TestListSkipsTempAndUnreadable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	k := greetingKind(t, nil)

	if _, err := st.Ensure(ctx, k, map[string]any{"name": "one"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Ensure(ctx, k, map[string]any{"name": "two"}, nil); err != nil {
		t.Fatal(err)
	}

	// Plant a stale temp directory and a directory without a manifest.
	a := st.Adapter()
	if err := a.Mkdir(ctx, "/store/.radium-fs-data/greeting/ab/.tmp-deadbeef-x1y2z3w4/space"); err != nil {
		t.Fatal(err)
	}
	if err := a.Mkdir(ctx, "/store/.radium-fs-data/greeting/cd/"+strings.Repeat("c", 64)+"/space"); err != nil {
		t.Fatal(err)
	}

	spaces, err := st.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(spaces) != 2 {
		ids := make([]string, len(spaces))
		for i, sp := range spaces {
			ids[i] = sp.DataID
		}
		t.Fatalf("List returned %d spaces (%v), want 2", len(spaces), ids)
	}
	for _, sp := range spaces {
		if layout.IsTempName(sp.DataID) {
			t.Errorf("List leaked a temp entry %q", sp.DataID)
		}
	}

	byKind, err := st.List(ctx, "greeting")
	if err != nil {
		t.Fatal(err)
	}
	if len(byKind) != 2 {
		t.Fatalf("List(greeting) returned %d, want 2", len(byKind))
	}
	none, err := st.List(ctx, "absent")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("List(absent) returned %d, want 0", len(none))
	}
}

func TestListEmptyStore(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	spaces, err := st.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(spaces) != 0 {
		t.Fatalf("empty store listed %d spaces", len(spaces))
	}
}

func TestShardIsDataIDPrefix(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	k := greetingKind(t, nil)
	sp, err := st.Ensure(ctx, k, map[string]any{"name": "shard"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantShard := sp.DataID[:2]
	if !strings.Contains(sp.Path, "/"+wantShard+"/"+sp.DataID+"/") {
		t.Errorf("path %q does not use shard %q", sp.Path, wantShard)
	}
}

func TestConcurrentEnsureWithoutLockerConverges(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	k, err := NewKind(KindConfig{
		Name: "racy",
		OnInit: func(ctx context.Context, b *BuildContext) (*InitResult, error) {
			started <- struct{}{}
			<-release
			return nil, b.Space.WriteFile(ctx, "out.txt", []byte("same content"))
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]*Space, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = st.Ensure(ctx, k, nil, nil)
		}(i)
	}
	// Both builders are inside onInit before either renames.
	<-started
	<-started
	close(release)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("builder %d failed: %v", i, errs[i])
		}
	}
	if results[0].DataID != results[1].DataID || results[0].Path != results[1].Path {
		t.Fatal("racing builders diverged")
	}
	ok, err := st.Has(ctx, results[0].Origin)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("winner not observable")
	}
}
