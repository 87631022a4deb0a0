// Package event routes store events across three channels: a global channel
// receiving everything, a per-space command channel keyed by dataId and
// event type, and a per-space custom channel carrying raw payloads. Handlers
// are isolated: a panicking handler never interrupts delivery to the others
// or to the engine.
package event

import "sync"

// Type tags an Event.
type Type string

const (
	InitStart    Type = "init:start"
	InitCached   Type = "init:cached"
	InitDone     Type = "init:done"
	InitError    Type = "init:error"
	CommandStart Type = "command:start"
	CommandDone  Type = "command:done"
	CommandError Type = "command:error"
	Custom       Type = "custom"
)

// Event is the single payload shape carried on the bus. Which fields are set
// depends on Type: init events carry Input and, once materialized, Path,
// Exports and Metadata; command events carry Command; error events carry Err;
// custom events carry Payload.
type Event struct {
	Type     Type
	Kind     string
	DataID   string
	Input    any
	Path     string
	Exports  map[string]string
	Metadata map[string]any
	Command  any
	Err      error
	Payload  any
}

// Handler receives bus events.
type Handler func(Event)

// CustomHandler receives the raw payload of a custom event.
type CustomHandler func(payload any)

type subscription[H any] struct {
	id int
	fn H
}

// Bus fans events out to subscribers. The zero value is not usable; call
// NewBus.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	global  []subscription[Handler]
	command map[string]map[Type][]subscription[Handler]
	custom  map[string][]subscription[CustomHandler]
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		command: make(map[string]map[Type][]subscription[Handler]),
		custom:  make(map[string][]subscription[CustomHandler]),
	}
}

// On subscribes h to every event on the bus. The returned function removes
// the subscription; it is the sole cleanup path for global handlers.
func (b *Bus) On(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.global = append(b.global, subscription[Handler]{id: id, fn: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.global = removeSub(b.global, id)
	}
}

// OnCommand subscribes h to command events of type t for one space. The map
// entry for dataID is created lazily and deleted by Purge.
func (b *Bus) OnCommand(dataID string, t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	byType, ok := b.command[dataID]
	if !ok {
		byType = make(map[Type][]subscription[Handler])
		b.command[dataID] = byType
	}
	byType[t] = append(byType[t], subscription[Handler]{id: id, fn: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if byType, ok := b.command[dataID]; ok {
			byType[t] = removeSub(byType[t], id)
		}
	}
}

// OnCustom subscribes h to custom payloads emitted by one space's handlers.
func (b *Bus) OnCustom(dataID string, h CustomHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.custom[dataID] = append(b.custom[dataID], subscription[CustomHandler]{id: id, fn: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.custom[dataID] = removeSub(b.custom[dataID], id)
	}
}

// Emit delivers e to global subscribers only. Build-time custom events go
// through here: the space handle does not exist yet, so there is no
// per-space audience.
func (b *Bus) Emit(e Event) {
	for _, s := range b.snapshotGlobal() {
		call(s.fn, e)
	}
}

// EmitSpace delivers e to global subscribers and to the per-space channel
// for e.DataID: command events reach tag subscribers, custom events reach
// custom handlers with the raw payload.
func (b *Bus) EmitSpace(e Event) {
	b.Emit(e)

	b.mu.Lock()
	var handlers []subscription[Handler]
	if byType, ok := b.command[e.DataID]; ok {
		handlers = append(handlers, byType[e.Type]...)
	}
	var customs []subscription[CustomHandler]
	if e.Type == Custom {
		customs = append(customs, b.custom[e.DataID]...)
	}
	b.mu.Unlock()

	for _, s := range handlers {
		call(s.fn, e)
	}
	for _, s := range customs {
		callCustom(s.fn, e.Payload)
	}
}

// Purge drops every per-space subscription for dataID. Called on space
// removal so long-running processes do not accumulate dead handler maps.
func (b *Bus) Purge(dataID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.command, dataID)
	delete(b.custom, dataID)
}

func (b *Bus) snapshotGlobal() []subscription[Handler] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]subscription[Handler], len(b.global))
	copy(out, b.global)
	return out
}

func removeSub[H any](subs []subscription[H], id int) []subscription[H] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

func call(h Handler, e Event) {
	defer func() { _ = recover() }()
	h(e)
}

func callCustom(h CustomHandler, payload any) {
	defer func() { _ = recover() }()
	h(payload)
}
