package store

import (
	"context"
	"path"

	"github.com/radiumlabs/radium/pkg/event"
	"github.com/radiumlabs/radium/pkg/layout"
)

// Space is the read-only runtime handle for a materialized space. Exports
// hold absolute paths, recomputed from the manifest's relative values so a
// relocated store stays valid.
type Space struct {
	DataID   string
	Kind     string
	Origin   Origin
	Path     string // absolute content directory
	Exports  map[string]string
	Manifest *Manifest

	store *Store
	kind  *Kind
}

// SendResult is what a command execution resolves to: the space's exports
// as absolute paths and its current metadata.
type SendResult struct {
	Exports  map[string]string
	Metadata map[string]any
}

// dataDir returns the space's data directory (the parent of the content
// directory).
func (sp *Space) dataDir() string {
	return path.Dir(sp.Path)
}

// canCommand reports whether this handle supports Send and per-space
// subscriptions.
func (sp *Space) canCommand() bool {
	return sp.kind != nil && sp.kind.onCommand != nil
}

// OnCommand subscribes to this space's command events by tag
// (command:start, command:done, command:error). Fails when the Kind has no
// command handler.
func (sp *Space) OnCommand(t event.Type, h event.Handler) (func(), error) {
	if !sp.canCommand() {
		return nil, ErrNoCommandHandler
	}
	return sp.store.bus.OnCommand(sp.DataID, t, h), nil
}

// OnCustom subscribes to raw payloads emitted by this space's command
// handler. Fails when the Kind has no command handler.
func (sp *Space) OnCustom(h event.CustomHandler) (func(), error) {
	if !sp.canCommand() {
		return nil, ErrNoCommandHandler
	}
	return sp.store.bus.OnCustom(sp.DataID, h), nil
}

// Send runs the Kind's command handler against the materialized space and
// appends the outcome to the manifest's command history. The handler works
// on the final content directory, not a temp copy: its side effects are not
// atomic with the manifest update, and at-most-once semantics are the
// caller's responsibility.
func (sp *Space) Send(ctx context.Context, command any) (*SendResult, error) {
	if !sp.canCommand() {
		return nil, ErrNoCommandHandler
	}
	st := sp.store

	st.bus.EmitSpace(event.Event{
		Type: event.CommandStart, Kind: sp.Kind, DataID: sp.DataID, Command: command,
	})

	emitError := func(orig error) {
		st.bus.EmitSpace(event.Event{
			Type: event.CommandError, Kind: sp.Kind, DataID: sp.DataID,
			Command: command, Err: orig,
		})
	}

	m, err := readManifest(ctx, st.adapter, sp.dataDir())
	if err != nil {
		emitError(err)
		return nil, err
	}

	cs := &CommandSpace{
		dirAPI: dirAPI{a: st.adapter, root: sp.Path},
		Path:   sp.Path,
		Local:  &LocalSpace{d: dirAPI{a: st.adapter, root: layout.PrivateDir(sp.dataDir())}},
	}
	cctx := &CommandContext{
		Command: command,
		Current: Current{Exports: m.Exports, Metadata: m.Metadata},
		Space:   cs,
		Emit: func(payload any) {
			st.bus.EmitSpace(event.Event{
				Type: event.Custom, Kind: sp.Kind, DataID: sp.DataID, Payload: payload,
			})
		},
	}

	res, err := sp.kind.onCommand(ctx, cctx)
	if err != nil {
		emitError(err)
		return nil, &UserCommandError{Kind: sp.Kind, Err: err}
	}

	now := st.timestamp()
	if res != nil {
		output := &CommandOutput{}
		if res.Export != "" || len(res.Exports) > 0 {
			m.Exports = normalizeExports(res.Export, res.Exports)
			output.Exports = m.Exports
		}
		if res.Metadata != nil {
			m.Metadata = res.Metadata
			output.Metadata = res.Metadata
		}
		m.Commands = append(m.Commands, CommandRecord{
			Command:    command,
			ExecutedAt: now,
			Result:     output,
		})
	}
	m.UpdatedAt = now
	if err := writeManifest(ctx, st.adapter, sp.dataDir(), m); err != nil {
		emitError(err)
		return nil, err
	}

	abs := absoluteExports(sp.Path, m.Exports)
	sp.Manifest = m
	sp.Exports = abs

	st.bus.EmitSpace(event.Event{
		Type: event.CommandDone, Kind: sp.Kind, DataID: sp.DataID,
		Command: command, Exports: abs, Metadata: m.Metadata,
	})
	return &SendResult{Exports: abs, Metadata: m.Metadata}, nil
}
