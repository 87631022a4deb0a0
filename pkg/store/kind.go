package store

import (
	"context"
	"fmt"
	"strings"
)

// Kind is a recipe: a named initializer that produces a directory of files
// from a typed input, with an optional command handler that mutates a
// materialized space in place. Kinds are immutable, created once at program
// start, and hold no per-space state.
type Kind struct {
	name      string
	cacheKey  func(input any) any
	onInit    func(ctx context.Context, b *BuildContext) (*InitResult, error)
	onCommand func(ctx context.Context, c *CommandContext) (*CommandResult, error)
}

// KindConfig declares a Kind. Name and OnInit are required; CacheKey reduces
// the input to the subset that determines identity; OnCommand enables Send
// on spaces of this kind.
type KindConfig struct {
	Name      string
	CacheKey  func(input any) any
	OnInit    func(ctx context.Context, b *BuildContext) (*InitResult, error)
	OnCommand func(ctx context.Context, c *CommandContext) (*CommandResult, error)
}

// NewKind validates cfg and returns the Kind.
func NewKind(cfg KindConfig) (*Kind, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: name must be non-empty", ErrValidation)
	}
	if cfg.OnInit == nil {
		return nil, fmt.Errorf("%w: kind %q has no initializer", ErrValidation, cfg.Name)
	}
	return &Kind{
		name:      cfg.Name,
		cacheKey:  cfg.CacheKey,
		onInit:    cfg.OnInit,
		onCommand: cfg.OnCommand,
	}, nil
}

// MustKind is NewKind for package-level declarations; it panics on an
// invalid config.
func MustKind(cfg KindConfig) *Kind {
	k, err := NewKind(cfg)
	if err != nil {
		panic(err)
	}
	return k
}

// Name returns the kind's short name.
func (k *Kind) Name() string {
	return k.name
}

// HasCommand reports whether spaces of this kind accept Send.
func (k *Kind) HasCommand() bool {
	return k.onCommand != nil
}

// effectiveKey applies the cacheKey function when present, otherwise the
// input itself is the identity.
func (k *Kind) effectiveKey(input any) any {
	if k.cacheKey != nil {
		return k.cacheKey(input)
	}
	return input
}

// BuildContext is what an initializer receives: its input, the merged
// runtime value, the space-build API bound to the temp directory, and an
// emitter for custom events.
type BuildContext struct {
	Input   any
	Runtime map[string]any
	Space   *BuildSpace
	Emit    func(payload any)
}

// InitResult is an initializer's return. Export is shorthand for a single
// default export path; Exports names several. Both absent means the content
// root is the default export. Metadata defaults to empty.
type InitResult struct {
	Export   string
	Exports  map[string]string
	Metadata map[string]any
}

// CommandContext is what a command handler receives: the command value, the
// current manifest view, the command-space API bound to the final content
// directory, and an emitter for custom events.
type CommandContext struct {
	Command any
	Current Current
	Space   *CommandSpace
	Emit    func(payload any)
}

// Current is the manifest state a command handler starts from. Exports are
// relative to the content directory.
type Current struct {
	Exports  map[string]string
	Metadata map[string]any
}

// CommandResult is a command handler's return. Nil fields keep the existing
// manifest values; a nil result appends no record to the command history.
type CommandResult struct {
	Export   string
	Exports  map[string]string
	Metadata map[string]any
}

// normalizeExports applies the export-shorthand rules: nothing means the
// content root, a single string s means {".": s}.
func normalizeExports(export string, exports map[string]string) map[string]string {
	if len(exports) > 0 {
		out := make(map[string]string, len(exports))
		for k, v := range exports {
			out[k] = v
		}
		if _, ok := out["."]; !ok {
			out["."] = "."
		}
		return out
	}
	if export != "" {
		return map[string]string{".": export}
	}
	return map[string]string{".": "."}
}
