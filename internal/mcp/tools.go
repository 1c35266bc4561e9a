// ABOUTME: Tool registry with per-tool authorization levels
// ABOUTME: Unknown levels fail closed to admin; tools/list filters by the caller's credential

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

// ErrToolNotFound is returned for unregistered tool names.
var ErrToolNotFound = errors.New("tool not found")

// Level is the minimum capability a credential needs to invoke a tool.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

// Handler executes a tool call. The AuthContext is also available through
// the context for handlers that call into the service layer.
type Handler func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error)

// Tool is a registered tool with its authorization level.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Level       Level
	Handler     Handler
}

// Registry holds the tool table. Registration happens at startup; lookups
// are concurrent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Registering the same name twice panics; tool names
// are startup-time constants.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("mcp: duplicate tool %q", t.Name))
	}
	r.tools[t.Name] = t
}

// ToolsFor returns the tools the credential is allowed to invoke, sorted by
// name for stable listings.
func (r *Registry) ToolsFor(a *auth.AuthContext) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Tool
	for _, t := range r.tools {
		if allowed(a, t.Level) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call authorizes and executes a tool. The level gate runs before the
// handler so handlers can assume the floor capability.
func (r *Registry) Call(ctx context.Context, a *auth.AuthContext, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrToolNotFound
	}

	if !allowed(a, tool.Level) {
		return nil, fmt.Errorf("%w: tool %q requires %s access", auth.ErrForbidden, name, requiredName(tool.Level))
	}

	return tool.Handler(ctx, a, args)
}

// allowed checks a credential against a tool's level. A missing or unknown
// level fails closed: only admins may call it.
func allowed(a *auth.AuthContext, level Level) bool {
	if a == nil {
		return false
	}
	switch level {
	case LevelRead:
		return a.Admin || a.HasScope(store.ScopeRead) || a.Permission != ""
	case LevelWrite:
		return a.CanWrite()
	case LevelAdmin:
		return a.Admin
	default:
		return a.Admin
	}
}

func requiredName(level Level) string {
	switch level {
	case LevelRead, LevelWrite, LevelAdmin:
		return string(level)
	default:
		return "admin"
	}
}
