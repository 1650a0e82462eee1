package pgops

import (
	"context"
	"fmt"
	"sort"

	"github.com/pgops-mcp/pgops/internal/extproc"
	"github.com/pgops-mcp/pgops/internal/policy"
)

// SideEnv is the capability handed to side-channel tools (backup, restore)
// that bypass the pooled-connection path and shell out to external
// utilities instead.
type SideEnv struct {
	Runner    *extproc.Runner
	Conn      ConnectionConfig
	BackupDir string
	PgDump    string
	PgRestore string
}

// ToolDefinition is one immutable catalogue entry: created once at process
// start, never mutated, shared read-only by all invocations.
//
// Exactly one of Build or SideChannel is set. Build is a pure function from
// validated arguments to one or more parameterized statements; Normalize
// (optional) shapes the executed batch into the tool's result, defaulting
// to the last statement's row set.
type ToolDefinition struct {
	Name        string
	Description string
	Class       policy.Class
	Args        []ArgSpec

	// RawSQLArg names the argument carrying caller-supplied SQL, which the
	// policy enforcer parses before dispatch. SelectOnly restricts it to
	// read forms.
	RawSQLArg  string
	SelectOnly bool

	// NoTransaction executes statements directly on the connection
	// (VACUUM cannot run inside a transaction block).
	NoTransaction bool

	Build       func(args Args) ([]Statement, error)
	Normalize   func(batch []*StatementResult) (*Result, error)
	SideChannel func(ctx context.Context, env *SideEnv, args Args) (*Result, error)
}

// Registry is the static tool catalogue. Built once, read-only afterwards.
type Registry struct {
	tools map[string]*ToolDefinition
	names []string
}

// newRegistry assembles the full catalogue. conn is captured by tools that
// report or shell out with connection coordinates. Panics on duplicate or
// malformed definitions — the catalogue is program text, not input.
func newRegistry(conn ConnectionConfig) *Registry {
	r := &Registry{tools: make(map[string]*ToolDefinition)}
	for _, group := range [][]*ToolDefinition{
		queryTools(conn),
		schemaTools(),
		dataTools(),
		userTools(),
		maintenanceTools(),
	} {
		for _, def := range group {
			r.add(def)
		}
	}
	sort.Strings(r.names)
	return r
}

func (r *Registry) add(def *ToolDefinition) {
	if def.Name == "" {
		panic("registry: tool with empty name")
	}
	if _, exists := r.tools[def.Name]; exists {
		panic(fmt.Sprintf("registry: duplicate tool %q", def.Name))
	}
	if (def.Build == nil) == (def.SideChannel == nil) {
		panic(fmt.Sprintf("registry: tool %q must set exactly one of Build or SideChannel", def.Name))
	}
	switch def.Class {
	case policy.ClassRead, policy.ClassWrite, policy.ClassAdmin, policy.ClassMaintenance:
	default:
		panic(fmt.Sprintf("registry: tool %q has invalid class %q", def.Name, def.Class))
	}
	r.tools[def.Name] = def
	r.names = append(r.names, def.Name)
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (*ToolDefinition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// List returns all definitions in name order.
func (r *Registry) List() []*ToolDefinition {
	defs := make([]*ToolDefinition, 0, len(r.names))
	for _, name := range r.names {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// Len reports the catalogue size.
func (r *Registry) Len() int {
	return len(r.tools)
}
