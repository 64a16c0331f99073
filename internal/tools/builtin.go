// Package tools implements the host's built-in tools (spec §4.7): a small
// fixed set of operations the host answers itself, without routing to any
// backend. Parameter schemas are reflected from plain Go argument structs
// with invopop/jsonschema rather than hand-maintained, so a struct field and
// its wire schema can never drift apart.
package tools

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/mcphost/mcphost/internal/protocol"
)

// Handler executes one built-in tool call.
type Handler func(ctx context.Context, arguments map[string]any) (map[string]any, *protocol.Error)

// Tool is one registered built-in: its wire-facing description alongside the
// handler that serves it.
type Tool struct {
	Name        string
	Description string
	Parameters  []map[string]any
	handle      Handler
}

// Registry holds every built-in tool, keyed by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds the registry of built-in tools described in spec §4.7:
// echo, timestamp, and random_number.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.register("echo", "Returns the given message together with the current time.", echoArgs{}, handleEcho)
	r.register("timestamp", "Returns the current time in RFC 3339 format.", timestampArgs{}, handleTimestamp)
	r.register("random_number", "Returns a random integer in [min, max].", randomNumberArgs{}, handleRandomNumber)
	return r
}

func (r *Registry) register(name, description string, argsShape any, handle Handler) {
	r.tools[name] = Tool{
		Name:        name,
		Description: description,
		Parameters:  parametersFromSchema(argsShape),
		handle:      handle,
	}
}

// Call invokes a built-in tool by name. ok is false when name is not a
// built-in, in which case the caller should fall through to backend routing.
func (r *Registry) Call(ctx context.Context, name string, arguments map[string]any) (result map[string]any, ok bool, callErr *protocol.Error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, false, nil
	}
	result, callErr = t.handle(ctx, arguments)
	return result, true, callErr
}

// List returns every built-in tool sorted by name, so repeated calls (and
// the initialize/list_tools documents built from them) are byte-identical.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// parametersFromSchema reflects shape's JSON Schema properties into the
// host's flat {name,type,required,description} parameter list (spec §6).
func parametersFromSchema(shape any) []map[string]any {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(shape)
	if schema == nil || schema.Properties == nil {
		return nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	params := make([]map[string]any, 0, schema.Properties.Len())
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name, prop := pair.Key, pair.Value
		params = append(params, map[string]any{
			"name":        name,
			"type":        prop.Type,
			"required":    required[name],
			"description": prop.Description,
		})
	}
	return params
}

type echoArgs struct {
	Message string `json:"message" jsonschema:"required,description=The text to echo back"`
}

func handleEcho(_ context.Context, arguments map[string]any) (map[string]any, *protocol.Error) {
	message, ok := arguments["message"].(string)
	if !ok {
		return nil, protocol.InvalidParams("message is required")
	}
	return map[string]any{
		"echo":      message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

type timestampArgs struct{}

func handleTimestamp(_ context.Context, _ map[string]any) (map[string]any, *protocol.Error) {
	return map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)}, nil
}

type randomNumberArgs struct {
	Min int `json:"min" jsonschema:"required,description=Inclusive lower bound"`
	Max int `json:"max" jsonschema:"required,description=Inclusive upper bound"`
}

func handleRandomNumber(_ context.Context, arguments map[string]any) (map[string]any, *protocol.Error) {
	minVal, ok := arguments["min"].(float64)
	if !ok {
		return nil, protocol.InvalidParams("min is required")
	}
	maxVal, ok := arguments["max"].(float64)
	if !ok {
		return nil, protocol.InvalidParams("max is required")
	}
	min, max := int(minVal), int(maxVal)
	if max < min {
		return nil, protocol.InvalidParams("max must be >= min")
	}

	span := int64(max-min) + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return nil, protocol.InternalError(fmt.Sprintf("random_number: %v", err))
	}
	return map[string]any{"number": min + int(n.Int64()), "min": min, "max": max}, nil
}
