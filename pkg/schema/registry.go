// Package schema maps (event type, type version) pairs to compiled JSON
// Schemas and validates event payloads against them.
//
// Absence of a schema is a forward-compatibility signal, not an error:
// producers may emit new event types or versions before consumers register
// validators for them, and such payloads pass through unvalidated.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError reports a payload that failed its registered schema.
// It is an expected outcome, returned as a value rather than panicked.
type ValidationError struct {
	EventType   string
	TypeVersion int
	Message     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event payload invalid for %s v%d: %s", e.EventType, e.TypeVersion, e.Message)
}

// Definition declares one schema for registration.
type Definition struct {
	EventType   string
	TypeVersion int
	Schema      string // JSON Schema document (Draft 2020-12)
}

type schemaKey struct {
	eventType   string
	typeVersion int
}

// Registry is an immutable lookup table built once at composition time.
// It is safe for concurrent use and never mutated after construction.
type Registry struct {
	schemas map[schemaKey]*jsonschema.Schema
}

// NewRegistry compiles every definition and returns the registry.
// Registration happens only here; there is no runtime mutation.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{schemas: make(map[schemaKey]*jsonschema.Schema, len(defs))}
	for _, def := range defs {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://chronicle.schemas.local/%s/v%d.schema.json", def.EventType, def.TypeVersion)
		if err := c.AddResource(url, strings.NewReader(def.Schema)); err != nil {
			return nil, fmt.Errorf("schema load failed for %s v%d: %w", def.EventType, def.TypeVersion, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema compile failed for %s v%d: %w", def.EventType, def.TypeVersion, err)
		}
		r.schemas[schemaKey{def.EventType, def.TypeVersion}] = compiled
	}
	return r, nil
}

// Get returns the compiled schema for the pair, or nil when none is
// registered.
func (r *Registry) Get(eventType string, typeVersion int) *jsonschema.Schema {
	return r.schemas[schemaKey{eventType, typeVersion}]
}

// Validate checks payload against the registered schema for the pair.
// When no schema is registered the payload is returned unchanged. The
// function is pure: no side effects, identical inputs give identical
// results.
func (r *Registry) Validate(eventType string, typeVersion int, payload json.RawMessage) (json.RawMessage, *ValidationError) {
	compiled := r.Get(eventType, typeVersion)
	if compiled == nil {
		return payload, nil
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, &ValidationError{
			EventType:   eventType,
			TypeVersion: typeVersion,
			Message:     "payload is not valid JSON: " + err.Error(),
		}
	}
	if err := compiled.Validate(value); err != nil {
		return nil, &ValidationError{
			EventType:   eventType,
			TypeVersion: typeVersion,
			Message:     err.Error(),
		}
	}
	return payload, nil
}
