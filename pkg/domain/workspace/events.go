// Package workspace is the illustrative aggregate built on the event
// store: a pure Apply fold plus Decide functions, composed into
// load-decide-append commands with optimistic concurrency as the only
// isolation mechanism.
package workspace

import (
	"github.com/Mindburn-Labs/chronicle/pkg/schema"
)

// StreamType is the entity kind recorded on workspace streams.
const StreamType = "workspace"

// Event types emitted by this aggregate.
const (
	CreatedType  = "workspace.created"
	RenamedType  = "workspace.renamed"
	ArchivedType = "workspace.archived"
)

// CreatedPayload is the payload of workspace.created v1.
type CreatedPayload struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	CreatedBy   string `json:"createdBy"`
}

// RenamedPayload is the payload of workspace.renamed v1.
type RenamedPayload struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
}

// ArchivedPayload is the payload of workspace.archived v1.
type ArchivedPayload struct {
	WorkspaceID string `json:"workspaceId"`
}

const createdSchema = `{
	"type": "object",
	"properties": {
		"workspaceId": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"createdBy": {"type": "string", "minLength": 1}
	},
	"required": ["workspaceId", "name", "createdBy"],
	"additionalProperties": false
}`

const renamedSchema = `{
	"type": "object",
	"properties": {
		"workspaceId": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1}
	},
	"required": ["workspaceId", "name"],
	"additionalProperties": false
}`

const archivedSchema = `{
	"type": "object",
	"properties": {
		"workspaceId": {"type": "string", "minLength": 1}
	},
	"required": ["workspaceId"],
	"additionalProperties": false
}`

// Definitions returns the schema definitions for every workspace event.
func Definitions() []schema.Definition {
	return []schema.Definition{
		{EventType: CreatedType, TypeVersion: 1, Schema: createdSchema},
		{EventType: RenamedType, TypeVersion: 1, Schema: renamedSchema},
		{EventType: ArchivedType, TypeVersion: 1, Schema: archivedSchema},
	}
}

// Registry builds the schema registry covering workspace events.
func Registry() (*schema.Registry, error) {
	return schema.NewRegistry(Definitions()...)
}
