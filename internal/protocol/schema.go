// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/peerchat/peerchat/internal/core"
)

// SchemaID identifies the envelope schema.
const SchemaID = "https://peerchat.dev/schemas/envelope.schema.json"

// envelopeDoc is the reflection source for the top-level envelope shape.
type envelopeDoc struct {
	Type string `json:"type" jsonschema:"enum=chat,enum=request_history,enum=history_chunk,enum=room_info"`
	Data any    `json:"data,omitempty"`
}

var (
	compileOnce sync.Once
	compiled    *jschema.Schema
	compileErr  error
)

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
}

// whenType builds an if/then clause requiring data to match payload when the
// envelope type equals t.
func whenType(r *jsonschema.Reflector, t Type, payload any) *jsonschema.Schema {
	ifProps := jsonschema.NewProperties()
	ifProps.Set("type", &jsonschema.Schema{Const: string(t)})

	thenProps := jsonschema.NewProperties()
	data := r.Reflect(payload)
	data.Version = ""
	data.ID = ""
	thenProps.Set("data", data)

	return &jsonschema.Schema{
		If:   &jsonschema.Schema{Properties: ifProps, Required: []string{"type"}},
		Then: &jsonschema.Schema{Properties: thenProps, Required: []string{"data"}},
	}
}

// GenerateSchema returns the JSON Schema every inbound frame must satisfy.
func GenerateSchema() ([]byte, error) {
	r := reflector()
	schema := r.Reflect(&envelopeDoc{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "PeerChat Envelope"
	schema.Description = "Frame exchanged between peers of a chat room"
	schema.AllOf = []*jsonschema.Schema{
		whenType(r, TypeChat, &core.ChatMessage{}),
		whenType(r, TypeHistoryChunk, &HistoryChunk{}),
		whenType(r, TypeRoomInfo, &RoomInfo{}),
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			compileErr = fmt.Errorf("failed to parse schema JSON: %w", err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, doc); err != nil {
			compileErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(SchemaID)
	})
	return compiled, compileErr
}

// Validate checks one JSON frame against the envelope schema.
func Validate(frame []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return oops.Code(core.CodeProtocol).Wrapf(err, "compile envelope schema")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(frame))
	if err != nil {
		return oops.Code(core.CodeProtocol).Wrapf(err, "invalid JSON")
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code(core.CodeProtocol).Wrapf(err, "schema validation failed")
	}
	return nil
}
