package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lernia/lernia/pkg/models"
)

const interactionEventSchema = `{
	"type": "object",
	"required": ["user_id", "resource_id", "kind"],
	"properties": {
		"user_id": {"type": "string", "format": "uuid"},
		"resource_id": {"type": "string", "format": "uuid"},
		"kind": {"type": "string", "enum": ["view", "save", "rate", "complete"]},
		"rating": {"type": "integer", "minimum": 1, "maximum": 5},
		"created_at": {"type": "string", "format": "date-time"}
	},
	"additionalProperties": false
}`

const resourceUpdateSchema = `{
	"type": "object",
	"required": ["resource_id", "action"],
	"properties": {
		"resource_id": {"type": "string", "format": "uuid"},
		"action": {"type": "string", "enum": ["created", "updated", "deleted"]},
		"timestamp": {"type": "string", "format": "date-time"}
	},
	"additionalProperties": false
}`

// EventValidator checks event payloads against their JSON schemas before
// they reach the engine. Schemas compile once at startup.
type EventValidator struct {
	interaction    *gojsonschema.Schema
	resourceUpdate *gojsonschema.Schema
}

func NewEventValidator() (*EventValidator, error) {
	interaction, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(interactionEventSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile interaction event schema: %w", err)
	}
	resourceUpdate, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(resourceUpdateSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile resource update schema: %w", err)
	}
	return &EventValidator{interaction: interaction, resourceUpdate: resourceUpdate}, nil
}

func (v *EventValidator) ValidateInteractionEvent(payload []byte) error {
	return validate(v.interaction, payload)
}

func (v *EventValidator) ValidateResourceUpdate(payload []byte) error {
	return validate(v.resourceUpdate, payload)
}

func validate(schema *gojsonschema.Schema, payload []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: malformed payload: %v", models.ErrInvalidInput, err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
