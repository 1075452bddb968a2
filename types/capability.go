package types

// Schema is a minimal JSON-schema shape used to declare capability parameter
// and return types. It is descriptive only; the runtime does not validate
// payloads against it.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Default     any                `json:"default,omitempty"`
}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: properties, Required: required}
}

// StringSchema creates a string schema with a description.
func StringSchema(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

// Capability is a named, independently invocable function an agent exposes.
// A capability is immutable once advertised and uniquely named within an
// agent.
type Capability struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Version     string  `json:"version,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
	Returns     *Schema `json:"returns,omitempty"`
}

// NewCapability creates a capability descriptor with version "1.0.0".
func NewCapability(name, description string) Capability {
	return Capability{Name: name, Description: description, Version: "1.0.0"}
}

// WithParameters sets the parameter schema.
func (c Capability) WithParameters(s *Schema) Capability {
	c.Parameters = s
	return c
}

// WithReturns sets the return schema.
func (c Capability) WithReturns(s *Schema) Capability {
	c.Returns = s
	return c
}
