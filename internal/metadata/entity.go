package metadata

import "strings"

// Collection describes one admin collection: the table its records live in
// and the smart actions exposed on it.
type Collection struct {
	Name       string   `json:"name"`
	Table      string   `json:"table"`
	PrimaryKey string   `json:"primary_key"`
	SoftDelete bool     `json:"soft_delete"`
	Virtual    bool     `json:"virtual"`
	Fields     []Field  `json:"fields"`
	Actions    []Action `json:"actions"`

	// Records backs a virtual collection. Ignored for table collections.
	Records []map[string]any `json:"records,omitempty"`
}

// Action is a smart action declared on a collection.
type Action struct {
	Name       string `json:"name"`
	Endpoint   string `json:"endpoint"`
	HTTPMethod string `json:"http_method"`
}

// TableName returns the backing table, defaulting to the collection name.
func (c *Collection) TableName() string {
	if c.Table != "" {
		return c.Table
	}
	return c.Name
}

// PrimaryKeyField returns the primary key column, defaulting to "id".
func (c *Collection) PrimaryKeyField() string {
	if c.PrimaryKey != "" {
		return c.PrimaryKey
	}
	return "id"
}

// GetField returns a pointer to the field with the given name, or nil.
func (c *Collection) GetField(name string) *Field {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the collection has a field with the given name.
// The primary key always counts as a field.
func (c *Collection) HasField(name string) bool {
	return name == c.PrimaryKeyField() || c.GetField(name) != nil
}

// FieldNames returns all field names.
func (c *Collection) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// GetAction returns the action with the given name, or nil.
func (c *Collection) GetAction(name string) *Action {
	for i := range c.Actions {
		if c.Actions[i].Name == name {
			return &c.Actions[i]
		}
	}
	return nil
}

// MatchesEndpoint reports whether a request to endpoint with method targets a.
// Endpoints are declared with or without a leading slash.
func (a *Action) MatchesEndpoint(endpoint, method string) bool {
	if a.Endpoint != endpoint && "/"+a.Endpoint != endpoint {
		return false
	}
	return a.HTTPMethod == "" || strings.EqualFold(a.HTTPMethod, method)
}
