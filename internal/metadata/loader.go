package metadata

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"permission-gate/internal/filter"
	"permission-gate/internal/logging"
)

type schemaFile struct {
	Collections []json.RawMessage `json:"collections"`
}

// LoadFile reads the collection schema at path and populates the registry.
func LoadFile(path string, reg *Registry, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	collections, err := Parse(data, logger)
	if err != nil {
		return err
	}
	reg.Load(collections)

	logger.Info("loaded collection schema",
		zap.String("path", path),
		zap.Int("collections", len(collections)))
	return nil
}

// Parse decodes a schema document. Collections that fail validation are
// skipped with a warning; a document that is not JSON is an error.
func Parse(data []byte, logger *zap.Logger) ([]*Collection, error) {
	logger = logging.OrNop(logger)
	var doc schemaFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	collections := make([]*Collection, 0, len(doc.Collections))
	for i, raw := range doc.Collections {
		var c Collection
		if err := json.Unmarshal(raw, &c); err != nil {
			logger.Warn("skipping collection (invalid JSON)", zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := validateCollection(&c); err != nil {
			logger.Warn("skipping collection", zap.String("collection", c.Name), zap.Error(err))
			continue
		}
		coerceRecords(&c)
		collections = append(collections, &c)
	}
	return collections, nil
}

func validateCollection(c *Collection) error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if !c.Virtual && !filter.ValidIdentifier(c.TableName()) {
		return fmt.Errorf("invalid table name %q", c.TableName())
	}
	if !filter.ValidIdentifier(c.PrimaryKeyField()) {
		return fmt.Errorf("invalid primary key %q", c.PrimaryKeyField())
	}
	for _, f := range c.Fields {
		if !filter.ValidIdentifier(f.Name) {
			return fmt.Errorf("invalid field name %q", f.Name)
		}
	}
	seen := make(map[string]bool, len(c.Actions))
	for _, a := range c.Actions {
		if a.Name == "" || a.Endpoint == "" {
			return fmt.Errorf("action requires a name and an endpoint")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate action %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

func coerceRecords(c *Collection) {
	if !c.Virtual {
		c.Records = nil
		return
	}
	for _, rec := range c.Records {
		for _, f := range c.Fields {
			if v, ok := rec[f.Name]; ok {
				rec[f.Name] = f.Coerce(v)
			}
		}
	}
}
