package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/store"
)

// FrameworksCollection is the store collection holding framework definitions
const FrameworksCollection = "complianceFrameworks"

type frameworkFile struct {
	Frameworks []compliance.Framework `yaml:"frameworks"`
}

// LoadFile registers every framework defined in a YAML file
func (c *Catalog) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read frameworks file: %w", err)
	}
	n, err := c.Load(bytes.NewReader(data))
	if err != nil {
		return n, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return n, nil
}

// Load registers frameworks from a YAML document of the form
// "frameworks: [...]". Definitions are validated before any is registered.
func (c *Catalog) Load(r io.Reader) (int, error) {
	var file frameworkFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to parse frameworks: %w", err)
	}

	for _, f := range file.Frameworks {
		if err := c.Validate(f); err != nil {
			return 0, err
		}
	}
	for _, f := range file.Frameworks {
		if err := c.Register(f); err != nil {
			return 0, err
		}
	}
	return len(file.Frameworks), nil
}

// Persist writes every registered framework to the store, replacing stored copies
func (c *Catalog) Persist(ctx context.Context, s store.Store) error {
	for _, f := range c.All() {
		_, err := s.Create(ctx, FrameworksCollection, f.ID, f)
		if errors.Is(err, store.ErrAlreadyExists) {
			if err = s.Delete(ctx, FrameworksCollection, f.ID); err == nil {
				_, err = s.Create(ctx, FrameworksCollection, f.ID, f)
			}
		}
		if err != nil {
			return compliance.StoreError("persist_framework", "framework", f.ID, err)
		}
	}
	c.logger.Info("Frameworks persisted", zap.Int("count", c.Len()))
	return nil
}

// LoadStored registers every framework found in the store
func (c *Catalog) LoadStored(ctx context.Context, s store.Store) (int, error) {
	docs, err := s.Query(ctx, FrameworksCollection, store.Query{})
	if err != nil {
		return 0, compliance.StoreError("load_frameworks", "framework", "", err)
	}
	for _, doc := range docs {
		var f compliance.Framework
		if err := doc.Decode(&f); err != nil {
			return 0, compliance.ValidationError("load_frameworks", "framework", doc.ID, err.Error())
		}
		if err := c.Register(f); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}
