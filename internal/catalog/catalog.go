// Package catalog holds the registry of regulatory frameworks. A Catalog is
// constructed once and passed to the components that need it.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

const (
	// WildcardRegion matches every region filter
	WildcardRegion = "global"
	// WildcardSector matches every sector filter
	WildcardSector = "all"
)

// Catalog is a concurrency-safe framework registry
type Catalog struct {
	mu         sync.RWMutex
	frameworks map[string]*compliance.Framework
	validate   *validator.Validate
	logger     *zap.Logger
	builtins   bool
}

// Option configures a Catalog
type Option func(*Catalog)

// WithBuiltins seeds the catalog with CSRD, SEC climate and GHG Protocol
func WithBuiltins() Option {
	return func(c *Catalog) { c.builtins = true }
}

// WithLogger sets the catalog logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New creates an empty catalog, optionally seeded with built-in frameworks
func New(opts ...Option) *Catalog {
	c := &Catalog{
		frameworks: make(map[string]*compliance.Framework),
		validate:   validator.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.builtins {
		for _, f := range DefaultFrameworks() {
			if err := c.Register(f); err != nil {
				// built-in definitions are static; failing here is a programming error
				panic(fmt.Sprintf("invalid built-in framework %s: %v", f.ID, err))
			}
		}
	}
	return c
}

// Register validates a framework and stores a copy of it, replacing any
// framework with the same id.
func (c *Catalog) Register(f compliance.Framework) error {
	if err := c.Validate(f); err != nil {
		return err
	}

	c.mu.Lock()
	_, replaced := c.frameworks[f.ID]
	c.frameworks[f.ID] = clone(&f)
	c.mu.Unlock()

	c.logger.Info("Framework registered",
		zap.String("framework_id", f.ID),
		zap.Int("requirements", len(f.Requirements)),
		zap.Bool("replaced", replaced))
	return nil
}

// Validate checks a framework definition without registering it
func (c *Catalog) Validate(f compliance.Framework) error {
	if err := c.validate.Struct(f); err != nil {
		return compliance.ValidationError("register_framework", "framework", f.ID, err.Error())
	}

	seen := make(map[string]bool, len(f.Requirements))
	for _, r := range f.Requirements {
		if seen[r.ID] {
			return compliance.ValidationError("register_framework", "framework", f.ID,
				fmt.Sprintf("duplicate requirement id %q", r.ID))
		}
		seen[r.ID] = true
		if !r.Category.Valid() {
			return compliance.ValidationError("register_framework", "requirement", r.ID,
				fmt.Sprintf("unknown category %q", r.Category))
		}
		if !r.Level.Valid() {
			return compliance.ValidationError("register_framework", "requirement", r.ID,
				fmt.Sprintf("unknown level %q", r.Level))
		}
	}

	deadlines := make(map[string]bool, len(f.Deadlines))
	for _, d := range f.Deadlines {
		if deadlines[d.ID] {
			return compliance.ValidationError("register_framework", "framework", f.ID,
				fmt.Sprintf("duplicate deadline id %q", d.ID))
		}
		deadlines[d.ID] = true
	}
	return nil
}

// Get returns a copy of the framework with the given id
func (c *Catalog) Get(id string) (*compliance.Framework, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.frameworks[id]
	if !ok {
		return nil, compliance.NotFoundError("get_framework", "framework", id)
	}
	return clone(f), nil
}

// All returns copies of every registered framework ordered by id
func (c *Catalog) All() []*compliance.Framework {
	return c.filter(func(*compliance.Framework) bool { return true })
}

// ByRegion returns frameworks applicable in region, including global ones
func (c *Catalog) ByRegion(region string) []*compliance.Framework {
	return c.filter(func(f *compliance.Framework) bool {
		return contains(f.Regions, region) || contains(f.Regions, WildcardRegion)
	})
}

// ByCategory returns frameworks of the given category
func (c *Catalog) ByCategory(category string) []*compliance.Framework {
	return c.filter(func(f *compliance.Framework) bool { return f.Category == category })
}

// BySector returns frameworks applicable to sector, including those for all sectors
func (c *Catalog) BySector(sector string) []*compliance.Framework {
	return c.filter(func(f *compliance.Framework) bool {
		return contains(f.Sectors, sector) || contains(f.Sectors, WildcardSector)
	})
}

// Len returns the number of registered frameworks
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frameworks)
}

func (c *Catalog) filter(keep func(*compliance.Framework) bool) []*compliance.Framework {
	c.mu.RLock()
	out := make([]*compliance.Framework, 0, len(c.frameworks))
	for _, f := range c.frameworks {
		if keep(f) {
			out = append(out, clone(f))
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func clone(f *compliance.Framework) *compliance.Framework {
	out := *f
	out.Regions = cloneStrings(f.Regions)
	out.Sectors = cloneStrings(f.Sectors)
	out.References = cloneStrings(f.References)

	if f.Requirements != nil {
		out.Requirements = make([]compliance.Requirement, len(f.Requirements))
		for i, r := range f.Requirements {
			r.EvidenceTypes = cloneStrings(r.EvidenceTypes)
			r.ValidationCriteria = cloneStrings(r.ValidationCriteria)
			out.Requirements[i] = r
		}
	}

	if f.Deadlines != nil {
		out.Deadlines = make([]compliance.DeadlineConfig, len(f.Deadlines))
		for i, d := range f.Deadlines {
			if d.AbsoluteDate != nil {
				d.AbsoluteDate = d.AbsoluteDate.Ptr()
			}
			out.Deadlines[i] = d
		}
	}
	return &out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
