package extract

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/jakopako/leadsync/internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/default.yaml
var defaultSchemaYAML []byte

// RegexConfig narrows down a located string to the index-th match of Exp.
// An index of -1 selects the last match.
type RegexConfig struct {
	Exp   string `yaml:"exp,omitempty"`
	Index int    `yaml:"index,omitempty"`
}

// Locator describes one way of finding a field value. If Selector and XPath
// are both empty the value is read from the root node (the item or the
// document). XPath is only evaluated if Selector yields nothing.
type Locator struct {
	Selector     string      `yaml:"selector,omitempty"`
	XPath        string      `yaml:"xpath,omitempty"`
	Attr         string      `yaml:"attr,omitempty"`
	RegexExtract RegexConfig `yaml:"regex_extract,omitempty"`
	// Format is applied to a non-empty value, "{}" is replaced by the value.
	Format string `yaml:"format,omitempty"`
}

// Field is an ordered list of locators. The first one yielding non-empty
// text wins. If none does, DeriveFrom names another field whose value is
// used instead, then Fallback.
type Field struct {
	Locators   []Locator `yaml:"locators,omitempty"`
	DeriveFrom string    `yaml:"derive_from,omitempty"`
	Fallback   string    `yaml:"fallback,omitempty"`
}

// PageSchema describes how to extract a lead from one page type. Listing
// pages set Item, the selector of a single result. Their fields are then
// located relative to each item and items default to ItemType.
type PageSchema struct {
	Item     string           `yaml:"item,omitempty"`
	ItemType types.PageType   `yaml:"item_type,omitempty"`
	Fields   map[string]Field `yaml:"fields"`
}

type PlatformSchema struct {
	Platform types.Platform                `yaml:"platform"`
	Version  string                        `yaml:"version"`
	Pages    map[types.PageType]PageSchema `yaml:"pages"`
}

// Schema holds the extraction rules of all platforms.
type Schema struct {
	Platforms []PlatformSchema `yaml:"platforms"`
}

// DefaultSchema returns the embedded schema.
func DefaultSchema() (*Schema, error) {
	return ParseSchema(defaultSchemaYAML)
}

// ParseSchema parses and checks a yaml schema.
func ParseSchema(b []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchema reads a schema from path. Platforms missing from the file are
// taken from the embedded default.
func LoadSchema(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	s, err := ParseSchema(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def, err := DefaultSchema()
	if err != nil {
		return nil, err
	}
	return MergeSchema(def, s), nil
}

// MergeSchema returns base with every platform defined in override replaced
// by the override's definition.
func MergeSchema(base, override *Schema) *Schema {
	merged := &Schema{}
	for _, ps := range base.Platforms {
		if o := override.platform(ps.Platform); o != nil {
			ps = *o
		}
		merged.Platforms = append(merged.Platforms, ps)
	}
	for _, ps := range override.Platforms {
		if merged.platform(ps.Platform) == nil {
			merged.Platforms = append(merged.Platforms, ps)
		}
	}
	return merged
}

// ExportSchema renders the schema of a single platform as yaml.
func (s *Schema) ExportSchema(p types.Platform) ([]byte, error) {
	ps := s.platform(p)
	if ps == nil {
		return nil, fmt.Errorf("no schema for platform %q", p)
	}
	out, err := yaml.Marshal(Schema{Platforms: []PlatformSchema{*ps}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}

func (s *Schema) platform(p types.Platform) *PlatformSchema {
	for i := range s.Platforms {
		if s.Platforms[i].Platform == p {
			return &s.Platforms[i]
		}
	}
	return nil
}

// page returns the schema of a page type or nil.
func (s *Schema) page(c types.PageClassification) *PageSchema {
	ps := s.platform(c.Platform)
	if ps == nil {
		return nil
	}
	page, ok := ps.Pages[c.PageType]
	if !ok {
		return nil
	}
	return &page
}

func (s *Schema) check() error {
	seen := map[types.Platform]bool{}
	for _, ps := range s.Platforms {
		if types.ParsePlatform(string(ps.Platform)) == types.PlatformUnknown {
			return fmt.Errorf("unknown platform %q in schema", ps.Platform)
		}
		if seen[ps.Platform] {
			return fmt.Errorf("platform %q defined more than once", ps.Platform)
		}
		seen[ps.Platform] = true
		for pt, page := range ps.Pages {
			if _, ok := page.Fields["title"]; !ok {
				return fmt.Errorf("%s/%s: missing title field", ps.Platform, pt)
			}
			for name, f := range page.Fields {
				if f.DeriveFrom != "" {
					if _, ok := page.Fields[f.DeriveFrom]; !ok || f.DeriveFrom == name {
						return fmt.Errorf("%s/%s: field %s derives from invalid field %q", ps.Platform, pt, name, f.DeriveFrom)
					}
				}
			}
		}
	}
	return nil
}
