package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/docindex-go/internal/domain/index"
	"gopkg.in/yaml.v3"
)

var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest declares, per entity, the indexes and views its repository needs.
type Manifest struct {
	// TypeField names the document field holding the entity name. A
	// secondary index declared without a filter is restricted on it.
	TypeField string   `yaml:"type_field,omitempty"`
	Entities  []Entity `yaml:"entities"`

	dialect Dialect
}

type Entity struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	// Required entities block startup when any of their structures fail.
	Required  bool       `yaml:"required"`
	Primary   bool       `yaml:"primary"`
	Secondary *Secondary `yaml:"secondary,omitempty"`
	Views     []View     `yaml:"views,omitempty"`
}

type Secondary struct {
	Name string `yaml:"name"`
	// Filter defaults to matching the entity name on the type field.
	Filter string `yaml:"filter,omitempty"`
	// EnsurePrimary defaults to true when omitted.
	EnsurePrimary *bool `yaml:"ensure_primary,omitempty"`
}

type View struct {
	DesignDocument string `yaml:"design_document"`
	ViewName       string `yaml:"view_name"`
	Map            string `yaml:"map"`
	Reduce         string `yaml:"reduce,omitempty"`
}

// Parse decodes a manifest, rejecting unknown fields, and validates it.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks entity level rules. Field level rules are left to
// index.ValidateAll so they are reported the same way for every supplier.
func (m *Manifest) Validate() error {
	if m.TypeField != "" && !fieldPath.MatchString(m.TypeField) {
		return fmt.Errorf("%w: type field %q is not a field path", ErrInvalidManifest, m.TypeField)
	}

	seen := make(map[string]bool, len(m.Entities))
	for i, e := range m.Entities {
		if e.Name == "" {
			return fmt.Errorf("%w: entity %d has no name", ErrInvalidManifest, i)
		}
		if e.Namespace == "" {
			return fmt.Errorf("%w: entity %s has no namespace", ErrInvalidManifest, e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: entity %s declared twice", ErrInvalidManifest, e.Name)
		}
		seen[e.Name] = true
	}
	return index.ValidateAll(m.Specs())
}

// SetDialect selects the syntax of derived secondary filters. SQL is used
// until it is called.
func (m *Manifest) SetDialect(d Dialect) {
	m.dialect = d
}

func (m *Manifest) typeField() string {
	if m.TypeField == "" {
		return DefaultTypeField
	}
	return m.TypeField
}

func (m *Manifest) entitySpecs(e Entity) []index.Spec {
	var specs []index.Spec
	if e.Primary {
		specs = append(specs, index.Primary(e.Namespace))
	}
	if s := e.Secondary; s != nil {
		filter := s.Filter
		if filter == "" {
			filter = TypeFilter(m.dialect, m.typeField(), e.Name)
		}
		spec := index.Secondary(e.Namespace, s.Name, filter)
		if s.EnsurePrimary != nil {
			spec = spec.WithEnsurePrimary(*s.EnsurePrimary)
		}
		specs = append(specs, spec)
	}
	for _, v := range e.Views {
		specs = append(specs, index.View(e.Namespace, v.DesignDocument, v.ViewName, index.ViewDefinition{
			Map:    v.Map,
			Reduce: v.Reduce,
		}))
	}
	return specs
}

// Specs lists every declared structure: per entity the primary index, the
// secondary index, then the views, in manifest order.
func (m *Manifest) Specs() []index.Spec {
	var specs []index.Spec
	for _, e := range m.Entities {
		specs = append(specs, m.entitySpecs(e)...)
	}
	return specs
}

// Required lists the keys of structures declared by required entities. A
// required secondary index also makes its primary index required.
func (m *Manifest) Required() []string {
	var keys []string
	seen := make(map[string]bool)
	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	for _, e := range m.Entities {
		if !e.Required {
			continue
		}
		for _, s := range m.entitySpecs(e) {
			add(s.Key())
			if s.Kind == index.KindSecondary && s.EnsurePrimary {
				add(index.Primary(s.Namespace).Key())
			}
		}
	}
	return keys
}
