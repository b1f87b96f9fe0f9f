package index

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSpecification = errors.New("invalid index specification")
	ErrAlreadyExists        = errors.New("index already exists")
	ErrTimeout              = errors.New("store call timed out")
	ErrUnavailable          = errors.New("store temporarily unavailable")
	ErrCircuitOpen          = errors.New("store circuit is open")
	ErrUnsupported          = errors.New("operation not supported by store")
)

// PrimaryName is the name given to a primary index when none is declared.
const PrimaryName = "#primary"

type Kind string

const (
	KindPrimary   Kind = "primary"
	KindSecondary Kind = "secondary"
	KindView      Kind = "view"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPrimary, KindSecondary, KindView:
		return true
	default:
		return false
	}
}

// ViewDefinition holds the map/reduce bodies of a view. Their language is
// whatever the target store understands.
type ViewDefinition struct {
	Map    string `json:"map" yaml:"map"`
	Reduce string `json:"reduce,omitempty" yaml:"reduce,omitempty"`
}

// Spec declares one structure that must exist in a namespace. Specs are
// values: copies handed to the provisioner cannot be changed by it.
type Spec struct {
	Kind           Kind           `json:"kind"`
	Name           string         `json:"name,omitempty"`
	Namespace      string         `json:"namespace"`
	Filter         string         `json:"filter,omitempty"`
	DesignDocument string         `json:"designDocument,omitempty"`
	ViewName       string         `json:"viewName,omitempty"`
	Definition     ViewDefinition `json:"definition,omitempty"`
	EnsurePrimary  bool           `json:"ensurePrimary,omitempty"`
}

// Primary declares the primary index of a namespace.
func Primary(namespace string) Spec {
	return Spec{Kind: KindPrimary, Name: PrimaryName, Namespace: namespace}
}

// Secondary declares a filtered index. A primary index is required
// alongside it unless WithEnsurePrimary(false) is applied.
func Secondary(namespace, name, filter string) Spec {
	return Spec{
		Kind:          KindSecondary,
		Name:          name,
		Namespace:     namespace,
		Filter:        filter,
		EnsurePrimary: true,
	}
}

// View declares a map/reduce view grouped under a design document.
func View(namespace, designDocument, viewName string, def ViewDefinition) Spec {
	return Spec{
		Kind:           KindView,
		Namespace:      namespace,
		DesignDocument: designDocument,
		ViewName:       viewName,
		Definition:     def,
	}
}

// WithEnsurePrimary returns a copy of s with EnsurePrimary set to v.
func (s Spec) WithEnsurePrimary(v bool) Spec {
	s.EnsurePrimary = v
	return s
}

// IndexName returns the name used for existence checks of index kinds.
func (s Spec) IndexName() string {
	if s.Kind == KindPrimary && s.Name == "" {
		return PrimaryName
	}
	return s.Name
}

// Key identifies the structure within the whole store.
func (s Spec) Key() string {
	switch s.Kind {
	case KindView:
		return strings.Join([]string{s.Namespace, string(s.Kind), s.DesignDocument, s.ViewName}, "/")
	default:
		return strings.Join([]string{s.Namespace, string(s.Kind), s.IndexName()}, "/")
	}
}

func (s Spec) String() string {
	return s.Key()
}

// Validate checks that the fields populated match the kind.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Namespace) == "" {
		return fmt.Errorf("%w: empty namespace for %s index %q", ErrInvalidSpecification, s.Kind, s.Name)
	}

	switch s.Kind {
	case KindPrimary:
		if s.Filter != "" || s.DesignDocument != "" || s.ViewName != "" {
			return fmt.Errorf("%w: primary index %s carries filter or view fields", ErrInvalidSpecification, s.Key())
		}
		// Stores create the primary index under their own fixed name.
		if s.Name != "" && s.Name != PrimaryName {
			return fmt.Errorf("%w: primary index in %s cannot be named %q", ErrInvalidSpecification, s.Namespace, s.Name)
		}
	case KindSecondary:
		if s.Name == "" {
			return fmt.Errorf("%w: secondary index in %s has no name", ErrInvalidSpecification, s.Namespace)
		}
		if s.Name == PrimaryName {
			return fmt.Errorf("%w: secondary index cannot be named %s", ErrInvalidSpecification, PrimaryName)
		}
		if strings.TrimSpace(s.Filter) == "" {
			return fmt.Errorf("%w: secondary index %s has no filter", ErrInvalidSpecification, s.Key())
		}
		if s.DesignDocument != "" || s.ViewName != "" {
			return fmt.Errorf("%w: secondary index %s carries view fields", ErrInvalidSpecification, s.Key())
		}
	case KindView:
		if s.DesignDocument == "" || s.ViewName == "" {
			return fmt.Errorf("%w: view in %s needs design document and view name", ErrInvalidSpecification, s.Namespace)
		}
		if s.Filter != "" {
			return fmt.Errorf("%w: view %s carries a filter", ErrInvalidSpecification, s.Key())
		}
		if s.EnsurePrimary {
			return fmt.Errorf("%w: ensurePrimary is only valid on secondary indexes", ErrInvalidSpecification)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpecification, s.Kind)
	}

	return nil
}

// ValidateAll returns the first validation error among specs, annotated
// with its position.
func ValidateAll(specs []Spec) error {
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("spec %d: %w", i, err)
		}
	}
	return nil
}
