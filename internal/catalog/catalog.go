// Package catalog loads the service/action/reaction catalog, checks it
// against the connector registry and seeds it into the store.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/store"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Capability is one action or reaction entry in the catalog file.
type Capability struct {
	Identifier  string        `yaml:"identifier"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Fields      []model.Field `yaml:"fields"`
}

// Service is one service entry with its capabilities.
type Service struct {
	model.Service `yaml:",inline"`
	Actions       []Capability `yaml:"actions"`
	Reactions     []Capability `yaml:"reactions"`
}

// Catalog is the parsed catalog file.
type Catalog struct {
	Services []Service `yaml:"services"`
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read catalog %s", path)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes a catalog document and rejects duplicates.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	seen := map[string]bool{}
	for _, s := range c.Services {
		if s.Name == "" {
			return nil, errors.Wrap(model.ErrValidation, "catalog service without name")
		}
		if seen[s.Name] {
			return nil, errors.Wrapf(model.ErrValidation, "service %q listed twice", s.Name)
		}
		seen[s.Name] = true
		for _, cp := range s.capabilities() {
			id := model.CapabilityID(s.Name, cp.kind, cp.Identifier)
			if cp.Identifier == "" {
				return nil, errors.Wrapf(model.ErrValidation, "%s %s without identifier", s.Name, cp.kind)
			}
			if seen[id] {
				return nil, errors.Wrapf(model.ErrValidation, "capability %q listed twice", id)
			}
			seen[id] = true
		}
	}
	return &c, nil
}

type kinded struct {
	Capability
	kind model.CapabilityKind
}

func (s Service) capabilities() []kinded {
	out := make([]kinded, 0, len(s.Actions)+len(s.Reactions))
	for _, a := range s.Actions {
		out = append(out, kinded{a, model.KindAction})
	}
	for _, r := range s.Reactions {
		out = append(out, kinded{r, model.KindReaction})
	}
	return out
}

// Validate checks that every catalog entry is served by a registered
// connector declaring the identifier. All problems are reported together.
func (c *Catalog) Validate(reg *connector.Registry) error {
	var problems []string
	for _, s := range c.Services {
		conn, err := reg.Resolve(s.Name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("service %q has no connector", s.Name))
			continue
		}
		d := conn.Describe()
		for _, cp := range s.capabilities() {
			ok := d.SupportsTrigger(cp.Identifier)
			if cp.kind == model.KindReaction {
				ok = d.SupportsEffect(cp.Identifier)
			}
			if !ok {
				problems = append(problems, fmt.Sprintf("%s %s %q is not declared by the connector", s.Name, cp.kind, cp.Identifier))
			}
		}
	}
	if len(problems) > 0 {
		return &connector.ConfigError{Service: "catalog", Reason: strings.Join(problems, "; ")}
	}
	return nil
}

// Seed upserts every service and capability into the store.
func (c *Catalog) Seed(ctx context.Context, st store.Catalog) (services, capabilities int, err error) {
	for _, s := range c.Services {
		svc := s.Service
		if err := st.PutService(ctx, &svc); err != nil {
			return services, capabilities, errors.Wrapf(err, "seed service %s", s.Name)
		}
		services++
		for _, cp := range s.capabilities() {
			m := &model.Capability{
				ID:          model.CapabilityID(s.Name, cp.kind, cp.Identifier),
				Service:     s.Name,
				Kind:        cp.kind,
				Identifier:  cp.Identifier,
				Name:        cp.Name,
				Description: cp.Description,
				Fields:      cp.Fields,
			}
			if m.Name == "" {
				m.Name = cp.Identifier
			}
			if err := st.PutCapability(ctx, m); err != nil {
				return services, capabilities, errors.Wrapf(err, "seed capability %s", m.ID)
			}
			capabilities++
		}
	}
	return services, capabilities, nil
}
