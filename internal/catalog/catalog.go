// File: internal/catalog/catalog.go
package catalog

import (
	"fmt"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Action is one declarative unit of work inside a step's action list.
// An action carrying only Message is a pure notification and never reaches
// the browser. Kind, Selector, Value and TimeoutMs are opaque to the run
// controller and interpreted by the action executor.
type Action struct {
	Message    string `json:"message,omitempty"`
	Kind       string `json:"kind,omitempty"`
	URL        string `json:"url,omitempty"`
	Selector   string `json:"selector,omitempty"`
	Value      string `json:"value,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
	SkipToNext bool   `json:"skip_to_next,omitempty"`
}

// IsNotification reports whether the action is a message-only status update.
func (a Action) IsNotification() bool {
	return a.Message != "" && a.Kind == ""
}

// URLBuilder is a fully custom start-URL constructor. Builders own their
// encoding; the template substitution passes are skipped for them.
type URLBuilder func(article, params map[string]string) string

// Provider is an account/service-level configuration overlay. Its action
// lists, when present for a phase, take precedence over the source's.
type Provider struct {
	ID            string                       `json:"-"`
	Name          string                       `json:"name"`
	DefaultSource string                       `json:"default_source,omitempty"`
	BibName       string                       `json:"bib_name,omitempty"`
	Start         string                       `json:"start,omitempty"`
	StartFunc     URLBuilder                   `json:"-"`
	Params        map[string]map[string]string `json:"params,omitempty"`
	Login         [][]Action                   `json:"login,omitempty"`
	Search        [][]Action                   `json:"search,omitempty"`
}

// Source is a target-site configuration: selectors, default parameters and
// the per-phase action-list sequences.
type Source struct {
	ID            string            `json:"-"`
	Name          string            `json:"name"`
	DefaultParams map[string]string `json:"default_params,omitempty"`
	Start         string            `json:"start,omitempty"`
	StartFunc     URLBuilder        `json:"-"`
	LoggedIn      string            `json:"logged_in,omitempty"`
	Login         [][]Action        `json:"login,omitempty"`
	Search        [][]Action        `json:"search,omitempty"`
}

// Catalog resolves provider and source identifiers to their configuration
// records. Records are read-only once loaded.
type Catalog struct {
	providers map[string]Provider
	sources   map[string]Source
}

// document is the on-disk / embedded JSON shape.
type document struct {
	Providers map[string]Provider `json:"providers"`
	Sources   map[string]Source   `json:"sources"`
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		providers: make(map[string]Provider),
		sources:   make(map[string]Source),
	}
}

// Load builds a catalog from the embedded defaults, overlaid by the optional
// catalog file at path. File entries replace embedded entries with the same id.
func Load(path string) (*Catalog, error) {
	c := New()
	if err := c.mergeJSON(defaultCatalog); err != nil {
		return nil, fmt.Errorf("embedded catalog is malformed: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file %q: %w", path, err)
		}
		if err := c.mergeJSON(data); err != nil {
			return nil, fmt.Errorf("failed to parse catalog file %q: %w", path, err)
		}
	}
	return c, nil
}

func (c *Catalog) mergeJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	for id, p := range doc.Providers {
		p.ID = id
		c.providers[id] = p
	}
	for id, s := range doc.Sources {
		s.ID = id
		c.sources[id] = s
	}
	return nil
}

// AddProvider registers or replaces a provider record. Used for builtin
// providers whose start URLs are Go functions.
func (c *Catalog) AddProvider(id string, p Provider) {
	p.ID = id
	c.providers[id] = p
}

// AddSource registers or replaces a source record.
func (c *Catalog) AddSource(id string, s Source) {
	s.ID = id
	c.sources[id] = s
}

// Provider resolves a provider id.
func (c *Catalog) Provider(id string) (Provider, error) {
	p, ok := c.providers[id]
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider %q", id)
	}
	return p, nil
}

// Source resolves a source id.
func (c *Catalog) Source(id string) (Source, error) {
	s, ok := c.sources[id]
	if !ok {
		return Source{}, fmt.Errorf("unknown source %q", id)
	}
	return s, nil
}

// ProviderIDs returns the known provider ids in sorted order.
func (c *Catalog) ProviderIDs() []string {
	ids := make([]string, 0, len(c.providers))
	for id := range c.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourceIDs returns the known source ids in sorted order.
func (c *Catalog) SourceIDs() []string {
	ids := make([]string, 0, len(c.sources))
	for id := range c.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
