package chartconfig

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"amr-charts/internal/energy"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultMaxDepth bounds inheritance chains.
const DefaultMaxDepth = 20

//go:embed charts.yaml
var builtinCharts []byte

// Registry holds named chart definitions before inheritance is flattened.
// It is built once and read concurrently afterwards.
type Registry struct {
	raw      map[string]map[string]any
	maxDepth int
}

// NewRegistry creates an empty registry. A non-positive depth uses DefaultMaxDepth.
func NewRegistry(maxDepth int) *Registry {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Registry{raw: make(map[string]map[string]any), maxDepth: maxDepth}
}

// LoadDefault returns the built-in registry plus any extra definition files, validated.
func LoadDefault(maxDepth int, extraFiles ...string) (*Registry, error) {
	r := NewRegistry(maxDepth)
	if err := r.Load(bytes.NewReader(builtinCharts)); err != nil {
		return nil, fmt.Errorf("built-in charts: %w", err)
	}
	for _, path := range extraFiles {
		if path == "" {
			continue
		}
		if err := r.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadFile adds the definitions in a YAML file; later definitions replace earlier ones with the same name.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open chart registry %s: %w", path, err)
	}
	defer f.Close()
	if err := r.Load(f); err != nil {
		return fmt.Errorf("chart registry %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("charts", len(r.raw)).Msg("Loaded chart registry")
	return nil
}

// Load reads a YAML document mapping chart names to definitions.
func (r *Registry) Load(rd io.Reader) error {
	var doc map[string]map[string]any
	if err := yaml.NewDecoder(rd).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return &energy.InvalidConfigError{Field: "registry", Reason: err.Error()}
	}
	for name, def := range doc {
		if def == nil {
			def = map[string]any{}
		}
		r.raw[name] = def
	}
	return nil
}

// Add registers one definition in code.
func (r *Registry) Add(name string, def map[string]any) {
	r.raw[name] = cloneMap(def)
}

// Has reports whether a chart is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.raw[name]
	return ok
}

// Names lists the registered charts alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.raw))
	for n := range r.raw {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate flattens every entry so broken chains fail at load rather than per request.
func (r *Registry) Validate() error {
	var errs *multierror.Error
	for _, name := range r.Names() {
		if _, err := r.Resolve(name, nil); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("chart %s: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}
