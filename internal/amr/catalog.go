package amr

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"amr-charts/internal/energy"

	"github.com/rs/zerolog/log"
)

// UnknownSchoolError is returned for a school id with no descriptor in the data folder.
type UnknownSchoolError struct {
	ID string
}

func (e *UnknownSchoolError) Error() string {
	return fmt.Sprintf("unknown school %q", e.ID)
}

func (e *UnknownSchoolError) Unwrap() error { return energy.ErrConfig }

// Catalog loads schools from a data folder on first use and keeps them for later requests.
type Catalog struct {
	dir   string
	store *Store

	mu      sync.Mutex
	schools map[string]*energy.School
}

// NewCatalog creates a catalog over dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir, store: NewStore(), schools: make(map[string]*energy.School)}
}

// Dir returns the data folder.
func (c *Catalog) Dir() string {
	return c.dir
}

// IDs lists the schools available in the data folder.
func (c *Catalog) IDs() ([]string, error) {
	return ListSchools(c.dir)
}

// School returns a loaded school.
func (c *Catalog) School(id string) (*energy.School, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.schools[id]; ok {
		return s, nil
	}
	s, err := c.store.LoadSchool(c.dir, id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &UnknownSchoolError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	log.Debug().Str("school", id).Str("name", s.Name).Msg("School loaded")
	c.schools[id] = s
	return s, nil
}

// Schools loads every id in order.
func (c *Catalog) Schools(ids []string) ([]*energy.School, error) {
	out := make([]*energy.School, 0, len(ids))
	for _, id := range ids {
		s, err := c.School(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
