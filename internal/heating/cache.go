package heating

import (
	"fmt"
	"sync"
	"time"

	"amr-charts/internal/energy"

	"github.com/rs/zerolog/log"
)

// Cache fits each (meter, as-of date) model once per request. It is safe for concurrent branches.
type Cache struct {
	school  *energy.School
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	once  sync.Once
	model energy.HeatingModel
	err   error
}

// NewCache creates a cache scoped to one school and one request.
func NewCache(school *energy.School) *Cache {
	return &Cache{school: school, entries: make(map[string]*entry)}
}

// Model returns the fitted model, fitting on first use.
func (c *Cache) Model(meter energy.Meter, asOf time.Time) (energy.HeatingModel, error) {
	key := fmt.Sprintf("%s|%s", meter.ID(), asOf.Format(time.DateOnly))

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		start := time.Now()
		m, err := Fit(c.school, meter, asOf)
		if err != nil {
			e.err = err
			return
		}
		e.model = m
		log.Debug().Str("meter", meter.ID()).Str("asOf", asOf.Format(time.DateOnly)).
			Dur("elapsed", time.Since(start)).Msg("Fitted heating model")
	})
	return e.model, e.err
}

// Size returns the number of distinct models requested.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
