// Package memory keeps the crawl model in process memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/tradefair-crawler/internal/store"
)

// Store is an in-memory store.Repository with the same truncation and
// uniqueness rules as the Postgres schema.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	dataSources map[string]int64
	countries   map[string]int64
	events      map[string]store.Event
	companies   map[int64][]store.Company
}

var _ store.Repository = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		dataSources: make(map[string]int64),
		countries:   make(map[string]int64),
		events:      make(map[string]store.Event),
		companies:   make(map[int64][]store.Company),
	}
}

func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

// EnsureDataSource returns the id of the named data source, creating it if absent.
func (s *Store) EnsureDataSource(_ context.Context, name, _ string) (int64, error) {
	name = store.Truncate(name, store.MaxDataSourceName)
	if name == "" {
		return 0, fmt.Errorf("data source name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.dataSources[name]; ok {
		return id, nil
	}
	id := s.newID()
	s.dataSources[name] = id
	return id, nil
}

// EnsureEvent returns the id of the event named e.Name, creating it if absent.
func (s *Store) EnsureEvent(_ context.Context, e store.Event) (int64, error) {
	e = e.Normalized()
	if e.Name == "" {
		return 0, fmt.Errorf("event name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[e.Name]; ok {
		return existing.ID, nil
	}
	e.ID = s.newID()
	s.events[e.Name] = e
	return e.ID, nil
}

// EnsureCountry returns the id of the named country, creating it if absent.
func (s *Store) EnsureCountry(_ context.Context, name string) (int64, error) {
	name = store.Truncate(name, store.MaxCountryName)
	if name == "" {
		return 0, fmt.Errorf("country name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.countries[name]; ok {
		return id, nil
	}
	id := s.newID()
	s.countries[name] = id
	return id, nil
}

// CountCompanies returns how many companies are stored for the event.
func (s *Store) CountCompanies(_ context.Context, eventID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.companies[eventID]), nil
}

// CompanyNames returns the stored company names of the event.
func (s *Store) CompanyNames(_ context.Context, eventID int64) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]struct{}, len(s.companies[eventID]))
	for _, c := range s.companies[eventID] {
		names[c.Name] = struct{}{}
	}
	return names, nil
}

// InsertCompany stores c or returns store.ErrDuplicate.
func (s *Store) InsertCompany(_ context.Context, c store.Company) error {
	c = c.Normalized()
	if c.Name == "" {
		return fmt.Errorf("company name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.companies[c.EventID] {
		if existing.Name == c.Name {
			return fmt.Errorf("insert company %q: %w", c.Name, store.ErrDuplicate)
		}
	}
	c.ID = s.newID()
	s.companies[c.EventID] = append(s.companies[c.EventID], c)
	return nil
}

// Companies returns a copy of the companies stored for the event.
func (s *Store) Companies(eventID int64) []store.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Company(nil), s.companies[eventID]...)
}

// Events returns a copy of every stored event.
func (s *Store) Events() []store.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	return out
}
