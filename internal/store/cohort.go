package store

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
	"gopkg.in/yaml.v3"
)

// CohortStore is a thread-safe in-memory catalog of tradable cohorts,
// keyed by cohort_id.
type CohortStore struct {
	mu      sync.RWMutex
	cohorts map[string]*domain.Cohort
}

// NewCohortStore creates an empty CohortStore.
func NewCohortStore() *CohortStore {
	return &CohortStore{
		cohorts: make(map[string]*domain.Cohort),
	}
}

// Put adds or replaces a cohort.
func (s *CohortStore) Put(c *domain.Cohort) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cohorts[c.CohortID] = c
}

// Get retrieves a cohort by ID. It returns domain.ErrCohortNotFound if
// the cohort does not exist.
func (s *CohortStore) Get(id string) (*domain.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cohorts[id]
	if !ok {
		return nil, domain.ErrCohortNotFound
	}
	cp := *c
	return &cp, nil
}

// Exists returns true if a cohort with the given ID exists.
func (s *CohortStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.cohorts[id]
	return ok
}

// List returns every cohort sorted by ID.
func (s *CohortStore) List() []*domain.Cohort {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Cohort, 0, len(s.cohorts))
	for _, c := range s.cohorts {
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CohortID < result[j].CohortID })
	return result
}

// CohortFile is the YAML layout of a cohort catalog.
type CohortFile struct {
	Cohorts []CohortEntry `yaml:"cohorts"`
}

// CohortEntry is one cohort in the catalog file. Supply is the number of
// tokens minted to the treasury when the paper gateway is in use.
type CohortEntry struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Sport        string `yaml:"sport"`
	TokenAddress string `yaml:"token_address"`
	Supply       int64  `yaml:"supply"`
}

// LoadCohortFile parses a YAML cohort catalog and validates it.
func LoadCohortFile(path string) (*CohortFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f CohortFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cohort file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Cohorts))
	for i, c := range f.Cohorts {
		if c.ID == "" {
			return nil, fmt.Errorf("cohort file %s: entry %d has no id", path, i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("cohort file %s: duplicate id %q", path, c.ID)
		}
		if c.Supply < 0 {
			return nil, fmt.Errorf("cohort file %s: cohort %q has negative supply", path, c.ID)
		}
		seen[c.ID] = true
	}
	return &f, nil
}

// Load registers every cohort in f. Cohorts without a token address use
// their ID as the token identifier.
func (s *CohortStore) Load(f *CohortFile) {
	now := time.Now().UTC()
	for _, e := range f.Cohorts {
		token := e.TokenAddress
		if token == "" {
			token = e.ID
		}
		s.Put(&domain.Cohort{
			CohortID:     e.ID,
			Name:         e.Name,
			Sport:        e.Sport,
			TokenAddress: token,
			CreatedAt:    now,
		})
	}
}
