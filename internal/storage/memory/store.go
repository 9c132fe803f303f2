// Package memory provides in-process stores for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/trendscout/crawler/internal/crawl"
)

// Store implements crawl.ProductStore with maps.
type Store struct {
	mu       sync.Mutex
	products map[string]crawl.Product
	jobs     map[string]crawl.Job
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]crawl.Product),
		jobs:     make(map[string]crawl.Job),
	}
}

// UpsertProducts writes products keyed by source id.
func (s *Store) UpsertProducts(_ context.Context, products []crawl.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := 0
	for _, p := range products {
		if p.SourceID == "" {
			continue
		}
		s.products[p.SourceID] = p
		saved++
	}
	return saved, nil
}

// UpdateJobStatus records the job's latest state.
func (s *Store) UpdateJobStatus(_ context.Context, job crawl.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// ProductCount returns the number of distinct stored products.
func (s *Store) ProductCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// Products returns a copy of every stored product.
func (s *Store) Products() []crawl.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawl.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out
}

// Product returns the stored product for a source id.
func (s *Store) Product(sourceID string) (crawl.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[sourceID]
	return p, ok
}

// Job returns the recorded state for a job id.
func (s *Store) Job(id string) (crawl.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}
