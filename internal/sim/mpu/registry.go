package mpu

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"microbots.ai/internal/sim/simerr"
)

// SpeciesID is the explicit species tag. Two agents are the same species iff
// their tags are equal.
type SpeciesID string

// Species describes a registered behavior variant.
type Species struct {
	ID    SpeciesID
	Name  string
	Color string // #rrggbb, for observers
	New   func() (MPU, error)
}

func (s Species) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.ID)
}

// Instantiate builds a fresh default instance. Constructor errors, panics and nil
// results all surface as *simerr.SpeciesInstantiationError.
func (s Species) Instantiate() (m MPU, err error) {
	if s.New == nil {
		return nil, &simerr.SpeciesInstantiationError{SpeciesID: string(s.ID), Err: errors.New("no constructor")}
	}
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = &simerr.SpeciesInstantiationError{SpeciesID: string(s.ID), Err: fmt.Errorf("constructor panicked: %v", r)}
		}
	}()
	m, err = s.New()
	if err != nil {
		return nil, &simerr.SpeciesInstantiationError{SpeciesID: string(s.ID), Err: err}
	}
	if m == nil {
		return nil, &simerr.SpeciesInstantiationError{SpeciesID: string(s.ID), Err: errors.New("constructor returned nil")}
	}
	return m, nil
}

// Registry maps species ids to constructors. It is populated by explicit
// Register calls; nothing is discovered at runtime.
type Registry struct {
	mu    sync.RWMutex
	byID  map[SpeciesID]Species
	order []SpeciesID
}

func NewRegistry() *Registry {
	return &Registry{byID: map[SpeciesID]Species{}}
}

func (r *Registry) Register(s Species) error {
	s.ID = SpeciesID(strings.TrimSpace(string(s.ID)))
	if s.ID == "" {
		return fmt.Errorf("register species: empty id")
	}
	if s.New == nil {
		return fmt.Errorf("register species %s: nil constructor", s.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("register species %s: already registered", s.ID)
	}
	r.byID[s.ID] = s
	r.order = append(r.order, s.ID)
	return nil
}

func (r *Registry) MustRegister(s Species) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(id SpeciesID) (Species, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// IDs returns ids in registration order.
func (r *Registry) IDs() []SpeciesID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SpeciesID(nil), r.order...)
}

// SortedIDs returns ids in lexical order.
func (r *Registry) SortedIDs() []SpeciesID {
	ids := r.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
