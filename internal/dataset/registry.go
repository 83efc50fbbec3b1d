package dataset

import (
	"sort"
	"sync"
)

// Registry owns every named height- and date-indexed series this indexer
// emits (a set of named height -> T and date -> T maps), plus the derived
// series built over them, and drives the path->type manifest.
type Registry struct {
	mu       sync.Mutex
	heights  map[string]*HeightMap[float64]
	dates    map[string]*DateMap[float64]
	derived  map[string]*Derived
	heightOrder []string
	dateOrder   []string
	derivedOrder []string
}

func NewRegistry() *Registry {
	return &Registry{
		heights: make(map[string]*HeightMap[float64]),
		dates:   make(map[string]*DateMap[float64]),
		derived: make(map[string]*Derived),
	}
}

// Height returns the named height series, creating it on first use so
// callers never have to pre-declare the full name matrix up front.
func (r *Registry) Height(name string) *HeightMap[float64] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.heights[name]; ok {
		return m
	}
	m := NewHeightMap[float64](name)
	r.heights[name] = m
	r.heightOrder = append(r.heightOrder, name)
	return m
}

func (r *Registry) Date(name string) *DateMap[float64] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.dates[name]; ok {
		return m
	}
	m := NewDateMap[float64](name)
	r.dates[name] = m
	r.dateOrder = append(r.dateOrder, name)
	return m
}

// RegisterDerived tracks d so RecomputeAll and the manifest can see it.
func (r *Registry) RegisterDerived(d *Derived) *Derived {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.derived[d.Name()] = d
	r.derivedOrder = append(r.derivedOrder, d.Name())
	return d
}

// RecomputeAll reruns every derived series from its current base(s) (spec
// §4.6: derived series are never maintained incrementally).
func (r *Registry) RecomputeAll() {
	r.mu.Lock()
	order := append([]string(nil), r.derivedOrder...)
	r.mu.Unlock()
	for _, name := range order {
		r.mu.Lock()
		d := r.derived[name]
		r.mu.Unlock()
		d.Recompute()
	}
}

// HeightNames returns every registered height-series name, sorted.
func (r *Registry) HeightNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.heightOrder...)
	sort.Strings(out)
	return out
}

func (r *Registry) DateNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.dateOrder...)
	sort.Strings(out)
	return out
}

func (r *Registry) DerivedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.derivedOrder...)
	sort.Strings(out)
	return out
}

// PersistedHeight returns the last height every registered series holds
// (the smallest Len()-1 across all of them). Right after Load, before any
// further Insert, that is the last height durably on disk; once blocks
// have been emitted it also counts values not yet flushed. Series
// registered after the snapshot was taken (Len()==0) are ignored, since a
// first-seen series has nothing to disagree about yet.
func (r *Registry) PersistedHeight() (uint32, bool) {
	r.mu.Lock()
	names := append([]string(nil), r.heightOrder...)
	r.mu.Unlock()

	var min uint32
	found := false
	for _, name := range names {
		r.mu.Lock()
		m := r.heights[name]
		r.mu.Unlock()
		n := m.Len()
		if n == 0 {
			continue
		}
		h := n - 1
		if !found || h < min {
			min = h
			found = true
		}
	}
	return min, found
}

// MinUnsafeHeight is the checkpoint-horizon query, taken across every
// registered height series; date series are not consulted.
func (r *Registry) MinUnsafeHeight(tip uint32) (uint32, bool) {
	r.mu.Lock()
	names := append([]string(nil), r.heightOrder...)
	r.mu.Unlock()

	var min uint32
	found := false
	for _, name := range names {
		r.mu.Lock()
		m := r.heights[name]
		r.mu.Unlock()
		h, ok := m.MinUnsafeHeight(tip)
		if !ok {
			continue
		}
		if !found || h < min {
			min = h
			found = true
		}
	}
	return min, found
}
