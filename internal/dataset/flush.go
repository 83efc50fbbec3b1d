package dataset

import (
	"fmt"

	"github.com/satonomics-go/utxo-indexer/internal/exportstore"
)

// Flush appends every series' pending (not-yet-persisted) values to s and
// marks them flushed, in the same order every run will see them on the
// next load, paired with the C1/C2 flush in the same safety-horizon
// checkpoint. Derived series are never flushed directly: they are
// recomputed wholesale from their bases on load instead.
func (r *Registry) Flush(s exportstore.Storage) error {
	r.mu.Lock()
	heightNames := append([]string(nil), r.heightOrder...)
	dateNames := append([]string(nil), r.dateOrder...)
	r.mu.Unlock()

	for _, name := range heightNames {
		r.mu.Lock()
		m := r.heights[name]
		r.mu.Unlock()
		_, values := m.Pending()
		if len(values) == 0 {
			continue
		}
		if err := s.AppendFloat64(name, values); err != nil {
			return fmt.Errorf("dataset: flush %s: %w", name, err)
		}
		m.MarkFlushed(len(values))
	}

	for _, name := range dateNames {
		r.mu.Lock()
		m := r.dates[name]
		r.mu.Unlock()
		_, values := m.Pending()
		if len(values) == 0 {
			continue
		}
		if err := s.AppendFloat64(name, values); err != nil {
			return fmt.Errorf("dataset: flush date %s: %w", name, err)
		}
		m.MarkFlushed(len(values))
	}

	return nil
}

// Load reads every registered series' persisted values back from s, for a
// resumed driver to reconstruct in-memory state before replaying the
// unsafe tail. Series not yet declared at load time
// (first run) are simply skipped; the driver registers the full name set
// before calling Load.
func (r *Registry) Load(s exportstore.Storage) error {
	r.mu.Lock()
	heightNames := append([]string(nil), r.heightOrder...)
	dateNames := append([]string(nil), r.dateOrder...)
	r.mu.Unlock()

	for _, name := range heightNames {
		values, err := s.ReadFloat64(name)
		if err != nil {
			return fmt.Errorf("dataset: load %s: %w", name, err)
		}
		if len(values) == 0 {
			continue
		}
		r.mu.Lock()
		m := r.heights[name]
		r.mu.Unlock()
		for h, v := range values {
			if err := m.Insert(uint32(h), v); err != nil {
				return fmt.Errorf("dataset: restore %s: %w", name, err)
			}
		}
		m.MarkFlushed(len(values))
	}

	for _, name := range dateNames {
		values, err := s.ReadFloat64(name)
		if err != nil {
			return fmt.Errorf("dataset: load date %s: %w", name, err)
		}
		if len(values) == 0 {
			continue
		}
		r.mu.Lock()
		m := r.dates[name]
		r.mu.Unlock()
		for d, v := range values {
			if err := m.Insert(uint16(d), v); err != nil {
				return fmt.Errorf("dataset: restore date %s: %w", name, err)
			}
		}
		m.MarkFlushed(len(values))
	}

	r.RecomputeAll()
	return nil
}
