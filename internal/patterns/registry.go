package patterns

import (
	"github.com/GriffinCanCode/soundwatch/internal/classifier"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/syncx"
)

type state struct {
	order  []string
	byName map[string]Pattern
}

// Registry is an ordered, concurrency-safe set of patterns keyed by name.
// Readers get snapshots; a detection cycle never sees a half-applied change.
type Registry struct {
	guard *syncx.RWGuard[state]
}

// Counts summarizes registry contents.
type Counts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{guard: syncx.NewGuard(state{byName: make(map[string]Pattern)})}
}

// Add inserts p, replacing any pattern of the same name in place. It returns
// the names of other patterns whose spectrograms look alike.
func (r *Registry) Add(p Pattern) (similar []string) {
	syncx.Mutate(r.guard, func(s *state) struct{} {
		if _, ok := s.byName[p.Name]; !ok {
			s.order = append(s.order, p.Name)
		}
		s.byName[p.Name] = p
		for _, name := range s.order {
			if name == p.Name {
				continue
			}
			if HashDistance(p.Hash, s.byName[name].Hash) <= DuplicateDistance {
				similar = append(similar, name)
			}
		}
		return struct{}{}
	})
	return similar
}

// Get returns the named pattern.
func (r *Registry) Get(name string) (Pattern, bool) {
	type result struct {
		p  Pattern
		ok bool
	}
	res := syncx.View(r.guard, func(s *state) result {
		p, ok := s.byName[name]
		return result{p, ok}
	})
	return res.p, res.ok
}

// SetActive toggles whether a pattern takes part in detection.
func (r *Registry) SetActive(name string, active bool) error {
	return syncx.Mutate(r.guard, func(s *state) error {
		p, ok := s.byName[name]
		if !ok {
			return notFound(name)
		}
		p.Active = active
		s.byName[name] = p
		return nil
	})
}

// Remove deletes a pattern.
func (r *Registry) Remove(name string) error {
	return syncx.Mutate(r.guard, func(s *state) error {
		if _, ok := s.byName[name]; !ok {
			return notFound(name)
		}
		delete(s.byName, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
		return nil
	})
}

// Snapshot returns every pattern in insertion order.
func (r *Registry) Snapshot() []Pattern {
	return syncx.View(r.guard, func(s *state) []Pattern {
		out := make([]Pattern, 0, len(s.order))
		for _, name := range s.order {
			out = append(out, s.byName[name])
		}
		return out
	})
}

// ActiveReferences returns classifier references for the active patterns,
// in insertion order.
func (r *Registry) ActiveReferences() []classifier.Reference {
	return syncx.View(r.guard, func(s *state) []classifier.Reference {
		var out []classifier.Reference
		for _, name := range s.order {
			if p := s.byName[name]; p.Active {
				out = append(out, p.Reference())
			}
		}
		return out
	})
}

// Counts reports how many patterns exist and how many are active.
func (r *Registry) Counts() Counts {
	return syncx.View(r.guard, func(s *state) Counts {
		c := Counts{Total: len(s.order)}
		for _, p := range s.byName {
			if p.Active {
				c.Active++
			}
		}
		return c
	})
}

// Clear removes every pattern.
func (r *Registry) Clear() {
	r.guard.Set(state{byName: make(map[string]Pattern)})
}

func notFound(name string) error {
	return apperrors.Newf(apperrors.CodeNotFound, "pattern %q not found", name).WithMetadata("pattern", name)
}
