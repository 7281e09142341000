// internal/form/state.go
//
// Contact form subsystem: mutable form state.
//
// Context
//   Store holds the three pieces of per-form state: current values, the set
//   of touched fields, and the latest validation messages.  Errors are kept
//   for every field that has been checked, but VisibleError only surfaces a
//   message once the user has left the field at least once (or a submit
//   attempt swept it into the touched set).
//
// Workflow
//   •  SetField always stores the value.  A touched field is re-validated on
//      the spot, an untouched one keeps whatever error it had.
//   •  Blur marks the field touched and re-validates it unconditionally.
//   •  Observers registered via Subscribe receive a Snapshot after every
//      mutation.  They run outside the lock, so an observer may call back
//      into the Store.
//
//------------------------------------------------------------------------------

package form

import "sync"

// Snapshot is an immutable copy of the Store at one instant.
type Snapshot struct {
	Values  Values
	Touched map[Field]bool
	Errors  Errors
}

// VisibleError returns the message for f only when f has been touched.
func (s Snapshot) VisibleError(f Field) string {
	if !s.Touched[f] {
		return ""
	}
	return s.Errors[f]
}

// Store is safe for concurrent use.  The zero value is not usable; call
// NewStore.
type Store struct {
	mu        sync.Mutex
	values    Values
	touched   map[Field]bool
	errors    Errors
	observers map[int]func(Snapshot)
	nextID    int
}

// NewStore returns an empty store, the state of a freshly mounted form.
func NewStore() *Store {
	return &Store{
		touched:   make(map[Field]bool),
		errors:    make(Errors),
		observers: make(map[int]func(Snapshot)),
	}
}

// SetField updates the value of f and re-validates it when already touched.
func (s *Store) SetField(f Field, value string) error {
	s.mu.Lock()
	if err := s.values.Set(f, value); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.touched[f] {
		s.errors[f] = Validate(f, value)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Blur marks f touched and recomputes its error from the current value.
func (s *Store) Blur(f Field) error {
	if !f.Valid() {
		return ErrUnknownField
	}
	s.mu.Lock()
	s.touched[f] = true
	s.errors[f] = Validate(f, s.values.Get(f))
	s.mu.Unlock()

	s.notify()
	return nil
}

// Values returns a copy of the current inputs.
func (s *Store) Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// VisibleError returns the error for f if f is touched, else "".
func (s *Store) VisibleError(f Field) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.touched[f] {
		return ""
	}
	return s.errors[f]
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after every mutation.  The returned
// func removes the observer.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// touchAll marks every field touched and replaces the error map with errs.
func (s *Store) touchAll(errs Errors) {
	s.mu.Lock()
	for _, f := range Fields {
		s.touched[f] = true
	}
	s.errors = errs.clone()
	s.mu.Unlock()

	s.notify()
}

// reset returns the store to its freshly mounted state.
func (s *Store) reset() {
	s.mu.Lock()
	s.values = Values{}
	s.touched = make(map[Field]bool)
	s.errors = make(Errors)
	s.mu.Unlock()

	s.notify()
}

func (s *Store) snapshotLocked() Snapshot {
	touched := make(map[Field]bool, len(s.touched))
	for k, v := range s.touched {
		touched[k] = v
	}
	return Snapshot{
		Values:  s.values,
		Touched: touched,
		Errors:  s.errors.clone(),
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	if len(s.observers) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
