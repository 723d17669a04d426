package session

import "sort"

// Registry maps socket handles to their sessions. It is owned by the event
// loop and not synchronized.
type Registry struct {
	sessions map[int]*Session
	factory  func(handle int) *Session
}

// NewRegistry returns an empty registry that builds sessions with factory.
func NewRegistry(factory func(handle int) *Session) *Registry {
	return &Registry{
		sessions: make(map[int]*Session),
		factory:  factory,
	}
}

// GetOrCreate returns the session for handle, creating one in the initial
// state if there is none.
func (r *Registry) GetOrCreate(handle int) *Session {
	if s, ok := r.sessions[handle]; ok {
		return s
	}
	s := r.factory(handle)
	r.sessions[handle] = s
	return s
}

// Get returns the session for handle, or nil.
func (r *Registry) Get(handle int) *Session {
	return r.sessions[handle]
}

// Remove evicts and closes the session for handle. It reports whether one
// was present.
func (r *Registry) Remove(handle int) bool {
	s, ok := r.sessions[handle]
	if !ok {
		return false
	}
	delete(r.sessions, handle)
	s.Close()
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Range calls fn for each session in ascending handle order until fn
// returns false. fn may Remove the session it is given.
func (r *Registry) Range(fn func(handle int, s *Session) bool) {
	handles := make([]int, 0, len(r.sessions))
	for h := range r.sessions {
		handles = append(handles, h)
	}
	sort.Ints(handles)

	for _, h := range handles {
		s, ok := r.sessions[h]
		if !ok {
			continue
		}
		if !fn(h, s) {
			return
		}
	}
}
