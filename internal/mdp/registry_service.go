package mdp

// service is the broker's record of one named service: its registered
// worker pool and its FIFO queue of pending requests. Services are
// created lazily and never destroyed.
type service struct {
	name    string
	workers []string // worker ids registered for this exact name
	queue   []*request
}

func newService(name string) *service {
	return &service{
		name:    name,
		workers: make([]string, 0),
		queue:   make([]*request, 0),
	}
}

func (s *service) addWorker(id string) {
	for _, w := range s.workers {
		if w == id {
			return
		}
	}
	s.workers = append(s.workers, id)
}

func (s *service) removeWorker(id string) {
	for i, w := range s.workers {
		if w == id {
			s.workers = append(s.workers[:i], s.workers[i+1:]...)
			return
		}
	}
}

func (s *service) enqueue(r *request) {
	s.queue = append(s.queue, r)
}

func (s *service) dequeue() (*request, bool) {
	if len(s.queue) == 0 {
		return nil, false
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r, true
}

// serviceRegistry tracks every known service by exact name, including
// wildcard patterns (whose name still carries the trailing "*").
type serviceRegistry struct {
	byName map[string]*service
}

func newServiceRegistry() *serviceRegistry {
	return &serviceRegistry{byName: make(map[string]*service)}
}

// require is the lazy constructor: a service record is created on
// first reference to its name and reused afterward.
func (r *serviceRegistry) require(name string) *service {
	s, ok := r.byName[name]
	if !ok {
		s = newService(name)
		r.byName[name] = s
	}
	return s
}

func (r *serviceRegistry) get(name string) (*service, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// wildcardsMatching returns every wildcard service registered whose
// prefix matches the given concrete name, i.e. name starts with the
// wildcard's literal prefix.
func (r *serviceRegistry) wildcardsMatching(name string) []*service {
	var out []*service
	for n, s := range r.byName {
		if n == name || !isWildcard(n) {
			continue
		}
		prefix := wildcardPrefix(n)
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, s)
		}
	}
	return out
}

// concreteServicesMatching returns every concrete (non-wildcard)
// service whose name starts with the given wildcard's prefix.
func (r *serviceRegistry) concreteServicesMatching(wildcardName string) []*service {
	prefix := wildcardPrefix(wildcardName)
	var out []*service
	for n, s := range r.byName {
		if n == wildcardName || isWildcard(n) {
			continue
		}
		if len(n) >= len(prefix) && n[:len(prefix)] == prefix {
			out = append(out, s)
		}
	}
	return out
}

func (r *serviceRegistry) all() []*service {
	out := make([]*service, 0, len(r.byName))
	for _, s := range r.byName {
		out = append(out, s)
	}
	return out
}
