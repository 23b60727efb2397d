package negotiation

import (
	"sort"
	"sync"
)

// registry holds the streams of a session, by stream id.
type registry struct {
	sync.Mutex
	streams map[string]*Stream
}

func newRegistry() *registry {
	return &registry{
		streams: make(map[string]*Stream),
	}
}

func (r *registry) add(s *Stream) error {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.streams[s.id]; ok {
		return ErrDuplicateStream
	}
	r.streams[s.id] = s

	return nil
}

func (r *registry) get(id string) (*Stream, bool) {
	r.Lock()
	defer r.Unlock()
	s, ok := r.streams[id]
	return s, ok
}

func (r *registry) remove(id string) bool {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.streams[id]; !ok {
		return false
	}
	delete(r.streams, id)

	return true
}

// all returns the registered streams ordered by id.
func (r *registry) all() []*Stream {
	r.Lock()
	defer r.Unlock()

	res := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].id < res[j].id })

	return res
}

func (r *registry) activeLinks() int {
	r.Lock()
	defer r.Unlock()

	n := 0
	for _, s := range r.streams {
		if s.link != nil && s.LinkState().up() {
			n++
		}
	}
	return n
}

func (r *registry) len() int {
	r.Lock()
	defer r.Unlock()
	return len(r.streams)
}
