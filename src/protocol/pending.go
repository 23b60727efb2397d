package protocol

import (
	"sort"
	"sync"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/codec"
)

// Callback receives the outcome of a request: either an error, or the decoded
// response message.
type Callback func(err error, msg codec.Fields)

type pendingRequest struct {
	requestID uint64
	typ       string
	issuedAt  time.Time
	callback  Callback
}

// pendingRegistry holds the requests awaiting a response. take and drain
// remove entries, so each request is handed out at most once.
type pendingRegistry struct {
	sync.Mutex
	nextID   uint64
	requests map[uint64]*pendingRequest
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		requests: make(map[uint64]*pendingRequest),
	}
}

func (r *pendingRegistry) add(typ string, cb Callback) uint64 {
	r.Lock()
	defer r.Unlock()

	r.nextID++
	r.requests[r.nextID] = &pendingRequest{
		requestID: r.nextID,
		typ:       typ,
		issuedAt:  time.Now(),
		callback:  cb,
	}

	return r.nextID
}

func (r *pendingRegistry) take(id uint64) *pendingRequest {
	r.Lock()
	defer r.Unlock()

	p, ok := r.requests[id]
	if !ok {
		return nil
	}
	delete(r.requests, id)

	return p
}

// drain removes and returns every pending request, oldest first.
func (r *pendingRegistry) drain() []*pendingRequest {
	r.Lock()
	defer r.Unlock()

	res := make([]*pendingRequest, 0, len(r.requests))
	for _, p := range r.requests {
		res = append(res, p)
	}
	r.requests = make(map[uint64]*pendingRequest)

	sort.Slice(res, func(i, j int) bool { return res[i].requestID < res[j].requestID })

	return res
}

func (r *pendingRegistry) len() int {
	r.Lock()
	defer r.Unlock()
	return len(r.requests)
}
