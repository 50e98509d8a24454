package kernel

import "sync"

// EndpointID names one end of a channel. IDs start at 1 and are never reused.
type EndpointID uint64

// Direction is the operation an endpoint permits.
type Direction uint8

const (
	DirSend Direction = iota
	DirRecv
)

func (d Direction) String() string {
	if d == DirSend {
		return "send"
	}
	return "recv"
}

// Endpoint is a directional handle onto a channel.
type Endpoint struct {
	ID  EndpointID
	Dir Direction
	ch  *Channel
}

// Channel returns the channel the endpoint belongs to.
func (e *Endpoint) Channel() *Channel { return e.ch }

// EndpointTable is the global endpoint registry.
type EndpointTable struct {
	mu   sync.Mutex
	next EndpointID
	eps  map[EndpointID]*Endpoint
}

func newEndpointTable() *EndpointTable {
	return &EndpointTable{eps: make(map[EndpointID]*Endpoint)}
}

// create allocates a channel and registers its endpoint pair.
func (tb *EndpointTable) create(capacity int) (send, recv *Endpoint) {
	ch := newChannel(capacity)

	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.next++
	send = &Endpoint{ID: tb.next, Dir: DirSend, ch: ch}
	tb.next++
	recv = &Endpoint{ID: tb.next, Dir: DirRecv, ch: ch}
	tb.eps[send.ID] = send
	tb.eps[recv.ID] = recv
	return send, recv
}

// Lookup returns the live endpoint registered under id.
func (tb *EndpointTable) Lookup(id EndpointID) (*Endpoint, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	ep, ok := tb.eps[id]
	return ep, ok
}

func (tb *EndpointTable) remove(id EndpointID) (*Endpoint, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	ep, ok := tb.eps[id]
	if ok {
		delete(tb.eps, id)
	}
	return ep, ok
}

// Len is the number of registered endpoints.
func (tb *EndpointTable) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.eps)
}

// resolve validates that t owns id and that it points the requested way.
func (tb *EndpointTable) resolve(t *Task, id EndpointID, dir Direction) (*Endpoint, Status) {
	if !t.owns(id) {
		return nil, StatusInvalidEndpoint
	}
	ep, ok := tb.Lookup(id)
	if !ok {
		return nil, StatusInvalidEndpoint
	}
	if ep.Dir != dir {
		return nil, StatusWrongDirection
	}
	return ep, StatusOK
}
