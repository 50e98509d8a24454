package kernel

import "sync"

// DisplayStatus is the result of TransferDisplay.
type DisplayStatus uint64

const (
	DisplayOK DisplayStatus = iota
	DisplayNotOwner
	DisplayNoTask
)

func (s DisplayStatus) String() string {
	switch s {
	case DisplayOK:
		return "ok"
	case DisplayNotOwner:
		return "not owner"
	case DisplayNoTask:
		return "no such task"
	default:
		return "unknown"
	}
}

// displayToken names the single task allowed to drive the display.
type displayToken struct {
	mu    sync.Mutex
	owner TaskID
}

// SetDisplayOwner hands the display to id at boot.
func (k *Kernel) SetDisplayOwner(id TaskID) {
	k.display.mu.Lock()
	k.display.owner = id
	k.display.mu.Unlock()
}

// DisplayOwner returns the current display owner, 0 if none.
func (k *Kernel) DisplayOwner() TaskID {
	k.display.mu.Lock()
	defer k.display.mu.Unlock()
	return k.display.owner
}

// TransferDisplay passes the display token to task id. The caller must hold
// the token and id must name a task in the table.
func (c *Context) TransferDisplay(id TaskID) DisplayStatus {
	c.enter()
	k := c.k
	k.display.mu.Lock()
	defer k.display.mu.Unlock()
	if k.display.owner != c.t.id {
		return DisplayNotOwner
	}
	t, ok := k.Lookup(id)
	if !ok {
		return DisplayNoTask
	}
	t.Put()
	k.display.owner = id
	k.logf("display: owner %d -> %d", c.t.id, id)
	return DisplayOK
}
