package kernel

import "sync"

// Status is the result code of a channel operation. The values are part of
// the syscall ABI.
type Status uint64

const (
	StatusOK Status = iota
	StatusInvalidEndpoint
	StatusWrongDirection
	StatusPeerClosed
	// StatusChannelFull never reaches a caller of the blocking API.
	StatusChannelFull
	StatusInvalidArgs
	StatusMsgTooLarge
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidEndpoint:
		return "invalid endpoint"
	case StatusWrongDirection:
		return "wrong direction"
	case StatusPeerClosed:
		return "peer closed"
	case StatusChannelFull:
		return "channel full"
	case StatusInvalidArgs:
		return "invalid arguments"
	case StatusMsgTooLarge:
		return "message too large"
	default:
		return "unknown"
	}
}

const (
	// MaxMessageSize is the largest payload a single send may carry.
	MaxMessageSize = 4096

	DefaultCapacity = 16
	MaxCapacity     = 256
)

// clampCapacity maps a requested capacity to [1, MaxCapacity]; 0 selects
// DefaultCapacity.
func clampCapacity(n uint64) int {
	switch {
	case n == 0:
		return DefaultCapacity
	case n > MaxCapacity:
		return MaxCapacity
	default:
		return int(n)
	}
}

// ChannelState is the half-close state of a channel.
type ChannelState uint8

const (
	ChannelOpen ChannelState = iota
	ChannelSendClosed
	ChannelRecvClosed
	ChannelBothClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelOpen:
		return "open"
	case ChannelSendClosed:
		return "send closed"
	case ChannelRecvClosed:
		return "recv closed"
	case ChannelBothClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is a bounded FIFO of kernel-owned message copies between one send
// endpoint and one receive endpoint.
//
// Tasks blocked on a channel are registered in senders/receivers while mu is
// held, and only after their state was set to Blocked under their own lock.
// Every waiter entry holds a task reference that the wake consumes.
type Channel struct {
	mu sync.Mutex

	msgs [][]byte
	head int
	n    int

	sendClosed bool
	recvClosed bool

	senders   []*Task
	receivers []*Task
}

func newChannel(capacity int) *Channel {
	return &Channel{msgs: make([][]byte, capacity)}
}

// Cap is the fixed capacity.
func (ch *Channel) Cap() int { return len(ch.msgs) }

// Len is the number of queued messages.
func (ch *Channel) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.n
}

func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.stateLocked()
}

func (ch *Channel) stateLocked() ChannelState {
	switch {
	case ch.sendClosed && ch.recvClosed:
		return ChannelBothClosed
	case ch.sendClosed:
		return ChannelSendClosed
	case ch.recvClosed:
		return ChannelRecvClosed
	default:
		return ChannelOpen
	}
}

// send makes one enqueue attempt for t. StatusChannelFull means t has been
// marked Blocked and registered as a sender waiter; the caller must trap.
// The returned tasks must be woken with the channel as key.
func (ch *Channel) send(t *Task, msg []byte) (Status, []*Task) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.recvClosed {
		return StatusPeerClosed, nil
	}
	if ch.n == len(ch.msgs) {
		t.blockOn(ch, BlockChannelFull)
		ch.senders = append(ch.senders, t)
		return StatusChannelFull, nil
	}
	ch.msgs[(ch.head+ch.n)%len(ch.msgs)] = msg
	ch.n++
	woken := ch.receivers
	ch.receivers = nil
	return StatusOK, woken
}

// recv makes one dequeue attempt for t. StatusChannelFull has the same
// meaning as for send: t is now Blocked on an empty channel.
func (ch *Channel) recv(t *Task) ([]byte, Status, []*Task) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.n == 0 {
		if ch.sendClosed {
			return nil, StatusPeerClosed, nil
		}
		t.blockOn(ch, BlockChannelEmpty)
		ch.receivers = append(ch.receivers, t)
		return nil, StatusChannelFull, nil
	}
	msg := ch.msgs[ch.head]
	ch.msgs[ch.head] = nil
	ch.head = (ch.head + 1) % len(ch.msgs)
	ch.n--
	woken := ch.senders
	ch.senders = nil
	return msg, StatusOK, woken
}

// close marks one direction closed and returns the peers to wake. Once both
// directions are closed the queued messages are dropped.
func (ch *Channel) close(dir Direction) (woken []*Task, freed bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if dir == DirSend {
		ch.sendClosed = true
	} else {
		ch.recvClosed = true
	}
	woken = append(ch.senders, ch.receivers...)
	ch.senders, ch.receivers = nil, nil

	if ch.sendClosed && ch.recvClosed {
		for i := range ch.msgs {
			ch.msgs[i] = nil
		}
		ch.head, ch.n = 0, 0
		return woken, true
	}
	return woken, false
}
