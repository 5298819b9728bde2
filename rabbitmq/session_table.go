package rabbitmq

import (
	"sync"

	"github.com/relaymq/amqp-go/internal/util"
)

// sessionTable is the Connection-scoped channel-number allocator: it owns
// the mapping from channel number to Session and the lowest-free-number
// allocation policy spec.md §2 calls for (channel 0 reserved for the
// Connection itself). Grounded on the teacher's ad hoc
// `channels map[uint16]*Channel` + `nextChannelID` fields in connection.go,
// generalized to reuse free numbers (the teacher only ever incremented)
// via internal/util.IntAllocator.
type sessionTable struct {
	mu    sync.RWMutex
	alloc *util.IntAllocator
	byID  map[uint16]*Channel
}

func newSessionTable(channelMax uint16) *sessionTable {
	max := int(channelMax)
	if max <= 0 {
		max = 65535
	}
	return &sessionTable{
		alloc: util.NewIntAllocator(1, max),
		byID:  make(map[uint16]*Channel),
	}
}

// allocate reserves the lowest free channel number and registers ch under
// it. Returns ErrChannelExhausted if channel_max is already in use.
func (t *sessionTable) allocate(ch *Channel) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.alloc.Allocate()
	if !ok {
		return 0, ErrChannelExhausted
	}
	t.byID[uint16(id)] = ch
	return uint16(id), nil
}

// lookup returns the Channel registered under id, if any.
func (t *sessionTable) lookup(id uint16) (*Channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.byID[id]
	return ch, ok
}

// swap atomically replaces the Channel registered at ch with new, returning
// the previous occupant (nil if ch was not registered). This is the
// primitive spec.md §4.1 builds SoftProtocolException handling on: the
// offending channel's Session is swapped for a Quiescing Session in place,
// so in-flight frames for ch keep finding a registered occupant while the
// real Channel winds down independently, and the channel number itself is
// never freed/reallocated out from under the close handshake.
func (t *sessionTable) swap(ch uint16, new *Channel) *Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.byID[ch]
	t.byID[ch] = new
	return old
}

// free releases id back to the allocator and removes it from the table.
func (t *sessionTable) free(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
	t.alloc.Free(int(id))
}

// drain empties the table and returns every Channel that was registered,
// for Connection.cleanup to close them without holding the table's lock.
func (t *sessionTable) drain() []*Channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Channel, 0, len(t.byID))
	for id, ch := range t.byID {
		out = append(out, ch)
		delete(t.byID, id)
		t.alloc.Free(int(id))
	}
	return out
}

// count returns the number of currently registered channels.
func (t *sessionTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
