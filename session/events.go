package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is emitted after every state change. Seq increases monotonically, so a
// subscriber receiving events from several goroutines can discard stale ones.
type Event struct {
	ID      string
	Seq     uint64
	State   State
	Session *Session // Snapshot, nil when logged out
	Message string   // User visible, empty for silent transitions
	Err     error
	At      time.Time
}

type subscriber struct {
	id string
	fn func(Event)
}

type subscribers struct {
	lock sync.RWMutex
	list []subscriber
}

func (s *subscribers) add(fn func(Event)) func() {
	id := uuid.NewString()

	s.lock.Lock()
	s.list = append(s.list, subscriber{id: id, fn: fn})
	s.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lock.Lock()
			defer s.lock.Unlock()
			for i, sub := range s.list {
				if sub.id == id {
					s.list = append(s.list[:i:i], s.list[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *subscribers) snapshot() []subscriber {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]subscriber, len(s.list))
	copy(out, s.list)
	return out
}
