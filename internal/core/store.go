package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const storeQueueSize = 64

type request struct {
	action Action
	reply  chan State
}

// Store owns the conversation state. Run applies actions one at a time in
// arrival order; every other method is safe to call from any goroutine.
type Store struct {
	requests chan request
	done     chan struct{}
	stopOnce sync.Once

	current atomic.Pointer[State]

	mu   sync.Mutex
	subs map[chan State]struct{}

	log *zerolog.Logger
}

// NewStore creates a store in the initial idle state.
func NewStore(logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Store{
		requests: make(chan request, storeQueueSize),
		done:     make(chan struct{}),
		subs:     make(map[chan State]struct{}),
		log:      logger,
	}
	initial := NewState()
	s.current.Store(&initial)
	return s
}

// Run processes actions until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	defer s.stopOnce.Do(func() { close(s.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			next := Reduce(*s.current.Load(), req.action)
			s.current.Store(&next)
			s.log.Debug().
				Str("action", req.action.Kind.String()).
				Str("chat_room_id", req.action.RoomID).
				Int("unread", next.Unread).
				Int("rooms", len(next.Rooms)).
				Msg("store action applied")
			if req.reply != nil {
				req.reply <- next.Clone()
			}
			s.publish(next)
		}
	}
}

// Dispatch queues a for the run loop without waiting for it to apply.
func (s *Store) Dispatch(a Action) {
	select {
	case s.requests <- request{action: a}:
	case <-s.done:
		s.log.Warn().Str("action", a.Kind.String()).Msg("store stopped, dropping action")
	}
}

// Apply queues a and waits until it has been applied, returning the resulting state.
func (s *Store) Apply(ctx context.Context, a Action) (State, error) {
	reply := make(chan State, 1)
	select {
	case s.requests <- request{action: a, reply: reply}:
	case <-s.done:
		return State{}, ErrStoreStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-s.done:
		return State{}, ErrStoreStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Snapshot returns a copy of the most recently applied state.
func (s *Store) Snapshot() State {
	return s.current.Load().Clone()
}

// Subscribe returns a channel that receives the latest state after each
// applied action. Slow readers only see the most recent state. Call the
// returned function to unsubscribe.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

func (s *Store) publish(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		snapshot := st.Clone()
		select {
		case ch <- snapshot:
		default:
			// Replace the stale state a slow reader has not consumed.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
