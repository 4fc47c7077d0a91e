package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCounterClosed is returned after Close.
var ErrCounterClosed = errors.New("rate limit counter closed")

// ActorCounter is an in-process Counter. Each key is owned by one goroutine
// that serializes every check for that key; a directory maps keys to their
// actors. An actor retires when its window expires, taking the count with it.
type ActorCounter struct {
	mu     sync.Mutex
	actors map[string]*keyActor
	quit   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// minActorLifetime keeps an actor alive long enough to serve callers even
// when the window end is already close or past. Keys carry their window
// start, so a late actor never serves the next window.
const minActorLifetime = time.Second

type checkMsg struct {
	limit int
	reply chan checkReply
}

type checkReply struct {
	count   int
	allowed bool
}

type keyActor struct {
	key   string
	inbox chan checkMsg
	done  chan struct{}
}

// NewActorCounter creates an empty ActorCounter
func NewActorCounter() *ActorCounter {
	return &ActorCounter{
		actors: make(map[string]*keyActor),
		quit:   make(chan struct{}),
	}
}

// CheckAndIncrement implements Counter
func (c *ActorCounter) CheckAndIncrement(ctx context.Context, key string, limit int, expiresAt time.Time) (int, bool, error) {
	msg := checkMsg{limit: limit, reply: make(chan checkReply, 1)}

	for {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		a, err := c.actorFor(key, expiresAt)
		if err != nil {
			return 0, false, err
		}

		select {
		case a.inbox <- msg:
			select {
			case r := <-msg.reply:
				return r.count, r.allowed, nil
			case <-ctx.Done():
				return 0, false, ctx.Err()
			}
		case <-a.done:
			// Retired between lookup and send; the next lookup starts a new window.
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
}

// Active returns the number of live actors
func (c *ActorCounter) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}

// Close stops every actor and waits for them to exit
func (c *ActorCounter) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.quit)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *ActorCounter) actorFor(key string, expiresAt time.Time) (*keyActor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCounterClosed
	}
	if a, ok := c.actors[key]; ok {
		return a, nil
	}

	a := &keyActor{
		key:   key,
		inbox: make(chan checkMsg),
		done:  make(chan struct{}),
	}
	c.actors[key] = a
	ttl := time.Until(expiresAt)
	if ttl < minActorLifetime {
		ttl = minActorLifetime
	}
	c.wg.Add(1)
	go c.run(a, ttl)
	return a, nil
}

func (c *ActorCounter) run(a *keyActor, ttl time.Duration) {
	defer c.wg.Done()

	expired := time.NewTimer(ttl)
	defer expired.Stop()

	count := 0
	for {
		select {
		case msg := <-a.inbox:
			if count >= msg.limit {
				msg.reply <- checkReply{count: count, allowed: false}
				continue
			}
			count++
			msg.reply <- checkReply{count: count, allowed: true}
		case <-expired.C:
			c.retire(a)
			return
		case <-c.quit:
			c.retire(a)
			return
		}
	}
}

// retire removes a from the directory before signalling done so that
// callers woken by done find a fresh actor.
func (c *ActorCounter) retire(a *keyActor) {
	c.mu.Lock()
	if c.actors[a.key] == a {
		delete(c.actors, a.key)
	}
	c.mu.Unlock()
	close(a.done)
}
