// Package broadcast fans one chat message out to every joined session.
package broadcast

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/lanchat/logger"
	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/registry"
)

// DefaultConcurrency bounds how many recipients are written to at once.
const DefaultConcurrency = 32

// EvictHandler is called for each recipient removed from the registry after
// a failed delivery.
type EvictHandler func(username string, member registry.Member, err error)

// Result summarizes one broadcast.
type Result struct {
	Delivered []string
	Failed    map[string]error
}

// Engine delivers messages to the registry's members. Recipients are taken
// from a registry snapshot, so the registry lock is never held during writes.
type Engine struct {
	registry    *registry.Registry
	logger      logger.Logger
	concurrency int

	mu      sync.RWMutex
	onEvict EvictHandler
}

// New creates an Engine over reg.
//
// Parameters:
//   - reg: The registry whose members receive broadcasts
//   - concurrency: Maximum parallel writes; non-positive means DefaultConcurrency
//   - l: Logger for delivery failures; nil discards output
//
// Returns:
//   - A new Engine
func New(reg *registry.Registry, concurrency int, l logger.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Engine{
		registry:    reg,
		logger:      logger.OrNop(l),
		concurrency: concurrency,
	}
}

// OnEvict registers the handler for recipients dropped after a failed write.
// Repeated calls replace the previous handler; nil clears it.
func (e *Engine) OnEvict(handler EvictHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvict = handler
}

// Broadcast sends m to every registered member except exclude. A failed
// write to one member never stops delivery to the others: the failure is
// logged, the member is removed from the registry once the fan-out is done,
// and the evict handler is told. Delivery order across members is not
// defined.
//
// Parameters:
//   - m: The message to deliver
//   - exclude: A member to skip, typically the sender; may be nil
//
// Returns:
//   - Which usernames received the message and which failed
func (e *Engine) Broadcast(m message.Message, exclude registry.Member) Result {
	recipients := e.registry.Snapshot()

	result := Result{Failed: make(map[string]error)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for username, member := range recipients {
		if exclude != nil && member.ID() == exclude.ID() {
			continue
		}

		g.Go(func() error {
			err := member.Send(m)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[username] = err
			} else {
				result.Delivered = append(result.Delivered, username)
			}

			return nil
		})
	}

	_ = g.Wait()

	for username, err := range result.Failed {
		e.logger.Warn("broadcast delivery failed",
			logger.Field{Key: "username", Value: username},
			logger.Field{Key: "type", Value: m.Type.String()},
			logger.Err(err),
		)
		e.evict(username, recipients[username], err)
	}

	return result
}

func (e *Engine) evict(username string, member registry.Member, err error) {
	if _, removed := e.registry.RemoveBySession(member); !removed {
		return
	}

	e.mu.RLock()
	handler := e.onEvict
	e.mu.RUnlock()

	if handler != nil {
		handler(username, member, err)
	}
}
