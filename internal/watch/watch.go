// Package watch implements the change-notification subsystem: a
// path-indexed subscription registry with asynchronous, batched delivery.
//
// Emitters never wait on listeners. Each subscription owns a bounded event
// queue drained by its own dispatcher goroutine; a slow listener can lose
// events under pressure but can never stall the filesystem or another
// subscriber.
package watch

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tierfs/tierfs/internal/pathutil"
)

// EventType classifies a filesystem change.
type EventType string

const (
	// EventChange: the content of an existing file changed.
	EventChange EventType = "change"
	// EventRename: a path appeared, disappeared, or moved.
	EventRename EventType = "rename"
)

// Listener receives events for one subscription.
type Listener interface {
	Notify(event EventType, filename string)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(event EventType, filename string)

func (f ListenerFunc) Notify(event EventType, filename string) { f(event, filename) }

type delivery struct {
	event    EventType
	filename string
}

// queueDepth bounds each subscription's undelivered backlog.
const queueDepth = 256

// Subscription is a registered interest in events on a path.
type Subscription struct {
	id        uint64
	namespace string
	path      string
	recursive bool
	listener  Listener

	queue  chan delivery
	closed atomic.Bool
	done   chan struct{}

	mgr *Manager
}

// Path returns the canonical watched path.
func (s *Subscription) Path() string { return s.path }

// Recursive reports whether descendants beyond direct children match.
func (s *Subscription) Recursive() bool { return s.recursive }

// Close detaches the subscription. Events already queued but not yet
// delivered are dropped; the listener is never called again after Close
// returns and the dispatcher has drained.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.mgr.remove(s.id)
		close(s.done)
	}
}

// Manager owns every subscription and routes emitted events to the ones
// whose path matches.
type Manager struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	log    logrus.FieldLogger

	wg      sync.WaitGroup
	closed  atomic.Bool
}

// NewManager creates an empty watch manager.
func NewManager(log logrus.FieldLogger) *Manager {
	return &Manager{subs: make(map[uint64]*Subscription), log: log}
}

// Add registers a listener on a path within a namespace. The path is
// canonicalized; recursive extends matching to all descendants.
func (m *Manager) Add(namespace, path string, recursive bool, listener Listener) *Subscription {
	sub := &Subscription{
		id:        atomic.AddUint64(&m.nextID, 1),
		namespace: namespace,
		path:      pathutil.Canonicalize(path),
		recursive: recursive,
		listener:  listener,
		queue:     make(chan delivery, queueDepth),
		done:      make(chan struct{}),
		mgr:       m,
	}

	m.mu.Lock()
	m.subs[sub.id] = sub
	m.mu.Unlock()

	m.wg.Add(1)
	go m.dispatch(sub)
	return sub
}

// Remove is the registry-side form of Subscription.Close.
func (m *Manager) Remove(sub *Subscription) { sub.Close() }

func (m *Manager) remove(id uint64) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}

// Count returns the number of live subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Emit routes an event on path to every matching subscription in the same
// namespace. Delivery is asynchronous; Emit returns without waiting for
// any listener.
func (m *Manager) Emit(namespace string, event EventType, path string) {
	if m.closed.Load() {
		return
	}
	path = pathutil.Canonicalize(path)

	m.mu.RLock()
	matched := make([]*Subscription, 0, 4)
	names := make([]string, 0, 4)
	for _, sub := range m.subs {
		if sub.namespace != namespace || sub.closed.Load() {
			continue
		}
		name, ok := match(sub, path)
		if !ok {
			continue
		}
		matched = append(matched, sub)
		names = append(names, name)
	}
	m.mu.RUnlock()

	for i, sub := range matched {
		select {
		case sub.queue <- delivery{event: event, filename: names[i]}:
		default:
			// Queue full: the subscriber is too slow; drop rather than
			// block the emitter.
			m.log.WithField("path", sub.path).Debug("watch queue overflow, event dropped")
		}
	}
}

// match applies the matching rule for an event on path p against one
// subscription, returning the filename the listener should see.
//
//  1. Exact subscribers watching p see its basename.
//  2. Subscribers watching parent(p) see its basename, recursive or not.
//  3. Recursive subscribers on higher ancestors see the path relative to
//     the watched ancestor. A recursive root subscriber matches any
//     non-root path.
func match(sub *Subscription, p string) (string, bool) {
	if sub.path == p {
		return pathutil.Base(p), true
	}
	if p == "/" {
		return "", false
	}
	if sub.path == pathutil.Parent(p) {
		return pathutil.Base(p), true
	}
	if sub.recursive && pathutil.IsAncestor(sub.path, p) {
		return pathutil.Relative(sub.path, p), true
	}
	return "", false
}

// dispatch drains one subscription's queue until it closes. Listener
// panics are isolated and swallowed.
func (m *Manager) dispatch(sub *Subscription) {
	defer m.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case d := <-sub.queue:
			m.deliver(sub, d)
		}
	}
}

func (m *Manager) deliver(sub *Subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("path", sub.path).WithField("panic", r).
				Warn("watch listener panicked")
		}
	}()
	if sub.closed.Load() {
		return
	}
	sub.listener.Notify(d.event, d.filename)
}

// Close shuts the manager down, closing every subscription and waiting for
// dispatchers to finish.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	m.wg.Wait()
}
