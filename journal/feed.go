package journal

import "sync"

// FeedConfig configures an in-memory firing feed.
type FeedConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber
	// (default: 64).
	SubscriberBufferSize int
}

// Feed fans firing records out to live subscribers. Records for a
// name go to that name's subscribers and to global subscribers. A
// subscriber that falls behind its buffer loses records rather than
// blocking the publisher.
type Feed struct {
	mu         sync.RWMutex
	subs       map[string][]*feedSub // name -> subscribers
	globalSubs []*feedSub
	bufSize    int
	closed     bool
}

// NewFeed creates a feed with the given configuration.
func NewFeed(cfg FeedConfig) *Feed {
	bufSize := cfg.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Feed{
		subs:    make(map[string][]*feedSub),
		bufSize: bufSize,
	}
}

// Publish delivers a record to all matching subscribers. Publishing
// to a closed feed is a no-op.
func (f *Feed) Publish(rec Record) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	for _, sub := range f.subs[rec.Name] {
		sub.send(rec)
	}
	for _, sub := range f.globalSubs {
		sub.send(rec)
	}
}

// Subscribe registers a subscriber for one name. The returned
// Subscription must be closed when done.
func (f *Feed) Subscribe(name string) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := newFeedSub(f.bufSize)
	f.subs[name] = append(f.subs[name], sub)
	return sub
}

// SubscribeAll registers a subscriber that receives records for every
// name. The returned Subscription must be closed when done.
func (f *Feed) SubscribeAll() Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := newFeedSub(f.bufSize)
	f.globalSubs = append(f.globalSubs, sub)
	return sub
}

// Close shuts down the feed and all subscriptions.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for _, subs := range f.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	for _, sub := range f.globalSubs {
		sub.close()
	}
	return nil
}

// Subscription receives live firing records.
type Subscription interface {
	// Records returns the subscription's record channel.
	Records() <-chan Record

	// Close unsubscribes and releases resources.
	Close() error
}

type feedSub struct {
	ch     chan Record
	mu     sync.Mutex
	closed bool
}

func newFeedSub(bufSize int) *feedSub {
	return &feedSub{ch: make(chan Record, bufSize)}
}

func (s *feedSub) Records() <-chan Record {
	return s.ch
}

func (s *feedSub) Close() error {
	s.close()
	return nil
}

func (s *feedSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers a record, dropping it if the subscriber's buffer is
// full or the subscription is closed.
func (s *feedSub) send(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- rec:
	default:
	}
}

// Compile-time interface check.
var _ Subscription = (*feedSub)(nil)
