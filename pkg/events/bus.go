/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package events implements the in-process topic bus. Delivery is per-topic
// FIFO to each subscriber; publishers never block. Slow subscribers lose the
// oldest buffered message first and the loss is counted.
package events

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 128

// Event is a tagged message published on a topic.
type Event struct {
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type Subscription struct {
	topic   string
	ch      chan Event
	dropped atomic.Uint64
	bus     *Bus
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

// C is the subscriber's receive channel. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped returns how many messages were discarded because the subscriber
// fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Bus fans events out to topic subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]*Subscription
	bufSize int
}

type BusOption func(*Bus)

// WithBufferSize overrides the per-subscription buffer depth.
func WithBufferSize(n int) BusOption {
	return func(b *Bus) { b.bufSize = n }
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:    map[string][]*Subscription{},
		bufSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan Event, b.bufSize),
		bus:   b,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

// Publish delivers the event to every subscriber of the topic, and to
// subscribers of the topic family's `<family>:*` wildcard.
func (b *Bus) Publish(topic string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	targets := b.subs[topic]
	if family, _, ok := strings.Cut(topic, ":"); ok {
		if wildcard := family + ":*"; wildcard != topic {
			targets = append(targets[:len(targets):len(targets)], b.subs[wildcard]...)
		}
	}
	b.mu.RUnlock()

	publishedTotal.WithLabelValues(topic).Inc()
	for _, sub := range targets {
		sub.deliver(topic, evt)
	}
}

// deliver enqueues without ever blocking the publisher: when the buffer is
// full the oldest message is discarded to make room.
func (s *Subscription) deliver(topic string, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- evt:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			droppedTotal.WithLabelValues(topic).Inc()
		default:
		}
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
}
