// Package hub provides a typed in-process publish/subscribe broadcaster.
//
// Channels are keyed by name and may hold any number of subscribers.
// Publish delivers synchronously, in subscription order, and isolates
// panics per handler so one faulty subscriber cannot block delivery to
// the rest or propagate into the publisher.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultWarnThreshold is the soft subscriber-count limit per channel.
// Exceeding it logs a warning on Subscribe; it never rejects.
const DefaultWarnThreshold = 16

// Handler receives published payloads for a channel.
type Handler[T any] func(payload T)

// Subscription is the handle returned by Subscribe. Cancel removes the
// subscriber; cancelling twice is harmless.
type Subscription struct {
	ID      string
	Channel string
	cancel  func()
}

// Cancel unsubscribes the handler.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriber[T any] struct {
	id   string
	fn   Handler[T]
	once bool
}

// Hub is a typed publish/subscribe broadcaster.
type Hub[T any] struct {
	mu            sync.RWMutex
	channels      map[string][]*subscriber[T]
	warnThreshold int
	logger        *slog.Logger
}

// Option configures a Hub.
type Option[T any] func(*Hub[T])

// WithLogger sets the logger used for handler panics and advisory warnings.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(h *Hub[T]) { h.logger = l }
}

// WithWarnThreshold sets the soft subscriber-count warning threshold.
// A threshold of zero or less disables the warning.
func WithWarnThreshold[T any](n int) Option[T] {
	return func(h *Hub[T]) { h.warnThreshold = n }
}

// New creates an empty Hub.
func New[T any](opts ...Option[T]) *Hub[T] {
	h := &Hub[T]{
		channels:      make(map[string][]*subscriber[T]),
		warnThreshold: DefaultWarnThreshold,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a handler on a channel. Delivery order follows
// subscription order.
func (h *Hub[T]) Subscribe(channel string, fn Handler[T]) *Subscription {
	return h.subscribe(channel, fn, false)
}

// SubscribeOnce registers a handler that is removed after its first
// delivery. The removal happens before the handler runs, so a panicking
// handler is still unsubscribed.
func (h *Hub[T]) SubscribeOnce(channel string, fn Handler[T]) *Subscription {
	return h.subscribe(channel, fn, true)
}

func (h *Hub[T]) subscribe(channel string, fn Handler[T], once bool) *Subscription {
	sub := &subscriber[T]{id: uuid.New().String(), fn: fn, once: once}

	h.mu.Lock()
	h.channels[channel] = append(h.channels[channel], sub)
	count := len(h.channels[channel])
	h.mu.Unlock()

	if h.warnThreshold > 0 && count > h.warnThreshold {
		h.logger.Warn("hub: subscriber count exceeds threshold",
			"channel", channel, "count", count, "threshold", h.warnThreshold)
	}

	return &Subscription{
		ID:      sub.id,
		Channel: channel,
		cancel:  func() { h.remove(channel, sub.id) },
	}
}

// Unsubscribe removes the subscriber identified by sub. It is equivalent
// to sub.Cancel.
func (h *Hub[T]) Unsubscribe(sub *Subscription) {
	if sub != nil {
		sub.Cancel()
	}
}

// UnsubscribeAll removes every subscriber from a channel.
func (h *Hub[T]) UnsubscribeAll(channel string) {
	h.mu.Lock()
	delete(h.channels, channel)
	h.mu.Unlock()
}

func (h *Hub[T]) remove(channel, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.channels[channel]
	for i, s := range subs {
		if s.id == id {
			h.channels[channel] = append(subs[:i], subs[i+1:]...)
			if len(h.channels[channel]) == 0 {
				delete(h.channels, channel)
			}
			return
		}
	}
}

// Publish synchronously invokes every current subscriber of the channel
// in subscription order. Handler panics are recovered and logged.
func (h *Hub[T]) Publish(channel string, payload T) {
	h.mu.Lock()
	subs := make([]*subscriber[T], len(h.channels[channel]))
	copy(subs, h.channels[channel])
	// Drop once-subscribers before delivery so they never fire twice.
	remaining := h.channels[channel][:0]
	for _, s := range h.channels[channel] {
		if !s.once {
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		delete(h.channels, channel)
	} else {
		h.channels[channel] = remaining
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.deliver(channel, s, payload)
	}
}

func (h *Hub[T]) deliver(channel string, s *subscriber[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("hub: subscriber panicked",
				"channel", channel, "subscription", s.id, "panic", r)
		}
	}()
	s.fn(payload)
}

// SubscriberCount returns the number of subscribers on a channel.
func (h *Hub[T]) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels returns the names of every channel with at least one subscriber.
func (h *Hub[T]) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	return names
}

// Subscriptions returns the subscription IDs on a channel, in subscription
// order.
func (h *Hub[T]) Subscriptions(channel string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.channels[channel]))
	for _, s := range h.channels[channel] {
		ids = append(ids, s.id)
	}
	return ids
}
