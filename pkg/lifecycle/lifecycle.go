// Package lifecycle mirrors the host application's foreground state.
package lifecycle

import (
	"sync"
)

type State string

const (
	Active     State = "active"
	Background State = "background"
	Inactive   State = "inactive"
)

type Subscription interface {
	Remove()
}

type Source interface {
	Current() State
	AddListener(fn func(State)) Subscription
}

// Notifier is an in-process Source fed by Set.
type Notifier struct {
	mu        sync.Mutex
	current   State
	listeners map[*listener]struct{}
}

type listener struct {
	n  *Notifier
	fn func(State)
}

func (l *listener) Remove() {
	l.n.mu.Lock()
	delete(l.n.listeners, l)
	l.n.mu.Unlock()
}

func NewNotifier(initial State) *Notifier {
	return &Notifier{
		current:   initial,
		listeners: make(map[*listener]struct{}),
	}
}

func (n *Notifier) Current() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Notifier) AddListener(fn func(State)) Subscription {
	l := &listener{n: n, fn: fn}
	n.mu.Lock()
	n.listeners[l] = struct{}{}
	n.mu.Unlock()
	return l
}

// Set records the new state and notifies listeners when it changed.
func (n *Notifier) Set(s State) {
	n.mu.Lock()
	if n.current == s {
		n.mu.Unlock()
		return
	}
	n.current = s
	fns := make([]func(State), 0, len(n.listeners))
	for l := range n.listeners {
		fns = append(fns, l.fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Listeners returns the number of live subscriptions.
func (n *Notifier) Listeners() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
