package permission

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"snap-shutter/pkg/native"
	"snap-shutter/pkg/utils"
)

type State int

const (
	Unknown State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Gate asks for camera access once and remembers the answer.
//
// The state leaves Unknown at most once. A request that never returns, or
// returns an error, keeps HasPermission false forever; callers must read
// false as "not yet granted" rather than "denied".
type Gate struct {
	requester native.PermissionRequester
	logger    *zap.SugaredLogger

	once sync.Once
	done chan struct{}

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

func New(requester native.PermissionRequester) *Gate {
	return &Gate{
		requester: requester,
		logger:    utils.GetLogger().Named("permission"),
		done:      make(chan struct{}),
		listeners: make(map[int]func(State)),
	}
}

// Start issues the permission request in the background. Later calls do nothing.
func (g *Gate) Start(ctx context.Context) {
	g.once.Do(func() {
		go g.request(ctx)
	})
}

func (g *Gate) request(ctx context.Context) {
	defer close(g.done)

	status, err := g.requester.RequestCameraPermission(ctx)
	if err != nil {
		g.logger.Warnf("camera permission request failed: %s", err)
		return
	}
	next := Denied
	if status == native.PermissionGranted {
		next = Granted
	}
	g.logger.Infof("camera permission: %s", status)

	g.mu.Lock()
	if g.state != Unknown {
		g.mu.Unlock()
		return
	}
	g.state = next
	listeners := make([]func(State), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func (g *Gate) HasPermission() bool {
	return g.State() == Granted
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Subscribe registers fn for the single state change. The returned func removes it.
func (g *Gate) Subscribe(fn func(State)) (unsubscribe func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

// Wait blocks until the request has finished or ctx is done.
func (g *Gate) Wait(ctx context.Context) (State, error) {
	select {
	case <-g.done:
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}
