package permission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"snap-shutter/pkg/native"
)

type fakeRequester struct {
	calls   atomic.Int32
	release chan struct{}
	status  native.PermissionStatus
	err     error
}

func (f *fakeRequester) RequestCameraPermission(ctx context.Context) (native.PermissionStatus, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.status, f.err
}

func waitState(t *testing.T, g *Gate) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := g.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGateGranted(t *testing.T) {
	req := &fakeRequester{release: make(chan struct{}), status: native.PermissionGranted}
	g := New(req)

	changes := make(chan State, 1)
	g.Subscribe(func(s State) { changes <- s })

	g.Start(context.Background())
	g.Start(context.Background())
	if g.HasPermission() {
		t.Fatal("permission reported before the request resolved")
	}

	close(req.release)
	if s := waitState(t, g); s != Granted {
		t.Fatalf("state = %s", s)
	}
	if !g.HasPermission() {
		t.Fatal("expected permission")
	}
	if got := <-changes; got != Granted {
		t.Fatalf("listener got %s", got)
	}
	if n := req.calls.Load(); n != 1 {
		t.Fatalf("requested %d times", n)
	}
}

func TestGateDenied(t *testing.T) {
	for _, status := range []native.PermissionStatus{native.PermissionDenied, native.PermissionRestricted} {
		g := New(&fakeRequester{status: status})
		g.Start(context.Background())
		if s := waitState(t, g); s != Denied {
			t.Fatalf("%s: state = %s", status, s)
		}
		if g.HasPermission() {
			t.Fatalf("%s: unexpected permission", status)
		}
	}
}

func TestGateRequestError(t *testing.T) {
	g := New(&fakeRequester{err: errors.New("native bridge gone")})
	g.Start(context.Background())
	if s := waitState(t, g); s != Unknown {
		t.Fatalf("state = %s", s)
	}
	if g.HasPermission() {
		t.Fatal("unexpected permission")
	}
}

func TestGateNeverResolves(t *testing.T) {
	g := New(&fakeRequester{release: make(chan struct{})})
	g.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait err = %v", err)
	}
	if g.HasPermission() || g.State() != Unknown {
		t.Fatal("pending request must read as not granted")
	}
}

func TestGateUnsubscribe(t *testing.T) {
	req := &fakeRequester{release: make(chan struct{}), status: native.PermissionGranted}
	g := New(req)
	var called atomic.Bool
	unsubscribe := g.Subscribe(func(State) { called.Store(true) })
	unsubscribe()

	g.Start(context.Background())
	close(req.release)
	waitState(t, g)
	if called.Load() {
		t.Fatal("removed listener was called")
	}
}
