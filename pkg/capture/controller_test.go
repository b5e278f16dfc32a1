package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"snap-shutter/pkg/native/nativetest"
	"snap-shutter/pkg/types"
)

func testDevices() []types.Device {
	return []types.Device{
		{ID: "/dev/video0", Position: types.PositionBack, PhysicalDevices: []types.PhysicalDevice{types.WideAngle},
			Formats: []types.Format{{VideoWidth: 1920, VideoHeight: 1080, MaxFPS: 60}}},
		{ID: "/dev/video2", Position: types.PositionFront, PhysicalDevices: []types.PhysicalDevice{types.WideAngle},
			Formats: []types.Format{{VideoWidth: 1280, VideoHeight: 720, MaxFPS: 30}}},
	}
}

type recorder struct {
	mu     sync.Mutex
	videos []*types.Video
	errs   []error
}

func (r *recorder) onSuccess(v *types.Video) {
	r.mu.Lock()
	r.videos = append(r.videos, v)
	r.mu.Unlock()
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.videos), len(r.errs)
}

func newAttached(t *testing.T) (*Controller, *nativetest.Camera) {
	t.Helper()
	c := New(&nativetest.Driver{DeviceList: testDevices()})
	if err := c.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	cam := &nativetest.Camera{}
	c.Attach(cam)
	return c, cam
}

func TestSwitchCameraAlternates(t *testing.T) {
	c := New(&nativetest.Driver{DeviceList: testDevices()})
	ctx := context.Background()
	if c.Position() != types.PositionBack {
		t.Fatalf("initial position %s", c.Position())
	}
	if err := c.Resolve(ctx); err != nil {
		t.Fatal(err)
	}

	want := []types.Position{types.PositionFront, types.PositionBack, types.PositionFront, types.PositionBack, types.PositionFront}
	wantID := map[types.Position]string{types.PositionBack: "/dev/video0", types.PositionFront: "/dev/video2"}
	for i, pos := range want {
		if err := c.SwitchCamera(ctx); err != nil {
			t.Fatal(err)
		}
		if c.Position() != pos {
			t.Fatalf("switch %d: position %s, want %s", i, c.Position(), pos)
		}
		d, _, ok := c.Device()
		if !ok || d.ID != wantID[pos] {
			t.Fatalf("switch %d: device %q", i, d.ID)
		}
	}
}

func TestResolveWithoutDevice(t *testing.T) {
	c := New(&nativetest.Driver{DeviceList: testDevices()[:1]})
	ctx := context.Background()
	if err := c.SwitchCamera(ctx); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := c.Device(); ok {
		t.Fatal("expected no front device")
	}

	c = New(&nativetest.Driver{DevicesErr: errors.New("bus error")})
	if err := c.Resolve(ctx); err == nil {
		t.Fatal("expected enumeration error")
	}
}

func TestResolveNegotiatesFormat(t *testing.T) {
	c := New(&nativetest.Driver{DeviceList: testDevices()}, WithTarget(TargetForScreen(1080, 2340, 0.8, 60)))
	if err := c.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, f, ok := c.Device()
	if !ok || f.VideoWidth != 1920 || f.VideoHeight != 1080 {
		t.Fatalf("format %s", f)
	}
}

func TestCapturePhotoWithoutDevice(t *testing.T) {
	c := New(&nativetest.Driver{})
	photo, err := c.CapturePhoto(context.Background())
	if photo != nil || !errors.Is(err, ErrDeviceNotReady) {
		t.Fatalf("photo=%v err=%v", photo, err)
	}
}

func TestCapturePhoto(t *testing.T) {
	c, cam := newAttached(t)
	want := &types.Photo{Data: []byte("jpeg")}
	cam.Photo = want
	got, err := c.CapturePhoto(context.Background())
	if err != nil || got != want {
		t.Fatalf("photo=%v err=%v", got, err)
	}
}

func TestRecordingCycle(t *testing.T) {
	c, cam := newAttached(t)
	ctx := context.Background()
	r := &recorder{}

	if err := c.StartRecording(ctx, r.onSuccess, r.onError); err != nil {
		t.Fatal(err)
	}
	if c.RecordingState() != StateRecording || !c.IsRecording() {
		t.Fatalf("state %s", c.RecordingState())
	}
	if err := c.StartRecording(ctx, r.onSuccess, r.onError); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second start: %v", err)
	}

	if err := c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if c.RecordingState() != StateIdle || c.IsRecording() {
		t.Fatalf("state %s", c.RecordingState())
	}
	if v, e := r.counts(); v != 1 || e != 0 {
		t.Fatalf("videos=%d errors=%d", v, e)
	}
	if _, start, stop := cam.Calls(); start != 1 || stop != 1 {
		t.Fatalf("native start=%d stop=%d", start, stop)
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	c, cam := newAttached(t)
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, start, stop := cam.Calls(); start != 0 || stop != 0 {
		t.Fatalf("native start=%d stop=%d", start, stop)
	}
	if c.RecordingState() != StateIdle {
		t.Fatalf("state %s", c.RecordingState())
	}

	c = New(&nativetest.Driver{})
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStartWithoutDevice(t *testing.T) {
	c := New(&nativetest.Driver{})
	r := &recorder{}
	if err := c.StartRecording(context.Background(), r.onSuccess, r.onError); !errors.Is(err, ErrDeviceNotReady) {
		t.Fatalf("err = %v", err)
	}
	if c.RecordingState() != StateIdle {
		t.Fatalf("state %s", c.RecordingState())
	}
	if v, e := r.counts(); v != 0 || e != 0 {
		t.Fatalf("videos=%d errors=%d", v, e)
	}
}

func TestStopBeforeNativeStartResolves(t *testing.T) {
	c, cam := newAttached(t)
	cam.StartGate = make(chan struct{})
	cam.Started = make(chan struct{}, 1)
	ctx := context.Background()
	r := &recorder{}

	done := make(chan error, 1)
	go func() { done <- c.StartRecording(ctx, r.onSuccess, r.onError) }()

	select {
	case <-cam.Started:
	case <-time.After(time.Second):
		t.Fatal("native start not reached")
	}
	if c.RecordingState() != StateStarting || !c.IsRecording() {
		t.Fatalf("state %s", c.RecordingState())
	}

	if err := c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if c.RecordingState() != StateIdle {
		t.Fatalf("state after stop %s", c.RecordingState())
	}

	close(cam.StartGate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if c.RecordingState() != StateIdle {
		t.Fatalf("state after native start %s", c.RecordingState())
	}
	if _, e := r.counts(); e != 0 {
		t.Fatalf("onError called %d times", e)
	}
	if cam.Recording() {
		t.Fatal("late native start left the camera recording")
	}
	if _, _, stops := cam.Calls(); stops != 1 {
		t.Fatalf("native stop called %d times", stops)
	}
}

func TestRecordingEndsBeforeNativeStartReturns(t *testing.T) {
	c, cam := newAttached(t)
	cam.FinishOnStart = true
	r := &recorder{}

	if err := c.StartRecording(context.Background(), r.onSuccess, r.onError); err != nil {
		t.Fatal(err)
	}
	if c.RecordingState() != StateIdle {
		t.Fatalf("state %s", c.RecordingState())
	}
	if v, e := r.counts(); v != 1 || e != 0 {
		t.Fatalf("videos=%d errors=%d", v, e)
	}
	if _, _, stops := cam.Calls(); stops != 0 {
		t.Fatalf("native stop called %d times for a finished recording", stops)
	}
}

func TestNativeStartFailureRollsBack(t *testing.T) {
	c, cam := newAttached(t)
	cam.StartErr = errors.New("encoder busy")
	r := &recorder{}

	if err := c.StartRecording(context.Background(), r.onSuccess, r.onError); !errors.Is(err, cam.StartErr) {
		t.Fatalf("err = %v", err)
	}
	if c.RecordingState() != StateIdle {
		t.Fatalf("state %s", c.RecordingState())
	}
	if _, e := r.counts(); e != 1 {
		t.Fatalf("onError called %d times", e)
	}
}

func TestRecordingErrorRollsBack(t *testing.T) {
	c, cam := newAttached(t)
	r := &recorder{}
	if err := c.StartRecording(context.Background(), r.onSuccess, r.onError); err != nil {
		t.Fatal(err)
	}

	cam.Fail(errors.New("disk full"))
	if c.RecordingState() != StateIdle {
		t.Fatalf("state %s", c.RecordingState())
	}
	if v, e := r.counts(); v != 0 || e != 1 {
		t.Fatalf("videos=%d errors=%d", v, e)
	}

	// a new recording can start right away
	if err := c.StartRecording(context.Background(), r.onSuccess, r.onError); err != nil {
		t.Fatal(err)
	}
}

func TestStopFailureStillReturnsToIdle(t *testing.T) {
	c, cam := newAttached(t)
	r := &recorder{}
	if err := c.StartRecording(context.Background(), r.onSuccess, r.onError); err != nil {
		t.Fatal(err)
	}
	cam.StopErr = errors.New("finalize failed")
	if err := c.StopRecording(context.Background()); !errors.Is(err, cam.StopErr) {
		t.Fatalf("err = %v", err)
	}
	if c.RecordingState() != StateIdle {
		t.Fatalf("state %s", c.RecordingState())
	}
}

func TestDetachResetsRecording(t *testing.T) {
	c, _ := newAttached(t)
	r := &recorder{}
	if err := c.StartRecording(context.Background(), r.onSuccess, r.onError); err != nil {
		t.Fatal(err)
	}
	c.Detach()
	if c.RecordingState() != StateIdle {
		t.Fatalf("state %s", c.RecordingState())
	}
	if _, err := c.CapturePhoto(context.Background()); !errors.Is(err, ErrDeviceNotReady) {
		t.Fatalf("err = %v", err)
	}
}

func TestOnChange(t *testing.T) {
	var n int
	c := New(&nativetest.Driver{DeviceList: testDevices()}, WithOnChange(func() { n++ }))
	if err := c.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("resolve did not notify")
	}
}
