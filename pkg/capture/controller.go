package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"snap-shutter/pkg/native"
	"snap-shutter/pkg/types"
	"snap-shutter/pkg/utils"
)

var (
	ErrDeviceNotReady   = errors.New("camera device not ready")
	ErrAlreadyRecording = errors.New("recording already in progress")
)

// Recording states.
const (
	StateIdle      = "idle"
	StateStarting  = "starting"
	StateRecording = "recording"
	StateStopping  = "stopping"
)

const (
	eventStart   = "start"
	eventStarted = "started"
	eventStop    = "stop"
	eventCancel  = "cancel"
	eventStopped = "stopped"
	eventReset   = "reset"
)

// Controller owns the camera position, the resolved device and format, and
// the recording state machine:
//
//	idle -start-> starting -started-> recording -stop-> stopping -stopped-> idle
//
// starting can be cancelled straight back to idle, and any busy state returns
// to idle when the native recorder reports completion or failure.
//
// State changes happen before the native call they guard, so a second
// Start/Stop issued while the first is still in flight sees the new state.
type Controller struct {
	lister native.DeviceLister
	prefs  []types.PhysicalDevice
	target Target
	logger *zap.SugaredLogger

	onChange func()

	mu       sync.Mutex
	position types.Position
	device   *types.Device
	format   types.Format
	cam      native.Camera
	fsm      *fsm.FSM
	// gen identifies the current recording; hooks of older ones only deliver media.
	gen uint64
	// cancelled is the gen of a recording stopped before its native start returned.
	cancelled uint64
}

type Option func(*Controller)

func WithTarget(t Target) Option {
	return func(c *Controller) { c.target = t }
}

func WithPhysicalDevices(prefs []types.PhysicalDevice) Option {
	return func(c *Controller) { c.prefs = prefs }
}

// WithOnChange registers fn, called without locks held after any observable change.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = l }
}

func New(lister native.DeviceLister, opts ...Option) *Controller {
	c := &Controller{
		lister:   lister,
		prefs:    types.DefaultPhysicalDevices,
		target:   Target{FPS: DefaultFPS},
		logger:   utils.GetLogger().Named("capture"),
		position: types.PositionBack,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateStarting},
			{Name: eventStarted, Src: []string{StateStarting}, Dst: StateRecording},
			{Name: eventStop, Src: []string{StateRecording}, Dst: StateStopping},
			{Name: eventCancel, Src: []string{StateStarting}, Dst: StateIdle},
			{Name: eventStopped, Src: []string{StateStopping}, Dst: StateIdle},
			{Name: eventReset, Src: []string{StateStarting, StateRecording, StateStopping}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Debugf("recording: %s -(%s)-> %s", e.Src, e.Event, e.Dst)
			},
		},
	)

	return c
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// transition fires event with c.mu held.
func (c *Controller) transition(event string) {
	if err := c.fsm.Event(context.Background(), event); err != nil {
		c.logger.Warnf("recording: %s from %s: %s", event, c.fsm.Current(), err)
	}
}

func (c *Controller) Position() types.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Device returns the resolved device and its negotiated format.
func (c *Controller) Device() (types.Device, types.Format, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return types.Device{}, types.Format{}, false
	}
	return *c.device, c.format, true
}

func (c *Controller) RecordingState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.Current()
}

// IsRecording is true from the moment a start is requested until a stop is.
func (c *Controller) IsRecording() bool {
	s := c.RecordingState()
	return s == StateStarting || s == StateRecording
}

// Resolve looks up the device and format for the current position. No
// device at that position leaves the controller without one.
func (c *Controller) Resolve(ctx context.Context) error {
	c.mu.Lock()
	pos := c.position
	c.mu.Unlock()

	devices, err := c.lister.Devices(ctx)
	if err != nil {
		return fmt.Errorf("list camera devices: %w", err)
	}
	dev, ok := SelectDevice(devices, pos, c.prefs)

	c.mu.Lock()
	if c.position != pos {
		// a newer switch owns the resolution
		c.mu.Unlock()
		return nil
	}
	if ok {
		f, _ := SelectFormat(dev, c.target)
		c.device, c.format = &dev, f
		c.logger.Infof("resolved %s camera %s (%s) format %s", pos, dev.ID, dev.Name, f)
	} else {
		c.device, c.format = nil, types.Format{}
		c.logger.Warnf("no %s camera found", pos)
	}
	c.mu.Unlock()

	c.changed()
	return nil
}

// SwitchCamera flips between back and front and resolves the new side.
func (c *Controller) SwitchCamera(ctx context.Context) error {
	c.mu.Lock()
	c.position = c.position.Opposite()
	c.mu.Unlock()

	return c.Resolve(ctx)
}

// Attach binds the open native session operations run against.
func (c *Controller) Attach(cam native.Camera) {
	c.mu.Lock()
	c.cam = cam
	c.mu.Unlock()
	c.changed()
}

// Detach drops the session. A recording in progress is abandoned; its
// native hooks may still deliver media but no longer move the state.
func (c *Controller) Detach() {
	c.mu.Lock()
	c.cam = nil
	c.gen++
	if c.fsm.Current() != StateIdle {
		c.transition(eventReset)
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) CapturePhoto(ctx context.Context) (*types.Photo, error) {
	c.mu.Lock()
	cam := c.cam
	c.mu.Unlock()
	if cam == nil {
		return nil, ErrDeviceNotReady
	}

	return cam.TakePhoto(ctx)
}

// StartRecording begins a recording. onSuccess receives the finished video,
// onError a failure of the start or of the recording itself. Nil hooks are
// no-ops.
func (c *Controller) StartRecording(ctx context.Context, onSuccess func(*types.Video), onError func(error)) error {
	if onSuccess == nil {
		onSuccess = func(*types.Video) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	c.mu.Lock()
	if c.cam == nil {
		c.mu.Unlock()
		return ErrDeviceNotReady
	}
	if !c.fsm.Can(eventStart) {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.transition(eventStart)
	c.gen++
	gen, cam := c.gen, c.cam
	c.mu.Unlock()
	c.changed()

	var ended atomic.Bool
	err := cam.StartRecording(ctx, native.RecordingOptions{
		OnRecordingFinished: func(v *types.Video) {
			ended.Store(true)
			c.settle(gen)
			onSuccess(v)
		},
		OnRecordingError: func(err error) {
			ended.Store(true)
			c.settle(gen)
			onError(err)
		},
	})

	c.mu.Lock()
	current := gen == c.gen && c.fsm.Current() == StateStarting
	cancelled := gen == c.cancelled
	if current {
		if err != nil {
			c.transition(eventReset)
		} else {
			c.transition(eventStarted)
		}
	}
	c.mu.Unlock()

	switch {
	case current && err != nil:
		c.changed()
		onError(err)
		return err
	case current:
		c.changed()
		return nil
	case err != nil:
		c.logger.Debugf("recording start failed after it was abandoned: %s", err)
		return nil
	case !cancelled || ended.Load():
		// detached, or the recording already ended on its own
		return nil
	}

	// stopped while starting: finalize what the native side just began
	if err := cam.StopRecording(ctx); err != nil {
		c.logger.Warnf("stop cancelled recording: %s", err)
	}
	return nil
}

// StopRecording ends the current recording. The video arrives through the
// onSuccess hook given to StartRecording. Without a recording it does nothing.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	switch c.fsm.Current() {
	case StateStarting:
		// the pending start finalizes once the native side answers
		c.transition(eventCancel)
		c.cancelled = c.gen
		c.mu.Unlock()
		c.changed()
		return nil
	case StateRecording:
	default:
		c.mu.Unlock()
		return nil
	}
	c.transition(eventStop)
	gen, cam := c.gen, c.cam
	c.mu.Unlock()
	c.changed()

	err := cam.StopRecording(ctx)

	c.mu.Lock()
	if gen == c.gen && c.fsm.Current() == StateStopping {
		c.transition(eventStopped)
	}
	c.mu.Unlock()
	c.changed()

	if err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	return nil
}

// settle returns recording gen to idle after its native completion.
func (c *Controller) settle(gen uint64) {
	c.mu.Lock()
	moved := gen == c.gen && c.fsm.Current() != StateIdle
	if moved {
		c.transition(eventReset)
	}
	c.mu.Unlock()
	if moved {
		c.changed()
	}
}
