// Package nativetest provides in-memory native layer doubles for tests.
package nativetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"snap-shutter/pkg/native"
	"snap-shutter/pkg/types"
)

var ErrNotRecording = errors.New("nativetest: not recording")

// Driver is a native.Driver over a fixed device list.
type Driver struct {
	mu sync.Mutex

	Status        native.PermissionStatus
	PermissionErr error
	// PermissionGate, when set, holds the permission answer until closed.
	PermissionGate chan struct{}

	DeviceList []types.Device
	DevicesErr error
	OpenErr    error

	// NewCamera customizes the camera returned by Open.
	NewCamera func(dev types.Device, f types.Format) *Camera

	permissionCalls int
	opened          []*Camera
}

func (d *Driver) RequestCameraPermission(ctx context.Context) (native.PermissionStatus, error) {
	d.mu.Lock()
	d.permissionCalls++
	gate := d.PermissionGate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return d.Status, d.PermissionErr
}

func (d *Driver) Devices(context.Context) ([]types.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.Device(nil), d.DeviceList...), d.DevicesErr
}

func (d *Driver) Open(_ context.Context, dev types.Device, f types.Format) (native.Camera, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	var c *Camera
	if d.NewCamera != nil {
		c = d.NewCamera(dev, f)
	} else {
		c = &Camera{}
	}
	c.Device, c.Format = dev, f

	d.mu.Lock()
	d.opened = append(d.opened, c)
	d.mu.Unlock()
	return c, nil
}

func (d *Driver) PermissionCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permissionCalls
}

// Opened returns every camera handed out by Open, oldest first.
func (d *Driver) Opened() []*Camera {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Camera(nil), d.opened...)
}

// Camera is a native.Camera that records calls. StopRecording reports a
// finished video through the hooks given to StartRecording.
type Camera struct {
	Device types.Device
	Format types.Format

	mu sync.Mutex

	Photo    *types.Photo
	PhotoErr error

	// StartGate, when set, blocks StartRecording until closed.
	StartGate chan struct{}
	// Started is signalled when StartRecording is entered.
	Started  chan struct{}
	StartErr error
	StopErr  error
	// FinishOnStart ends the recording through its finished hook before
	// StartRecording returns.
	FinishOnStart bool

	active     bool
	closed     bool
	recording  bool
	opts       native.RecordingOptions
	photoCalls int
	startCalls int
	stopCalls  int
	activeLog  []bool
}

func (c *Camera) SetActive(active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
	c.activeLog = append(c.activeLog, active)
	return nil
}

func (c *Camera) TakePhoto(context.Context) (*types.Photo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photoCalls++
	if c.PhotoErr != nil {
		return nil, c.PhotoErr
	}
	if c.Photo != nil {
		return c.Photo, nil
	}
	return &types.Photo{Data: []byte{0xff, 0xd8, 0xff, 0xd9}, DeviceID: c.Device.ID, Timestamp: time.Now()}, nil
}

func (c *Camera) StartRecording(ctx context.Context, opts native.RecordingOptions) error {
	c.mu.Lock()
	c.startCalls++
	gate, started := c.StartGate, c.Started
	c.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	if c.StartErr != nil {
		err := c.StartErr
		c.mu.Unlock()
		return err
	}
	if c.FinishOnStart {
		c.mu.Unlock()
		opts.OnRecordingFinished(&types.Video{Path: "/tmp/nativetest.avi", DeviceID: c.Device.ID, Timestamp: time.Now()})
		return nil
	}
	c.recording = true
	c.opts = opts
	c.mu.Unlock()
	return nil
}

func (c *Camera) StopRecording(context.Context) error {
	c.mu.Lock()
	c.stopCalls++
	if c.StopErr != nil {
		err := c.StopErr
		c.mu.Unlock()
		return err
	}
	if !c.recording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.recording = false
	opts := c.opts
	c.mu.Unlock()

	opts.OnRecordingFinished(&types.Video{Path: "/tmp/nativetest.avi", Frames: 3, DeviceID: c.Device.ID, Timestamp: time.Now()})
	return nil
}

// Fail ends the current recording with err through its error hook.
func (c *Camera) Fail(err error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	c.recording = false
	opts := c.opts
	c.mu.Unlock()

	opts.OnRecordingError(err)
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.active = false
	return nil
}

func (c *Camera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Camera) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Camera) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Calls returns how often TakePhoto, StartRecording and StopRecording ran.
func (c *Camera) Calls() (photo, start, stop int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.photoCalls, c.startCalls, c.stopCalls
}
