package camera

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

var (
	StartedErr    = errors.New("already started")
	ErrNotStarted = errors.New("camera not started")
)

// Camera opens one V4L2 node on demand and streams frames from it.
type Camera struct {
	devName string
	pixFmt  v4l2.FourCCType
	fps     int
	ctx     context.Context

	lock   sync.Mutex
	cancel context.CancelFunc
	camera *device.Device

	settings Settings
}

func New(ctx context.Context, devName string, pixFmt v4l2.FourCCType, fps int) *Camera {
	return &Camera{ctx: ctx, devName: devName, pixFmt: pixFmt, fps: fps, settings: make(Settings)}
}

func (c *Camera) FPS() int {
	return c.fps
}

// RGB reports whether frames are raw RGB24 rather than JPEG.
func (c *Camera) RGB() bool {
	return c.pixFmt == v4l2.PixelFmtRGB24
}

func (c *Camera) open(width, height int) error {
	if c.camera != nil {
		return StartedErr
	}
	opts := []device.Option{
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: c.pixFmt,
			Width:       uint32(width),
			Height:      uint32(height),
			Field:       v4l2.FieldNone,
		}),
	}
	if c.fps > 0 {
		opts = append(opts, device.WithFPS(uint32(c.fps)))
	}
	camera, err := device.Open(c.devName, opts...)
	if err != nil {
		return err
	}
	c.camera = camera

	return nil
}

func (c *Camera) Start(width, height int) (<-chan []byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	logger.Infof("start camera %s in %d*%d", c.devName, width, height)
	err := c.open(width, height)
	if err != nil {
		return nil, err
	}

	newCtx, cancel := context.WithCancel(c.ctx)
	if err = c.camera.Start(newCtx); err != nil {
		cancel()
		_ = c.camera.Close()
		c.camera = nil
		return nil, err
	}
	c.cancel = cancel

	c.applySettings()

	return c.camera.GetOutput(), nil
}

func (c *Camera) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cancel != nil {
		// let the stream goroutine observe ctx.Done and stop the device before Close
		c.cancel()
		time.Sleep(100 * time.Millisecond)
		c.cancel = nil
	}
	if c.camera != nil {
		err := c.camera.Close()
		c.camera = nil
		return err
	}
	return nil
}

func (c *Camera) UpdateSettings(settings Settings) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.settings = maps.Clone(settings)

	c.applySettings()
}

func (c *Camera) applySettings() {
	if c.camera == nil {
		return
	}
	for k, v := range c.settings {
		if err := c.camera.SetControlValue(k, v); err != nil {
			logger.Warnf("set ctrl(%d) to %d, err: %s", k, v, err)
		}
	}
}

// Controls lists the controls the device exposes. The camera must be started.
func (c *Camera) Controls() ([]v4l2.Control, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.camera == nil {
		return nil, ErrNotStarted
	}

	ctrls, err := v4l2.QueryAllExtControls(c.camera.Fd())
	if err != nil {
		return nil, err
	}
	for _, ctrl := range ctrls {
		logger.Debug(CtrlToString(ctrl))
	}
	return ctrls, nil
}

// FrameSizes enumerates the frame sizes of every pixel format, opening the
// device briefly when it is not streaming.
func (c *Camera) FrameSizes() ([]v4l2.FrameSizeEnum, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	camera := c.camera
	if camera == nil {
		var err error
		camera, err = device.Open(c.devName,
			device.WithBufferSize(1),
			device.WithPixFormat(v4l2.PixFormat{
				PixelFormat: c.pixFmt,
				Width:       uint32(320),
				Height:      uint32(240),
			}))
		if err != nil {
			return nil, err
		}
		defer camera.Close()
	}

	return v4l2.GetAllFormatFrameSizes(camera.Fd())
}
