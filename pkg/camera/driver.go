package camera

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/vladimirvivien/go4vl/v4l2"

	"snap-shutter/pkg/config"
	"snap-shutter/pkg/native"
	"snap-shutter/pkg/types"
)

// Driver serves the configured V4L2 nodes as native cameras.
type Driver struct {
	ctx     context.Context
	devices []config.Device
	record  config.Record
}

func NewDriver(ctx context.Context, c *config.Config) *Driver {
	return &Driver{ctx: ctx, devices: c.Devices, record: c.Record}
}

func (d *Driver) RequestCameraPermission(context.Context) (native.PermissionStatus, error) {
	paths := make([]string, 0, len(d.devices))
	for _, dev := range d.devices {
		paths = append(paths, dev.Path)
	}
	return CheckAccess(paths)
}

// Devices enumerates the frame sizes of every configured node. Nodes that
// cannot be queried are skipped.
func (d *Driver) Devices(ctx context.Context) ([]types.Device, error) {
	var res []types.Device
	for _, c := range d.devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pix, err := PixelFormat(c.PixelFormat)
		if err != nil {
			return nil, err
		}
		sizes, err := New(d.ctx, c.Path, pix, c.MaxFPS).FrameSizes()
		if err != nil {
			logger.Warnf("skip %s: %v", c.Path, err)
			continue
		}
		formats := formatsFromSizes(sizes, pix, c.MaxFPS, c.PixelFormat)
		if len(formats) == 0 {
			logger.Warnf("skip %s: no %s frame sizes", c.Path, c.PixelFormat)
			continue
		}
		res = append(res, types.Device{
			ID:              c.Path,
			Name:            c.Name,
			Position:        c.Position,
			PhysicalDevices: slices.Clone(c.PhysicalDevices),
			Formats:         formats,
		})
	}
	logger.Debugf("found %d camera devices", len(res))

	return res, nil
}

type size struct{ w, h int }

// formatsFromSizes turns the frame sizes of pix into formats, largest first.
// Stepwise ranges contribute their bounds. Photos use the largest size.
func formatsFromSizes(sizes []v4l2.FrameSizeEnum, pix v4l2.FourCCType, maxFPS int, pixName string) []types.Format {
	var all []size
	for _, s := range sizes {
		if s.PixelFormat != pix {
			continue
		}
		for _, c := range []size{
			{int(s.Size.MinWidth), int(s.Size.MinHeight)},
			{int(s.Size.MaxWidth), int(s.Size.MaxHeight)},
		} {
			if c.w > 0 && c.h > 0 && !slices.Contains(all, c) {
				all = append(all, c)
			}
		}
	}
	if len(all) == 0 {
		return nil
	}
	slices.SortStableFunc(all, func(a, b size) int {
		return cmp.Compare(b.w*b.h, a.w*a.h)
	})

	photo := all[0]
	formats := make([]types.Format, 0, len(all))
	for _, s := range all {
		formats = append(formats, types.Format{
			VideoWidth:  s.w,
			VideoHeight: s.h,
			PhotoWidth:  photo.w,
			PhotoHeight: photo.h,
			MinFPS:      1,
			MaxFPS:      maxFPS,
			PixelFormat: pixName,
		})
	}

	return formats
}

func (d *Driver) Open(ctx context.Context, dev types.Device, f types.Format) (native.Camera, error) {
	return d.OpenSession(ctx, dev, f)
}

// OpenSession is Open returning the concrete session, e.g. for its preview frames.
func (d *Driver) OpenSession(_ context.Context, dev types.Device, f types.Format) (*Session, error) {
	idx := slices.IndexFunc(d.devices, func(c config.Device) bool { return c.Path == dev.ID })
	if idx < 0 {
		return nil, fmt.Errorf("unknown camera device %s", dev.ID)
	}
	c := d.devices[idx]
	pix, err := PixelFormat(c.PixelFormat)
	if err != nil {
		return nil, err
	}

	fps := c.MaxFPS
	if f.MaxFPS > 0 && f.MaxFPS < fps {
		fps = f.MaxFPS
	}
	cam := New(d.ctx, c.Path, pix, fps)
	cam.UpdateSettings(SettingsFromConfig(c.Controls))
	logger.Infof("open %s (%s) with %s", c.Path, c.Name, f)

	return NewSession(cam, dev, f, SessionOptions{
		RecordDir:    d.record.Dir,
		MinFreeBytes: d.record.MinFreeBytes,
		JPEGQuality:  d.record.JPEGQuality,
	}), nil
}
