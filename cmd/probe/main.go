package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"snap-shutter/pkg/camera"
	"snap-shutter/pkg/capture"
	"snap-shutter/pkg/config"
	"snap-shutter/pkg/types"
)

// probe prints the cameras the screen would see and the device and format
// it would resolve for each position.
func main() {
	configPath := flag.String("config", "", "config file (yaml or json)")
	controls := flag.Bool("controls", false, "also list V4L2 controls of every device")
	preview := flag.Int("preview", 0, "read this many preview frames from the resolved back camera")
	flag.Parse()

	c := config.Default()
	if *configPath != "" {
		var err error
		if c, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}

	ctx := context.Background()
	d := camera.NewDriver(ctx, c)

	status, err := d.RequestCameraPermission(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("permission: %s\n", status)

	devices, err := d.Devices(ctx)
	if err != nil {
		log.Fatal(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(devices); err != nil {
		log.Fatal(err)
	}

	target := capture.TargetForScreen(c.Screen.Width, c.Screen.Height, c.Screen.HeightRatio, c.TargetFPS)
	for _, pos := range []types.Position{types.PositionBack, types.PositionFront} {
		dev, ok := capture.SelectDevice(devices, pos, c.PhysicalDevices)
		if !ok {
			fmt.Printf("%s: no device\n", pos)
			continue
		}
		f, _ := capture.SelectFormat(dev, target)
		fmt.Printf("%s: %s (%s) %s\n", pos, dev.ID, dev.Name, f)

		if pos == types.PositionBack && *preview > 0 {
			if err := readPreview(ctx, d, dev, f, *preview); err != nil {
				log.Printf("preview %s: %v", dev.ID, err)
			}
		}
	}

	if *controls {
		for _, dc := range c.Devices {
			if err := printControls(ctx, dc); err != nil {
				log.Printf("%s: %v", dc.Path, err)
			}
		}
	}
}

func readPreview(ctx context.Context, d *camera.Driver, dev types.Device, f types.Format, n int) error {
	s, err := d.OpenSession(ctx, dev, f)
	if err != nil {
		return err
	}
	defer s.Close()
	if err = s.SetActive(true); err != nil {
		return err
	}

	frames := s.Frames()
	for i := 1; i <= n; i++ {
		select {
		case frame, ok := <-frames:
			if !ok {
				return camera.ErrStreamClosed
			}
			fmt.Printf("preview frame %d: %s\n", i, humanize.Bytes(uint64(len(frame))))
		case <-time.After(camera.DefaultFrameTimeout):
			return camera.ErrFrameTimeout
		}
	}
	return nil
}

func printControls(ctx context.Context, dc config.Device) error {
	pix, err := camera.PixelFormat(dc.PixelFormat)
	if err != nil {
		return err
	}
	cam := camera.New(ctx, dc.Path, pix, dc.MaxFPS)
	if _, err = cam.Start(640, 480); err != nil {
		return err
	}
	defer cam.Stop()

	ctrls, err := cam.Controls()
	if err != nil {
		return err
	}
	infos := make([]camera.ControlInfo, 0, len(ctrls))
	for _, ctrl := range ctrls {
		infos = append(infos, camera.ControlInfoOf(ctrl))
	}
	fmt.Printf("%s controls:\n", dc.Path)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(infos)
}
