package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"snap-shutter/pkg/camera"
	"snap-shutter/pkg/capture"
	"snap-shutter/pkg/config"
	"snap-shutter/pkg/controls"
	"snap-shutter/pkg/lifecycle"
	"snap-shutter/pkg/screen"
	"snap-shutter/pkg/types"
	"snap-shutter/pkg/utils"
)

var (
	configPath = flag.String("config", "", "config file (yaml or json), defaults to a single rear camera at /dev/video0")
	logLevel   = flag.String("log-level", "", "overrides the configured log level")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
	flag.Parse()
}

func main() {
	defer logger.Sync()

	c := config.Default()
	if *configPath != "" {
		var err error
		if c, err = config.Load(*configPath); err != nil {
			logger.Fatal(err)
		}
	}
	level := c.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	if err := utils.SetLevel(level); err != nil {
		logger.Fatalf("invalid log level %q: %s", level, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGUSR1/SIGUSR2 stand in for the app moving to the background and back.
	app := lifecycle.NewNotifier(lifecycle.Active)
	utils.OnSignal(ctx, func(sig os.Signal) {
		switch sig {
		case syscall.SIGUSR1:
			app.Set(lifecycle.Background)
		case syscall.SIGUSR2:
			app.Set(lifecycle.Active)
		}
	}, syscall.SIGUSR1, syscall.SIGUSR2)

	s := screen.New(camera.NewDriver(ctx, c), app,
		screen.WithOnCapture(onCapture),
		screen.WithOnError(func(err error) {
			logger.Errorf("camera error: %s", err)
		}),
		screen.WithRenderer(render),
		screen.WithTarget(capture.TargetForScreen(c.Screen.Width, c.Screen.Height, c.Screen.HeightRatio, c.TargetFPS)),
		screen.WithPhysicalDevices(c.PhysicalDevices),
	)
	if err := s.Mount(ctx); err != nil {
		logger.Fatal(err)
	}
	defer s.Unmount()

	go readCommands(ctx, s, cancel)

	utils.WatchSignal(ctx)
	logger.Info("shutting down")
}

func onCapture(m types.Media) {
	switch v := m.(type) {
	case *types.Photo:
		name := fmt.Sprintf("IMG_%s.jpg", v.Timestamp.Format("20060102_150405.000"))
		if err := os.WriteFile(name, v.Data, 0o644); err != nil {
			logger.Errorf("save photo: %s", err)
			return
		}
		logger.Infof("photo %dx%d saved to %s (%s)", v.Width, v.Height, name, humanize.Bytes(uint64(len(v.Data))))
	case *types.Video:
		logger.Infof("video %dx%d@%d saved to %s (%d frames, %s)", v.Width, v.Height, v.FPS, v.Path, v.Frames, v.Duration)
	}
}

func render(v screen.View) {
	switch v.Kind {
	case screen.KindPreview:
		labels := make([]string, 0, len(v.Controls))
		for _, b := range v.Controls {
			labels = append(labels, "["+b.Label+"]")
		}
		logger.Infof("preview %s %s active=%t %s",
			v.Preview.Device.ID, v.Preview.Format, v.Preview.IsActive, strings.Join(labels, " "))
	default:
		logger.Info(v.Text)
	}
}

// readCommands maps stdin lines to button presses: s(witch), c(apture),
// r(ecord), q(uit).
func readCommands(ctx context.Context, s *screen.Screen, quit context.CancelFunc) {
	actions := map[string]controls.Action{
		"s": controls.ActionSwitch,
		"c": controls.ActionCapture,
		"r": controls.ActionRecord,
	}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if cmd == "" {
			continue
		}
		if cmd == "q" {
			quit()
			return
		}
		a, ok := actions[cmd[:1]]
		if !ok {
			logger.Warnf("unknown command %q, use s, c, r or q", cmd)
			continue
		}
		b, ok := controls.Find(s.View().Controls, a)
		if !ok {
			logger.Warnf("%s is not available right now", a)
			continue
		}
		b.Press()
	}
}
