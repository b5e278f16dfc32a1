package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vladimirvivien/go4vl/v4l2"

	"snap-shutter/pkg/config"
	"snap-shutter/pkg/native"
	"snap-shutter/pkg/types"
)

func TestPixelFormat(t *testing.T) {
	for name, want := range map[string]v4l2.FourCCType{
		"MJPEG": v4l2.PixelFmtMJPEG,
		"JPEG":  v4l2.PixelFmtJPEG,
		"RGB24": v4l2.PixelFmtRGB24,
	} {
		got, err := PixelFormat(name)
		if err != nil || got != want {
			t.Fatalf("%s: %v %v", name, got, err)
		}
	}
	if _, err := PixelFormat("YUYV"); err == nil {
		t.Fatal("expected error for YUYV")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(map[uint32]int32{10094849: 1, 10094850: 3000})
	if len(s) != 2 || s[v4l2.CtrlID(10094850)] != 3000 {
		t.Fatalf("settings %v", s)
	}
}

func TestFormatsFromSizes(t *testing.T) {
	sizes := []v4l2.FrameSizeEnum{
		{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480}},
		{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MinWidth: 1920, MaxWidth: 1920, MinHeight: 1080, MaxHeight: 1080}},
		{PixelFormat: v4l2.PixelFmtRGB24, Size: v4l2.FrameSize{MinWidth: 3280, MaxWidth: 3280, MinHeight: 2464, MaxHeight: 2464}},
		// stepwise range
		{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MinWidth: 320, MaxWidth: 1920, StepWidth: 2, MinHeight: 240, MaxHeight: 1080, StepHeight: 2}},
	}

	formats := formatsFromSizes(sizes, v4l2.PixelFmtMJPEG, 30, "MJPEG")
	if len(formats) != 3 {
		t.Fatalf("formats %v", formats)
	}
	wantVideo := [][2]int{{1920, 1080}, {640, 480}, {320, 240}}
	for i, f := range formats {
		if f.VideoWidth != wantVideo[i][0] || f.VideoHeight != wantVideo[i][1] {
			t.Fatalf("formats[%d] = %s", i, f)
		}
		if f.PhotoWidth != 1920 || f.PhotoHeight != 1080 || f.MaxFPS != 30 || f.PixelFormat != "MJPEG" {
			t.Fatalf("formats[%d] = %+v", i, f)
		}
	}

	if f := formatsFromSizes(sizes, v4l2.PixelFmtJPEG, 30, "JPEG"); f != nil {
		t.Fatalf("unexpected formats %v", f)
	}
}

func TestCheckAccess(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "video0")
	open := filepath.Join(dir, "video1")
	if err := os.WriteFile(locked, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(open, nil, 0600); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "video9")

	cases := []struct {
		name  string
		paths []string
		want  native.PermissionStatus
	}{
		{"locked", []string{locked}, native.PermissionDenied},
		{"missing", []string{missing}, native.PermissionDenied},
		{"one accessible", []string{locked, open}, native.PermissionGranted},
		{"none configured", nil, native.PermissionRestricted},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := CheckAccess(c.paths)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Fatalf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestSessionRequiresActivePreview(t *testing.T) {
	s := NewSession(New(context.Background(), "/dev/null", v4l2.PixelFmtMJPEG, 30),
		types.Device{ID: "/dev/null"}, types.Format{VideoWidth: 640, VideoHeight: 480}, SessionOptions{RecordDir: t.TempDir()})

	err := s.StartRecording(context.Background(), native.RecordingOptions{
		OnRecordingFinished: func(*types.Video) { t.Error("finished called") },
		OnRecordingError:    func(error) { t.Error("error called") },
	})
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("start recording: %v", err)
	}
	if err := s.StopRecording(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("stop recording: %v", err)
	}
	if err := s.SetActive(false); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCheckFree(t *testing.T) {
	dir := t.TempDir()
	if err := checkFree(dir, 0); err != nil {
		t.Fatal(err)
	}
	if err := checkFree(dir, 1<<62); !errors.Is(err, ErrInsufficientStorage) {
		t.Fatalf("err = %v", err)
	}
	if err := checkFree(filepath.Join(dir, "missing"), 1); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

// TestCamera needs a real camera at /dev/video0.
func TestCamera(t *testing.T) {
	const dev = "/dev/video0"
	if _, err := os.Stat(dev); err != nil {
		t.Skip("no camera at " + dev)
	}
	c := config.Default()
	c.Record.Dir = t.TempDir()
	d := NewDriver(context.Background(), c)

	devices, err := d.Devices(context.Background())
	if err != nil || len(devices) == 0 {
		t.Skipf("no usable camera: %v", err)
	}
	f := devices[0].Formats[len(devices[0].Formats)-1]
	cam, err := d.Open(context.Background(), devices[0], f)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	if err = cam.SetActive(true); err != nil {
		t.Fatal(err)
	}
	photo, err := cam.TakePhoto(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(photo.Data) == 0 {
		t.Fatal("empty photo")
	}
	t.Logf("photo %dx%d %d bytes", photo.Width, photo.Height, len(photo.Data))
}
