package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"snap-shutter/pkg/types"
)

const (
	DefaultScreenWidth  = 1080
	DefaultScreenHeight = 2340
	DefaultHeightRatio  = 0.8
	DefaultTargetFPS    = 60
	DefaultDeviceFPS    = 30
	DefaultMinFreeBytes = 64 << 20
	DefaultJPEGQuality  = 90
	DefaultPixelFormat  = "MJPEG"
	DefaultLogLevel     = "info"
)

// Device describes one camera node. V4L2 knows nothing about where a
// camera sits on the device, so position and sensors come from here.
type Device struct {
	Path            string                 `json:"path" yaml:"path"`
	Name            string                 `json:"name" yaml:"name"`
	Position        types.Position         `json:"position" yaml:"position"`
	PhysicalDevices []types.PhysicalDevice `json:"physicalDevices" yaml:"physical_devices"`
	// PixelFormat is one of MJPEG, JPEG or RGB24.
	PixelFormat string `json:"pixelFormat" yaml:"pixel_format"`
	MaxFPS      int    `json:"maxFps" yaml:"max_fps"`
	// Controls are V4L2 control values applied whenever the stream starts.
	Controls map[uint32]int32 `json:"controls" yaml:"controls"`
}

type Screen struct {
	Width       int     `json:"width" yaml:"width"`
	Height      int     `json:"height" yaml:"height"`
	HeightRatio float64 `json:"heightRatio" yaml:"height_ratio"`
}

type Record struct {
	Dir          string `json:"dir" yaml:"dir"`
	MinFreeBytes uint64 `json:"minFreeBytes" yaml:"min_free_bytes"`
	JPEGQuality  int    `json:"jpegQuality" yaml:"jpeg_quality"`
}

type Config struct {
	LogLevel        string                 `json:"logLevel" yaml:"log_level"`
	Devices         []Device               `json:"devices" yaml:"devices"`
	Screen          Screen                 `json:"screen" yaml:"screen"`
	TargetFPS       int                    `json:"targetFps" yaml:"target_fps"`
	PhysicalDevices []types.PhysicalDevice `json:"physicalDevices" yaml:"physical_devices"`
	Record          Record                 `json:"record" yaml:"record"`
}

// Default is a single rear camera at /dev/video0.
func Default() *Config {
	c := &Config{
		Devices: []Device{{
			Path:            "/dev/video0",
			Name:            "rear",
			Position:        types.PositionBack,
			PhysicalDevices: []types.PhysicalDevice{types.WideAngle},
		}},
	}
	c.applyDefaults()
	return c
}

// Load reads a YAML (.yaml, .yml) or JSON (.json) file and fills unset
// fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Screen.Width == 0 {
		c.Screen.Width = DefaultScreenWidth
	}
	if c.Screen.Height == 0 {
		c.Screen.Height = DefaultScreenHeight
	}
	if c.Screen.HeightRatio == 0 {
		c.Screen.HeightRatio = DefaultHeightRatio
	}
	if c.TargetFPS == 0 {
		c.TargetFPS = DefaultTargetFPS
	}
	if len(c.PhysicalDevices) == 0 {
		c.PhysicalDevices = types.DefaultPhysicalDevices
	}
	if c.Record.Dir == "" {
		c.Record.Dir = os.TempDir()
	}
	if c.Record.MinFreeBytes == 0 {
		c.Record.MinFreeBytes = DefaultMinFreeBytes
	}
	if c.Record.JPEGQuality == 0 {
		c.Record.JPEGQuality = DefaultJPEGQuality
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.PixelFormat == "" {
			d.PixelFormat = DefaultPixelFormat
		}
		d.PixelFormat = strings.ToUpper(d.PixelFormat)
		if d.MaxFPS == 0 {
			d.MaxFPS = DefaultDeviceFPS
		}
		if d.Name == "" {
			d.Name = filepath.Base(d.Path)
		}
		if len(d.PhysicalDevices) == 0 {
			d.PhysicalDevices = []types.PhysicalDevice{types.WideAngle}
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Devices) == 0 {
		errs = append(errs, errors.New("no camera devices configured"))
	}
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.Path == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: path is required", i))
		}
		if seen[d.Path] {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate path %s", i, d.Path))
		}
		seen[d.Path] = true
		if d.Position != types.PositionBack && d.Position != types.PositionFront {
			errs = append(errs, fmt.Errorf("devices[%d]: position must be back or front, got %q", i, d.Position))
		}
		switch d.PixelFormat {
		case "MJPEG", "JPEG", "RGB24":
		default:
			errs = append(errs, fmt.Errorf("devices[%d]: unsupported pixel format %q", i, d.PixelFormat))
		}
		if d.MaxFPS < 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: max_fps must be positive", i))
		}
	}
	if c.Screen.Width < 0 || c.Screen.Height < 0 {
		errs = append(errs, errors.New("screen dimensions must be positive"))
	}
	if c.Screen.HeightRatio < 0 || c.Screen.HeightRatio > 1 {
		errs = append(errs, fmt.Errorf("screen height_ratio %v outside (0, 1]", c.Screen.HeightRatio))
	}
	if c.Record.JPEGQuality < 1 || c.Record.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("record jpeg_quality %d outside [1, 100]", c.Record.JPEGQuality))
	}

	return errors.Join(errs...)
}
