package types

import (
	"fmt"
	"time"
)

type Position string

const (
	PositionBack  Position = "back"
	PositionFront Position = "front"
)

// Opposite returns the other side of the device.
func (p Position) Opposite() Position {
	if p == PositionBack {
		return PositionFront
	}
	return PositionBack
}

type PhysicalDevice string

const (
	WideAngle      PhysicalDevice = "wide-angle-camera"
	UltraWideAngle PhysicalDevice = "ultra-wide-angle-camera"
	Telephoto      PhysicalDevice = "telephoto-camera"
)

// DefaultPhysicalDevices is the sensor preference order used when resolving a position.
var DefaultPhysicalDevices = []PhysicalDevice{WideAngle, UltraWideAngle, Telephoto}

type Format struct {
	VideoWidth  int `json:"videoWidth" yaml:"video_width"`
	VideoHeight int `json:"videoHeight" yaml:"video_height"`
	PhotoWidth  int `json:"photoWidth" yaml:"photo_width"`
	PhotoHeight int `json:"photoHeight" yaml:"photo_height"`
	MinFPS      int `json:"minFps" yaml:"min_fps"`
	MaxFPS      int `json:"maxFps" yaml:"max_fps"`

	// PixelFormat is the driver pixel format name, e.g. "MJPEG".
	PixelFormat string `json:"pixelFormat,omitempty" yaml:"pixel_format,omitempty"`
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d@%d-%dfps(%s)", f.VideoWidth, f.VideoHeight, f.MinFPS, f.MaxFPS, f.PixelFormat)
}

type Device struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Position        Position         `json:"position"`
	PhysicalDevices []PhysicalDevice `json:"physicalDevices"`
	Formats         []Format         `json:"formats"`
}

// Media is a captured artifact, either *Photo or *Video.
type Media interface {
	MediaKind() string
}

type Photo struct {
	Data      []byte
	Width     int
	Height    int
	DeviceID  string
	Timestamp time.Time
}

func (*Photo) MediaKind() string { return "photo" }

type Video struct {
	Path      string
	Width     int
	Height    int
	FPS       int
	Frames    int
	Duration  time.Duration
	DeviceID  string
	Timestamp time.Time
}

func (*Video) MediaKind() string { return "video" }
