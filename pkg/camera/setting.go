package camera

import (
	"fmt"

	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"snap-shutter/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("v4l2")
}

// Settings are V4L2 control values keyed by control id.
type Settings map[v4l2.CtrlID]v4l2.CtrlValue

// SettingsFromConfig converts config control values.
func SettingsFromConfig(controls map[uint32]int32) Settings {
	s := make(Settings, len(controls))
	for k, v := range controls {
		s[v4l2.CtrlID(k)] = v4l2.CtrlValue(v)
	}
	return s
}

func CtrlToString(ctrl v4l2.Control) string {
	return fmt.Sprintf("Control id (%d) name: %s\t[min: %d; max: %d; step: %d; default: %d current_val: %d]",
		ctrl.ID, ctrl.Name, ctrl.Minimum, ctrl.Maximum, ctrl.Step, ctrl.Default, ctrl.Value)
}

// PixelFormat maps a config pixel format name to its fourcc.
func PixelFormat(name string) (v4l2.FourCCType, error) {
	switch name {
	case "MJPEG":
		return v4l2.PixelFmtMJPEG, nil
	case "JPEG":
		return v4l2.PixelFmtJPEG, nil
	case "RGB24":
		return v4l2.PixelFmtRGB24, nil
	}
	return 0, fmt.Errorf("unsupported pixel format %q", name)
}

// ControlInfo describes a V4L2 control for listing.
type ControlInfo struct {
	ID    v4l2.CtrlID    `json:"id"`
	Value v4l2.CtrlValue `json:"value"`
	Name  string         `json:"name"`

	IsMenu    bool     `json:"isMenu"`
	MenuItems []string `json:"menuItems,omitempty"`

	Minimum int32 `json:"minimum"`
	Maximum int32 `json:"maximum"`
	Step    int32 `json:"step"`
}

func ControlInfoOf(ctrl v4l2.Control) ControlInfo {
	info := ControlInfo{
		ID:      ctrl.ID,
		Value:   ctrl.Value,
		Name:    ctrl.Name,
		IsMenu:  ctrl.IsMenu(),
		Minimum: ctrl.Minimum,
		Maximum: ctrl.Maximum,
		Step:    ctrl.Step,
	}
	if !info.IsMenu {
		return info
	}
	items, err := ctrl.GetMenuItems()
	if err != nil {
		logger.Warnf("menu items of control(%d): %s", ctrl.ID, err)
		return info
	}
	for _, m := range items {
		info.MenuItems = append(info.MenuItems, m.Name)
	}
	return info
}
