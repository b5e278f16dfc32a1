package capture

import (
	"slices"

	"snap-shutter/pkg/types"
)

const (
	DefaultFPS         = 60
	DefaultHeightRatio = 0.8
)

// Target is the format the preview asks for.
type Target struct {
	Width  int
	Height int
	FPS    int
}

// TargetForScreen asks for the full preview width, heightRatio of its height and fps.
func TargetForScreen(width, height int, heightRatio float64, fps int) Target {
	if heightRatio <= 0 || heightRatio > 1 {
		heightRatio = DefaultHeightRatio
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return Target{
		Width:  width,
		Height: int(float64(height)*heightRatio + 0.5),
		FPS:    fps,
	}
}

// SelectDevice picks the device at pos whose sensors best cover prefs.
//
// Ranking: more preferred sensors, then fewer sensors outside prefs, then the
// best preference rank among its sensors, then enumeration order.
func SelectDevice(devices []types.Device, pos types.Position, prefs []types.PhysicalDevice) (types.Device, bool) {
	var (
		best      types.Device
		bestScore deviceScore
		found     bool
	)
	for _, d := range devices {
		if d.Position != pos {
			continue
		}
		s := scoreDevice(d, prefs)
		if !found || s.better(bestScore) {
			best, bestScore, found = d, s, true
		}
	}

	return best, found
}

type deviceScore struct {
	matches int
	extra   int
	rank    int
}

func scoreDevice(d types.Device, prefs []types.PhysicalDevice) deviceScore {
	s := deviceScore{rank: len(prefs)}
	for _, p := range d.PhysicalDevices {
		i := slices.Index(prefs, p)
		if i < 0 {
			s.extra++
			continue
		}
		s.matches++
		s.rank = min(s.rank, i)
	}
	return s
}

func (s deviceScore) better(o deviceScore) bool {
	if s.matches != o.matches {
		return s.matches > o.matches
	}
	if s.extra != o.extra {
		return s.extra < o.extra
	}
	return s.rank < o.rank
}

// SelectFormat negotiates the device format closest to t. Resolution is
// compared orientation-free and outranks the frame rate.
func SelectFormat(d types.Device, t Target) (types.Format, bool) {
	if len(d.Formats) == 0 {
		return types.Format{}, false
	}
	tl, ts := longShort(t.Width, t.Height)

	best := d.Formats[0]
	bestRes, bestFPS := formatDistance(best, tl, ts, t.FPS)
	for _, f := range d.Formats[1:] {
		res, fps := formatDistance(f, tl, ts, t.FPS)
		if res < bestRes || (res == bestRes && fps < bestFPS) {
			best, bestRes, bestFPS = f, res, fps
		}
	}

	return best, true
}

func formatDistance(f types.Format, targetLong, targetShort, fps int) (res, fpsGap int) {
	fl, fs := longShort(f.VideoWidth, f.VideoHeight)
	res = abs(fl-targetLong) + abs(fs-targetShort)
	switch {
	case fps <= 0:
	case f.MaxFPS < fps:
		fpsGap = fps - f.MaxFPS
	case f.MinFPS > fps:
		fpsGap = f.MinFPS - fps
	}
	return res, fpsGap
}

func longShort(w, h int) (int, int) {
	if w >= h {
		return w, h
	}
	return h, w
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
