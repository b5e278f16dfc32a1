package video

import (
	"errors"
	"sync"
	"time"

	"github.com/icza/mjpeg"

	"snap-shutter/pkg/types"
)

var ErrClosed = errors.New("video builder closed")

// Builder writes JPEG frames into an MJPEG AVI file.
type Builder struct {
	path   string
	width  int
	height int
	fps    int

	lock    sync.Mutex
	cnt     int
	started time.Time
	closed  bool
	aw      mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		path:    path,
		width:   width,
		height:  height,
		fps:     fps,
		started: time.Now(),
		aw:      aw,
	}, nil
}

func (b *Builder) Add(frame []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return ErrClosed
	}
	err := b.aw.AddFrame(frame)
	if err != nil {
		return err
	}
	b.cnt++

	return nil
}

// Close finalizes the file and describes it. Calling Close twice returns ErrClosed.
func (b *Builder) Close() (*types.Video, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.closed = true
	if err := b.aw.Close(); err != nil {
		return nil, err
	}

	return &types.Video{
		Path:      b.path,
		Width:     b.width,
		Height:    b.height,
		FPS:       b.fps,
		Frames:    b.cnt,
		Duration:  b.duration(),
		Timestamp: b.started,
	}, nil
}

func (b *Builder) GetCnt() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.cnt
}

// duration is derived from the frame count so that playback length matches the file.
func (b *Builder) duration() time.Duration {
	if b.fps <= 0 {
		return 0
	}
	return time.Duration(b.cnt) * time.Second / time.Duration(b.fps)
}
