package camera

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"snap-shutter/pkg/native"
	"snap-shutter/pkg/types"
	"snap-shutter/pkg/utils/image"
	"snap-shutter/pkg/utils/ps"
	"snap-shutter/pkg/video"
)

var (
	ErrNotActive           = errors.New("camera preview is not active")
	ErrNotRecording        = errors.New("not recording")
	ErrAlreadyRecording    = errors.New("already recording")
	ErrInsufficientStorage = errors.New("insufficient storage")
	ErrStreamClosed        = errors.New("capture stream closed")
	ErrFrameTimeout        = errors.New("frame timeout")
)

const DefaultFrameTimeout = 5 * time.Second

type SessionOptions struct {
	RecordDir    string
	MinFreeBytes uint64
	JPEGQuality  int
	FrameTimeout time.Duration
}

// Session implements native.Camera over a persistent preview stream.
//
//   - SetActive(true) starts the device at the video resolution; frames are
//     forwarded to Frames() and, while recording, into the video file.
//   - TakePhoto pauses the preview, grabs one frame at the photo resolution
//     and resumes. While recording it takes the next live frame instead so
//     the recording is not interrupted.
//   - SetActive(false) and Close finish a running recording first.
type Session struct {
	cam    *Camera
	dev    types.Device
	format types.Format
	opts   SessionOptions

	// opMu serializes operations that reconfigure the device.
	opMu sync.Mutex

	mu         sync.Mutex
	previewCh  chan []byte
	loopStop   chan struct{}
	srcUpdate  chan (<-chan []byte)
	pW, pH     int
	previewing bool
	rec        *recording
	snap       chan []byte
}

// frameSink receives the frames of a recording; *video.Builder in production.
type frameSink interface {
	Add(frame []byte) error
	Close() (*types.Video, error)
}

type recording struct {
	builder frameSink
	opts    native.RecordingOptions
}

func NewSession(cam *Camera, dev types.Device, f types.Format, opts SessionOptions) *Session {
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = DefaultFrameTimeout
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = image.DefaultQuality
	}
	return &Session{cam: cam, dev: dev, format: f, opts: opts}
}

// Frames returns the JPEG preview stream, nil before the first activation.
// It is closed when the session becomes inactive.
func (s *Session) Frames() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewCh
}

func (s *Session) SetActive(active bool) error {
	s.opMu.Lock()
	if active {
		defer s.opMu.Unlock()
		return s.startPreview(s.format.VideoWidth, s.format.VideoHeight)
	}

	report, err := s.endRecording()
	if errors.Is(err, ErrNotRecording) {
		err = nil
	}
	err = multierr.Append(err, s.stopPreview())
	s.opMu.Unlock()

	report()
	return err
}

func (s *Session) recordingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

func (s *Session) startPreview(width, height int) error {
	s.mu.Lock()
	if s.previewing {
		s.mu.Unlock()
		return nil
	}
	srcUpdate := s.ensureLoop()
	s.mu.Unlock()

	frames, err := s.cam.Start(width, height)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pW, s.pH = width, height
	s.previewing = true
	s.mu.Unlock()
	srcUpdate <- frames

	return nil
}

// ensureLoop starts the preview loop if needed and returns its source
// channel. s.mu must be held.
func (s *Session) ensureLoop() chan<- (<-chan []byte) {
	if s.previewCh == nil {
		s.previewCh = make(chan []byte, 1)
		s.loopStop = make(chan struct{})
		s.srcUpdate = make(chan (<-chan []byte), 1)
		go s.previewLoop(s.previewCh, s.loopStop, s.srcUpdate)
	}
	return s.srcUpdate
}

func (s *Session) stopPreview() error {
	s.mu.Lock()
	if !s.previewing && s.previewCh == nil {
		s.mu.Unlock()
		return nil
	}
	s.previewing = false
	if s.loopStop != nil {
		close(s.loopStop)
	}
	s.loopStop, s.srcUpdate, s.previewCh = nil, nil, nil
	s.mu.Unlock()

	return s.cam.Stop()
}

// previewLoop forwards frames of the current source to out. It survives
// source changes (photo capture) and only closes out when stop is closed.
func (s *Session) previewLoop(out chan []byte, stop <-chan struct{}, srcUpdate <-chan (<-chan []byte)) {
	defer close(out)

	var current <-chan []byte
	for {
		if current == nil {
			select {
			case <-stop:
				return
			case ch := <-srcUpdate:
				current = ch
			}
			continue
		}

		select {
		case <-stop:
			return
		case ch := <-srcUpdate:
			current = ch
		case frame, ok := <-current:
			if !ok {
				// source ended, e.g. stopped for a photo; wait for the next one
				current = nil
				continue
			}
			if len(frame) == 0 {
				continue
			}
			jpg, err := s.toJPEG(frame, s.format.VideoWidth, s.format.VideoHeight)
			if err != nil {
				logger.Warnf("drop preview frame: %s", err)
				continue
			}
			s.dispatch(jpg)
			// drop the frame rather than block on a slow consumer
			select {
			case out <- jpg:
			default:
			}
		}
	}
}

func (s *Session) dispatch(frame []byte) {
	s.mu.Lock()
	rec, snap := s.rec, s.snap
	s.snap = nil
	s.mu.Unlock()

	if snap != nil {
		snap <- frame
	}
	if rec == nil {
		return
	}
	if err := rec.builder.Add(frame); err != nil && !errors.Is(err, video.ErrClosed) {
		s.failRecording(rec, fmt.Errorf("write video frame: %w", err))
	}
}

func (s *Session) toJPEG(frame []byte, width, height int) ([]byte, error) {
	if !s.cam.RGB() {
		return append([]byte(nil), frame...), nil
	}
	return image.RGB24ToJPEG(frame, width, height, s.opts.JPEGQuality)
}

func (s *Session) TakePhoto(ctx context.Context) (*types.Photo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.recordingActive() {
		return s.snapshot(ctx)
	}

	width, height := s.format.PhotoWidth, s.format.PhotoHeight
	if width == 0 || height == 0 {
		width, height = s.format.VideoWidth, s.format.VideoHeight
	}
	data, err := s.capture(ctx, width, height)
	if err != nil {
		return nil, err
	}
	logger.Infof("photo %dx%d from %s (%s)", width, height, s.dev.ID, humanize.Bytes(uint64(len(data))))

	return &types.Photo{
		Data:      data,
		Width:     width,
		Height:    height,
		DeviceID:  s.dev.ID,
		Timestamp: time.Now(),
	}, nil
}

// snapshot takes the next frame of the running preview.
func (s *Session) snapshot(ctx context.Context) (*types.Photo, error) {
	ch := make(chan []byte, 1)
	s.mu.Lock()
	s.snap = ch
	s.mu.Unlock()

	timer := time.NewTimer(s.opts.FrameTimeout)
	defer timer.Stop()
	select {
	case frame := <-ch:
		return &types.Photo{
			Data:      frame,
			Width:     s.format.VideoWidth,
			Height:    s.format.VideoHeight,
			DeviceID:  s.dev.ID,
			Timestamp: time.Now(),
		}, nil
	case <-timer.C:
		s.clearSnap(ch)
		return nil, ErrFrameTimeout
	case <-ctx.Done():
		s.clearSnap(ch)
		return nil, ctx.Err()
	}
}

func (s *Session) clearSnap(ch chan []byte) {
	s.mu.Lock()
	if s.snap == ch {
		s.snap = nil
	}
	s.mu.Unlock()
}

// capture grabs one frame at width x height. A running preview is paused
// meanwhile and resumed afterwards; its channel stays open.
func (s *Session) capture(ctx context.Context, width, height int) ([]byte, error) {
	s.mu.Lock()
	wasPreviewing := s.previewing
	s.previewing = false
	pW, pH, srcUpdate := s.pW, s.pH, s.srcUpdate
	s.mu.Unlock()

	if wasPreviewing {
		_ = s.cam.Stop()
	}
	resume := func() {
		if !wasPreviewing {
			return
		}
		fr, err := s.resumePreview(pW, pH)
		if err != nil {
			logger.Warnf("failed to resume preview after capture: %v", err)
			return
		}
		s.mu.Lock()
		s.previewing = true
		s.mu.Unlock()
		srcUpdate <- fr
	}

	frames, err := s.cam.Start(width, height)
	if err != nil {
		resume()
		return nil, err
	}

	timer := time.NewTimer(s.opts.FrameTimeout)
	defer timer.Stop()

	var (
		frame []byte
		ok    bool
	)
	select {
	case frame, ok = <-frames:
		if !ok {
			err = ErrStreamClosed
		}
	case <-timer.C:
		err = ErrFrameTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		frame, err = s.toJPEG(frame, width, height)
	}

	_ = s.cam.Stop()
	resume()

	return frame, err
}

// resumePreview restarts the preview after a capture, retrying while the
// driver still reports the device busy.
func (s *Session) resumePreview(width, height int) (<-chan []byte, error) {
	time.Sleep(50 * time.Millisecond)
	var (
		fr  <-chan []byte
		err error
	)
	for i := 0; i < 5; i++ {
		fr, err = s.cam.Start(width, height)
		if err == nil {
			return fr, nil
		}
		if !isBusyErr(err) {
			break
		}
		logger.Warnf("failed to resume preview will retry %d/5: %v", i+1, err)
		time.Sleep(150 * time.Millisecond)
	}
	return nil, err
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}

func (s *Session) StartRecording(_ context.Context, opts native.RecordingOptions) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	previewing, busy := s.previewing, s.rec != nil
	s.mu.Unlock()
	switch {
	case busy:
		return ErrAlreadyRecording
	case !previewing:
		return ErrNotActive
	}

	if err := checkFree(s.opts.RecordDir, s.opts.MinFreeBytes); err != nil {
		return err
	}

	path := filepath.Join(s.opts.RecordDir, fmt.Sprintf("VID_%s.avi", uuid.NewString()))
	b, err := video.NewBuilder(path, s.format.VideoWidth, s.format.VideoHeight, s.cam.FPS())
	if err != nil {
		return fmt.Errorf("create video %s: %w", path, err)
	}
	logger.Infof("recording %s to %s", s.dev.ID, path)

	s.mu.Lock()
	s.rec = &recording{builder: b, opts: opts}
	s.mu.Unlock()

	return nil
}

func checkFree(dir string, min uint64) error {
	if min == 0 {
		return nil
	}
	u, err := ps.DiskUsage(dir)
	if err != nil {
		return fmt.Errorf("check free space of %s: %w", dir, err)
	}
	if u.Free < min {
		return fmt.Errorf("%w: %s free in %s, need %s", ErrInsufficientStorage,
			humanize.Bytes(u.Free), dir, humanize.Bytes(min))
	}
	return nil
}

func (s *Session) StopRecording(context.Context) error {
	s.opMu.Lock()
	report, err := s.endRecording()
	s.opMu.Unlock()

	report()
	return err
}

// endRecording closes the file of the running recording. The returned report
// hands the result to the recording's hooks; call it after releasing opMu,
// the hooks may call back into the session.
func (s *Session) endRecording() (report func(), err error) {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec == nil {
		return func() {}, ErrNotRecording
	}

	v, err := rec.builder.Close()
	if err != nil {
		err = fmt.Errorf("finalize video: %w", err)
		return func() { rec.opts.OnRecordingError(err) }, err
	}
	v.DeviceID = s.dev.ID
	logger.Infof("recorded %s: %d frames, %s", v.Path, v.Frames, v.Duration)

	return func() { rec.opts.OnRecordingFinished(v) }, nil
}

func (s *Session) failRecording(rec *recording, cause error) {
	s.mu.Lock()
	if s.rec != rec {
		s.mu.Unlock()
		return
	}
	s.rec = nil
	s.mu.Unlock()

	if _, err := rec.builder.Close(); err != nil {
		cause = multierr.Append(cause, err)
	}
	rec.opts.OnRecordingError(cause)
}

func (s *Session) Close() error {
	s.opMu.Lock()
	report, err := s.endRecording()
	if errors.Is(err, ErrNotRecording) {
		err = nil
	}
	err = multierr.Combine(err, s.stopPreview(), s.cam.Stop())
	s.opMu.Unlock()

	report()
	return err
}
