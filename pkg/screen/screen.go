// Package screen is the camera screen: it gates on permission, keeps one
// native session open for the resolved device while it is shown, follows
// the app lifecycle and reports media and errors to the host.
package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"snap-shutter/pkg/capture"
	"snap-shutter/pkg/controls"
	"snap-shutter/pkg/lifecycle"
	"snap-shutter/pkg/native"
	"snap-shutter/pkg/permission"
	"snap-shutter/pkg/types"
	"snap-shutter/pkg/utils"
)

const (
	LoadingText            = "Loading Camera..."
	PermissionRequiredText = "Camera permission required."
)

var ErrMounted = errors.New("screen already mounted")

type Kind int

const (
	KindLoading Kind = iota
	KindPermissionRequired
	KindPreview
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindPermissionRequired:
		return "permission-required"
	default:
		return "preview"
	}
}

type Preview struct {
	Device   types.Device
	Format   types.Format
	IsActive bool
	Photo    bool
	Video    bool
}

// View is what the screen shows. Text is set for placeholders, Preview and
// Controls only for KindPreview.
type View struct {
	Kind     Kind
	Text     string
	Preview  *Preview
	Controls []controls.Button
}

type Screen struct {
	driver native.Driver
	source lifecycle.Source
	gate   *permission.Gate
	ctrl   *capture.Controller
	logger *zap.SugaredLogger

	onCapture func(types.Media)
	onError   func(error)
	render    func(View)

	target capture.Target
	prefs  []types.PhysicalDevice

	mu        sync.Mutex
	ctx       context.Context
	mounted   bool
	appState  lifecycle.State
	sub       lifecycle.Subscription
	unsubGate func()
	syncing   bool
	dirty     bool

	// owned by the goroutine running reconcile
	cam       native.Camera
	camKey    string
	camActive bool
}

type Option func(*Screen)

// WithOnCapture receives every photo and finished video. Default: drop.
func WithOnCapture(fn func(types.Media)) Option {
	return func(s *Screen) {
		if fn != nil {
			s.onCapture = fn
		}
	}
}

// WithOnError receives recording and photo failures. Default: drop.
func WithOnError(fn func(error)) Option {
	return func(s *Screen) {
		if fn != nil {
			s.onError = fn
		}
	}
}

// WithRenderer is called with a fresh View after every change.
func WithRenderer(fn func(View)) Option {
	return func(s *Screen) { s.render = fn }
}

func WithTarget(t capture.Target) Option {
	return func(s *Screen) { s.target = t }
}

func WithPhysicalDevices(prefs []types.PhysicalDevice) Option {
	return func(s *Screen) { s.prefs = prefs }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Screen) { s.logger = l }
}

func New(driver native.Driver, source lifecycle.Source, opts ...Option) *Screen {
	s := &Screen{
		driver:    driver,
		source:    source,
		logger:    utils.GetLogger().Named("screen"),
		onCapture: func(types.Media) {},
		onError:   func(error) {},
		target:    capture.Target{FPS: capture.DefaultFPS},
		prefs:     types.DefaultPhysicalDevices,
		ctx:       context.Background(),
		appState:  source.Current(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gate = permission.New(driver)
	s.ctrl = capture.New(driver,
		capture.WithTarget(s.target),
		capture.WithPhysicalDevices(s.prefs),
		capture.WithOnChange(s.invalidate),
		capture.WithLogger(s.logger.Named("capture")),
	)

	return s
}

// Mount requests permission, resolves the camera and follows the app
// lifecycle until Unmount. ctx bounds every native call made for the screen.
func (s *Screen) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return ErrMounted
	}
	s.mounted = true
	s.ctx = ctx
	s.appState = s.source.Current()
	s.mu.Unlock()

	sub := s.source.AddListener(s.onAppStateChange)
	unsubGate := s.gate.Subscribe(func(permission.State) { s.invalidate() })
	s.mu.Lock()
	if !s.mounted {
		// unmounted while subscribing
		s.mu.Unlock()
		sub.Remove()
		unsubGate()
		return nil
	}
	s.sub, s.unsubGate = sub, unsubGate
	s.mu.Unlock()

	s.gate.Start(ctx)
	if err := s.ctrl.Resolve(ctx); err != nil {
		s.logger.Warnf("resolve camera: %s", err)
	}
	s.invalidate()

	return nil
}

// Unmount releases the lifecycle subscription and the native session.
func (s *Screen) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	sub, unsubGate := s.sub, s.unsubGate
	s.sub, s.unsubGate = nil, nil
	s.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
	if unsubGate != nil {
		unsubGate()
	}
	s.invalidate()
}

// WaitPermission blocks until the permission request has been answered.
func (s *Screen) WaitPermission(ctx context.Context) (permission.State, error) {
	return s.gate.Wait(ctx)
}

// Controller exposes the capture controller, e.g. for its recording state.
func (s *Screen) Controller() *capture.Controller {
	return s.ctrl
}

func (s *Screen) View() View {
	dev, f, ok := s.ctrl.Device()
	if !ok {
		return View{Kind: KindLoading, Text: LoadingText}
	}
	if !s.gate.HasPermission() {
		return View{Kind: KindPermissionRequired, Text: PermissionRequiredText}
	}

	s.mu.Lock()
	ctx, active := s.ctx, s.appState == lifecycle.Active
	s.mu.Unlock()

	recordingText := controls.DefaultRecordLabel
	if s.ctrl.IsRecording() {
		recordingText = controls.RecordingLabel
	}

	return View{
		Kind: KindPreview,
		Preview: &Preview{
			Device:   dev,
			Format:   f,
			IsActive: active,
			Photo:    true,
			Video:    true,
		},
		Controls: controls.Render(controls.Props{
			OnSwitch:      func() { s.SwitchCamera(ctx) },
			OnCapture:     func() { s.TakePhoto(ctx) },
			OnRecording:   func() { s.ToggleRecording(ctx) },
			RecordingText: recordingText,
		}),
	}
}

// TakePhoto captures a photo and hands it to the capture callback. Without
// an open session it does nothing.
func (s *Screen) TakePhoto(ctx context.Context) {
	photo, err := s.ctrl.CapturePhoto(ctx)
	switch {
	case errors.Is(err, capture.ErrDeviceNotReady):
		s.logger.Debug("photo skipped: camera not ready")
		return
	case err != nil:
		s.onError(fmt.Errorf("take photo: %w", err))
		return
	case photo == nil:
		return
	}
	s.logger.Infof("photo %dx%d captured (%s)", photo.Width, photo.Height, humanize.Bytes(uint64(len(photo.Data))))
	s.onCapture(photo)
}

// ToggleRecording starts a recording when idle and stops it otherwise.
func (s *Screen) ToggleRecording(ctx context.Context) {
	if s.ctrl.IsRecording() {
		if err := s.ctrl.StopRecording(ctx); err != nil {
			s.logger.Warnf("stop recording: %s", err)
		}
		return
	}

	err := s.ctrl.StartRecording(ctx, s.onRecordingSuccess, s.onRecordingError)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrDeviceNotReady), errors.Is(err, capture.ErrAlreadyRecording):
		s.logger.Debugf("recording not started: %s", err)
	default:
		// already reported through onRecordingError
		s.logger.Warnf("start recording: %s", err)
	}
}

func (s *Screen) SwitchCamera(ctx context.Context) {
	if err := s.ctrl.SwitchCamera(ctx); err != nil {
		s.logger.Warnf("switch camera: %s", err)
	}
}

func (s *Screen) onRecordingSuccess(v *types.Video) {
	s.logger.Infof("video %s recorded: %d frames, %s", v.Path, v.Frames, v.Duration)
	s.onCapture(v)
}

func (s *Screen) onRecordingError(err error) {
	s.onError(err)
}

func (s *Screen) onAppStateChange(st lifecycle.State) {
	s.mu.Lock()
	s.appState = st
	s.mu.Unlock()
	s.logger.Debugf("app state: %s", st)
	s.invalidate()
}

// invalidate reconciles the native session with the current state and
// renders. A call made while another reconcile runs is folded into it.
func (s *Screen) invalidate() {
	s.mu.Lock()
	if s.syncing {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.syncing = true
	s.mu.Unlock()

	for {
		s.reconcile()
		if s.render != nil {
			s.render(s.View())
		}

		s.mu.Lock()
		if !s.dirty {
			s.syncing = false
			s.mu.Unlock()
			return
		}
		s.dirty = false
		s.mu.Unlock()
	}
}

func (s *Screen) reconcile() {
	s.mu.Lock()
	ctx, mounted, active := s.ctx, s.mounted, s.appState == lifecycle.Active
	s.mu.Unlock()

	dev, f, ok := s.ctrl.Device()
	want := mounted && ok && s.gate.HasPermission()
	key := dev.ID + "|" + f.String()

	if s.cam != nil && (!want || s.camKey != key) {
		s.closeCamera()
	}
	if want && s.cam == nil {
		cam, err := s.driver.Open(ctx, dev, f)
		if err != nil {
			s.logger.Errorf("open camera %s: %s", dev.ID, err)
			return
		}
		s.cam, s.camKey, s.camActive = cam, key, false
		s.ctrl.Attach(cam)
	}
	if s.cam != nil && s.camActive != active {
		if err := s.cam.SetActive(active); err != nil {
			s.logger.Warnf("set camera active=%v: %s", active, err)
			return
		}
		s.camActive = active
	}
}

func (s *Screen) closeCamera() {
	cam := s.cam
	s.cam, s.camKey, s.camActive = nil, "", false
	s.ctrl.Detach()
	if err := cam.Close(); err != nil {
		s.logger.Warnf("close camera: %s", err)
	}
}
