// Package native declares the camera layer the screen is built on: permission,
// device enumeration and an open capture session. pkg/camera implements it
// on top of V4L2.
package native

import (
	"context"

	"snap-shutter/pkg/types"
)

type PermissionStatus string

const (
	PermissionGranted    PermissionStatus = "granted"
	PermissionDenied     PermissionStatus = "denied"
	PermissionRestricted PermissionStatus = "restricted"
)

type PermissionRequester interface {
	RequestCameraPermission(ctx context.Context) (PermissionStatus, error)
}

type DeviceLister interface {
	Devices(ctx context.Context) ([]types.Device, error)
}

type Driver interface {
	PermissionRequester
	DeviceLister
	// Open prepares a capture session for dev using format f. The session
	// starts inactive.
	Open(ctx context.Context, dev types.Device, f types.Format) (Camera, error)
}

// RecordingOptions carries the completion hooks of a recording. Exactly one
// of them is called per started recording; none if StartRecording fails.
type RecordingOptions struct {
	OnRecordingFinished func(video *types.Video)
	OnRecordingError    func(err error)
}

type Camera interface {
	SetActive(active bool) error
	TakePhoto(ctx context.Context) (*types.Photo, error)
	StartRecording(ctx context.Context, opts RecordingOptions) error
	StopRecording(ctx context.Context) error
	Close() error
}
