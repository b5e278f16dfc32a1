package camera

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"snap-shutter/pkg/native"
)

// CheckAccess maps device node access to a permission status: granted if
// any node is readable and writable, denied if all are refused or missing.
func CheckAccess(paths []string) (native.PermissionStatus, error) {
	if len(paths) == 0 {
		return native.PermissionRestricted, nil
	}
	for _, p := range paths {
		err := unix.Access(p, unix.R_OK|unix.W_OK)
		switch {
		case err == nil:
			return native.PermissionGranted, nil
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, unix.ENOENT):
			logger.Debugf("no access to %s: %v", p, err)
		default:
			return "", fmt.Errorf("access %s: %w", p, err)
		}
	}
	return native.PermissionDenied, nil
}
