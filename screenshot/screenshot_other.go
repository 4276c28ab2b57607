//go:build !darwin

package screenshot

import "go.aimuz.me/thinkbox/internal/types"

// HasPermission reports true; other platforms have no preflight.
func HasPermission() bool {
	return true
}

// RequestPermission is a no-op outside macOS.
func RequestPermission() {}

func captureCommand(*types.Region, string) (string, []string, error) {
	return "", nil, ErrUnsupported
}
