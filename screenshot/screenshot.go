// Package screenshot grabs the screen locally and hands the image over as
// a data URL.
package screenshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.aimuz.me/thinkbox/internal/types"
)

var (
	// ErrUnsupported is returned on platforms without a capture tool.
	ErrUnsupported = errors.New("screen capture is not supported on this platform")
	// ErrNoPermission is returned until the OS grants screen recording.
	ErrNoPermission = errors.New("screen recording permission not granted")
	// ErrInvalidRegion rejects empty capture rectangles.
	ErrInvalidRegion = errors.New("capture region must have a positive size")
)

// Capturer runs the platform capture tool into a temp file.
type Capturer struct {
	run     func(ctx context.Context, name string, args ...string) error
	tempDir string
}

// New returns a Capturer using the platform tool.
func New() *Capturer {
	return &Capturer{
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		tempDir: os.TempDir(),
	}
}

// Capture grabs the given source. region is only used for region captures.
func (c *Capturer) Capture(ctx context.Context, source types.CaptureSource, region *types.Region) (types.LocalCapture, error) {
	if source == types.SourceRegion {
		if region == nil || region.W <= 0 || region.H <= 0 {
			return types.LocalCapture{}, ErrInvalidRegion
		}
	} else {
		region = nil
	}

	if !HasPermission() {
		RequestPermission()
		return types.LocalCapture{}, ErrNoPermission
	}

	path := filepath.Join(c.tempDir, fmt.Sprintf("thinkbox_capture_%d.png", time.Now().UnixNano()))
	defer os.Remove(path)

	name, args, err := captureCommand(region, path)
	if err != nil {
		return types.LocalCapture{}, err
	}
	if err := c.run(ctx, name, args...); err != nil {
		return types.LocalCapture{}, fmt.Errorf("%s failed: %w", name, err)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return types.LocalCapture{}, fmt.Errorf("screenshot cancelled or failed to save")
	}
	if err != nil {
		return types.LocalCapture{}, fmt.Errorf("read capture: %w", err)
	}

	return types.LocalCapture{ImageDataURL: DataURL("image/png", data), Source: source}, nil
}

// DataURL encodes data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
