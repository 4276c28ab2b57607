package screenshot

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Foundation
#import <CoreGraphics/CoreGraphics.h>
#import <Foundation/Foundation.h>

bool hasScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        return CGPreflightScreenCaptureAccess();
    }
    return true;
}

void requestScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        CGRequestScreenCaptureAccess();
    }
}
*/
import "C"
import (
	"fmt"

	"go.aimuz.me/thinkbox/internal/types"
)

// HasPermission checks if the app has screen recording permission.
func HasPermission() bool {
	return bool(C.hasScreenRecordingPermission())
}

// RequestPermission asks the system for screen recording permission.
func RequestPermission() {
	C.requestScreenRecordingPermission()
}

// captureCommand builds a silent screencapture call; -R limits it to region.
func captureCommand(region *types.Region, path string) (string, []string, error) {
	args := []string{"-x", "-t", "png"}
	if region != nil {
		args = append(args, fmt.Sprintf("-R%d,%d,%d,%d", region.X, region.Y, region.W, region.H))
	}
	return "screencapture", append(args, path), nil
}
