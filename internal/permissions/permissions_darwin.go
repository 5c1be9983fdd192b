//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int micPermissionStatus() {
    return (int)[AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
}

void micPermissionPrompt() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import (
	"context"
	"time"
)

// AVAuthorizationStatus values
const (
	avNotDetermined = 0
	avRestricted    = 1
	avDenied        = 2
	avAuthorized    = 3
)

type systemPrompter struct{}

// New returns the macOS prompter backed by AVFoundation.
func New() Prompter {
	return systemPrompter{}
}

// Request shows the system microphone dialog if the status is undetermined
// and polls until the user answers or ctx is cancelled. AVFoundation's
// completion handler cannot be bridged without an exported callback, so
// polling keeps the cgo surface to two plain functions.
func (systemPrompter) Request(ctx context.Context) (Status, error) {
	if s, ok := determined(); ok {
		return s, nil
	}

	C.micPermissionPrompt()

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return StatusNotDetermined, ctx.Err()
		case <-tick.C:
			if s, ok := determined(); ok {
				return s, nil
			}
		}
	}
}

func determined() (Status, bool) {
	switch int(C.micPermissionStatus()) {
	case avAuthorized:
		return StatusGranted, true
	case avDenied, avRestricted:
		return StatusDenied, true
	default:
		return StatusNotDetermined, false
	}
}
