package permissions

import "context"

// Status is the outcome of a microphone permission request.
type Status int

const (
	StatusNotDetermined Status = iota
	StatusDenied
	StatusGranted
)

// Prompter requests microphone access from the OS. Request blocks the
// calling goroutine until the outcome is known or ctx is cancelled; denial
// is terminal for the session and is never retried automatically.
type Prompter interface {
	Request(ctx context.Context) (Status, error)
}

// Granted returns a Prompter that always grants, for capture sources that
// never touch the microphone (e.g. file playback).
func Granted() Prompter {
	return grantedPrompter{}
}

type grantedPrompter struct{}

func (grantedPrompter) Request(ctx context.Context) (Status, error) {
	return StatusGranted, nil
}
