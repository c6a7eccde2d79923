// Package notify delivers build notifications to the registered device.
package notify

import (
	"context"
	"errors"
)

// ErrNoTarget is returned when no device token is registered.
var ErrNoTarget = errors.New("no push target registered")

// Notification is a title/body pair shown on the device.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Build notifications sent by the monitor.
var (
	BuildSuccess = Notification{Title: "✅ Build Success", Body: "Your application built successfully."}
	BuildFailure = Notification{Title: "❌ Build Failure", Body: "Your application failed to build. Check details."}
	BuildError   = Notification{Title: "❌ Build Error", Body: "Could not start the build process."}
)

// Sender delivers a notification to one device token.
type Sender interface {
	Send(ctx context.Context, token string, n Notification) error
}

// Noop discards notifications. It is used when push is not configured.
type Noop struct{}

// Send implements Sender.
func (Noop) Send(context.Context, string, Notification) error { return nil }
