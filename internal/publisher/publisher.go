// Package publisher defines how build notifications leave the process.
package publisher

import "context"

// Publisher pushes a payload to a named topic and returns the broker's
// message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
