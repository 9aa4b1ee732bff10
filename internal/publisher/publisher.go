// Package publisher defines the message publisher used to announce finished
// worker runs to whatever merges their artifacts.
package publisher

import "context"

// Publisher sends a JSON-encodable payload to a topic and returns the
// broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, attrs map[string]string) (string, error)
}
