package ports

import "context"

// NotificationSink delivers one-line notification messages to an external
// endpoint. Send returns nil only when the sink positively acknowledged the
// message; a successful dispatch with an unparseable acknowledgment is an
// error, so delivery is at-least-once and duplicates are possible.
type NotificationSink interface {
	Send(ctx context.Context, text string) error
}
