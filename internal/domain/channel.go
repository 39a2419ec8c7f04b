package domain

import "context"

// Channel is a user-facing transport (Twitter Direct Messages, local CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, msg OutboundMessage) error
}
