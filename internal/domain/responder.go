package domain

import "context"

// Responder decides what to answer to an inbound message. An empty result
// means no answer.
type Responder interface {
	Respond(ctx context.Context, msg InboundMessage) []Reply
}
