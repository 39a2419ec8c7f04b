package domain

import "time"

// InboundMessage is a user message received by a channel.
type InboundMessage struct {
	Channel    string
	ChatID     string // conversation to answer on; for Twitter the sender's user id
	SenderID   string
	SenderName string
	Content    string
	MediaURLs  []string
	Timestamp  time.Time
}

// OutboundMessage is a reply to be delivered by the channel named in Channel.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	MediaURL string // optional image/GIF to attach
}

// Reply is one message a Responder wants sent back.
type Reply struct {
	Text     string `json:"text" yaml:"text"`
	MediaURL string `json:"media,omitempty" yaml:"media,omitempty"`
}
