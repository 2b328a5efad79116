// Package bot runs the conversation layer of opsbot: it receives chat
// input through a platform Adapter, drives the per-conversation state
// machine, calls the operations API and renders replies.
package bot

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage is a text message, button press or photo received from
// the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "telegram", "slack"
	ChannelID string    // platform-specific chat identifier
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable username
	Text      string    // raw message text; empty for button presses
	Action    string    // encoded button action; empty for text messages
	Photo     *Photo    // attached image, if any
	Timestamp time.Time // when the message was sent
}

// Photo is an image attached to an inbound message. Adapters download the
// largest available size.
type Photo struct {
	FileName string
	Data     []byte
}

// OutboundMessage is a reply to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string     // target chat
	Text      string     // message text (light markdown: *bold* and ``` fences)
	Keyboard  [][]Button // rows of inline buttons; nil for none
}

// Button is an inline button. Action is delivered back verbatim in
// InboundMessage.Action when the button is pressed.
type Button struct {
	Label  string
	Action string
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// MessageLimiter is an optional interface for adapters whose platform caps
// the length of a single message.
type MessageLimiter interface {
	MaxMessageLen() int
}
