package twitter

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

const (
	eventTypeMessageCreate = "message_create"
	attachmentTypeMedia    = "media"
)

// DirectMessage is the body of POST direct_messages/events/new.json.
type DirectMessage struct {
	Event Event `json:"event"`
}

// Event is a Direct Message event, outbound or as delivered by the webhook.
type Event struct {
	Type             string         `json:"type"`
	ID               string         `json:"id,omitempty"`
	CreatedTimestamp string         `json:"created_timestamp,omitempty"`
	MessageCreate    *MessageCreate `json:"message_create,omitempty"`
}

type MessageCreate struct {
	Target      Target      `json:"target"`
	SenderID    string      `json:"sender_id,omitempty"`
	MessageData MessageData `json:"message_data"`
}

type Target struct {
	RecipientID string `json:"recipient_id"`
}

type MessageData struct {
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

type Attachment struct {
	Type  string    `json:"type"`
	Media MediaInfo `json:"media"`
}

type MediaInfo struct {
	ID ID `json:"id"`
	// Set only on received messages.
	MediaURLHTTPS string `json:"media_url_https,omitempty"`
}

// ID is a Twitter object id. It is always sent as a JSON string but accepts
// the numeric form received in webhook payloads.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// ComposeMessage builds a Direct Message event. The attachment is present
// only when mediaID is non-empty. Text is sent as given, including empty.
func ComposeMessage(recipientID, text, mediaID string) DirectMessage {
	mc := &MessageCreate{
		Target:      Target{RecipientID: recipientID},
		MessageData: MessageData{Text: text},
	}
	if mediaID != "" {
		mc.MessageData.Attachment = &Attachment{
			Type:  attachmentTypeMedia,
			Media: MediaInfo{ID: ID(mediaID)},
		}
	}
	return DirectMessage{Event: Event{Type: eventTypeMessageCreate, MessageCreate: mc}}
}

// IsMessage reports whether e is a message_create event with a payload.
func (e Event) IsMessage() bool {
	return e.Type == eventTypeMessageCreate && e.MessageCreate != nil
}

// Time parses CreatedTimestamp (milliseconds since the epoch). The zero time
// is returned when it is absent or malformed.
func (e Event) Time() time.Time {
	ms, err := strconv.ParseInt(e.CreatedTimestamp, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// sendResponse is what direct_messages/events/new.json returns.
type sendResponse struct {
	Event Event `json:"event"`
}

// ActivityEvent is the account activity webhook payload, reduced to the Direct
// Message fields.
type ActivityEvent struct {
	ForUserID           string          `json:"for_user_id"`
	DirectMessageEvents []Event         `json:"direct_message_events"`
	Users               map[string]User `json:"users"`
}

// User is a participant listed in an ActivityEvent.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// DisplayName prefers the profile name, then the handle.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ScreenName
}
