package gateway

import (
	"context"

	"github.com/pkg/errors"
)

type Action string

const (
	SyncNow     Action = "syncNow"
	UpdateEvent Action = "updateEvent"
	DeleteEvent Action = "deleteEvent"
)

// ErrTransport marks failures where no acknowledgement could be read:
// network errors, unreadable or non-JSON responses.
var ErrTransport = errors.New("calendar gateway transport failure")

// Gateway is the RPC boundary to the external calendar service. Methods
// return an error only for transport failures; a reported failure comes
// back as an Ack with OK unset.
type Gateway interface {
	SyncNow(ctx context.Context, token string) (Ack, error)
	UpdateEvent(ctx context.Context, token, eventID string, payload EventPayload) (Ack, error)
	DeleteEvent(ctx context.Context, token, eventID string) (Ack, error)
	// Fallback posts req without observing the response.
	Fallback(ctx context.Context, req Request)
}

type Request struct {
	Action  Action        `json:"action"`
	Token   string        `json:"token"`
	EventID string        `json:"eventId,omitempty"`
	Payload *EventPayload `json:"payload,omitempty"`
}

type EventPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
	AllDay      bool   `json:"allDay"`
	Status      string `json:"status,omitempty"`
}

type Ack struct {
	OK      bool   `json:"ok"`
	Deleted *bool  `json:"deleted,omitempty"`
	FileID  string `json:"fileId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AlreadyAbsent reports a successful delete of an event the service no
// longer had.
func (a Ack) AlreadyAbsent() bool {
	return a.OK && a.Deleted != nil && !*a.Deleted
}

func SyncRequest(token string) Request {
	return Request{Action: SyncNow, Token: token}
}

func UpdateRequest(token, eventID string, payload EventPayload) Request {
	return Request{Action: UpdateEvent, Token: token, EventID: eventID, Payload: &payload}
}

func DeleteRequest(token, eventID string) Request {
	return Request{Action: DeleteEvent, Token: token, EventID: eventID}
}
