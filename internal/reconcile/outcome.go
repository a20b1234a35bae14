package reconcile

import (
	"calboard/internal/gateway"
)

// Caller carries the already resolved identity of whoever issues a request.
type Caller struct {
	Identity string
	IsOwner  bool
}

// NewCaller marks identity as owner when it matches the designated owner.
func NewCaller(identity, owner string) Caller {
	return Caller{Identity: identity, IsOwner: identity != "" && identity == owner}
}

type Kind string

const (
	Confirmed     Kind = "confirmed"
	AlreadyAbsent Kind = "already-absent"
	Rejected      Kind = "rejected"
	Pending       Kind = "pending"
	Denied        Kind = "denied"
)

// Outcome is the result of a delete or update request. Local optimistic
// changes are kept whatever the kind: a Rejected outcome means local and
// remote state may diverge until the next refresh.
type Outcome struct {
	Kind   Kind
	Action gateway.Action
	Reason string
	FileID string
}

func (o Outcome) Message() string {
	switch o.Kind {
	case Confirmed:
		if o.Action == gateway.UpdateEvent {
			return "event updated"
		}
		return "event deleted"
	case AlreadyAbsent:
		return "event was already removed"
	case Rejected:
		if o.Reason == "" {
			return "calendar rejected the request"
		}
		return "calendar rejected the request: " + o.Reason
	case Pending:
		if o.Action == gateway.UpdateEvent {
			return "update request sent, will refresh shortly"
		}
		return "delete request sent, will refresh shortly"
	case Denied:
		return "only the calendar owner can change synced events"
	}
	return string(o.Kind)
}
