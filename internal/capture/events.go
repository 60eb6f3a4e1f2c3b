package capture

import (
	"fmt"

	"github.com/Veraticus/collectorstream/internal/model"
)

// EventKind classifies machine events.
type EventKind int

// Event kinds.
const (
	// EventState follows every applied action, including self-transitions.
	EventState EventKind = iota
	// EventMessage carries a transient user message in Snapshot.Message.
	EventMessage
	// EventMessageCleared follows the message TTL or a later accepted frame.
	EventMessageCleared
	// EventPreview carries the sharpness of a live preview frame.
	EventPreview
	// EventSaved reports the stored card's ID.
	EventSaved
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventMessage:
		return "message"
	case EventMessageCleared:
		return "message_cleared"
	case EventPreview:
		return "preview"
	case EventSaved:
		return "saved"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered on Machine.Events.
type Event struct {
	Quality  *model.QualityScore
	Snapshot Snapshot
	CardID   int64
	Kind     EventKind
	Action   Action
}

// Snapshot is a point-in-time copy of the session. Side images are shared,
// not copied, and must not be modified.
type Snapshot struct {
	Err     error
	Front   *model.CapturedSide
	Back    *model.CapturedSide
	Result  *model.IdentificationResult
	Quality *model.QualityScore
	ID      string
	Message string
	State   State
}
