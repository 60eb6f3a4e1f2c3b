// Package capture drives the front/back scan workflow: it takes stills from a
// camera, gates them on sharpness, crops the card and hands both sides to the
// identification chain.
package capture

import "fmt"

// State is a step of the scan workflow.
type State int

// Scan states.
const (
	StateReady State = iota
	StateScanningFront
	StateReviewFront
	StateScanningBack
	StateReviewBack
	StateProcessing
	StateIdentified
	StateError
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateScanningFront:
		return "scanning_front"
	case StateReviewFront:
		return "review_front"
	case StateScanningBack:
		return "scanning_back"
	case StateReviewBack:
		return "review_back"
	case StateProcessing:
		return "processing"
	case StateIdentified:
		return "identified"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scanning reports whether the state is waiting for a frame.
func (s State) Scanning() bool {
	return s == StateScanningFront || s == StateScanningBack
}

// Action is an input to the state machine.
type Action int

// Actions. FrameAccepted, FrameRejected, Completed and Failed are raised by
// the machine itself; the rest come from the user.
const (
	ActionStartScan Action = iota
	ActionFrameAccepted
	ActionFrameRejected
	ActionConfirmFront
	ActionRetakeFront
	ActionConfirmBack
	ActionRetakeBack
	ActionCompleted
	ActionFailed
	ActionSave
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionStartScan:
		return "start_scan"
	case ActionFrameAccepted:
		return "frame_accepted"
	case ActionFrameRejected:
		return "frame_rejected"
	case ActionConfirmFront:
		return "confirm_front"
	case ActionRetakeFront:
		return "retake_front"
	case ActionConfirmBack:
		return "confirm_back"
	case ActionRetakeBack:
		return "retake_back"
	case ActionCompleted:
		return "completed"
	case ActionFailed:
		return "failed"
	case ActionSave:
		return "save"
	case ActionCancel:
		return "cancel"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// transitions lists every legal move. Anything absent is illegal.
var transitions = map[State]map[Action]State{
	StateReady: {
		ActionStartScan: StateScanningFront,
	},
	StateScanningFront: {
		ActionFrameAccepted: StateReviewFront,
		ActionFrameRejected: StateScanningFront,
		ActionCancel:        StateReady,
	},
	StateReviewFront: {
		ActionConfirmFront: StateScanningBack,
		ActionRetakeFront:  StateScanningFront,
		ActionCancel:       StateReady,
	},
	StateScanningBack: {
		ActionFrameAccepted: StateReviewBack,
		ActionFrameRejected: StateScanningBack,
		ActionCancel:        StateReady,
	},
	StateReviewBack: {
		ActionConfirmBack: StateProcessing,
		ActionRetakeBack:  StateScanningBack,
		ActionFailed:      StateError,
		ActionCancel:      StateReady,
	},
	StateProcessing: {
		ActionCompleted: StateIdentified,
		ActionFailed:    StateError,
		ActionCancel:    StateReady,
	},
	StateIdentified: {
		ActionSave:   StateReady,
		ActionCancel: StateReady,
	},
	StateError: {
		ActionCancel: StateReady,
	},
}

// Next returns the state an action leads to, and whether it is legal.
func Next(from State, action Action) (State, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

// Legal lists the actions accepted in a state, in declaration order.
func Legal(from State) []Action {
	var actions []Action
	for a := ActionStartScan; a <= ActionCancel; a++ {
		if _, ok := transitions[from][a]; ok {
			actions = append(actions, a)
		}
	}
	return actions
}
