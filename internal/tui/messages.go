package tui

import "github.com/Veraticus/collectorstream/internal/capture"

// eventMsg carries one machine event into the update loop.
type eventMsg struct {
	event capture.Event
}

// eventsClosedMsg follows the machine closing its event channel.
type eventsClosedMsg struct{}

// savedMsg reports a stored card.
type savedMsg struct {
	id int64
}

// errorMsg reports a rejected user action.
type errorMsg struct {
	err    error
	action string
}
