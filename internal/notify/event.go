// Package notify delivers match notifications to the watchers of a subject.
//
// The engine hands events to a Dispatcher through Publish, which never blocks.
// Workers drain a bounded queue and fan each event out to every distinct watcher
// through a Sender. Delivery failures are recorded in a DeliveryReport and logged;
// they never reach the submitter.
package notify

import (
	"github.com/kozaktomas/facewatch/internal/database"
)

// Event is one match: a subject resurfaced with a new observation.
type Event struct {
	ID          string
	SubjectID   int64
	SubjectName string
	Observation database.Observation
}

// DeliveryReport summarizes the fan-out of one event.
type DeliveryReport struct {
	EventID   string
	Delivered []string
	Failed    map[string]string // watcher -> error message
}

// Attempted returns the number of watchers a send was attempted for.
func (r DeliveryReport) Attempted() int {
	return len(r.Delivered) + len(r.Failed)
}
