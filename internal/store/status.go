package store

import "slices"

// Status is the delivery status of a message.
type Status string

const (
	Queued    Status = "queued"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
	Failed    Status = "failed"
)

// validTransitions lists, for every status, the statuses a message may move to.
// Statuses only move forward along queued -> sent -> delivered -> read; failed is
// reachable from queued only and nothing leaves it.
var validTransitions = map[Status][]Status{
	Queued:    {Sent, Delivered, Read, Failed},
	Sent:      {Delivered, Read},
	Delivered: {Read},
	Read:      {},
	Failed:    {},
}

// ParseStatus returns the Status for s and whether s is a known status value.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validTransitions[st]
	return st, ok
}

// CanAdvanceTo reports whether a message in status s may move to next.
func (s Status) CanAdvanceTo(next Status) bool {
	return slices.Contains(validTransitions[s], next)
}

// merge returns the status a message ends up in when next is observed while in s.
func (s Status) merge(next Status) Status {
	if s == "" {
		return next
	}
	if s.CanAdvanceTo(next) {
		return next
	}
	return s
}
