package store

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter is a read-side predicate over chats.
type Filter func(Chat) bool

// AllOf returns a filter matching chats accepted by every given filter.
func AllOf(filters ...Filter) Filter {
	return func(c Chat) bool {
		for _, f := range filters {
			if f != nil && !f(c) {
				return false
			}
		}
		return true
	}
}

// UnreadOnly matches chats with at least one unread message.
func UnreadOnly() Filter {
	return func(c Chat) bool { return c.UnreadCount > 0 }
}

// MatchSearch matches chats whose name or phone number contains query,
// ignoring case. An empty query matches everything.
func MatchSearch(query string) Filter {
	q := cases.Fold().String(strings.TrimSpace(query))
	if q == "" {
		return func(Chat) bool { return true }
	}
	return func(c Chat) bool {
		// Casers are stateful; build one per call so the filter can be shared.
		return strings.Contains(cases.Fold().String(c.Name), q) ||
			strings.Contains(c.PhoneNumber, q)
	}
}
