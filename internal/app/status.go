package app

import "strings"

// RequestStatus is the canonical appointment-request status.
type RequestStatus string

const (
	RequestPending     RequestStatus = "pending"
	RequestUnderReview RequestStatus = "under_review"
	RequestFollowUp    RequestStatus = "follow_up"
	RequestScheduled   RequestStatus = "scheduled"
	RequestConfirmed   RequestStatus = "confirmed"
	RequestCompleted   RequestStatus = "completed"
	RequestCancelled   RequestStatus = "cancelled"
)

// requestStatusAliases maps every string producers have written to the
// canonical status.
var requestStatusAliases = map[string]RequestStatus{
	"pending":                  RequestPending,
	"new":                      RequestPending,
	"pending_review":           RequestPending,
	"info_gathered":            RequestPending,
	"under_review":             RequestUnderReview,
	"pending_therapist_review": RequestUnderReview,
	"follow_up":                RequestFollowUp,
	"follow_up_scheduled":      RequestFollowUp,
	"scheduled":                RequestScheduled,
	"booked":                   RequestScheduled,
	"appointment_booked":       RequestScheduled,
	"confirmed":                RequestConfirmed,
	"completed":                RequestCompleted,
	"cancelled":                RequestCancelled,
	"canceled":                 RequestCancelled,
}

// NormalizeRequestStatus maps a stored status to its canonical form. Unknown
// strings come back as pending with ok=false.
func NormalizeRequestStatus(raw string) (RequestStatus, bool) {
	s, ok := requestStatusAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return RequestPending, false
	}
	return s, true
}

// IsActive reports whether a request in this status still represents an open
// scheduling preference.
func (s RequestStatus) IsActive() bool {
	switch s {
	case RequestPending, RequestUnderReview, RequestFollowUp, RequestScheduled, RequestConfirmed:
		return true
	}
	return false
}

// finishedStatuses are never moved by confirm or cancel.
var finishedStatuses = []RequestStatus{RequestCompleted, RequestCancelled}

// statusStrings lists every stored string that normalises to one of
// statuses, for filtering in SQL before normalisation. Never nil.
func statusStrings(statuses []RequestStatus) []string {
	out := []string{}
	for k, v := range requestStatusAliases {
		if containsStatus(statuses, v) {
			out = append(out, k)
		}
	}
	return out
}

func containsStatus(list []RequestStatus, s RequestStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
