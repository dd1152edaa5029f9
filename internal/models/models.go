package models

import (
	"time"

	"github.com/TheKaroKaro/IDExpatsInMY/internal/store"
)

// Moderation states. Every submission starts Pending; only Approved records
// are served by the public read endpoints.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
)

// Rating is an append-only star rating tied to a parent listing. IP and
// device identifiers are stored hashed only.
type Rating struct {
	ParentID    string
	Stars       int
	DisplayName string
	IPHash      string
	DeviceHash  string
	CreatedAt   time.Time
}

// Fields maps the rating onto its store columns.
func (r Rating) Fields() store.Fields {
	return store.Fields{
		"ContactId":   r.ParentID,
		"Stars":       r.Stars,
		"DisplayName": r.DisplayName,
		"ipHash":      r.IPHash,
		"deviceHash":  r.DeviceHash,
		"CreatedAt":   r.CreatedAt.Format(time.RFC3339),
	}
}

// RatingSummary is the aggregate written back onto a listing: the mean of
// all its ratings rounded to one decimal, and their exact count.
type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}
