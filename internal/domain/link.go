package domain

import "time"

// Owner is an opaque identity reference for whoever created a link.
// The core never interprets it; the bot uses "tg:<id>", the HTTP API takes it from a header.
type Owner string

// AnyOwner matches every owner when listing links.
const AnyOwner Owner = ""

// LinkRecord is the stored mapping from a short code to its destination.
type LinkRecord struct {
	// Code is the unique short code and the registry key.
	Code string `json:"code"`

	// Destination is the absolute http(s) URL the code redirects to.
	Destination string `json:"destination"`

	// CreatedAt is when the record was inserted.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is CreatedAt plus the validity window. Always after CreatedAt.
	ExpiresAt time.Time `json:"expires_at"`

	// Owner is whoever created the link.
	Owner Owner `json:"owner"`

	// Clicks is the append-only resolution history, oldest first.
	Clicks []ClickEvent `json:"clicks"`
}

// ClickEvent is one successful resolution of a live record.
type ClickEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Clone returns a copy whose Clicks slice does not alias r's.
func (r LinkRecord) Clone() LinkRecord {
	c := r
	c.Clicks = make([]ClickEvent, len(r.Clicks))
	copy(c.Clicks, r.Clicks)
	return c
}

// ClickSource defaults used by the boundary layers.
const (
	SourceDirect    = "direct"
	SourceSimulated = "simulated"
)
