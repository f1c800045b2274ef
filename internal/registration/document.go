package registration

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Status is the persisted progress marker of a user record.
type Status string

const (
	// StatusWaitingID marks a user who ran /start and has not sent a trader ID yet.
	StatusWaitingID Status = "waiting_id"
	// StatusWaitingReg marks a user who sent a trader ID and waits for the postback.
	StatusWaitingReg Status = "waiting_reg"
)

// Valid reports whether s is one of the persisted statuses.
func (s Status) Valid() bool {
	return s == StatusWaitingID || s == StatusWaitingReg
}

// State is the explicit registration state of a chat user.
type State string

const (
	StateUnregistered State = "unregistered"
	StateWaitingID    State = "waiting_id"
	StateWaitingReg   State = "waiting_reg"
	StateConfirmed    State = "confirmed"
)

// UserRecord is the per-user progress blob stored under users.
type UserRecord struct {
	Status    Status `json:"status"`
	EnteredID string `json:"entered_id,omitempty"`
}

// Document is the unit of persistence: every operation loads it whole,
// mutates it in memory and writes it back whole.
//
// Users keeps insertion order so postback matching is deterministic
// across reloads.
type Document struct {
	Users      *orderedmap.OrderedMap[string, UserRecord] `json:"users"`
	Registered *orderedmap.OrderedMap[string, string]     `json:"registered"`
}

// NewDocument returns the empty-shaped default document.
func NewDocument() *Document {
	return &Document{
		Users:      orderedmap.New[string, UserRecord](),
		Registered: orderedmap.New[string, string](),
	}
}

// Normalize fills maps that were absent or null in persisted data.
func (d *Document) Normalize() *Document {
	if d == nil {
		return NewDocument()
	}
	if d.Users == nil {
		d.Users = orderedmap.New[string, UserRecord]()
	}
	if d.Registered == nil {
		d.Registered = orderedmap.New[string, string]()
	}
	return d
}

// User returns the record stored for userID.
func (d *Document) User(userID string) (UserRecord, bool) {
	return d.Users.Get(userID)
}

// SetUser stores rec for userID. An existing key keeps its position.
func (d *Document) SetUser(userID string, rec UserRecord) {
	d.Users.Set(userID, rec)
}

// TraderID returns the confirmed trader ID of userID.
func (d *Document) TraderID(userID string) (string, bool) {
	return d.Registered.Get(userID)
}

// EachUser calls fn for every user in insertion order until fn returns false.
func (d *Document) EachUser(fn func(userID string, rec UserRecord) bool) {
	for pair := d.Users.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// EachRegistered calls fn for every confirmed user in insertion order.
func (d *Document) EachRegistered(fn func(userID, traderID string) bool) {
	for pair := d.Registered.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// StateOf derives the explicit state of userID. Confirmation is permanent and
// wins over whatever the users entry says.
func (d *Document) StateOf(userID string) State {
	if _, ok := d.Registered.Get(userID); ok {
		return StateConfirmed
	}
	rec, ok := d.Users.Get(userID)
	if !ok {
		return StateUnregistered
	}
	switch rec.Status {
	case StatusWaitingID:
		return StateWaitingID
	case StatusWaitingReg:
		return StateWaitingReg
	}
	return StateUnregistered
}

// Clone returns a deep copy preserving order.
func (d *Document) Clone() *Document {
	out := NewDocument()
	if d == nil {
		return out
	}
	d.Normalize()
	d.EachUser(func(userID string, rec UserRecord) bool {
		out.Users.Set(userID, rec)
		return true
	})
	d.EachRegistered(func(userID, traderID string) bool {
		out.Registered.Set(userID, traderID)
		return true
	})
	return out
}

// Equal reports whether both documents hold the same entries in the same order.
func (d *Document) Equal(other *Document) bool {
	a, b := d.Clone(), other.Clone()
	if a.Users.Len() != b.Users.Len() || a.Registered.Len() != b.Registered.Len() {
		return false
	}
	for pa, pb := a.Users.Oldest(), b.Users.Oldest(); pa != nil; pa, pb = pa.Next(), pb.Next() {
		if pa.Key != pb.Key || pa.Value != pb.Value {
			return false
		}
	}
	for pa, pb := a.Registered.Oldest(), b.Registered.Oldest(); pa != nil; pa, pb = pa.Next(), pb.Next() {
		if pa.Key != pb.Key || pa.Value != pb.Value {
			return false
		}
	}
	return true
}
