package registration

import "strings"

// ValidateTraderID trims text and checks it is a non-empty run of ASCII digits.
func ValidateTraderID(text string) (string, error) {
	id := strings.TrimSpace(text)
	if id == "" {
		return "", ErrInvalidIDFormat
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return "", ErrInvalidIDFormat
		}
	}
	return id, nil
}

// OnStart resets userID to waiting_id, dropping any previously entered ID.
func OnStart(doc *Document, userID string) UserRecord {
	rec := UserRecord{Status: StatusWaitingID}
	doc.SetUser(userID, rec)
	return rec
}

// OnTextMessage records text as the claimed trader ID of userID.
// Invalid input leaves doc untouched.
func OnTextMessage(doc *Document, userID, text string) (UserRecord, error) {
	id, err := ValidateTraderID(text)
	if err != nil {
		prev, _ := doc.User(userID)
		return prev, err
	}
	rec := UserRecord{Status: StatusWaitingReg, EnteredID: id}
	doc.SetUser(userID, rec)
	return rec, nil
}

// MatchPostback returns the first user, in insertion order, whose entered ID
// equals traderID. A nil traderID never matches.
func MatchPostback(doc *Document, traderID *string) (string, bool) {
	if traderID == nil {
		return "", false
	}
	var matched string
	found := false
	doc.EachUser(func(userID string, rec UserRecord) bool {
		if rec.EnteredID != "" && rec.EnteredID == *traderID {
			matched, found = userID, true
			return false
		}
		return true
	})
	return matched, found
}

// Confirm marks userID as registered with traderID, overwriting silently.
func Confirm(doc *Document, userID, traderID string) {
	doc.Registered.Set(userID, traderID)
}

// ClaimedBy returns another user that already entered traderID.
func ClaimedBy(doc *Document, userID, traderID string) (string, bool) {
	var owner string
	found := false
	doc.EachUser(func(id string, rec UserRecord) bool {
		if id != userID && rec.EnteredID == traderID {
			owner, found = id, true
			return false
		}
		return true
	})
	return owner, found
}
