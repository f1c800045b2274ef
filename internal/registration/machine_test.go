package registration

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestValidateTraderID(t *testing.T) {
	valid := map[string]string{
		"42":         "42",
		"  0017 ":    "0017",
		"1234567890": "1234567890",
		"\t9\n":      "9",
	}
	for in, want := range valid {
		got, err := ValidateTraderID(in)
		if err != nil {
			t.Fatalf("ValidateTraderID(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ValidateTraderID(%q) = %q, want %q", in, got, want)
		}
	}

	invalid := []string{"", "   ", "12a", "-1", "1.5", "4 2", "abc", "٤٢", "/start"}
	for _, in := range invalid {
		if _, err := ValidateTraderID(in); !errors.Is(err, ErrInvalidIDFormat) {
			t.Fatalf("ValidateTraderID(%q) err = %v, want ErrInvalidIDFormat", in, err)
		}
	}
}

func TestOnTextMessageFromAnyState(t *testing.T) {
	priors := map[string]func(doc *Document){
		"unregistered": func(doc *Document) {},
		"waiting_id":   func(doc *Document) { OnStart(doc, "1") },
		"waiting_reg": func(doc *Document) {
			doc.SetUser("1", UserRecord{Status: StatusWaitingReg, EnteredID: "7"})
		},
	}
	for name, setup := range priors {
		doc := NewDocument()
		setup(doc)
		rec, err := OnTextMessage(doc, "1", "42")
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		want := UserRecord{Status: StatusWaitingReg, EnteredID: "42"}
		if rec != want {
			t.Fatalf("%s: record = %+v, want %+v", name, rec, want)
		}
		if stored, _ := doc.User("1"); stored != want {
			t.Fatalf("%s: stored = %+v, want %+v", name, stored, want)
		}
	}
}

func TestOnTextMessageInvalidLeavesRecord(t *testing.T) {
	doc := NewDocument()
	doc.SetUser("1", UserRecord{Status: StatusWaitingReg, EnteredID: "7"})
	before := doc.Clone()

	for _, text := range []string{"hello", "12x", ""} {
		rec, err := OnTextMessage(doc, "1", text)
		if !errors.Is(err, ErrInvalidIDFormat) {
			t.Fatalf("OnTextMessage(%q) err = %v", text, err)
		}
		if rec.EnteredID != "7" {
			t.Fatalf("returned record should be the previous one, got %+v", rec)
		}
	}
	if !doc.Equal(before) {
		t.Fatal("document changed on invalid input")
	}

	empty := NewDocument()
	if _, err := OnTextMessage(empty, "2", "nope"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := empty.User("2"); ok {
		t.Fatal("invalid input must not create a record")
	}
}

func TestOnStartResets(t *testing.T) {
	doc := NewDocument()
	doc.SetUser("1", UserRecord{Status: StatusWaitingReg, EnteredID: "42"})
	rec := OnStart(doc, "1")
	if rec != (UserRecord{Status: StatusWaitingID}) {
		t.Fatalf("OnStart record = %+v", rec)
	}
	stored, _ := doc.User("1")
	if stored.EnteredID != "" || stored.Status != StatusWaitingID {
		t.Fatalf("stored after reset = %+v", stored)
	}
	if doc.StateOf("1") != StateWaitingID {
		t.Fatalf("state = %s", doc.StateOf("1"))
	}
}

func TestMatchPostbackFirstInOrder(t *testing.T) {
	doc := NewDocument()
	doc.SetUser("9", UserRecord{Status: StatusWaitingID})
	doc.SetUser("5", UserRecord{Status: StatusWaitingReg, EnteredID: "42"})
	doc.SetUser("1", UserRecord{Status: StatusWaitingReg, EnteredID: "42"})

	user, ok := MatchPostback(doc, strPtr("42"))
	if !ok || user != "5" {
		t.Fatalf("MatchPostback = %q, %v; want 5", user, ok)
	}

	// overwriting an existing key keeps its position
	doc.SetUser("5", UserRecord{Status: StatusWaitingReg, EnteredID: "42"})
	if user, _ = MatchPostback(doc, strPtr("42")); user != "5" {
		t.Fatalf("after overwrite MatchPostback = %q", user)
	}
}

func TestMatchPostbackMisses(t *testing.T) {
	doc := NewDocument()
	doc.SetUser("1", UserRecord{Status: StatusWaitingID})
	doc.SetUser("2", UserRecord{Status: StatusWaitingReg, EnteredID: "42"})

	if _, ok := MatchPostback(doc, nil); ok {
		t.Fatal("nil trader id must not match")
	}
	if _, ok := MatchPostback(doc, strPtr("")); ok {
		t.Fatal("empty trader id must not match a record without entered_id")
	}
	if _, ok := MatchPostback(doc, strPtr("43")); ok {
		t.Fatal("unexpected match")
	}
}

func TestConfirmKeepsUserAndOverwrites(t *testing.T) {
	doc := NewDocument()
	doc.SetUser("1", UserRecord{Status: StatusWaitingReg, EnteredID: "42"})
	Confirm(doc, "1", "42")
	Confirm(doc, "1", "43")

	if got, _ := doc.TraderID("1"); got != "43" {
		t.Fatalf("registered = %q", got)
	}
	if rec, _ := doc.User("1"); rec.EnteredID != "42" {
		t.Fatalf("users entry altered: %+v", rec)
	}
	if doc.StateOf("1") != StateConfirmed {
		t.Fatalf("state = %s", doc.StateOf("1"))
	}
	OnStart(doc, "1")
	if doc.StateOf("1") != StateConfirmed {
		t.Fatal("confirmation must survive /start")
	}
}

func TestClaimedBy(t *testing.T) {
	doc := NewDocument()
	doc.SetUser("1", UserRecord{Status: StatusWaitingReg, EnteredID: "42"})
	if owner, ok := ClaimedBy(doc, "2", "42"); !ok || owner != "1" {
		t.Fatalf("ClaimedBy = %q, %v", owner, ok)
	}
	if _, ok := ClaimedBy(doc, "1", "42"); ok {
		t.Fatal("own claim must not count")
	}
}

func TestDocumentJSONShapeAndOrder(t *testing.T) {
	raw := `{
    "users": {
        "30": {"status": "waiting_reg", "entered_id": "42"},
        "10": {"status": "waiting_id"},
        "20": {"status": "waiting_reg", "entered_id": "42"}
    },
    "registered": {"30": "42"}
}`
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if user, _ := MatchPostback(&doc, strPtr("42")); user != "30" {
		t.Fatalf("decoded order lost, matched %q", user)
	}

	out, err := json.Marshal(&doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"users":{"30":{"status":"waiting_reg","entered_id":"42"},"10":{"status":"waiting_id"},"20":{"status":"waiting_reg","entered_id":"42"}},"registered":{"30":"42"}}`
	if string(out) != want {
		t.Fatalf("marshal = %s\nwant %s", out, want)
	}
}

func TestDocumentNormalizeNulls(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`{"users": null}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc.Normalize()
	out, _ := json.Marshal(&doc)
	if !strings.Contains(string(out), `"registered":{}`) || !strings.Contains(string(out), `"users":{}`) {
		t.Fatalf("normalized = %s", out)
	}
}
