package sqlstore

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/m3rciful/pocketreg/core/database"
	"github.com/m3rciful/pocketreg/internal/registration"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, database.SQLiteTarget(filepath.Join(t.TempDir(), "pocketreg.db")))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := database.RunMigrations(db, database.DriverSQLite); err != nil {
		_ = db.Close()
		t.Fatalf("migrate: %v", err)
	}
	s := New(db, "sqlite")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadEmpty(t *testing.T) {
	doc, err := openSQLite(t).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Users.Len() != 0 || doc.Registered.Len() != 0 {
		t.Fatal("expected empty document")
	}
}

func TestSaveLoadPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	doc := registration.NewDocument()
	doc.SetUser("300", registration.UserRecord{Status: registration.StatusWaitingReg, EnteredID: "42"})
	doc.SetUser("100", registration.UserRecord{Status: registration.StatusWaitingID})
	doc.SetUser("200", registration.UserRecord{Status: registration.StatusWaitingReg, EnteredID: "42"})
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// overwrite an early user and confirm; positions stay put
	doc.SetUser("300", registration.UserRecord{Status: registration.StatusWaitingReg, EnteredID: "42"})
	registration.Confirm(doc, "300", "42")
	doc.SetUser("400", registration.UserRecord{Status: registration.StatusWaitingID})
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Equal(doc) {
		t.Fatal("loaded document differs from saved one")
	}
	trader := "42"
	if user, _ := registration.MatchPostback(loaded, &trader); user != "300" {
		t.Fatalf("matched %q, want 300", user)
	}

	if err := s.Save(ctx, loaded); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !again.Equal(loaded) {
		t.Fatal("save(load()) changed the stored document")
	}
}

func TestSaveStartClearsEnteredID(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	doc := registration.NewDocument()
	doc.SetUser("1", registration.UserRecord{Status: registration.StatusWaitingReg, EnteredID: "42"})
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	registration.OnStart(doc, "1")
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec, _ := loaded.User("1"); rec.EnteredID != "" || rec.Status != registration.StatusWaitingID {
		t.Fatalf("record = %+v", rec)
	}
}

func TestSaveMirrorsRemovals(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	doc := registration.NewDocument()
	doc.SetUser("1", registration.UserRecord{Status: registration.StatusWaitingID})
	doc.SetUser("2", registration.UserRecord{Status: registration.StatusWaitingID})
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	trimmed := registration.NewDocument()
	trimmed.SetUser("2", registration.UserRecord{Status: registration.StatusWaitingID})
	if err := s.Save(ctx, trimmed); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Equal(trimmed) {
		t.Fatal("rows missing from the document should be removed")
	}
}

func TestSaveBeyondBindParameterLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("writes tens of thousands of rows")
	}
	ctx := context.Background()
	s := openSQLite(t)

	// more users than SQLite accepts as bind parameters in one statement
	const total = 33000
	doc := registration.NewDocument()
	for i := 1; i <= total; i++ {
		doc.SetUser(strconv.Itoa(i), registration.UserRecord{Status: registration.StatusWaitingID})
	}
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save with %d users: %v", total, err)
	}
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("second Save with %d users: %v", total, err)
	}

	// shrinking leaves more stale rows than one delete chunk holds
	kept := registration.NewDocument()
	for i := 1; i <= 10; i++ {
		kept.SetUser(strconv.Itoa(i), registration.UserRecord{Status: registration.StatusWaitingID})
	}
	if err := s.Save(ctx, kept); err != nil {
		t.Fatalf("Save shrunk document: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Equal(kept) {
		t.Fatalf("loaded %d users, want %d", loaded.Users.Len(), kept.Users.Len())
	}
}
