package registration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/pocketreg/core/logger"
)

const component = "service.registration"

// Store loads and saves the whole document.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}

// Options tune product decisions that the state machine leaves open.
type Options struct {
	// RejectDuplicateClaims refuses a trader ID already entered by another user.
	RejectDuplicateClaims bool
}

// Confirmation is the outcome of a postback.
type Confirmation struct {
	Matched  bool
	UserID   string
	TraderID string
}

// Stats counts users per state.
type Stats struct {
	WaitingID  int
	WaitingReg int
	Confirmed  int
	Total      int
}

// Service runs every load-mutate-save cycle under one mutex so concurrent
// requests in this process never lose each other's updates.
type Service struct {
	store Store
	opts  Options
	mu    sync.Mutex
}

// NewService wires a service over store.
func NewService(store Store, opts Options) *Service {
	return &Service{store: store, opts: opts}
}

// Start resets userID to waiting_id.
func (s *Service) Start(ctx context.Context, userID string) (UserRecord, error) {
	var rec UserRecord
	err := s.update(ctx, func(doc *Document) (bool, error) {
		prev, had := doc.User(userID)
		rec = OnStart(doc, userID)
		if had && prev.EnteredID != "" {
			logger.Debug(ctx, component, "start.reset",
				slog.String("user_id", userID),
				slog.String("trader_id", prev.EnteredID),
			)
		}
		return true, nil
	})
	if err != nil {
		return UserRecord{}, err
	}
	logger.Info(ctx, component, "start",
		slog.String("status", "ok"),
		slog.String("user_id", userID),
	)
	return rec, nil
}

// SubmitTraderID records text as the trader ID claimed by userID. Invalid
// input is rejected before storage is touched.
func (s *Service) SubmitTraderID(ctx context.Context, userID, text string) (UserRecord, error) {
	id, err := ValidateTraderID(text)
	if err != nil {
		logger.Info(ctx, component, "trader_id.submit",
			slog.String("status", "skip"),
			slog.String("user_id", userID),
			slog.String("err_code", "invalid_format"),
		)
		return UserRecord{}, err
	}

	var rec UserRecord
	err = s.update(ctx, func(doc *Document) (bool, error) {
		if s.opts.RejectDuplicateClaims {
			if owner, ok := ClaimedBy(doc, userID, id); ok {
				logger.Warn(ctx, component, "trader_id.claimed",
					slog.String("user_id", userID),
					slog.String("trader_id", id),
					slog.String("owner_id", owner),
				)
				return false, ErrTraderIDClaimed
			}
		}
		rec, err = OnTextMessage(doc, userID, id)
		return err == nil, err
	})
	if err != nil {
		return UserRecord{}, err
	}
	logger.Info(ctx, component, "trader_id.submit",
		slog.String("status", "ok"),
		slog.String("user_id", userID),
		slog.String("trader_id", id),
	)
	return rec, nil
}

// ConfirmPostback matches traderID against entered IDs and persists the
// confirmation. A miss never writes.
func (s *Service) ConfirmPostback(ctx context.Context, clickID, traderID *string) (Confirmation, error) {
	start := time.Now()
	var conf Confirmation
	err := s.update(ctx, func(doc *Document) (bool, error) {
		userID, ok := MatchPostback(doc, traderID)
		if !ok {
			return false, nil
		}
		Confirm(doc, userID, *traderID)
		conf = Confirmation{Matched: true, UserID: userID, TraderID: *traderID}
		return true, nil
	})
	if err != nil {
		return Confirmation{}, err
	}

	outcome := "no_match"
	if conf.Matched {
		outcome = "ok"
	}
	logger.Info(ctx, component, "postback.confirm",
		slog.String("outcome", outcome),
		slog.String("user_id", conf.UserID),
		slog.String("trader_id", deref(traderID)),
		slog.String("click_id", deref(clickID)),
		slog.Duration("duration", logger.Took(start)),
	)
	return conf, nil
}

// UserStatus is what /status reports about one user.
type UserStatus struct {
	State    State
	Record   UserRecord
	TraderID string
}

// Status returns the explicit state of userID with its stored data.
func (s *Service) Status(ctx context.Context, userID string) (UserStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return UserStatus{}, err
	}
	doc.Normalize()
	rec, _ := doc.User(userID)
	trader, _ := doc.TraderID(userID)
	return UserStatus{State: doc.StateOf(userID), Record: rec, TraderID: trader}, nil
}

// Stats counts users per state. Confirmed users are not double counted as waiting.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	doc.Normalize()

	var st Stats
	seen := make(map[string]struct{}, doc.Users.Len())
	doc.EachUser(func(userID string, _ UserRecord) bool {
		seen[userID] = struct{}{}
		switch doc.StateOf(userID) {
		case StateConfirmed:
			st.Confirmed++
		case StateWaitingID:
			st.WaitingID++
		case StateWaitingReg:
			st.WaitingReg++
		}
		return true
	})
	doc.EachRegistered(func(userID, _ string) bool {
		if _, ok := seen[userID]; !ok {
			st.Confirmed++
			seen[userID] = struct{}{}
		}
		return true
	})
	st.Total = len(seen)
	return st, nil
}

// update loads the document, applies fn and saves when fn reports a change.
func (s *Service) update(ctx context.Context, fn func(doc *Document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		s.logStorage(ctx, "load", err)
		return err
	}
	doc.Normalize()

	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := s.store.Save(ctx, doc); err != nil {
		s.logStorage(ctx, "save", err)
		return err
	}
	return nil
}

func (s *Service) logStorage(ctx context.Context, op string, err error) {
	code := "storage"
	var se *StorageError
	if errors.As(err, &se) {
		code = se.Code()
	}
	logger.Error(ctx, component, "storage."+op,
		slog.String("status", "fail"),
		slog.String("err_code", code),
		logger.Err(err),
	)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
