package bot

import (
	"context"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type recordingSender struct {
	to    []tele.Recipient
	texts []interface{}
	err   error
}

func (s *recordingSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	s.to = append(s.to, to)
	s.texts = append(s.texts, what)
	if s.err != nil {
		return nil, s.err
	}
	return &tele.Message{}, nil
}

func TestGatewayNotify(t *testing.T) {
	s := &recordingSender{}
	if err := NewGateway(s).Notify(context.Background(), "12345", "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.to) != 1 {
		t.Fatalf("sends = %d, want 1", len(s.to))
	}
	if got := s.to[0].Recipient(); got != "12345" {
		t.Fatalf("recipient = %q", got)
	}
	if s.texts[0] != "hello" {
		t.Fatalf("text = %v", s.texts[0])
	}
}

func TestGatewayNotifyBlockedUser(t *testing.T) {
	s := &recordingSender{err: tele.ErrBlockedByUser}
	err := NewGateway(s).Notify(context.Background(), "12345", "hello")
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("err = %v, want ErrDelivery", err)
	}
	var de *DeliveryError
	if !errors.As(err, &de) || de.Code() != "delivery_forbidden" {
		t.Fatalf("delivery error = %+v", de)
	}
	if len(s.to) != 1 {
		t.Fatalf("sends = %d, want exactly one attempt", len(s.to))
	}
}

func TestGatewayNotifyBadUserID(t *testing.T) {
	s := &recordingSender{}
	err := NewGateway(s).Notify(context.Background(), "not-a-number", "hello")
	var de *DeliveryError
	if !errors.As(err, &de) || de.Kind != "bad_chat_id" {
		t.Fatalf("err = %v", err)
	}
	if len(s.to) != 0 {
		t.Fatal("nothing must be sent for a malformed user id")
	}
}
