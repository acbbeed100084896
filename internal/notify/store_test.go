package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/numera-app/numera/internal/backend"
)

func TestStoreIdsStrictlyIncreasing(t *testing.T) {
	s := NewStore(nil)
	first := s.Push("a", "m1", SeverityInfo)
	second := s.Push("b", "m2", SeverityWarning)
	if second.ID <= first.ID {
		t.Fatalf("ids not increasing: %d then %d", first.ID, second.ID)
	}

	batch := s.append([]draft{
		{title: "c", message: "m3", severity: SeverityError},
		{title: "d", message: "m4", severity: SeverityError},
	})
	if batch[0].ID != second.ID+1 || batch[1].ID != second.ID+2 {
		t.Fatalf("batch ids = %d,%d after %d", batch[0].ID, batch[1].ID, second.ID)
	}
}

func TestStoreEmptyBatchConsumesNoIds(t *testing.T) {
	s := NewStore(nil)
	before := s.Push("a", "m", SeverityInfo)
	if got := s.append(nil); got != nil {
		t.Fatalf("append(nil) = %v, want nil", got)
	}
	after := s.Push("b", "m", SeverityInfo)
	if after.ID != before.ID+1 {
		t.Fatalf("empty batch consumed an id: %d then %d", before.ID, after.ID)
	}
}

func TestStoreIdsSurviveClear(t *testing.T) {
	s := NewStore(nil)
	first := s.Push("a", "m", SeverityInfo)
	s.Clear()
	if len(s.List()) != 0 {
		t.Fatalf("List() not empty after Clear()")
	}
	second := s.Push("b", "m", SeverityInfo)
	if second.ID <= first.ID {
		t.Fatalf("id repeated after Clear(): %d then %d", first.ID, second.ID)
	}
}

func TestStoreDismiss(t *testing.T) {
	s := NewStore(nil)
	a := s.Push("a", "m", SeverityInfo)
	b := s.Push("b", "m", SeverityInfo)

	if !s.Dismiss(a.ID) {
		t.Fatalf("Dismiss(%d) = false", a.ID)
	}
	if s.Dismiss(a.ID) {
		t.Fatalf("Dismiss(%d) second call = true", a.ID)
	}
	list := s.List()
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("List() after dismiss = %v", list)
	}
}

func TestStoreSubscribeReceivesNewNotifications(t *testing.T) {
	s := NewStore(nil)
	ch, cancel := s.Subscribe()
	defer cancel()

	pushed := s.Push("a", "m", SeverityError)
	got := <-ch
	if got.ID != pushed.ID {
		t.Fatalf("subscriber got id %d, want %d", got.ID, pushed.ID)
	}
}

type fakeMessageSource struct {
	msgs backend.Messages
	err  error
	n    int
}

func (f *fakeMessageSource) ConsumeMessages(context.Context) (backend.Messages, error) {
	f.n++
	return f.msgs, f.err
}

func TestConsumerAppendsErrorsThenWarnings(t *testing.T) {
	s := NewStore(nil)
	c := NewConsumer(&fakeMessageSource{
		msgs: backend.Messages{
			Errors:   []string{"kraken timeout"},
			Warnings: []string{"stale price for DASH", "missing rate for XMR"},
		},
	}, s)

	if err := c.Consume(context.Background()); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	if list[0].Severity != SeverityError || list[0].Message != "kraken timeout" {
		t.Fatalf("list[0] = %+v", list[0])
	}
	if list[1].Severity != SeverityWarning || list[2].Severity != SeverityWarning {
		t.Fatalf("warnings not appended after errors: %+v", list[1:])
	}
	for i := 1; i < len(list); i++ {
		if list[i].ID != list[i-1].ID+1 {
			t.Fatalf("batch ids not contiguous: %d then %d", list[i-1].ID, list[i].ID)
		}
	}
}

func TestConsumerEmptyBatchIsNoOp(t *testing.T) {
	s := NewStore(nil)
	c := NewConsumer(&fakeMessageSource{}, s)
	if err := c.Consume(context.Background()); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatalf("List() len = %d, want 0", len(s.List()))
	}
}

func TestConsumerTransportFailureSynthesizesOneError(t *testing.T) {
	s := NewStore(nil)
	c := NewConsumer(&fakeMessageSource{err: errors.New("connection refused")}, s)

	if err := c.Consume(context.Background()); err == nil {
		t.Fatalf("Consume() error = nil, want transport failure")
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1", len(list))
	}
	if list[0].Severity != SeverityError {
		t.Fatalf("severity = %q, want error", list[0].Severity)
	}
	if list[0].Message != "connection refused" {
		t.Fatalf("message = %q", list[0].Message)
	}
}
