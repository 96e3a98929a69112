package llm

import (
	"context"
	"fmt"
	"io"
	"testing"
)

func TestEventStreamDeliversInOrder(t *testing.T) {
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		events <- Event{Type: EventTextDelta, Text: "a"}
		events <- Event{Type: EventTextDelta, Text: "b"}
		events <- Event{Type: EventDone, Stop: StopEndTurn}
		return nil
	})
	defer stream.Close()

	var texts []string
	var sawDone bool
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		switch event.Type {
		case EventTextDelta:
			texts = append(texts, event.Text)
		case EventDone:
			sawDone = true
			if event.Stop != StopEndTurn {
				t.Errorf("Stop = %q, want end_turn", event.Stop)
			}
		}
	}
	if len(texts) != 2 || texts[0] != "a" || texts[1] != "b" {
		t.Errorf("texts = %v, want [a b]", texts)
	}
	if !sawDone {
		t.Error("missing done event")
	}
}

func TestEventStreamProducerError(t *testing.T) {
	wantErr := fmt.Errorf("boom")
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		events <- Event{Type: EventTextDelta, Text: "partial"}
		return wantErr
	})
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil || event.Text != "partial" {
		t.Fatalf("first Recv = (%+v, %v), want partial text", event, err)
	}
	if _, err := stream.Recv(); err == nil || err.Error() != "boom" {
		t.Fatalf("second Recv err = %v, want boom", err)
	}
	// The error is sticky.
	if _, err := stream.Recv(); err == nil || err.Error() != "boom" {
		t.Fatalf("third Recv err = %v, want boom", err)
	}
}

func TestEventStreamCloseCancelsProducer(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		close(started)
		defer close(finished)
		for i := 0; ; i++ {
			select {
			case events <- Event{Type: EventTextDelta, Text: "x"}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	<-started
	if _, err := stream.Recv(); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	stream.Close()
	<-finished
}
