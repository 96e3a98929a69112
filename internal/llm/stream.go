package llm

import (
	"context"
	"io"
)

// Stream yields events until io.EOF. Events arrive in the order the
// endpoint produced them.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

type eventStream struct {
	events chan Event
	result chan error
	cancel context.CancelFunc

	done bool
	err  error
}

// newEventStream runs produce in a goroutine and exposes its output as
// a pull-based Stream. The producer writes events to the channel and
// returns its terminal error; Recv reports that error after the last
// event, or io.EOF on clean completion.
func newEventStream(parent context.Context, produce func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &eventStream{
		events: make(chan Event, 16),
		result: make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		err := produce(ctx, s.events)
		s.result <- err
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	if s.done {
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	event, ok := <-s.events
	if !ok {
		s.done = true
		if err := <-s.result; err != nil {
			s.err = err
			return Event{}, err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

// Close cancels the producer and drains any buffered events so the
// producer goroutine can exit.
func (s *eventStream) Close() error {
	s.cancel()
	for !s.done {
		if _, err := s.Recv(); err != nil {
			break
		}
	}
	return nil
}
