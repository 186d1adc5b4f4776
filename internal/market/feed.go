package market

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Feed opens bar subscriptions.
type Feed interface {
	// Subscribe streams bars of interval for symbol starting at start.
	// The subscription ends when ctx is done, Close is called, or the
	// transport fails.
	Subscribe(ctx context.Context, symbol, interval string, start time.Time) (Subscription, error)
}

// Subscription is one live bar stream.
type Subscription interface {
	// Bars is closed when the subscription ends.
	Bars() <-chan Bar
	// Err returns the transport error that ended the stream, or nil when
	// it was closed by the caller. Only meaningful once Bars is closed.
	Err() error
	Close()
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Time time.Time
}

// QuoteSource returns a handful of recent quotes.
type QuoteSource interface {
	RecentQuotes(ctx context.Context, symbol string, n int) ([]Quote, error)
}

// Stream is a Subscription fed by a single producer goroutine.
type Stream struct {
	ch      chan Bar
	done    chan struct{}
	doneMu  sync.Once
	onClose func()

	mu     sync.Mutex
	closed bool
	err    error
}

// NewStream returns an open stream. onClose, if set, runs once when the
// consumer closes the stream, typically to close a network connection.
func NewStream(buffer int, onClose func()) *Stream {
	return &Stream{
		ch:      make(chan Bar, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *Stream) Bars() <-chan Bar { return s.ch }

// Done is closed once the consumer has closed the stream.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send delivers b, blocking while the buffer is full. It returns false
// once the stream is closed.
func (s *Stream) Send(b Bar) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.done:
		return false
	case s.ch <- b:
		return true
	}
}

// Finish ends the stream from the producer side with err.
func (s *Stream) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

// Close ends the stream from the consumer side.
func (s *Stream) Close() {
	s.doneMu.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
	s.Finish(nil)
}

// CloseOnDone closes the stream when ctx ends.
func (s *Stream) CloseOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}
