// Package natsbus reads coherence events from a NATS subject.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/vibecoder/internal/domain/model"
	"github.com/okian/vibecoder/pkg/logger"
)

const (
	// DefaultSubject matches every coherence topic.
	DefaultSubject = "coherence.>"

	defaultConnectTimeout = 2 * time.Second
	defaultClientName     = "vibecoder"
)

// Source is a synchronous NATS subscription. Next is the only blocking call
// and honours its context, so callers bound the wait with a deadline.
type Source struct {
	name           string
	connectTimeout time.Duration
	now            func() time.Time
	logger         logger.Logger

	conn    *nats.Conn
	sub     *nats.Subscription
	subject string

	mu     sync.Mutex
	closed bool
}

// Dial connects to url and subscribes to subject.
func Dial(ctx context.Context, url, subject string, opts ...Option) (*Source, error) {
	s := &Source{
		name:           defaultClientName,
		connectTimeout: defaultConnectTimeout,
		now:            time.Now,
		subject:        subject,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("natsbus")
	}
	if s.subject == "" {
		s.subject = DefaultSubject
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := nats.Connect(url,
		nats.Name(s.name),
		nats.Timeout(s.connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn(ctx, "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info(ctx, "nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrConnectivity, url, err)
	}

	sub, err := conn.SubscribeSync(s.subject)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrConnectivity, s.subject, err)
	}
	// Make sure the server knows about the subscription before returning.
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: flush: %v", ErrConnectivity, err)
	}

	s.conn = conn
	s.sub = sub
	s.logger.Info(ctx, "subscribed", logger.String("url", conn.ConnectedUrl()), logger.String("subject", s.subject))
	return s, nil
}

// Subject returns the subscribed subject.
func (s *Source) Subject() string {
	return s.subject
}

// Next blocks until one message arrives and decodes it. The message id is
// taken from the Nats-Msg-Id header when the payload carries none.
func (s *Source) Next(ctx context.Context) (model.CoherenceEvent, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return model.CoherenceEvent{}, ErrClosed
	}

	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.CoherenceEvent{}, ctxErr
		}
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			s.mu.Lock()
			closed = s.closed
			s.mu.Unlock()
			if closed {
				return model.CoherenceEvent{}, ErrClosed
			}
		}
		return model.CoherenceEvent{}, fmt.Errorf("%w: next message: %v", ErrConnectivity, err)
	}

	return model.DecodeCoherenceEvent(msg.Data, msg.Header.Get(nats.MsgIdHdr), s.now())
}

// Close unsubscribes and closes the connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.sub != nil {
		if uerr := s.sub.Unsubscribe(); uerr != nil && !errors.Is(uerr, nats.ErrConnectionClosed) {
			err = uerr
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return err
}
