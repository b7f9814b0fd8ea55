// Package bus hosts message handlers on a NATS connection next to a shared,
// scheduler-renewed session.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/logger"
	"github.com/ArubaIberia/agora/internal/session"
)

// QueueGroup load-balances messages among worker instances.
const QueueGroup = "workers"

// Handler processes one message. A non-nil reply, or the error text on
// failure, is published to the reply subject when the message has one.
type Handler func(ctx context.Context, topic string, data []byte) ([]byte, error)

// Config configures an App.
type Config struct {
	// RefreshInterval is passed to the session scheduler.
	RefreshInterval time.Duration
	// HandlerTimeout bounds each handler call. Zero means no bound.
	HandlerTimeout time.Duration
	// OnRefresh runs after every scheduled renewal, e.g. to persist the
	// newest refresh token.
	OnRefresh func(*session.Session)
}

// App dispatches messages to handlers and keeps the shared session alive.
type App struct {
	conn  Conn
	sess  *session.Session
	sched *session.Scheduler
	cfg   Config
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	subs     map[string]Subscription
	stopping bool
	inflight sync.WaitGroup
}

// Start creates an App. sess may be nil; otherwise it is renewed on a timer
// when its provider allows it and closed by Stop.
func Start(ctx context.Context, conn Conn, sess *session.Session, cfg Config) (*App, error) {
	if conn == nil {
		return nil, errors.New("bus connection is required")
	}

	a := &App{
		conn: conn,
		sess: sess,
		cfg:  cfg,
		log:  logger.For("bus"),
		subs: make(map[string]Subscription),
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	if sess != nil {
		opts := []session.SchedulerOption{session.WithOnError(func(err error) {
			a.log.Warn().Err(err).Str("session_id", sess.ID()).Msg("Session renewal failed, retrying on next interval")
		})}
		if cfg.OnRefresh != nil {
			opts = append(opts, session.WithOnRenew(func() { cfg.OnRefresh(sess) }))
		}
		sched, err := session.ScheduleRefresh(sess, cfg.RefreshInterval, opts...)
		switch {
		case err == nil:
			a.sched = sched
			sched.Start(a.ctx)
		case errors.Is(err, session.ErrNotRenewable):
			a.log.Info().Str("provider", sess.Provider()).Msg("Session is not renewed on a timer")
		default:
			a.cancel()
			return nil, err
		}
	}

	a.log.Debug().Msg("Bus app started")
	return a, nil
}

// Subscribe dispatches every message on topic to h. Messages are handled
// concurrently.
func (a *App) Subscribe(topic string, h Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopping {
		return errors.New("bus app is stopped")
	}
	if _, ok := a.subs[topic]; ok {
		return fmt.Errorf("already subscribed to %s", topic)
	}

	sub, err := a.conn.QueueSubscribe(topic, QueueGroup, a.dispatch(topic, h))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	a.subs[topic] = sub
	a.log.Info().Str("topic", topic).Str("queue", QueueGroup).Msg("Subscribed, waiting for messages...")
	return nil
}

// Unsubscribe stops delivery of topic. Unknown topics are ignored.
func (a *App) Unsubscribe(topic string) error {
	a.mu.Lock()
	sub, ok := a.subs[topic]
	delete(a.subs, topic)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, err)
	}
	a.log.Debug().Str("topic", topic).Msg("Unsubscribed")
	return nil
}

func (a *App) dispatch(topic string, h Handler) func(*Msg) {
	return func(m *Msg) {
		a.mu.Lock()
		if a.stopping {
			a.mu.Unlock()
			a.log.Warn().Str("topic", topic).Msg("Dropping message received while stopping")
			return
		}
		a.inflight.Add(1)
		a.mu.Unlock()

		go func() {
			defer a.inflight.Done()
			a.handle(topic, h, m)
		}()
	}
}

func (a *App) handle(topic string, h Handler, m *Msg) {
	a.log.Debug().Str("topic", topic).Msg("Received message")

	ctx := a.ctx
	if a.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.HandlerTimeout)
		defer cancel()
	}

	reply, err := a.call(ctx, topic, h, m.Data)
	if err != nil {
		a.log.Error().Err(err).Str("topic", topic).Msg("Handler failed")
		reply = []byte(err.Error())
	}

	if m.Reply == "" {
		return
	}
	if reply == nil {
		reply = []byte{}
	}
	if err := a.conn.Publish(m.Reply, reply); err != nil {
		a.log.Error().Err(err).Str("topic", topic).Msg("Failed to publish reply")
	}
}

func (a *App) call(ctx context.Context, topic string, h Handler, data []byte) (reply []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, topic, data)
}

// Stop unsubscribes every topic, waits for in-flight handlers, stops the
// scheduler, closes the session and closes the connection. Every step runs
// even if an earlier one failed.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		return nil
	}
	a.stopping = true
	topics := make([]string, 0, len(a.subs))
	for topic := range a.subs {
		topics = append(topics, topic)
	}
	a.mu.Unlock()

	var errs []error
	for _, topic := range topics {
		errs = append(errs, a.Unsubscribe(topic))
	}

	a.inflight.Wait()

	if a.sched != nil {
		a.sched.Stop()
	}
	a.cancel()

	if a.sess != nil {
		if err := a.sess.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session: %w", err))
		}
	}
	if err := a.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close bus connection: %w", err))
	}

	a.log.Info().Msg("Bus app stopped")
	return errors.Join(errs...)
}
