// internal/eventlistener/listener.go
package eventlistener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

const (
	reconnectDelay    = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// Stream delivers change notifications for one account.
type Stream interface {
	// Recv blocks until the account changes and returns the slot of the change.
	Recv(ctx context.Context) (uint64, error)
	Unsubscribe()
}

// Subscriber opens account streams over one connection.
type Subscriber interface {
	SubscribeAccount(account solana.PublicKey, commitment rpc.CommitmentType) (Stream, error)
	Close()
}

// Dialer opens a fresh Subscriber; called again after the connection drops.
type Dialer func(ctx context.Context) (Subscriber, error)

// Change is one observed account update.
type Change struct {
	Name    string
	Account solana.PublicKey
	Slot    uint64
}

// EventListener следит за аккаунтами кэнди-машин через WebSocket и сообщает об изменениях.
type EventListener struct {
	dial       Dialer
	commitment rpc.CommitmentType
	logger     *zap.Logger
}

// NewEventListener creates a listener over the RPC websocket endpoint wsURL.
func NewEventListener(wsURL string, commitment rpc.CommitmentType, logger *zap.Logger) *EventListener {
	return NewWithDialer(WSDialer(wsURL), commitment, logger)
}

// NewWithDialer creates a listener over a custom connection factory.
func NewWithDialer(dial Dialer, commitment rpc.CommitmentType, logger *zap.Logger) *EventListener {
	return &EventListener{
		dial:       dial,
		commitment: commitment,
		logger:     logger.Named("event-listener"),
	}
}

// Watch subscribes to every account in accounts (keyed by name) and calls
// handler for each change until ctx is done. handler may be called from
// several goroutines at once. A dropped connection is
// re-established with exponential backoff. Watch returns ctx.Err().
func (el *EventListener) Watch(ctx context.Context, accounts map[string]solana.PublicKey, handler func(Change)) error {
	if len(accounts) == 0 {
		return errors.New("no accounts to watch")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectDelay
	policy.MaxInterval = maxReconnectDelay

	for {
		err := el.session(ctx, accounts, handler, policy.Reset)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := policy.NextBackOff()
		el.logger.Warn("Ошибка WebSocket, переподключение",
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection until any stream fails.
func (el *EventListener) session(ctx context.Context, accounts map[string]solana.PublicKey, handler func(Change), connected func()) error {
	sub, err := el.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer sub.Close()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streams := make([]Stream, 0, len(accounts))

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		first   error
	)
	fail := func(err error) {
		errOnce.Do(func() { first = err })
		cancel()
	}
	for name, account := range accounts {
		stream, err := sub.SubscribeAccount(account, el.commitment)
		if err != nil {
			fail(fmt.Errorf("subscribe %s: %w", name, err))
			break
		}
		streams = append(streams, stream)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				slot, err := stream.Recv(sctx)
				if err != nil {
					fail(err)
					return
				}
				el.logger.Debug("Account changed",
					zap.String("name", name),
					zap.String("account", account.String()),
					zap.Uint64("slot", slot))
				handler(Change{Name: name, Account: account, Slot: slot})
			}
		}()
	}
	// Recv of the websocket client does not watch a context: closing the
	// streams is what unblocks readers on cancellation.
	unsubscribed := make(chan struct{})
	go func() {
		defer close(unsubscribed)
		<-sctx.Done()
		for _, s := range streams {
			s.Unsubscribe()
		}
	}()

	if sctx.Err() == nil {
		connected()
		el.logger.Info("Подписка на аккаунты активна", zap.Int("accounts", len(accounts)))
	}

	wg.Wait()
	cancel()
	<-unsubscribed
	return first
}

// WSDialer connects to a Solana RPC websocket endpoint.
func WSDialer(wsURL string) Dialer {
	return func(ctx context.Context) (Subscriber, error) {
		client, err := ws.Connect(ctx, wsURL)
		if err != nil {
			return nil, err
		}
		return &wsSubscriber{client: client}, nil
	}
}

type wsSubscriber struct {
	client *ws.Client
}

func (s *wsSubscriber) SubscribeAccount(account solana.PublicKey, commitment rpc.CommitmentType) (Stream, error) {
	sub, err := s.client.AccountSubscribe(account, commitment)
	if err != nil {
		return nil, err
	}
	return &wsStream{sub: sub}, nil
}

func (s *wsSubscriber) Close() {
	s.client.Close()
}

type wsStream struct {
	sub *ws.AccountSubscription
}

// Recv blocks until the next notification or until Unsubscribe; ctx only
// replaces the error reported after a cancellation.
func (s *wsStream) Recv(ctx context.Context) (uint64, error) {
	res, err := s.sub.Recv()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	if res == nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.New("subscription closed")
	}
	return res.Context.Slot, nil
}

func (s *wsStream) Unsubscribe() {
	s.sub.Unsubscribe()
}
