// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Основные константы
const (
	DefaultRetries = 3
	retryDelay     = 200 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
	reqTimeout     = 10 * time.Second
)

// RPCClient держит набор узлов и переключается между ними при сетевых ошибках.
type RPCClient struct {
	nodes   []*solanarpc.Client
	urls    []string
	current int
	retries uint
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewClient создает новый RPC клиент
func NewClient(urls []string, retries int, logger *zap.Logger) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}
	if retries <= 0 {
		retries = DefaultRetries
	}

	nodes := make([]*solanarpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = solanarpc.New(url)
	}

	return &RPCClient{
		nodes:   nodes,
		urls:    urls,
		retries: uint(retries),
		logger:  logger.Named("rpc-client"),
	}, nil
}

// next возвращает текущий узел и сдвигает указатель на следующий.
func (c *RPCClient) next() (*solanarpc.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, url := c.nodes[c.current], c.urls[c.current]
	c.current = (c.current + 1) % len(c.nodes)
	return node, url
}

// Primary returns the first configured endpoint URL.
func (c *RPCClient) Primary() string {
	return c.urls[0]
}

// ExecuteWithRetry выполняет RPC-запрос с переключением узлов при сетевой ошибке.
// Ошибки, на которые узел ответил осмысленно, не повторяются.
func (c *RPCClient) ExecuteWithRetry(ctx context.Context, method string, operation func(*solanarpc.Client) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, reqTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryDelay
	policy.MaxInterval = maxRetryDelay

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		node, url := c.next()
		err := operation(node)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsRetryableError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, NewError(err, url, method)
	}

	notify := func(err error, d time.Duration) {
		c.logger.Debug("RPC request failed, trying next node",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	_, err := backoff.Retry(timeoutCtx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.retries),
		backoff.WithNotify(notify))
	return err
}
