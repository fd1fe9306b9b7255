package mailbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/marovskiy/mailgram/internal/credential"
	"github.com/marovskiy/mailgram/pkg/models"
)

// Cache keeps at most one live Client per distinct account connection
// tuple. Created at startup and shared across polling workers; the map
// is mutex-guarded, while each cached client is owned sequentially by
// the account's per-tick unit of work.
type Cache struct {
	mu      sync.Mutex
	clients map[string]Client
	secrets *credential.Store
	opts    Options
	logger  *slog.Logger
}

// NewCache creates an empty client cache
func NewCache(secrets *credential.Store, opts Options, logger *slog.Logger) *Cache {
	return &Cache{
		clients: make(map[string]Client),
		secrets: secrets,
		opts:    opts,
		logger:  logger.With("component", "client_cache"),
	}
}

// Get returns a validated client for the account. A cached client is
// revalidated with Refresh; on any failure it is discarded and a fresh
// connection is established.
func (c *Cache) Get(ctx context.Context, account *models.Account) (Client, error) {
	key := account.CacheKey()

	c.mu.Lock()
	cached := c.clients[key]
	c.mu.Unlock()

	if cached != nil {
		if err := cached.Refresh(ctx); err == nil {
			c.logger.Debug("reusing cached client", "email", account.Address)
			return cached, nil
		} else {
			c.logger.Info("cached client is invalid, re-creating", "email", account.Address, "error", err)
			cached.Close()
			c.mu.Lock()
			if c.clients[key] == cached {
				delete(c.clients, key)
			}
			c.mu.Unlock()
		}
	}

	fresh, err := Dial(ctx, account, c.secrets, c.opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.clients[key] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// Close tears down every cached connection
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, client := range c.clients {
		client.Close()
		delete(c.clients, key)
	}
}
