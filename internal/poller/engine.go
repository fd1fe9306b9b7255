package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marovskiy/mailgram/internal/mailbox"
	"github.com/marovskiy/mailgram/internal/render"
	"github.com/marovskiy/mailgram/pkg/models"
)

// AccountStore is the slice of the account store the engine needs
type AccountStore interface {
	GetAllAccounts(ctx context.Context) ([]*models.Account, error)
	UpdateAccountField(ctx context.Context, address, field string, value any) error
}

// Clients resolves a validated mailbox client for an account
type Clients interface {
	Get(ctx context.Context, account *models.Account) (mailbox.Client, error)
}

// Delivery is the chat endpoint. Implementations retry internally and
// drop undeliverable units; nothing here may fail a polling tick.
type Delivery interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string)
	SendAttachment(ctx context.Context, chatID int64, threadID int, att render.Attachment)
}

// Deps dependencies for creating an engine
type Deps struct {
	Store    AccountStore
	Clients  Clients
	Delivery Delivery
	Renderer *render.Renderer
	Errors   *Aggregator
	Logger   *slog.Logger

	// Interval between ticks
	Interval time.Duration
	// Timeout bounds one account's whole per-tick unit of work
	Timeout time.Duration
	// Workers caps concurrent per-account units
	Workers int
}

// Engine drives the incremental fetch-and-deliver loop for every
// configured account on a fixed interval.
type Engine struct {
	store    AccountStore
	clients  Clients
	delivery Delivery
	renderer *render.Renderer
	errors   *Aggregator
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	workers  int
}

// NewEngine creates a polling engine
func NewEngine(deps Deps) *Engine {
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:    deps.Store,
		clients:  deps.Clients,
		delivery: deps.Delivery,
		renderer: deps.Renderer,
		errors:   deps.Errors,
		logger:   deps.Logger.With("component", "poller"),
		interval: deps.Interval,
		timeout:  deps.Timeout,
		workers:  workers,
	}
}

// Run executes ticks until the context is cancelled
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunTick(ctx)
		}
	}
}

// RunTick polls every account once, dispatching per-account units to a
// bounded worker pool so one stuck account cannot starve the rest.
func (e *Engine) RunTick(ctx context.Context) {
	tick := e.errors.BeginTick()
	e.logger.Info("entered periodic task", "tick", tick)

	accounts, err := e.store.GetAllAccounts(ctx)
	if err != nil {
		e.logger.Error("failed to load accounts", "error", err)
		return
	}

	jobs := make(chan *models.Account)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for account := range jobs {
				e.pollAccount(ctx, account)
			}
		}()
	}

	for _, account := range accounts {
		jobs <- account
	}
	close(jobs)
	wg.Wait()
}

// pollAccount runs one account's unit of work under the per-tick
// budget, classifying any failure instead of propagating it.
func (e *Engine) pollAccount(parent context.Context, account *models.Account) {
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	if err := e.pollOnce(ctx, account); err != nil {
		e.errors.Record(account.Address, err)
		e.logger.Warn("periodic task error", "email", account.Address, "error", err)
	}
}

func (e *Engine) pollOnce(ctx context.Context, account *models.Account) error {
	client, err := e.clients.Get(ctx, account)
	if err != nil {
		return fmt.Errorf("resolve client: %w", err)
	}

	count, err := client.Count(ctx)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if count <= account.InboxNum {
		return nil
	}

	e.logger.Info("new mail", "email", account.Address, "have", account.InboxNum, "count", count)

	for idx := account.InboxNum + 1; idx <= count; idx++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("tick budget exhausted before message %d: %w", idx, err)
		}

		// A fetch failure stops the index loop for this tick; delivered
		// progress up to idx-1 is already persisted.
		raw, err := client.Fetch(ctx, idx)
		if err != nil {
			return fmt.Errorf("fetch message %d: %w", idx, err)
		}

		email, err := e.renderer.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse message %d: %w", idx, err)
		}

		body, files := email.Render()
		text := fmt.Sprintf("New Email [%s-%d]\n%s", account.Address, idx, body)
		e.delivery.SendText(ctx, account.ChatID, account.ThreadID, text)
		for _, file := range files {
			e.delivery.SendAttachment(ctx, account.ChatID, account.ThreadID, file)
		}

		// The mark advances only after hand-off to delivery; a crash
		// here re-delivers at most this one message on restart.
		if err := e.store.UpdateAccountField(ctx, account.Address, "inbox_num", idx); err != nil {
			return fmt.Errorf("persist high-water mark %d: %w", idx, err)
		}
		account.InboxNum = idx
	}

	return nil
}
