package poller

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Transient noise that is dropped without counting: bare end-of-stream
// hiccups and a known flaky Outlook backend error.
var transientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bEOF\b`),
	regexp.MustCompile(`Server Unavailable\. 21`),
}

type capture struct {
	at     time.Time
	detail string
}

// Aggregator buffers classified per-account failure counts across
// polling ticks and emits a throttled digest on its own schedule.
// Shared between the engine (writers) and the report loop; the window
// swap is atomic relative to concurrent Record calls.
type Aggregator struct {
	mu             sync.Mutex
	buckets        map[string]map[string][]capture
	tick           int
	lastReportTick int
	lastReportTime time.Time

	delivery    Delivery
	ownerChatID int64
	interval    time.Duration
	logger      *slog.Logger
}

// NewAggregator creates an error aggregator reporting to the owner chat
func NewAggregator(delivery Delivery, ownerChatID int64, interval time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		buckets:     make(map[string]map[string][]capture),
		delivery:    delivery,
		ownerChatID: ownerChatID,
		interval:    interval,
		logger:      logger.With("component", "error_report"),
	}
}

// BeginTick advances the process-wide tick counter and returns it
func (a *Aggregator) BeginTick() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tick++
	return a.tick
}

// Record classifies and buffers one per-account failure. Transient
// network noise is dropped silently.
func (a *Aggregator) Record(address string, err error) {
	msg := err.Error()
	for _, p := range transientPatterns {
		if p.MatchString(msg) {
			return
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buckets[address] == nil {
		a.buckets[address] = make(map[string][]capture)
	}
	a.buckets[address][msg] = append(a.buckets[address][msg], capture{at: time.Now(), detail: msg})
}

// Run emits digests until the context is cancelled
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Report(ctx)
		}
	}
}

// Report swaps out the current window, composes the digest from the
// snapshot and sends it to the owner chat. An account whose error
// count reaches half the window's queries is omitted: near-100%
// failure means a broken account, not noise worth a digest line.
func (a *Aggregator) Report(ctx context.Context) {
	a.mu.Lock()
	snapshot := a.buckets
	a.buckets = make(map[string]map[string][]capture)
	queries := a.tick - a.lastReportTick
	var sinceLast time.Duration
	if a.lastReportTime.IsZero() {
		sinceLast = a.interval
	} else {
		sinceLast = time.Since(a.lastReportTime)
	}
	a.lastReportTick = a.tick
	a.lastReportTime = time.Now()
	a.mu.Unlock()

	if len(snapshot) == 0 {
		a.logger.Info("no errors since last error report, skipping")
		return
	}

	text := a.compose(snapshot, queries)
	if text == "" {
		a.logger.Info("no account has sporadic errors, skipping report")
		return
	}

	header := fmt.Sprintf("Error Summary during last %d queries in duration %s:\n", queries, sinceLast.Round(time.Second))
	a.delivery.SendText(ctx, a.ownerChatID, 0, header+text)
}

func (a *Aggregator) compose(snapshot map[string]map[string][]capture, queries int) string {
	addresses := make([]string, 0, len(snapshot))
	for addr := range snapshot {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	var sb strings.Builder
	for _, addr := range addresses {
		kinds := snapshot[addr]
		total := 0
		for _, captures := range kinds {
			total += len(captures)
		}
		if float64(total) >= float64(queries)*0.5 {
			continue
		}

		sb.WriteString(fmt.Sprintf("Acc: %s\n", addr))
		msgs := make([]string, 0, len(kinds))
		for msg := range kinds {
			msgs = append(msgs, msg)
		}
		sort.Strings(msgs)
		for _, msg := range msgs {
			sb.WriteString(fmt.Sprintf("    Error: %s, triggered %d times\n", msg, len(kinds[msg])))
		}
	}
	return sb.String()
}
