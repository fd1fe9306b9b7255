package poller

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(delivery *fakeDelivery) *Aggregator {
	return NewAggregator(delivery, 99, time.Hour, discardLogger())
}

func TestRecord_DropsTransientErrors(t *testing.T) {
	agg := newTestAggregator(&fakeDelivery{})

	agg.Record("a@example.com", errors.New("read tcp 1.2.3.4:993: EOF"))
	agg.Record("a@example.com", errors.New("imap: Server Unavailable. 21"))
	assert.Empty(t, agg.buckets)

	// "EOF" embedded in a longer word still counts
	agg.Record("a@example.com", errors.New("BUFEOFX decoding failed"))
	assert.Len(t, agg.buckets["a@example.com"], 1)
}

func TestRecord_BucketsByAccountAndMessage(t *testing.T) {
	agg := newTestAggregator(&fakeDelivery{})

	agg.Record("a@example.com", errors.New("boom"))
	agg.Record("a@example.com", errors.New("boom"))
	agg.Record("a@example.com", errors.New("other"))
	agg.Record("b@example.com", errors.New("boom"))

	assert.Len(t, agg.buckets["a@example.com"]["boom"], 2)
	assert.Len(t, agg.buckets["a@example.com"]["other"], 1)
	assert.Len(t, agg.buckets["b@example.com"]["boom"], 1)
}

func TestReport_Digest(t *testing.T) {
	delivery := &fakeDelivery{}
	agg := newTestAggregator(delivery)

	for i := 0; i < 10; i++ {
		agg.BeginTick()
	}
	agg.Record("sporadic@example.com", errors.New("count messages: boom"))
	agg.Record("sporadic@example.com", errors.New("count messages: boom"))
	// 6 of 10 queries failed: broken account, not digest material
	for i := 0; i < 6; i++ {
		agg.Record("broken@example.com", errors.New("authentication failed"))
	}

	agg.Report(context.Background())

	require.Len(t, delivery.texts, 1)
	sent := delivery.texts[0]
	assert.Equal(t, int64(99), sent.chatID)
	assert.True(t, strings.HasPrefix(sent.text, "Error Summary during last 10 queries in duration "))
	assert.Contains(t, sent.text, "Acc: sporadic@example.com\n")
	assert.Contains(t, sent.text, "    Error: count messages: boom, triggered 2 times\n")
	assert.NotContains(t, sent.text, "broken@example.com")
}

func TestReport_EmptyWindowSkipped(t *testing.T) {
	delivery := &fakeDelivery{}
	agg := newTestAggregator(delivery)

	agg.BeginTick()
	agg.Report(context.Background())
	assert.Empty(t, delivery.texts)
}

func TestReport_OnlyBrokenAccountsSkipped(t *testing.T) {
	delivery := &fakeDelivery{}
	agg := newTestAggregator(delivery)

	agg.BeginTick()
	agg.Record("broken@example.com", errors.New("authentication failed"))

	agg.Report(context.Background())
	assert.Empty(t, delivery.texts)
}

func TestReport_ResetsWindow(t *testing.T) {
	delivery := &fakeDelivery{}
	agg := newTestAggregator(delivery)

	for i := 0; i < 5; i++ {
		agg.BeginTick()
	}
	agg.Record("a@example.com", errors.New("boom"))
	agg.Report(context.Background())
	require.Len(t, delivery.texts, 1)

	// Second window: no new ticks, no new errors, nothing to send
	agg.Report(context.Background())
	assert.Len(t, delivery.texts, 1)
	assert.Empty(t, agg.buckets)
	assert.Equal(t, 5, agg.lastReportTick)
}
