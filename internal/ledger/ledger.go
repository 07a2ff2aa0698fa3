// Package ledger implements the Token Ledger (spec §4.C): a write-only
// event log recording one event per provider-call attempt, and the retry
// policy that runs around every provider call. Both halves are grounded
// on the same source, shared/token_accounting.py's TokenLedger
// (_examples/original_source): _record/generate_with_accounting/
// summarize/write_ledger, reworked into Go idioms — a buffered-channel
// async JSONL writer (internal/audit/logger.go's writeLoop pattern) and
// a generic retry loop that waits with internal/backoff.SleepWithContext
// rather than the teacher's own RetryWithBackoff. The delay itself is
// computed here by computeRetryDelay, since the Ledger's retry formula
// (§4.C: min(max_delay, base*2^(attempt-1)) × U(0.5,1.5)) uses
// multiplicative jitter.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jaatoai/jaato/internal/backoff"
	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/provider"
)

var ledgerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jaato_ledger_events_total",
	Help: "Token ledger events recorded, partitioned by stage.",
}, []string{"stage"})

// Stage is the event kind recorded by the ledger, per spec §4.C.
type Stage string

const (
	StagePreCount      Stage = "pre-count"
	StagePreCountError Stage = "pre-count-error"
	StageAPIError      Stage = "api-error"
	StageResponse      Stage = "response"
	StageSSLError      Stage = "ssl-error"
)

// Event is one write-only ledger row.
type Event struct {
	EventIndex     int                      `json:"event_index"`
	ID             string                   `json:"id"`
	Stage          Stage                    `json:"stage"`
	ISOTimestamp   string                   `json:"iso_ts"`
	Attempt        int                      `json:"attempt,omitempty"`
	Classification provider.Classification  `json:"classification,omitempty"`
	PromptTokens   int                      `json:"prompt_tokens,omitempty"`
	OutputTokens   int                      `json:"output_tokens,omitempty"`
	TotalTokens    int                      `json:"total_tokens,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// Policy parameterizes the retry loop. Defaults mirror
// shared/token_accounting.py's AI_RETRY_ATTEMPTS/AI_RETRY_BASE_DELAY/
// AI_RETRY_MAX_DELAY environment defaults (5, 1s, 30s); this module has
// no env/config loader (SPEC_FULL's ambient stack section), so callers
// set Policy directly.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the spec's default retry policy: 5 attempts,
// 1s base delay, 30s max delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Summary is the `summarize()` view spec §4.C names, with the field
// names shared/token_accounting.py's summarize() and spec §8's S6
// scenario both assert on: retry_attempts, rate_limit_retries, the most
// recent rate-limit error.
type Summary struct {
	Calls                int     `json:"calls"`
	TotalPromptTokens    int     `json:"total_prompt_tokens"`
	TotalOutputTokens    int     `json:"total_output_tokens"`
	TotalTokens          int     `json:"total_tokens"`
	RetryAttempts        int     `json:"retry_attempts"`
	RateLimitRetries     int     `json:"rate_limit_retries"`
	LastRateLimitError   string  `json:"last_rate_limit_error,omitempty"`
	MaxRetryAttemptIndex int     `json:"max_retry_attempt_index"`
	Events               []Event `json:"events"`
}

// Ledger accumulates Events in memory for Summarize and streams them as
// JSONL to an output writer, and runs the retry policy around provider
// calls via Retry.
type Ledger struct {
	policy Policy
	randFn func() float64

	mu     sync.Mutex
	events []Event

	writeMu sync.Mutex
	out     io.Writer
	buffer  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Ledger that appends one JSON line per Event to out. A
// nil out disables persistence; events still accumulate in memory for
// Summarize.
func New(policy Policy, out io.Writer) *Ledger {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	l := &Ledger{
		policy: policy,
		randFn: rand.Float64, // #nosec G404 -- jitter does not require cryptographic randomness
		out:    out,
	}
	if out != nil {
		l.buffer = make(chan Event, 256)
		l.done = make(chan struct{})
		l.wg.Add(1)
		go l.writeLoop()
	}
	return l
}

// Close stops the async writer, flushing any buffered events.
func (l *Ledger) Close() error {
	if l.done == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return nil
}

func (l *Ledger) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.buffer:
			l.writeEvent(ev)
		case <-l.done:
			for {
				select {
				case ev := <-l.buffer:
					l.writeEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Ledger) writeEvent(ev Event) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = l.out.Write(line)
}

// record appends ev to the in-memory event list (for Summarize) and, if
// persistence is enabled, enqueues it for async JSONL write. Timestamp
// and event index are assigned here so callers never set them.
func (l *Ledger) record(ev Event) Event {
	l.mu.Lock()
	ev.EventIndex = len(l.events)
	ev.ID = uuid.NewString()
	ev.ISOTimestamp = isoNow()
	l.events = append(l.events, ev)
	l.mu.Unlock()

	ledgerEventsTotal.WithLabelValues(string(ev.Stage)).Inc()

	if l.buffer != nil {
		select {
		case l.buffer <- ev:
		default:
			l.writeEvent(ev)
		}
	}
	return ev
}

// isoNow is overridden in tests; production callers get the real clock.
var isoNow = func() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// RecordPreCount records a pre-flight token estimate, spec §4.C's
// "pre-count" stage.
func (l *Ledger) RecordPreCount(totalTokens int) {
	l.record(Event{Stage: StagePreCount, TotalTokens: totalTokens})
}

// Summarize returns the totals, retry counters, and full event list spec
// §4.C's summarize() (and the supplemented LedgerSummary, SPEC_FULL
// §"SUPPLEMENTED FEATURES" item 3) require.
func (l *Ledger) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Summary
	for _, e := range l.events {
		switch e.Stage {
		case StageResponse:
			s.Calls++
			s.TotalPromptTokens += e.PromptTokens
			s.TotalOutputTokens += e.OutputTokens
			s.TotalTokens += e.TotalTokens
		case StageAPIError:
			s.RetryAttempts++
			if e.Classification == provider.ClassRateLimit {
				s.RateLimitRetries++
				s.LastRateLimitError = e.Error
			}
			if e.Attempt > s.MaxRetryAttemptIndex {
				s.MaxRetryAttemptIndex = e.Attempt
			}
		}
	}
	s.Events = append([]Event(nil), l.events...)
	return s
}

// Retry runs fn up to the Ledger's Policy.MaxAttempts, recording one
// "api-error" event per failed attempt and one "response" event on
// success, sleeping with jittered exponential backoff between transient
// failures. fn's third return value carries the token usage of a
// successful call so Retry can record it; fn is expected to return a
// zero jaato.TokenUsage alongside a non-nil error.
//
// An *provider.SSLError is never retried: it is recorded once (spec
// §4.C's "ssl-error" stage) and returned immediately, matching
// shared/ssl_helper.py's one-shot-guidance, no-retry behavior.
// A *provider.PermanentError (or any error Classify resolves to
// ClassPermanent) is likewise returned immediately without a sleep.
// Exhausting all attempts on a transient error returns
// *provider.TransientExhaustedError wrapping the last attempt's error.
func Retry[T any](ctx context.Context, l *Ledger, fn func(attempt int) (T, jaato.TokenUsage, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= l.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, usage, err := fn(attempt)
		if err == nil {
			l.record(Event{
				Stage:        StageResponse,
				PromptTokens: usage.Prompt,
				OutputTokens: usage.Output,
				TotalTokens:  usage.Total,
			})
			return value, nil
		}

		var sslErr *provider.SSLError
		if errors.As(err, &sslErr) {
			l.record(Event{Stage: StageSSLError, Attempt: attempt, Error: err.Error()})
			return zero, err
		}

		class := provider.Classify(err)
		l.record(Event{Stage: StageAPIError, Attempt: attempt, Classification: class, Error: err.Error()})
		lastErr = err

		if class == provider.ClassPermanent {
			return zero, err
		}
		if attempt == l.policy.MaxAttempts {
			break
		}

		delay := computeRetryDelay(l.policy.BaseDelay, l.policy.MaxDelay, attempt, l.randFn())
		if sleepErr := backoff.SleepWithContext(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, &provider.TransientExhaustedError{Attempts: l.policy.MaxAttempts, LastErr: lastErr}
}

// computeRetryDelay implements spec §4.C's exact retry formula:
// min(max_delay, base*2^(attempt-1)) × U(0.5,1.5). randomValue must be
// in [0,1); callers pass a fixed value in tests for determinism.
func computeRetryDelay(base, max time.Duration, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	capped := math.Min(float64(max), float64(base)*math.Pow(2, exp))
	jittered := capped * (0.5 + randomValue)
	return time.Duration(math.Round(jittered))
}
