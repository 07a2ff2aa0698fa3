package permission

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaatoai/jaato/internal/jaato"
)

type fakeChannel struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	reply Action
	err   error
}

func (f *fakeChannel) Ask(ctx context.Context, req Request) (Action, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCheckAutoApprovedShortCircuits(t *testing.T) {
	ch := &fakeChannel{reply: ActionNo}
	e := New(Config{AutoApproved: []string{"read_file"}, DefaultPolicy: PolicyAsk}, ch)

	decision, err := e.Check(context.Background(), "read_file", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if decision.Outcome != jaato.DecisionAllowed || decision.Method != jaato.MethodAutoApproved {
		t.Errorf("decision = %+v", decision)
	}
	if ch.callCount() != 0 {
		t.Error("auto-approved tool should never reach the channel")
	}
}

func TestMergeAutoApprovedDeduplicatesAndShortCircuits(t *testing.T) {
	ch := &fakeChannel{reply: ActionNo}
	e := New(Config{AutoApproved: []string{"read_file"}, DefaultPolicy: PolicyAsk}, ch)

	e.MergeAutoApproved([]string{"read_file", "greet"})

	if got, want := len(e.policy.AutoApproved), 2; got != want {
		t.Fatalf("AutoApproved = %v, want %d entries (deduplicated)", e.policy.AutoApproved, want)
	}

	decision, err := e.Check(context.Background(), "greet", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if decision.Outcome != jaato.DecisionAllowed || decision.Method != jaato.MethodAutoApproved {
		t.Errorf("decision = %+v", decision)
	}
	if ch.callCount() != 0 {
		t.Error("merged auto-approved tool should never reach the channel")
	}
}

func TestCheckBlacklistBeatsWhitelist(t *testing.T) {
	e := New(Config{
		Blacklist:     []string{"exec"},
		Whitelist:     []string{"exec"},
		DefaultPolicy: PolicyAsk,
	}, nil)

	decision, err := e.Check(context.Background(), "exec", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if decision.Outcome != jaato.DecisionDenied || decision.Method != jaato.MethodBlacklist {
		t.Errorf("decision = %+v, want blacklist deny", decision)
	}
}

func TestCheckArgSensitiveBlacklistPattern(t *testing.T) {
	e := New(Config{
		Blacklist:     []string{`exec::*rm -rf*`},
		DefaultPolicy: PolicyAllow,
	}, nil)

	denied, err := e.Check(context.Background(), "exec", json.RawMessage(`{"cmd":"rm -rf /"}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if denied.Outcome != jaato.DecisionDenied {
		t.Errorf("expected deny for matching arg glob, got %+v", denied)
	}

	allowed, err := e.Check(context.Background(), "exec", json.RawMessage(`{"cmd":"ls"}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if allowed.Outcome != jaato.DecisionAllowed {
		t.Errorf("expected default allow for non-matching arg glob, got %+v", allowed)
	}
}

func TestCheckDefaultPolicyAllowAndDeny(t *testing.T) {
	allowEngine := New(Config{DefaultPolicy: PolicyAllow}, nil)
	d, err := allowEngine.Check(context.Background(), "anything", json.RawMessage(`{}`))
	if err != nil || d.Outcome != jaato.DecisionAllowed || d.Method != jaato.MethodDefault {
		t.Errorf("allow: d=%+v err=%v", d, err)
	}

	denyEngine := New(Config{DefaultPolicy: PolicyDeny}, nil)
	d, err = denyEngine.Check(context.Background(), "anything", json.RawMessage(`{}`))
	if err != nil || d.Outcome != jaato.DecisionDenied || d.Method != jaato.MethodDefault {
		t.Errorf("deny: d=%+v err=%v", d, err)
	}
}

func TestCheckAsksChannelAndInstallsAlwaysRule(t *testing.T) {
	ch := &fakeChannel{reply: ActionAlways}
	e := New(Config{DefaultPolicy: PolicyAsk}, ch)

	first, err := e.Check(context.Background(), "web_search", json.RawMessage(`{"q":"go"}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if first.Outcome != jaato.DecisionAllowed || first.Method != jaato.MethodUserAlways {
		t.Errorf("first decision = %+v", first)
	}
	if ch.callCount() != 1 {
		t.Fatalf("expected 1 channel call, got %d", ch.callCount())
	}

	second, err := e.Check(context.Background(), "web_search", json.RawMessage(`{"q":"anything else"}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if second.Outcome != jaato.DecisionAllowed || second.Method != jaato.MethodSessionRule {
		t.Errorf("second decision should hit the session rule, got %+v", second)
	}
	if ch.callCount() != 1 {
		t.Errorf("session rule should prevent a second channel call, calls = %d", ch.callCount())
	}
}

func TestCheckAsksChannelAndInstallsNeverRule(t *testing.T) {
	ch := &fakeChannel{reply: ActionNever}
	e := New(Config{DefaultPolicy: PolicyAsk}, ch)

	first, err := e.Check(context.Background(), "web_fetch", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if first.Outcome != jaato.DecisionDenied || first.Method != jaato.MethodUserNever {
		t.Errorf("first decision = %+v", first)
	}

	second, err := e.Check(context.Background(), "web_fetch", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if second.Outcome != jaato.DecisionDenied || second.Method != jaato.MethodSessionRule {
		t.Errorf("second decision should hit the session rule, got %+v", second)
	}
}

func TestCheckOnceDoesNotInstallRule(t *testing.T) {
	ch := &fakeChannel{reply: ActionOnce}
	e := New(Config{DefaultPolicy: PolicyAsk}, ch)

	for i := 0; i < 2; i++ {
		d, err := e.Check(context.Background(), "edit_file", json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if d.Outcome != jaato.DecisionAllowed || d.Method != jaato.MethodUserOnce {
			t.Errorf("decision[%d] = %+v", i, d)
		}
	}
	if ch.callCount() != 2 {
		t.Errorf("once should never install a session rule, calls = %d, want 2", ch.callCount())
	}
}

func TestCheckNoChannelConfiguredErrors(t *testing.T) {
	e := New(Config{DefaultPolicy: PolicyAsk}, nil)
	_, err := e.Check(context.Background(), "anything", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error when default policy is ask with no channel")
	}
}

func TestCheckChannelErrorPropagates(t *testing.T) {
	wantErr := errors.New("webhook unreachable")
	ch := &fakeChannel{err: wantErr}
	e := New(Config{DefaultPolicy: PolicyAsk}, ch)

	_, err := e.Check(context.Background(), "anything", json.RawMessage(`{}`))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestCheckCoalescesConcurrentIdenticalRequests(t *testing.T) {
	ch := &fakeChannel{reply: ActionYes, delay: 50 * time.Millisecond}
	e := New(Config{DefaultPolicy: PolicyAsk}, ch)

	const n = 10
	var wg sync.WaitGroup
	var allowed int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := e.Check(context.Background(), "same_tool", json.RawMessage(`{"x":1}`))
			if err != nil {
				t.Errorf("Check() error = %v", err)
				return
			}
			if d.Outcome == jaato.DecisionAllowed {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&allowed); got != n {
		t.Errorf("allowed = %d, want %d", got, n)
	}
	if ch.callCount() != 1 {
		t.Errorf("expected exactly 1 channel round-trip for identical concurrent requests, got %d", ch.callCount())
	}
}

func TestCheckDoesNotCoalesceDifferentArgs(t *testing.T) {
	ch := &fakeChannel{reply: ActionYes, delay: 20 * time.Millisecond}
	e := New(Config{DefaultPolicy: PolicyAsk}, ch)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		args := json.RawMessage(`{"x":` + string(rune('0'+i)) + `}`)
		wg.Add(1)
		go func(a json.RawMessage) {
			defer wg.Done()
			if _, err := e.Check(context.Background(), "same_tool", a); err != nil {
				t.Errorf("Check() error = %v", err)
			}
		}(args)
	}
	wg.Wait()

	if ch.callCount() != 3 {
		t.Errorf("expected 3 channel round-trips for distinct args, got %d", ch.callCount())
	}
}

func TestArgsDigestStableAndDistinct(t *testing.T) {
	a := ArgsDigest(json.RawMessage(`{"x":1}`))
	b := ArgsDigest(json.RawMessage(`{"x":1}`))
	c := ArgsDigest(json.RawMessage(`{"x":2}`))
	if a != b {
		t.Errorf("same args produced different digests: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different args produced the same digest")
	}
	if len(a) != 16 {
		t.Errorf("digest length = %d, want 16", len(a))
	}
}
