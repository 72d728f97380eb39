package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/goal-coach/internal/session"
)

// fakeInvoker is a deterministic ModelInvoker. It records every invocation
// and answers from the configured reply function.
type fakeInvoker struct {
	mu          sync.Mutex
	invocations []Invocation
	reply       func(inv Invocation) (*ModelReply, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, inv Invocation) (*ModelReply, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()
	return f.reply(inv)
}

func (f *fakeInvoker) calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.invocations...)
}

func replyWithScore(score float64) func(Invocation) (*ModelReply, error) {
	return func(Invocation) (*ModelReply, error) {
		text := fmt.Sprintf(`{"refined_goal":"refined","key_results":["a","b","c"],"confidence_score":%g}`, score)
		return &ModelReply{Text: text, PromptTokens: 10, CompletionTokens: 20}, nil
	}
}

// spyStore counts Resolve and Append calls on the way to a real store.
type spyStore struct {
	inner    session.Store
	mu       sync.Mutex
	resolves int
	appends  int
}

func (s *spyStore) Resolve(ctx context.Context, userID, threadID string) (*session.Session, bool, error) {
	s.mu.Lock()
	s.resolves++
	s.mu.Unlock()
	return s.inner.Resolve(ctx, userID, threadID)
}

func (s *spyStore) Append(ctx context.Context, userID, threadID string, userTurn, modelTurn session.Turn) error {
	s.mu.Lock()
	s.appends++
	s.mu.Unlock()
	return s.inner.Append(ctx, userID, threadID, userTurn, modelTurn)
}

func (s *spyStore) Close() error { return s.inner.Close() }

func turnCount(t *testing.T, store session.Store, userID, threadID string) int {
	t.Helper()
	sess, isNew, err := store.Resolve(context.Background(), userID, threadID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if isNew {
		t.Fatalf("expected existing thread %s for %s", threadID, userID)
	}
	return len(sess.Turns)
}

func TestRefineEmptyMessageNoSessionNoModelCall(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: replyWithScore(0.9)}
	spy := &spyStore{inner: session.NewMemoryStore()}
	svc := NewService(spy, invoker, nil)

	outcome := svc.Refine(context.Background(), "u1", "   \t  ", "")

	if outcome.Status != OutcomeFailed || outcome.Failure != FailureInvalidInput {
		t.Fatalf("expected invalid input failure, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", outcome.Err)
	}
	if len(invoker.calls()) != 0 {
		t.Fatal("model must not be invoked for an empty message")
	}
	if spy.resolves != 0 {
		t.Fatal("no session should be created for an empty message")
	}
}

func TestRefineAcceptedAppendsOneTurnPair(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: replyWithScore(0.8)}
	threads := session.NewMemoryStore()
	svc := NewService(threads, invoker, nil)

	outcome := svc.Refine(context.Background(), "u1", "get fit", "")

	if outcome.Status != OutcomeAccepted {
		t.Fatalf("expected accepted, got %+v", outcome)
	}
	if outcome.ThreadID == "" {
		t.Fatal("accepted outcome must return a thread id")
	}
	if outcome.Result == nil || outcome.Result.RefinedGoal != "refined" {
		t.Fatalf("unexpected result: %+v", outcome.Result)
	}
	if got := turnCount(t, threads, "u1", outcome.ThreadID); got != 2 {
		t.Fatalf("expected exactly one (user, model) pair, got %d turns", got)
	}
}

func TestRefineAcceptsExactlyAtThreshold(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: replyWithScore(0.5)}
	svc := NewService(session.NewMemoryStore(), invoker, nil)

	outcome := svc.Refine(context.Background(), "u1", "get fit", "")
	if outcome.Status != OutcomeAccepted {
		t.Fatalf("score 0.5 must be accepted, got %+v", outcome)
	}
}

func TestRefineRejectedLeavesThreadUntouched(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: replyWithScore(0.3)}
	threads := session.NewMemoryStore()
	svc := NewService(threads, invoker, nil)

	outcome := svc.Refine(context.Background(), "u1", "asdf qwerty", "")

	if outcome.Status != OutcomeRejected || outcome.Reason != ReasonLowConfidence {
		t.Fatalf("expected low-confidence rejection, got %+v", outcome)
	}
	if outcome.Result == nil {
		t.Fatal("rejected outcome must still carry the draft result")
	}
	if outcome.ThreadID == "" {
		t.Fatal("rejected outcome must return the thread id for retries")
	}
	if got := turnCount(t, threads, "u1", outcome.ThreadID); got != 0 {
		t.Fatalf("rejected turn must not be appended, got %d turns", got)
	}
}

func TestRefineSchemaViolationDoesNotAppend(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: func(Invocation) (*ModelReply, error) {
		return &ModelReply{Text: `{"refined_goal":"g","key_results":["a","b"],"confidence_score":0.9}`}, nil
	}}
	spy := &spyStore{inner: session.NewMemoryStore()}
	svc := NewService(spy, invoker, nil)

	outcome := svc.Refine(context.Background(), "u1", "get fit", "")

	if outcome.Status != OutcomeFailed || outcome.Failure != FailureSchemaViolation {
		t.Fatalf("expected schema violation failure, got %+v", outcome)
	}
	var sv *SchemaViolationError
	if !errors.As(outcome.Err, &sv) {
		t.Fatalf("expected *SchemaViolationError, got %T", outcome.Err)
	}
	if spy.appends != 0 {
		t.Fatal("schema violation must not mutate the thread")
	}
}

func TestRefineUpstreamErrorDoesNotAppend(t *testing.T) {
	t.Parallel()

	upstream := errors.New("rate limited")
	invoker := &fakeInvoker{reply: func(Invocation) (*ModelReply, error) {
		return nil, upstream
	}}
	spy := &spyStore{inner: session.NewMemoryStore()}
	svc := NewService(spy, invoker, nil)

	outcome := svc.Refine(context.Background(), "u1", "get fit", "")

	if outcome.Status != OutcomeFailed || outcome.Failure != FailureUpstream {
		t.Fatalf("expected upstream failure, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, upstream) {
		t.Fatalf("expected wrapped upstream error, got %v", outcome.Err)
	}
	if spy.appends != 0 {
		t.Fatal("upstream failure must not mutate the thread")
	}
}

func TestRefineSecondCallSeesFirstExchange(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: replyWithScore(0.9)}
	svc := NewService(session.NewMemoryStore(), invoker, nil)

	first := svc.Refine(context.Background(), "u1", "learn piano", "")
	if first.Status != OutcomeAccepted {
		t.Fatalf("first refine failed: %+v", first)
	}

	second := svc.Refine(context.Background(), "u1", "make the deadline earlier", first.ThreadID)
	if second.Status != OutcomeAccepted {
		t.Fatalf("second refine failed: %+v", second)
	}
	if second.ThreadID != first.ThreadID {
		t.Fatalf("thread id changed across the conversation: %s vs %s", first.ThreadID, second.ThreadID)
	}

	calls := invoker.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(calls))
	}

	if calls[0].State != ThreadFresh {
		t.Fatalf("first call should be fresh, got %s", calls[0].State)
	}
	if !strings.Contains(calls[0].Message, "<user_goal>") {
		t.Fatalf("first message not wrapped as goal: %q", calls[0].Message)
	}

	if calls[1].State != ThreadContinuing {
		t.Fatalf("second call should be continuing, got %s", calls[1].State)
	}
	if !strings.Contains(calls[1].Message, "<user_feedback>") {
		t.Fatalf("second message not wrapped as feedback: %q", calls[1].Message)
	}
	if len(calls[1].History) != 2 {
		t.Fatalf("second call should see the first exchange, got %d history turns", len(calls[1].History))
	}
	if !strings.Contains(calls[1].History[0].Content, "learn piano") {
		t.Fatalf("second call history missing first message: %q", calls[1].History[0].Content)
	}
}

func TestRefineCrossUserThreadIsIsolated(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: replyWithScore(0.9)}
	threads := session.NewMemoryStore()
	svc := NewService(threads, invoker, nil)

	first := svc.Refine(context.Background(), "u1", "learn piano", "")
	if first.Status != OutcomeAccepted {
		t.Fatalf("u1 refine failed: %+v", first)
	}

	// u2 presents u1's thread id: a fresh thread, never u1's history.
	second := svc.Refine(context.Background(), "u2", "steal a thread", first.ThreadID)
	if second.Status != OutcomeAccepted {
		t.Fatalf("u2 refine failed: %+v", second)
	}
	if second.ThreadID == first.ThreadID {
		t.Fatal("u2 must not share u1's thread id")
	}

	calls := invoker.calls()
	if len(calls[1].History) != 0 {
		t.Fatalf("u2's invocation must not see u1's history, got %d turns", len(calls[1].History))
	}
	if calls[1].State != ThreadFresh {
		t.Fatalf("u2's call should be fresh, got %s", calls[1].State)
	}

	if got := turnCount(t, threads, "u1", first.ThreadID); got != 2 {
		t.Fatalf("u1's thread changed: %d turns", got)
	}
}

func TestRefineConcurrentSameThreadLosesNoTurns(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{reply: replyWithScore(0.9)}
	threads := session.NewMemoryStore()
	svc := NewService(threads, invoker, nil)

	first := svc.Refine(context.Background(), "u1", "learn piano", "")
	if first.Status != OutcomeAccepted {
		t.Fatalf("setup refine failed: %+v", first)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := svc.Refine(context.Background(), "u1", fmt.Sprintf("feedback %d", i), first.ThreadID)
			if outcome.Status != OutcomeAccepted {
				t.Errorf("concurrent refine %d failed: %+v", i, outcome)
			}
		}(i)
	}
	wg.Wait()

	// 1 setup pair + 2 concurrent pairs; a lost update would leave 4.
	if got := turnCount(t, threads, "u1", first.ThreadID); got != 6 {
		t.Fatalf("expected 6 turns after concurrent appends, got %d", got)
	}
}
