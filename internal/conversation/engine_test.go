package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/campaigner-ai/engine/internal/worker"
)

type scriptedRouter struct {
	decisions []Decision
	err       error
	calls     int
}

func (r *scriptedRouter) Route(ctx context.Context, state *State) (Decision, error) {
	r.calls++
	if r.err != nil {
		return Decision{}, r.err
	}
	if len(r.decisions) == 0 {
		return Decision{Message: "Could you clarify?"}, nil
	}
	d := r.decisions[0]
	if len(r.decisions) > 1 {
		r.decisions = r.decisions[1:]
	}
	return d, nil
}

type scriptedDispatcher struct {
	results []worker.Result
	err     error
	calls   int
	tasks   []worker.Task
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, kind worker.Kind, task worker.Task) (worker.Result, error) {
	d.calls++
	d.tasks = append(d.tasks, task)
	if d.err != nil {
		return worker.Result{}, d.err
	}
	if len(d.results) == 0 {
		return worker.Result{Status: worker.StatusCompleted, Result: "done"}, nil
	}
	r := d.results[0]
	if len(d.results) > 1 {
		d.results = d.results[1:]
	}
	return r, nil
}

func newTestEngine(r Router, d Dispatcher) (*Engine, *ThreadStore) {
	store := NewThreadStore(30 * time.Minute)
	return NewEngine(r, d, store, 60), store
}

func TestTurnCompletes(t *testing.T) {
	router := &scriptedRouter{decisions: []Decision{{
		Ready:  true,
		Worker: worker.KindQuery,
		Task:   worker.Task{Query: "what is my agency?"},
	}}}
	dispatcher := &scriptedDispatcher{results: []worker.Result{{
		Status: worker.StatusCompleted,
		Result: "Your agency is Northwind Media.",
	}}}
	engine, _ := newTestEngine(router, dispatcher)

	reply, err := engine.HandleMessage(context.Background(), "", 7, 12, "what is my agency?")
	if err != nil {
		t.Fatal(err)
	}
	if !reply.Complete {
		t.Error("reply should be complete")
	}
	if reply.Text != "Your agency is Northwind Media." {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.ThreadID == "" {
		t.Error("new thread did not get an ID")
	}
}

func TestClarificationEndsTurnWithoutDispatch(t *testing.T) {
	router := &scriptedRouter{decisions: []Decision{{
		Message: "Which platform do you mean?",
	}}}
	dispatcher := &scriptedDispatcher{}
	engine, _ := newTestEngine(router, dispatcher)

	reply, err := engine.HandleMessage(context.Background(), "", 7, 12, "show me the numbers")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Complete {
		t.Error("clarification turn must not be complete")
	}
	if dispatcher.calls != 0 {
		t.Errorf("dispatcher called %d times on a clarification turn", dispatcher.calls)
	}
	if reply.Text != "Which platform do you mean?" {
		t.Errorf("text = %q", reply.Text)
	}
}

func TestClarificationThenReadyOnSameThread(t *testing.T) {
	router := &scriptedRouter{decisions: []Decision{
		{Message: "Facebook or Google?"},
		{Ready: true, Worker: worker.KindSingleAnalytics, Task: worker.Task{Query: "facebook spend"}},
	}}
	dispatcher := &scriptedDispatcher{}
	engine, _ := newTestEngine(router, dispatcher)

	first, err := engine.HandleMessage(context.Background(), "", 7, 12, "how much did we spend?")
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.HandleMessage(context.Background(), first.ThreadID, 7, 12, "facebook")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Complete {
		t.Error("second turn should complete")
	}
	if second.ThreadID != first.ThreadID {
		t.Error("thread changed between turns")
	}
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher calls = %d, want 1", dispatcher.calls)
	}
}

func TestRecoveryReRouteClarifies(t *testing.T) {
	router := &scriptedRouter{decisions: []Decision{
		{Ready: true, Worker: worker.KindAnalyticsCrew, Task: worker.Task{Query: "q"}},
		{Message: "Could you narrow that down to one platform?"},
	}}
	dispatcher := &scriptedDispatcher{results: []worker.Result{
		{Status: worker.StatusError, Err: "I ran into a problem while working on that request."},
	}}
	engine, _ := newTestEngine(router, dispatcher)

	reply, err := engine.HandleMessage(context.Background(), "", 7, 12, "analyze everything")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Could you narrow that down to one platform?" {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.Complete {
		t.Error("recovery clarification must wait for the user")
	}
	if router.calls != 2 {
		t.Errorf("router calls = %d, want 2", router.calls)
	}
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher calls = %d, want 1", dispatcher.calls)
	}
}

func TestNoSecondDispatchAfterWorkerFailure(t *testing.T) {
	failing := worker.Result{Status: worker.StatusError, Err: "I ran into a problem while working on that request."}
	router := &scriptedRouter{decisions: []Decision{
		{Ready: true, Worker: worker.KindAnalyticsCrew, Task: worker.Task{Query: "q"}},
		{Ready: true, Worker: worker.KindSingleAnalytics, Task: worker.Task{Query: "q"}},
	}}
	dispatcher := &scriptedDispatcher{results: []worker.Result{
		failing,
		{Status: worker.StatusCompleted, Result: "second dispatch answer"},
	}}
	engine, _ := newTestEngine(router, dispatcher)

	reply, err := engine.HandleMessage(context.Background(), "", 7, 12, "analyze")
	if err != nil {
		t.Fatal(err)
	}
	// The re-route picked another worker, but a turn never dispatches
	// twice without an intervening user-facing message.
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher calls = %d, want exactly 1", dispatcher.calls)
	}
	if !reply.Complete {
		t.Error("failed turn must still be terminal")
	}
	if reply.Text != failing.Err {
		t.Errorf("text = %q, want the worker's user-safe error", reply.Text)
	}
}

func TestRecoveryAvailableEachTurn(t *testing.T) {
	failing := worker.Result{Status: worker.StatusError, Err: "problem"}
	router := &scriptedRouter{decisions: []Decision{
		{Ready: true, Worker: worker.KindQuery, Task: worker.Task{Query: "q"}},
	}}
	dispatcher := &scriptedDispatcher{results: []worker.Result{failing, failing}}
	engine, _ := newTestEngine(router, dispatcher)

	first, err := engine.HandleMessage(context.Background(), "", 7, 12, "one")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.HandleMessage(context.Background(), first.ThreadID, 7, 12, "two"); err != nil {
		t.Fatal(err)
	}
	// One dispatch and one recovery re-route per turn.
	if dispatcher.calls != 2 {
		t.Errorf("dispatcher calls = %d, want 2", dispatcher.calls)
	}
	if router.calls != 4 {
		t.Errorf("router calls = %d, want 4", router.calls)
	}
}

func TestDirectAnswerCompletesTurn(t *testing.T) {
	router := &scriptedRouter{decisions: []Decision{{
		Message:  "I can analyze your Facebook and Google campaigns and answer account questions.",
		Complete: true,
	}}}
	dispatcher := &scriptedDispatcher{}
	engine, _ := newTestEngine(router, dispatcher)

	reply, err := engine.HandleMessage(context.Background(), "", 7, 12, "what can you do?")
	if err != nil {
		t.Fatal(err)
	}
	if !reply.Complete {
		t.Error("direct answer must complete the turn")
	}
	if dispatcher.calls != 0 {
		t.Errorf("dispatcher called %d times on a direct answer", dispatcher.calls)
	}
	if !strings.Contains(reply.Text, "I can analyze") {
		t.Errorf("text = %q", reply.Text)
	}
}

func TestUnknownWorkerIsTerminalApology(t *testing.T) {
	router := &scriptedRouter{decisions: []Decision{
		{Ready: true, Worker: worker.KindCampaignPlanning, Task: worker.Task{}},
	}}
	dispatcher := &scriptedDispatcher{err: worker.ErrUnknownWorker}
	engine, _ := newTestEngine(router, dispatcher)

	reply, err := engine.HandleMessage(context.Background(), "", 7, 12, "plan a campaign")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != apology {
		t.Errorf("text = %q, want the apology", reply.Text)
	}
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher calls = %d, config errors must not retry", dispatcher.calls)
	}
}

func TestThreadExpiryStartsFresh(t *testing.T) {
	store := NewThreadStore(10 * time.Millisecond)
	router := &scriptedRouter{}
	engine := NewEngine(router, &scriptedDispatcher{}, store, 60)

	first, err := engine.HandleMessage(context.Background(), "", 7, 12, "hello")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	th := store.Acquire(first.ThreadID, 7, 12)
	history := len(th.state.Messages)
	store.Release(th)
	if history != 0 {
		t.Errorf("expired thread kept %d messages", history)
	}
}

func TestExpiryKeepsInFlightThread(t *testing.T) {
	store := NewThreadStore(5 * time.Millisecond)
	th := store.Acquire("busy", 7, 12)
	time.Sleep(15 * time.Millisecond)

	// A concurrent Acquire past the TTL must wait for the in-flight
	// turn and get the same State, not a fresh thread under the ID.
	got := make(chan *Thread)
	go func() { got <- store.Acquire(th.state.ThreadID, 7, 12) }()

	th.state.Append(RoleUser, "still here")
	store.Release(th)

	other := <-got
	defer store.Release(other)
	if other != th {
		t.Fatal("expiry replaced a thread with a turn in flight")
	}
	if len(other.state.Messages) != 1 {
		t.Errorf("history = %d messages, want 1", len(other.state.Messages))
	}
}

func TestSweepSkipsLockedThread(t *testing.T) {
	store := NewThreadStore(5 * time.Millisecond)
	th := store.Acquire("busy", 7, 12)
	time.Sleep(15 * time.Millisecond)

	store.sweep()
	if store.Len() != 1 {
		t.Fatalf("sweep evicted a thread with a turn in flight, live = %d", store.Len())
	}

	store.Release(th)
	store.sweep()
	if store.Len() != 0 {
		t.Errorf("released expired thread survived the sweep, live = %d", store.Len())
	}
}

func TestHistoryTrimming(t *testing.T) {
	store := NewThreadStore(time.Hour)
	engine := NewEngine(&scriptedRouter{}, &scriptedDispatcher{}, store, 4)

	var threadID string
	for i := 0; i < 10; i++ {
		reply, err := engine.HandleMessage(context.Background(), threadID, 7, 12, "ping")
		if err != nil {
			t.Fatal(err)
		}
		threadID = reply.ThreadID
	}

	th := store.Acquire(threadID, 7, 12)
	defer store.Release(th)
	if len(th.state.Messages) > 4 {
		t.Errorf("history = %d messages, cap is 4", len(th.state.Messages))
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"כמה הוצאנו החודש?", "hebrew"},
		{"how much did we spend?", "english"},
		{"ROI של facebook", "hebrew"},
		{"123 ???", "hebrew"},
		{"", "hebrew"},
	}
	for _, c := range cases {
		if got := DetectLanguage(c.text); got != c.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestSystemMessageInjectedOnRecovery(t *testing.T) {
	router := &scriptedRouter{decisions: []Decision{
		{Ready: true, Worker: worker.KindAnalyticsCrew, Task: worker.Task{Query: "q"}},
		{Message: "Could you narrow that down?"},
	}}
	dispatcher := &scriptedDispatcher{results: []worker.Result{
		{Status: worker.StatusError, Err: "I ran into a problem while working on that request."},
	}}
	store := NewThreadStore(time.Hour)
	engine := NewEngine(router, dispatcher, store, 60)

	reply, err := engine.HandleMessage(context.Background(), "", 7, 12, "analyze")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Complete {
		t.Error("recovery route chose clarification; turn should await the user")
	}

	th := store.Acquire(reply.ThreadID, 7, 12)
	defer store.Release(th)
	var sawSystem bool
	for _, m := range th.state.Messages {
		if m.Role == RoleSystem && strings.Contains(m.Content, "previous attempt") {
			sawSystem = true
		}
	}
	if !sawSystem {
		t.Error("failure context was not injected into the history")
	}
}
