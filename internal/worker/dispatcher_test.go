package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/campaigner-ai/engine/internal/trace"
)

type stubWorker struct {
	result Result
	err    error
	panics bool
}

func (s *stubWorker) Execute(ctx context.Context, task Task) (Result, error) {
	if s.panics {
		panic("nil pointer somewhere deep")
	}
	return s.result, s.err
}

// newTestDispatcher wires a dispatcher over a memory sink. The
// returned flush closes the tracer so the sink can be inspected; it is
// safe to call more than once.
func newTestDispatcher(t *testing.T, kind Kind, w Worker) (*Dispatcher, *trace.MemorySink, func()) {
	t.Helper()
	sink := trace.NewMemorySink()
	tracer := trace.New(sink, 64)
	t.Cleanup(tracer.Close)

	reg := NewRegistry()
	reg.Register(kind, func() Worker { return w })
	return NewDispatcher(reg, tracer), sink, tracer.Close
}

func TestDispatchUnknownKindIsConfigError(t *testing.T) {
	d, _, _ := newTestDispatcher(t, KindQuery, &stubWorker{})
	_, err := d.Dispatch(context.Background(), KindAnalyticsCrew, Task{ThreadID: "t1"})
	if !errors.Is(err, ErrUnknownWorker) {
		t.Fatalf("expected ErrUnknownWorker, got %v", err)
	}
}

func TestDispatchConvertsWorkerError(t *testing.T) {
	d, _, _ := newTestDispatcher(t, KindQuery, &stubWorker{err: errors.New("db: connection refused to 10.0.3.7")})
	res, err := d.Dispatch(context.Background(), KindQuery, Task{ThreadID: "t1"})
	if err != nil {
		t.Fatalf("worker errors must not propagate: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("status = %q, want %q", res.Status, StatusError)
	}
	if res.Err != userSafeError {
		t.Errorf("user-facing error = %q, want the safe message", res.Err)
	}
	if strings.Contains(res.Err, "10.0.3.7") {
		t.Error("raw error leaked into the user-facing result")
	}
}

func TestDispatchContainsPanic(t *testing.T) {
	d, sink, flush := newTestDispatcher(t, KindQuery, &stubWorker{panics: true})
	res, err := d.Dispatch(context.Background(), KindQuery, Task{ThreadID: "t1", DelegationLevel: 0})
	if err != nil {
		t.Fatalf("panic must be contained, got error %v", err)
	}
	if res.Status != StatusError || res.Err != userSafeError {
		t.Fatalf("panic not converted to safe error result: %+v", res)
	}
	flush()

	var sawPanic bool
	for _, rec := range sink.Records() {
		if rec.Kind == trace.KindError && rec.ErrorType == "panic" {
			sawPanic = true
			if !strings.Contains(rec.Error, "nil pointer") {
				t.Error("trace should carry the raw panic value")
			}
		}
	}
	if !sawPanic {
		t.Error("panic was not recorded in the trace")
	}
}

func TestDispatchTracesTaskBoundaries(t *testing.T) {
	d, sink, flush := newTestDispatcher(t, KindQuery, &stubWorker{result: Result{Status: StatusCompleted, Result: "ok"}})
	if _, err := d.Dispatch(context.Background(), KindQuery, Task{ThreadID: "t1", Query: "how many campaigns"}); err != nil {
		t.Fatal(err)
	}
	flush()

	recs := sink.ByThread("t1", 0)
	if len(recs) < 2 {
		t.Fatalf("expected task_start and task_end records, got %d", len(recs))
	}
	if recs[0].Kind != trace.KindTaskStart {
		t.Errorf("first record = %q, want task_start", recs[0].Kind)
	}
	last := recs[len(recs)-1]
	if last.Kind != trace.KindTaskEnd || !last.Success {
		t.Errorf("last record = %+v, want successful task_end", last)
	}
}

func TestDispatchFillsInBandErrorMessage(t *testing.T) {
	d, _, _ := newTestDispatcher(t, KindQuery, &stubWorker{result: Result{Status: StatusError}})
	res, _ := d.Dispatch(context.Background(), KindQuery, Task{ThreadID: "t1"})
	if res.Err != userSafeError {
		t.Errorf("empty in-band error should get the safe message, got %q", res.Err)
	}
}

func TestRegistryValidate(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindQuery, func() Worker { return &stubWorker{} })
	if err := reg.Validate(KindQuery); err != nil {
		t.Fatalf("Validate with registered kind: %v", err)
	}
	if err := reg.Validate(KindQuery, KindAnalyticsCrew); err == nil {
		t.Fatal("Validate should fail for missing kind")
	}
}
