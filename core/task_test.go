package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

// TestTaskID_StringAndIsZero verifies TaskID zero-state and string behavior
// Given: A zero TaskID and a generated TaskID
// When: IsZero and String are called
// Then: Zero ID reports true and generated ID is non-zero with non-empty string
func TestTaskID_StringAndIsZero(t *testing.T) {
	// Arrange
	var zero TaskID

	// Act and Assert
	if !zero.IsZero() {
		t.Fatal("zero TaskID should report IsZero() == true")
	}

	// Act
	id := GenerateTaskID()

	// Assert
	if id.IsZero() {
		t.Fatal("generated TaskID should not be zero")
	}
	if len(id.String()) != 36 {
		t.Fatalf("TaskID.String() = %q, want a canonical UUID", id.String())
	}
	if GenerateTaskID() == id {
		t.Fatal("generated TaskIDs should differ")
	}
	text, err := id.MarshalText()
	if err != nil || string(text) != id.String() {
		t.Fatalf("MarshalText() = %q, %v; want %q", text, err, id.String())
	}
}

// TestAction_Variants verifies the two callback shapes are dispatched correctly
// Given: A plain action, a handle-aware action and a zero action
// When: They are invoked with a handle
// Then: Only the aware action sees the handle and the zero action does nothing
func TestAction_Variants(t *testing.T) {
	// Arrange
	plainRuns := 0
	var seen *Handle
	plain := Plain(func(context.Context) { plainRuns++ })
	aware := WithHandle(func(_ context.Context, h *Handle) { seen = h })
	var zero Action
	h := newHandle()

	// Act
	plain.invoke(context.Background(), h)
	aware.invoke(context.Background(), h)
	zero.invoke(context.Background(), h)

	// Assert
	if plainRuns != 1 {
		t.Fatalf("plainRuns = %d, want 1", plainRuns)
	}
	if seen != h {
		t.Fatal("aware action did not receive the handle")
	}
	if plain.IsHandleAware() || !aware.IsHandleAware() {
		t.Fatal("IsHandleAware mismatch")
	}
	if !zero.IsZero() || plain.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

// TestDescriptor_Options verifies descriptor constructors and options
// Given: Descriptors built by each constructor with options
// When: Their getters are read
// Then: Kind, delay, condition, name and loop duration match what was passed
func TestDescriptor_Options(t *testing.T) {
	// Arrange
	cond := func() bool { return true }
	noop := Plain(func(context.Context) {})

	// Act
	task := NewTask(noop, WithDelay(time.Second), WithCondition(cond), WithName("spawn-wave"), nil)
	bounded := NewBoundedLoop(2*time.Second, noop)
	unbounded := NewUnboundedLoop(noop, WithDelay(-time.Second))

	// Assert
	if task.Kind() != TaskKindOneShot || task.Delay() != time.Second || task.Condition() == nil || task.Name() != "spawn-wave" {
		t.Fatalf("task = %+v", task)
	}
	if task.ID().IsZero() {
		t.Fatal("descriptor should get an ID")
	}
	if bounded.Kind() != TaskKindBoundedLoop || bounded.LoopDuration() != 2*time.Second {
		t.Fatalf("bounded kind=%v duration=%v", bounded.Kind(), bounded.LoopDuration())
	}
	if unbounded.Kind() != TaskKindUnboundedLoop || unbounded.Delay() != 0 {
		t.Fatalf("unbounded kind=%v delay=%v", unbounded.Kind(), unbounded.Delay())
	}
	if task.Action().IsZero() {
		t.Fatal("action should be set")
	}
}

// TestTaskKind_String verifies kind labels used in metrics
func TestTaskKind_String(t *testing.T) {
	cases := map[TaskKind]string{
		TaskKindOneShot:       "one_shot",
		TaskKindBoundedLoop:   "bounded_loop",
		TaskKindUnboundedLoop: "unbounded_loop",
		TaskKind(42):          "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("TaskKind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}

func namedForHistory(context.Context) {}

// TestResolveTaskName verifies history names fall back to the function name
func TestResolveTaskName(t *testing.T) {
	if got := resolveTaskName(NewTask(Plain(namedForHistory), WithName("explicit"))); got != "explicit" {
		t.Fatalf("name = %q, want explicit", got)
	}
	if got := resolveTaskName(NewTask(Plain(namedForHistory))); !strings.HasSuffix(got, "namedForHistory") {
		t.Fatalf("name = %q, want function name", got)
	}
	if got := resolveTaskName(NewTask(Action{})); got != "anonymous" {
		t.Fatalf("name = %q, want anonymous", got)
	}
}

// TestExecutionHistory_RingBuffer verifies the history keeps the newest records
// Given: A history of capacity 3
// When: Five records are added
// Then: Recent returns the last three newest first, honoring limit
func TestExecutionHistory_RingBuffer(t *testing.T) {
	// Arrange
	h := newExecutionHistory(3)
	if _, ok := h.Last(); ok {
		t.Fatal("empty history should have no last record")
	}

	// Act
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.Add(TaskExecutionRecord{Name: name})
	}

	// Assert
	all := h.Recent(0)
	if len(all) != 3 || all[0].Name != "e" || all[1].Name != "d" || all[2].Name != "c" {
		t.Fatalf("Recent(0) = %+v", all)
	}
	if two := h.Recent(2); len(two) != 2 || two[1].Name != "d" {
		t.Fatalf("Recent(2) = %+v", two)
	}
	if last, ok := h.Last(); !ok || last.Name != "e" {
		t.Fatalf("Last() = %+v, %v", last, ok)
	}
}

// TestWaiter verifies delay and condition waits
func TestWaiter(t *testing.T) {
	delay := newWaiter(After(250 * time.Millisecond))
	if delay.advance(100*time.Millisecond) || delay.advance(100*time.Millisecond) {
		t.Fatal("delay wait resolved early")
	}
	if !delay.advance(100 * time.Millisecond) {
		t.Fatal("delay wait should resolve once 250ms accumulated")
	}

	ready := false
	cond := newWaiter(Until(func() bool { return ready }))
	if cond.advance(time.Hour) {
		t.Fatal("condition wait resolved before condition")
	}
	ready = true
	if !cond.advance(0) {
		t.Fatal("condition wait should resolve once condition holds")
	}
}
