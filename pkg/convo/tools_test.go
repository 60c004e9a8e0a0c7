package convo

import (
	"context"
	"errors"
	"testing"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()
	handler := ToolHandlerFunc(func(context.Context, types.ToolCall) (ToolResult, error) {
		return ToolResult{}, nil
	})

	if err := r.Register("", handler); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register("tool", nil); err == nil {
		t.Error("nil handler accepted")
	}
	if err := r.Register("tool", handler); err != nil {
		t.Errorf("valid registration failed: %v", err)
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	var seen types.ToolCall
	err := r.Register("save_visit_reason", ToolHandlerFunc(func(_ context.Context, call types.ToolCall) (ToolResult, error) {
		seen = call
		return ToolResult{Content: "ok", Requeue: true}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	call := types.ToolCall{ID: "c1", Name: "save_visit_reason", Arguments: `{"reason":"Fieber"}`}
	result, ok, derr := r.Dispatch(context.Background(), call)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if !ok {
		t.Fatal("ok = false for registered tool")
	}
	if result.Content != "ok" || !result.Requeue {
		t.Fatalf("result = %+v", result)
	}
	if seen.ID != "c1" {
		t.Fatalf("handler saw call %+v", seen)
	}
}

func TestRegistry_DispatchUnregistered(t *testing.T) {
	r := NewRegistry()
	result, ok, err := r.Dispatch(context.Background(), types.ToolCall{Name: "unknown"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("ok = true for unregistered tool")
	}
	if result != (ToolResult{}) {
		t.Fatalf("result = %+v, want zero value", result)
	}
}

func TestRegistry_DispatchHandlerError(t *testing.T) {
	r := NewRegistry()
	handlerErr := errors.New("store down")
	_ = r.Register("failing", ToolHandlerFunc(func(context.Context, types.ToolCall) (ToolResult, error) {
		return ToolResult{}, handlerErr
	}))

	_, ok, err := r.Dispatch(context.Background(), types.ToolCall{Name: "failing"})
	if !ok {
		t.Fatal("ok = false, handler was registered")
	}
	if !errors.Is(err, handlerErr) {
		t.Fatalf("err = %v, want handler error", err)
	}
}

func TestRegistry_Validate(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("known", ToolHandlerFunc(func(context.Context, types.ToolCall) (ToolResult, error) {
		return ToolResult{}, nil
	}))

	if err := r.Validate([]types.ToolDefinition{{Name: "known"}}); err != nil {
		t.Errorf("Validate with registered tool: %v", err)
	}

	err := r.Validate([]types.ToolDefinition{{Name: "known"}, {Name: "missing"}})
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", err)
	}
}
