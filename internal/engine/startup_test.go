package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// fakeEngine implements Engine for startup tests.
type fakeEngine struct {
	running bool
	models  map[string]bool
	pulled  []string
	pullErr error
}

func (f *fakeEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	return "", nil
}

func (f *fakeEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, nil
}

func (f *fakeEngine) IsRunning(ctx context.Context) bool { return f.running }

func (f *fakeEngine) ListModels(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.models))
	for name := range f.models {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeEngine) HasModel(ctx context.Context, name string) bool { return f.models[name] }

func (f *fakeEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulled = append(f.pulled, name)
	if onProgress != nil {
		onProgress(PullProgress{Status: "downloading", Total: 100, Completed: 50})
	}
	f.models[name] = true
	return nil
}

func TestEnsureReadyNotRunning(t *testing.T) {
	f := &fakeEngine{running: false}
	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), f, "chat-model", "embed-model", &buf); err == nil {
		t.Error("EnsureReady should fail when the engine is not running")
	}
}

func TestEnsureReadyAllPresent(t *testing.T) {
	f := &fakeEngine{running: true, models: map[string]bool{"chat-model": true, "embed-model": true}}
	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), f, "chat-model", "embed-model", &buf); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulled) != 0 {
		t.Errorf("pulled %v, want none", f.pulled)
	}
}

func TestEnsureReadyPullsMissing(t *testing.T) {
	f := &fakeEngine{running: true, models: map[string]bool{"chat-model": true}}
	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), f, "chat-model", "embed-model", &buf); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulled) != 1 || f.pulled[0] != "embed-model" {
		t.Errorf("pulled %v, want [embed-model]", f.pulled)
	}
	if !strings.Contains(buf.String(), "pulling") {
		t.Errorf("output %q missing pull progress", buf.String())
	}
}

func TestEnsureReadySkipsDuplicateModel(t *testing.T) {
	f := &fakeEngine{running: true, models: map[string]bool{}}
	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), f, "same-model", "same-model", &buf); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulled) != 1 {
		t.Errorf("pulled %v, want exactly one pull for the shared model", f.pulled)
	}
}
