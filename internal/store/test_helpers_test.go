package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/aiguard/internal/builtin"
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/pipeline"
	"github.com/roach88/aiguard/internal/registry"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestPipeline returns a pipeline over the builtin contracts whose
// run ids are handed out from ids in order.
func createTestPipeline(t *testing.T, ids ...string) *pipeline.Pipeline {
	t.Helper()
	r := registry.New()
	if err := builtin.Register(r); err != nil {
		t.Fatalf("builtin.Register() failed: %v", err)
	}
	r.Seal()
	return pipeline.New(r, pipeline.WithIDGenerator(pipeline.NewSequenceGenerator(ids...)))
}

// runPayload validates raw and fails the test on a configuration error.
func runPayload(t *testing.T, p *pipeline.Pipeline, contractID, raw string, s contract.Strictness) pipeline.Result {
	t.Helper()
	res, err := p.Validate(context.Background(), contractID, []byte(raw), s)
	if err != nil {
		t.Fatalf("Validate(%s) failed: %v", contractID, err)
	}
	return res
}
