package defaults

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aiguard/internal/builtin"
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/registry"
	"github.com/roach88/aiguard/internal/validate"
)

func newProvider(t *testing.T) (*Provider, *registry.Registry) {
	t.Helper()
	r := registry.New()
	require.NoError(t, builtin.Register(r))
	r.Seal()
	return New(r), r
}

func TestRecordDefaultsAreValid(t *testing.T) {
	p, r := newProvider(t)
	for _, id := range r.IDs() {
		t.Run(id, func(t *testing.T) {
			rec, err := p.RecordDefault(id)
			require.NoError(t, err)

			c, _ := r.Lookup(id)
			assert.True(t, validate.Valid(c, rec), "violations: %v", validate.Record(c, rec).Violations())
			assert.Len(t, rec, len(c.Fields))
		})
	}
}

func TestRecordDefaultUsesFallback(t *testing.T) {
	p, _ := newProvider(t)

	rec, err := p.RecordDefault("content_analysis")
	require.NoError(t, err)
	assert.Equal(t, ir.String("Content Analysis Unavailable"), rec["title"])
	assert.Equal(t, ir.String("Unable to analyze content at this time."), rec["summary"])
	assert.Equal(t, ir.String("other"), rec["category"])

	rec, err = p.RecordDefault("summary")
	require.NoError(t, err)
	assert.Equal(t, ir.String("Summary processing failed"), rec["brief"])

	rec, err = p.RecordDefault("tags")
	require.NoError(t, err)
	assert.Equal(t, ir.Mapping{"tags": ir.StringList("general", "content")}, rec)
}

func TestFieldDefault(t *testing.T) {
	p, _ := newProvider(t)

	v, err := p.FieldDefault("content_analysis", "title")
	require.NoError(t, err)
	assert.Equal(t, ir.String("Untitled Content"), v, "field default ignores record fallback")

	_, err = p.FieldDefault("content_analysis", "nope")
	assert.Error(t, err)

	_, err = p.FieldDefault("nope", "title")
	assert.True(t, contract.IsUnknownContract(err))
}

func TestDefaultsAreClones(t *testing.T) {
	p, _ := newProvider(t)

	rec, err := p.RecordDefault("tags")
	require.NoError(t, err)
	rec["tags"].(ir.List)[0] = ir.String("mutated")

	again, err := p.RecordDefault("tags")
	require.NoError(t, err)
	assert.Equal(t, ir.StringList("general", "content"), again["tags"])
}
