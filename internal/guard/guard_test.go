package guard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/aiguard/internal/config"
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/logging"
	"github.com/roach88/aiguard/internal/pipeline"
	testutilrun "github.com/roach88/aiguard/internal/testutil"
)

const reviewCUE = `
package contracts

contract: review: {
	fields: {
		verdict: { type: "enum", enum: ["approve", "reject"], default: "reject" }
		notes:   { type: "string", max_len: 20, default: "" }
	}
}
`

func contractsDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.cue"), []byte(src), 0644))
	return dir
}

func TestNew_BuiltinsOnly(t *testing.T) {
	g, err := New(config.Default())
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, []string{"content_analysis", "summary", "tags"}, g.Registry().IDs())
	assert.True(t, g.Registry().Sealed())
	assert.Nil(t, g.Store())
	assert.NotNil(t, g.Gatherer())
}

func TestNew_ContractsDir(t *testing.T) {
	cfg := config.Default()
	cfg.Contracts.Dir = contractsDir(t, reviewCUE)

	g, err := New(cfg)
	require.NoError(t, err)
	defer g.Close()

	assert.Contains(t, g.Registry().IDs(), "review")

	res, err := g.Validate(context.Background(), "review", []byte(`{"verdict": "APPROVE", "notes": "a very long note that will be cut"}`), contract.Medium)
	require.NoError(t, err)
	assert.Equal(t, ir.String("reject"), res.Record["verdict"], "enum values are never case folded")
	assert.Equal(t, []string{"verdict"}, res.Trace.Defaulted)
	assert.Equal(t, []string{"notes"}, res.Trace.Repaired)
}

func TestNew_ContractErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "shadows builtin",
			src:     "package contracts\n\ncontract: tags: fields: tags: { type: \"string_list\", default: [] }\n",
			wantErr: "DUPLICATE_CONTRACT",
		},
		{
			name:    "static check",
			src:     "package contracts\n\ncontract: bad: fields: n: { type: \"integer\", min: 5, max: 1, default: 3 }\n",
			wantErr: "INVALID_CONTRACT",
		},
		{
			name:    "syntax",
			src:     "package contracts\n\ncontract: {\n",
			wantErr: "load contracts from",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Contracts.Dir = contractsDir(t, tt.src)
			_, err := New(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ConfiguredStrictness(t *testing.T) {
	cfg := config.Default()
	cfg.Validation.Strictness = contract.Strict

	g, err := New(cfg, WithIDGenerator(testutilrun.NewFixedRunIDGenerator("run-1")))
	require.NoError(t, err)

	res, err := g.Validate(context.Background(), "tags", []byte(`["Go"]`), "")
	require.NoError(t, err)
	assert.Equal(t, contract.Strict, res.Trace.Strictness)
	assert.Equal(t, "run-1", res.RunID)
	assert.NotContains(t, res.Trace.Path, pipeline.StateRepairing)

	res, err = g.Validate(context.Background(), "tags", []byte(`["Go"]`), contract.Lenient)
	require.NoError(t, err)
	assert.Equal(t, contract.Lenient, res.Trace.Strictness)
}

func TestValidate_UnknownContract(t *testing.T) {
	g, err := New(config.Default())
	require.NoError(t, err)

	_, err = g.Validate(context.Background(), "nope", []byte(`{}`), "")
	require.Error(t, err)
	assert.True(t, contract.IsUnknownContract(err))
}

func TestSinks(t *testing.T) {
	cfg := config.Default()
	cfg.Events.StorePath = filepath.Join(t.TempDir(), "audit.db")
	reg := prometheus.NewRegistry()
	tl := logging.NewTestLogger()

	var seen []string
	g, err := New(cfg,
		WithLogger(tl.Logger),
		WithPrometheusRegistry(reg),
		WithIDGenerator(pipeline.NewSequenceGenerator("run-1")),
		WithObservers(pipeline.ObserverFunc(func(_ context.Context, res pipeline.Result) {
			seen = append(seen, res.RunID)
		})),
	)
	require.NoError(t, err)
	defer g.Close()

	res, err := g.ValidateValue(context.Background(), "tags", ir.StringList("Go", "go"), contract.Medium)
	require.NoError(t, err)
	assert.Equal(t, ir.StringList("go"), res.Record["tags"])

	assert.Equal(t, []string{"run-1"}, seen)
	tl.AssertLogged(t, zapcore.InfoLevel, "validation complete")

	n, err := testutil.GatherAndCount(reg, "aiguard_validations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	run, err := g.Store().ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "repaired", run.Outcome)
}

func TestSinks_Disabled(t *testing.T) {
	cfg := config.Default()
	cfg.Events.Enabled = false
	cfg.Events.StorePath = filepath.Join(t.TempDir(), "audit.db")
	tl := logging.NewTestLogger()

	g, err := New(cfg, WithLogger(tl.Logger))
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Validate(context.Background(), "summary", []byte(`{"brief": "ok"}`), "")
	require.NoError(t, err)

	assert.Nil(t, g.Store())
	assert.Nil(t, g.Gatherer())
	assert.Empty(t, tl.FilterMessage("validation complete").All())
}
