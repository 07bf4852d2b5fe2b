package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedAudit records three runs through the validate command and returns
// the database path and the run id of the tags repair.
func seedAudit(t *testing.T) (string, string) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "audit.db")

	out, _, code := execute(t, `["Go","go"]`, "--format", "json", "validate", "tags", "--db", db)
	require.Equal(t, ExitSuccess, code, out)
	runID := decodeResponse(t, out).RunID
	require.NotEmpty(t, runID)

	out, _, code = execute(t, `["rust"]`, "validate", "tags", "--db", db)
	require.Equal(t, ExitSuccess, code, out)

	_, _, code = execute(t, "{not json", "validate", "summary", "--db", db)
	require.Equal(t, ExitFailure, code)

	return db, runID
}

func TestTrace_ListRuns(t *testing.T) {
	db, runID := seedAudit(t)

	out, _, code := execute(t, "", "trace", "--db", db)
	require.Equal(t, ExitSuccess, code, out)

	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "record_default")
	assert.Contains(t, out, "Run outcomes:")
	assert.Contains(t, out, "Field outcomes:")
}

func TestTrace_ContractJSON(t *testing.T) {
	db, runID := seedAudit(t)

	out, _, code := execute(t, "", "--format", "json", "trace", "--db", db, "--contract", "tags")
	require.Equal(t, ExitSuccess, code, out)

	data := decodeResponse(t, out).Data.(map[string]interface{})
	assert.Equal(t, "tags", data["contract"])

	runs := data["runs"].([]interface{})
	require.Len(t, runs, 2)
	first := runs[0].(map[string]interface{})
	second := runs[1].(map[string]interface{})
	assert.Equal(t, runID, first["id"])
	assert.Equal(t, "repaired", first["outcome"])
	assert.Equal(t, "clean", second["outcome"])
	assert.Less(t, first["seq"].(float64), second["seq"].(float64))

	outcomes := data["outcomes"].([]interface{})
	require.Len(t, outcomes, 2)
	assert.Equal(t, map[string]interface{}{"contract": "tags", "outcome": "clean", "count": float64(1)}, outcomes[0])
	assert.Equal(t, map[string]interface{}{"contract": "tags", "outcome": "repaired", "count": float64(1)}, outcomes[1])

	stats := data["stats"].([]interface{})
	require.Len(t, stats, 1)
	assert.Equal(t, map[string]interface{}{"field": "tags", "outcome": "repaired", "count": float64(1)}, stats[0])
}

func TestTrace_Limit(t *testing.T) {
	db, _ := seedAudit(t)

	out, _, code := execute(t, "", "--format", "json", "trace", "--db", db, "--limit", "1")
	require.Equal(t, ExitSuccess, code, out)

	runs := decodeResponse(t, out).Data.(map[string]interface{})["runs"].([]interface{})
	require.Len(t, runs, 1)
	assert.Equal(t, "summary", runs[0].(map[string]interface{})["contract"])
}

func TestTrace_SingleRun(t *testing.T) {
	db, runID := seedAudit(t)

	out, _, code := execute(t, "", "trace", "--db", db, "--run", runID)
	require.Equal(t, ExitSuccess, code, out)

	assert.Contains(t, out, "contract:   tags (medium)")
	assert.Contains(t, out, "outcome:    repaired")
	assert.Contains(t, out, "path:       parsing -> validating -> repairing -> done")
	assert.Contains(t, out, `record:     {"tags":["go"]}`)
	assert.Contains(t, out, "Field events:")
	assert.Contains(t, out, "invalid_item")
}

func TestTrace_SingleRunJSON(t *testing.T) {
	db, runID := seedAudit(t)

	out, _, code := execute(t, "", "--format", "json", "trace", "--db", db, "--run", runID)
	require.Equal(t, ExitSuccess, code, out)

	resp := decodeResponse(t, out)
	assert.Equal(t, runID, resp.RunID)
	data := resp.Data.(map[string]interface{})
	events := data["events"].([]interface{})
	require.Len(t, events, 1)
	event := events[0].(map[string]interface{})
	assert.Equal(t, "tags", event["field"])
	assert.Equal(t, "invalid_item", event["kind"])
	assert.Equal(t, "repaired", event["outcome"])
}

func TestTrace_Errors(t *testing.T) {
	db, _ := seedAudit(t)

	out, _, code := execute(t, "", "--format", "json", "trace", "--db", db, "--run", "missing-run")
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, ErrCodeNotFound, decodeResponse(t, out).Error.Code)

	missing := filepath.Join(t.TempDir(), "absent.db")
	out, _, code = execute(t, "", "trace", "--db", missing)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "database not found")
	assert.NoFileExists(t, missing)
}

func TestTrace_EmptyContract(t *testing.T) {
	db, _ := seedAudit(t)

	out, _, code := execute(t, "", "trace", "--db", db, "--contract", "content_analysis")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "No runs found for contract: content_analysis")
}
