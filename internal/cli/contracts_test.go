package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContracts_ListsBuiltins(t *testing.T) {
	out, _, code := execute(t, "", "contracts")
	require.Equal(t, ExitSuccess, code, out)

	assert.Contains(t, out, "content_analysis\n")
	assert.Contains(t, out, "summary\n")
	assert.Contains(t, out, "tags\n")
	assert.Contains(t, out, "top-level arrays map to tags")
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "1..10 items")
}

func TestContracts_SingleJSON(t *testing.T) {
	out, _, code := execute(t, "", "--format", "json", "contracts", "review", "--contracts", filepath.Join("testdata", "contracts"))
	require.Equal(t, ExitSuccess, code, out)

	var resp struct {
		Status string         `json:"status"`
		Data   []ContractInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)

	review := resp.Data[0]
	assert.Equal(t, "review", review.ID)
	require.Len(t, review.Fields, 2)

	verdict := review.Fields[0]
	assert.Equal(t, "verdict", verdict.Name)
	assert.Equal(t, "enum", verdict.Type)
	assert.True(t, verdict.Required)
	assert.Equal(t, []string{"one of approve|reject|abstain"}, verdict.Constraints)
	assert.JSONEq(t, `"abstain"`, string(verdict.Default))

	score := review.Fields[1]
	assert.Equal(t, []string{"1..5"}, score.Constraints)
	assert.JSONEq(t, `3`, string(score.Default))
}

func TestContracts_Unknown(t *testing.T) {
	out, _, code := execute(t, "", "--format", "json", "contracts", "nope")
	assert.Equal(t, ExitCommandError, code)

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_CONTRACT", resp.Error.Code)
}
