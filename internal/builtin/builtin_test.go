package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aiguard/internal/compiler"
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/registry"
)

func TestContractsCompileAndPassStaticChecks(t *testing.T) {
	cs, err := Contracts()
	require.NoError(t, err)
	require.Len(t, cs, 3)

	for _, c := range cs {
		assert.Empty(t, compiler.Validate(c), "contract %s", c.ID)
	}
}

func TestRegister(t *testing.T) {
	r := registry.New()
	require.NoError(t, Register(r))
	assert.Equal(t, []string{"content_analysis", "summary", "tags"}, r.IDs())

	err := Register(r)
	assert.True(t, contract.IsDuplicateContract(err))
}

func TestContentAnalysisShape(t *testing.T) {
	r := registry.New()
	require.NoError(t, Register(r))

	c, err := r.Lookup("content_analysis")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"title", "summary", "category", "sentiment", "difficulty_level",
		"estimated_reading_time", "key_points", "tags", "entities",
		"insights", "content_type",
	}, c.FieldNames())

	category, _ := c.Field("category")
	assert.Equal(t, contract.TypeEnum, category.Type)
	assert.Equal(t, []string{"article", "tutorial", "reference", "news", "discussion", "video", "other"}, category.Enum)

	title, _ := c.Field("title")
	assert.Equal(t, 100, title.MaxLen)
	assert.True(t, title.Required)
	assert.True(t, title.CollapseWhitespace)

	contentType, _ := c.Field("content_type")
	assert.Equal(t, ir.String("unknown"), contentType.Default)

	insights, _ := c.Field("insights")
	assert.Equal(t, contract.TypeStringList, insights.Type)
	assert.True(t, insights.PreserveCase)

	assert.Equal(t, ir.String("Content Analysis Unavailable"), c.Fallback["title"])
}

func TestTagsContract(t *testing.T) {
	r := registry.New()
	require.NoError(t, Register(r))

	c, err := r.Lookup("tags")
	require.NoError(t, err)
	assert.Equal(t, "tags", c.ListRoot)

	tags, _ := c.Field("tags")
	assert.Equal(t, ir.StringList("general", "content"), tags.Default)
	require.NotNil(t, tags.ItemPattern)
	for _, ok := range []string{"go", "machine learning", "c++", "c#", "ci/cd", "日本語"} {
		assert.True(t, tags.ItemPattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"-go", "#go", "go!"} {
		assert.False(t, tags.ItemPattern.MatchString(bad), bad)
	}
}
