package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aiguard/internal/builtin"
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/defaults"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/parse"
	"github.com/roach88/aiguard/internal/registry"
	"github.com/roach88/aiguard/internal/validate"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, builtin.Register(r))
	r.Seal()
	return r
}

func newPipeline(t *testing.T, opts ...Option) (*Pipeline, *registry.Registry) {
	t.Helper()
	r := newRegistry(t)
	return New(r, opts...), r
}

func mustValidate(t *testing.T, p *Pipeline, id, raw string, s contract.Strictness) Result {
	t.Helper()
	res, err := p.Validate(context.Background(), id, []byte(raw), s)
	require.NoError(t, err)
	return res
}

func assertValid(t *testing.T, r *registry.Registry, res Result) {
	t.Helper()
	c, err := r.Lookup(res.ContractID)
	require.NoError(t, err)
	report := validate.Record(c, res.Record)
	assert.True(t, report.Empty(), "record %v violates contract: %v", res.Record, report.Violations())
	assert.Len(t, res.Record, len(c.Fields), "record holds exactly the declared fields")
}

func TestCleanPayload(t *testing.T) {
	p, r := newPipeline(t)
	res := mustValidate(t, p, "summary", `{"brief": "Short.", "detailed": "Longer.", "key_takeaways": ["One", "Two"]}`, contract.Medium)

	assertValid(t, r, res)
	assert.True(t, res.Trace.Clean())
	assert.Equal(t, OutcomeClean, res.Trace.Outcome())
	assert.Equal(t, []State{StateParsing, StateValidating, StateDone}, res.Trace.Path)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.InputDigest, 64)
}

func TestTagNormalization(t *testing.T) {
	p, _ := newPipeline(t)
	res := mustValidate(t, p, "tags", `{"tags": ["Go", "go", " Rust ", ""]}`, contract.Medium)

	assert.Equal(t, ir.StringList("go", "rust"), res.Record["tags"])
	assert.Equal(t, []string{"tags"}, res.Trace.Repaired)
	assert.Empty(t, res.Trace.Defaulted)
	assert.Equal(t, []State{StateParsing, StateValidating, StateRepairing, StateDone}, res.Trace.Path)
}

func TestBareTagArray(t *testing.T) {
	p, _ := newPipeline(t)
	res := mustValidate(t, p, "tags", `["AI", {"name": "Python"}, "ai"]`, contract.Lenient)
	assert.Equal(t, ir.StringList("ai", "python"), res.Record["tags"])
}

func TestTruncationBoundary(t *testing.T) {
	p, r := newPipeline(t)
	title := strings.Repeat("\u00fc", 150)
	res := mustValidate(t, p, "content_analysis", fmt.Sprintf(`{"title": %q}`, title), contract.Medium)

	got := string(res.Record["title"].(ir.String))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.Contains(t, res.Trace.Repaired, "title")
	assertValid(t, r, res)
}

func TestParseFailurePath(t *testing.T) {
	p, r := newPipeline(t)
	for _, id := range r.IDs() {
		t.Run(id, func(t *testing.T) {
			res := mustValidate(t, p, id, "{not json", contract.Lenient)

			want, err := defaults.New(r).RecordDefault(id)
			require.NoError(t, err)
			assert.Equal(t, want, res.Record)
			assert.True(t, res.Trace.RecordDefault)
			assert.Equal(t, ReasonParseFailure, res.Trace.RecordDefaultReason)
			assert.NotEmpty(t, res.Trace.ParseError)
			assert.Equal(t, []State{StateParsing, StateDefaulting, StateDone}, res.Trace.Path)
			assert.Equal(t, OutcomeRecordDefault, res.Trace.Outcome())
		})
	}
}

func TestEnumRejection(t *testing.T) {
	p, _ := newPipeline(t)
	res := mustValidate(t, p, "content_analysis", `{"title": "T", "category": "podcast"}`, contract.Medium)

	assert.Equal(t, ir.String("other"), res.Record["category"])
	v := findViolation(t, res.Trace.Violations, "category")
	assert.Equal(t, validate.NotInEnum, v.Kind)
	assert.Contains(t, res.Trace.Defaulted, "category")
}

func TestStrictNeverRepairs(t *testing.T) {
	p, r := newPipeline(t)
	inputs := []string{
		`{"title": "T", "tags": ["Go", "go"], "estimated_reading_time": "5"}`,
		`{"title": 42, "summary": "` + strings.Repeat("s", 1200) + `"}`,
		`{"brief": "ok", "key_takeaways": "a, b"}`,
	}

	for _, id := range []string{"content_analysis", "summary"} {
		for _, in := range inputs {
			res := mustValidate(t, p, id, in, contract.Strict)
			assert.Empty(t, res.Trace.Repaired)
			assert.NotContains(t, res.Trace.Path, StateRepairing)
			assertValid(t, r, res)
		}
	}
}

func TestStrictDefaultsPerField(t *testing.T) {
	p, _ := newPipeline(t)
	res := mustValidate(t, p, "content_analysis", `{"title": "Kept", "tags": ["Go"]}`, contract.Strict)

	assert.Equal(t, ir.String("Kept"), res.Record["title"])
	assert.Equal(t, ir.List{}, res.Record["tags"])
	assert.False(t, res.Trace.RecordDefault)
	assert.Contains(t, res.Trace.Defaulted, "tags")
	assert.Equal(t, []State{StateParsing, StateValidating, StateDefaulting, StateDone}, res.Trace.Path)
}

func TestRequiredFieldEscalation(t *testing.T) {
	p, r := newPipeline(t)
	payload := `{"summary": "Fine summary", "category": "news", "tags": ["go"]}`

	t.Run("strict", func(t *testing.T) {
		res := mustValidate(t, p, "content_analysis", payload, contract.Strict)
		want, _ := defaults.New(r).RecordDefault("content_analysis")
		assert.Equal(t, want, res.Record)
		assert.True(t, res.Trace.RecordDefault)
		assert.Equal(t, ReasonRequiredField, res.Trace.RecordDefaultReason)
		assert.Empty(t, res.Trace.Repaired)
	})

	for _, s := range []contract.Strictness{contract.Medium, contract.Lenient} {
		t.Run(string(s), func(t *testing.T) {
			res := mustValidate(t, p, "content_analysis", payload, s)
			assert.False(t, res.Trace.RecordDefault)
			assert.Contains(t, res.Trace.Defaulted, "title")
			assert.NotContains(t, res.Trace.Defaulted, "summary")
			assert.Equal(t, ir.String("Untitled Content"), res.Record["title"])
			assert.Equal(t, ir.String("Fine summary"), res.Record["summary"])
			assert.Equal(t, ir.String("news"), res.Record["category"])
			assert.Equal(t, ir.StringList("go"), res.Record["tags"])
			assertValid(t, r, res)
		})
	}
}

func TestRepairThenDefault(t *testing.T) {
	p, r := newPipeline(t)
	// tags repair to an empty list, below min_items, so the field default applies.
	res := mustValidate(t, p, "tags", `{"tags": ["", "  "]}`, contract.Lenient)

	assert.Equal(t, ir.StringList("general", "content"), res.Record["tags"])
	assert.Equal(t, []string{"tags"}, res.Trace.Defaulted)
	assert.Empty(t, res.Trace.Repaired)
	assert.Equal(t, []State{StateParsing, StateValidating, StateRepairing, StateDefaulting, StateDone}, res.Trace.Path)
	assertValid(t, r, res)
}

func TestCardinalityBounds(t *testing.T) {
	p, r := newPipeline(t)
	many := make([]string, 25)
	for i := range many {
		many[i] = fmt.Sprintf("%q", fmt.Sprintf("tag-%02d", i))
	}
	payload := `{"tags": [` + strings.Join(many, ",") + `]}`

	for _, s := range []contract.Strictness{contract.Strict, contract.Medium, contract.Lenient} {
		res := mustValidate(t, p, "tags", payload, s)
		n := len(res.Record["tags"].(ir.List))
		assert.LessOrEqual(t, n, 10, s)
		assert.GreaterOrEqual(t, n, 1, s)
		assertValid(t, r, res)
	}
}

func TestDroppedFields(t *testing.T) {
	p, _ := newPipeline(t)
	res := mustValidate(t, p, "summary", `{"brief": "ok", "error": "x", "workflow_used": true}`, contract.Medium)

	assert.Equal(t, []string{"error", "workflow_used"}, res.Trace.Dropped)
	_, leaked := res.Record["error"]
	assert.False(t, leaked)
	assert.False(t, res.Trace.Clean())
}

func TestTotality(t *testing.T) {
	p, r := newPipeline(t)
	inputs := []string{
		"",
		" ",
		"null",
		"[]",
		"{}",
		`{"title": null}`,
		`{"title": {"nested": true}}`,
		`{"tags": [[["deep"]]]}`,
		`{"estimated_reading_time": 1e400}`,
		`{"estimated_reading_time": -99999999999999999999}`,
		`{"entities": {"people": [1, 2, {"name": "Ada"}]}}`,
		`{"entities": "people"}`,
		"\x00\x01\x02",
		"\xff\xfe{",
		"```json\n{\"title\": \"fenced\"}\n```",
		`{"title": "` + strings.Repeat("\u0301", 300) + `"}`,
		strings.Repeat("[", 5000),
		`{"title": "a"}{"title": "b"}`,
	}

	for _, id := range r.IDs() {
		for _, s := range []contract.Strictness{contract.Strict, contract.Medium, contract.Lenient} {
			for i, in := range inputs {
				t.Run(fmt.Sprintf("%s/%s/%d", id, s, i), func(t *testing.T) {
					res := mustValidate(t, p, id, in, s)
					assertValid(t, r, res)
					assert.Equal(t, StateDone, res.Trace.Path[len(res.Trace.Path)-1])
				})
			}
		}
	}
}

func TestIdempotence(t *testing.T) {
	p, r := newPipeline(t)
	payloads := map[string]string{
		"content_analysis": `{"title": "  Padded  ", "category": "VIDEO", "tags": "Go, go", "estimated_reading_time": 4.0, "entities": {"people": ["Ada"], "places": ["x"]}}`,
		"summary":          `{"brief": "` + strings.Repeat("b", 300) + `", "key_takeaways": ["x", "x"]}`,
		"tags":             `["One", "TWO", "two"]`,
	}

	for id, payload := range payloads {
		for _, s := range []contract.Strictness{contract.Strict, contract.Medium, contract.Lenient} {
			t.Run(id+"/"+string(s), func(t *testing.T) {
				first := mustValidate(t, p, id, payload, s)
				assertValid(t, r, first)

				data, err := ir.Marshal(first.Record)
				require.NoError(t, err)
				second := mustValidate(t, p, id, string(data), s)

				assert.True(t, second.Trace.Clean(), "trace: %+v", second.Trace)
				assert.Equal(t, first.Record, second.Record)

				third, err := p.ValidateValue(context.Background(), id, second.Record, s)
				require.NoError(t, err)
				assert.True(t, third.Trace.Clean())
			})
		}
	}
}

func TestConfigurationErrors(t *testing.T) {
	p, _ := newPipeline(t)

	_, err := p.Validate(context.Background(), "nope", []byte(`{}`), contract.Medium)
	require.Error(t, err)
	assert.True(t, contract.IsUnknownContract(err))

	_, err = p.Validate(context.Background(), "tags", []byte(`{}`), "paranoid")
	assert.ErrorIs(t, err, contract.ErrInvalidStrictness)
}

func TestEmptyStrictnessIsMedium(t *testing.T) {
	p, _ := newPipeline(t)
	res := mustValidate(t, p, "tags", `["Go"]`, "")
	assert.Equal(t, contract.Medium, res.Trace.Strictness)
}

func TestValidateValue(t *testing.T) {
	p, r := newPipeline(t)
	tree, err := ir.FromAny(map[string]any{"brief": "from a tree", "key_takeaways": []any{"A", "A"}})
	require.NoError(t, err)

	res, err := p.ValidateValue(context.Background(), "summary", tree, contract.Medium)
	require.NoError(t, err)
	assertValid(t, r, res)
	assert.Equal(t, ir.StringList("A"), res.Record["key_takeaways"])
	assert.NotEmpty(t, res.InputDigest)
}

func TestObserversAndRunIDs(t *testing.T) {
	var seen []Result
	obs := ObserverFunc(func(ctx context.Context, res Result) {
		seen = append(seen, res)
	})

	p, _ := newPipeline(t,
		WithIDGenerator(NewSequenceGenerator("run-1", "run-2")),
		WithObservers(obs),
	)

	first := mustValidate(t, p, "tags", `["go"]`, contract.Medium)
	second := mustValidate(t, p, "tags", `nope`, contract.Medium)

	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "run-2", second.RunID)
	require.Len(t, seen, 2)
	assert.Equal(t, "run-2", seen[1].RunID)
	assert.True(t, seen[1].Trace.RecordDefault)
}

func TestInputLimit(t *testing.T) {
	p, _ := newPipeline(t, WithParser(parse.New(8)))
	res := mustValidate(t, p, "tags", `["golang", "rust"]`, contract.Medium)
	assert.True(t, res.Trace.RecordDefault)
	assert.Contains(t, res.Trace.ParseError, "too_large")
}

func TestConcurrentCallsWithDifferentStrictness(t *testing.T) {
	p, _ := newPipeline(t)
	payload := []byte(`{"title": "T", "tags": ["Go"]}`)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := contract.Strict
			if i%2 == 0 {
				s = contract.Lenient
			}
			res, err := p.Validate(context.Background(), "content_analysis", payload, s)
			assert.NoError(t, err)
			assert.Equal(t, s, res.Trace.Strictness)
			if s == contract.Strict {
				assert.Equal(t, ir.List{}, res.Record["tags"])
			} else {
				assert.Equal(t, ir.StringList("go"), res.Record["tags"])
			}
		}(i)
	}
	wg.Wait()
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestSequenceGeneratorExhausted(t *testing.T) {
	g := NewSequenceGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func findViolation(t *testing.T, vs []validate.Violation, field string) validate.Violation {
	t.Helper()
	for _, v := range vs {
		if v.Field == field {
			return v
		}
	}
	t.Fatalf("no violation for %s in %v", field, vs)
	return validate.Violation{}
}

func TestCollapseWhitespaceDuringRepair(t *testing.T) {
	p, r := newPipeline(t)
	res := mustValidate(t, p, "content_analysis", `{"title": "  Intro   to\tGo ", "content_type": "blog\n post"}`, contract.Medium)

	assert.Equal(t, ir.String("Intro to Go"), res.Record["title"])
	assert.Equal(t, ir.String("blog post"), res.Record["content_type"])
	assert.Contains(t, res.Trace.Repaired, "title")
	assert.Contains(t, res.Trace.Repaired, "content_type")
	assert.Equal(t, ir.List{}, res.Record["insights"])
	assertValid(t, r, res)

	strict := mustValidate(t, p, "content_analysis", `{"title": "  Intro   to\tGo "}`, contract.Strict)
	assert.Equal(t, ir.String("  Intro   to\tGo "), strict.Record["title"])
}

func TestDefaultsAreFreshCopies(t *testing.T) {
	p, _ := newPipeline(t)

	first := mustValidate(t, p, "tags", `{"tags": []}`, contract.Medium)
	tags := first.Record["tags"].(ir.List)
	tags[0] = ir.String("mutated")

	second := mustValidate(t, p, "tags", `{"tags": []}`, contract.Medium)
	assert.Equal(t, ir.StringList("general", "content"), second.Record["tags"])

	full := mustValidate(t, p, "summary", `{not json`, contract.Medium)
	full.Record["brief"] = ir.String("mutated")
	again := mustValidate(t, p, "summary", `{not json`, contract.Medium)
	assert.Equal(t, ir.String("Summary processing failed"), again.Record["brief"])
}
