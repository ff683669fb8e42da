package tokens_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/farum-coach/internal/tokens"
)

const example = `Let's focus. [focus:focus="Deep work",context="mornings are best"] [finish-start][sessionEnd:title="Wrap up"][finish-end]`

func TestExampleMessage(t *testing.T) {
	assert.Equal(t, "Let's focus.", tokens.DisplayText(example))

	parsed := tokens.Parse(example)
	require.Len(t, parsed, 1)
	assert.Equal(t, "focus", parsed[0].Type)
	want := []tokens.Pair{
		{Key: "focus", Value: "Deep work"},
		{Key: "context", Value: "mornings are best"},
	}
	if diff := cmp.Diff(want, parsed[0].Props.Pairs()); diff != "" {
		t.Errorf("focus props mismatch (-want +got):\n%s", diff)
	}

	completion := tokens.ExtractCompletion(example)
	require.Len(t, completion.Components, 1)
	assert.Equal(t, "sessionEnd", completion.Components[0].Type)
	assert.Equal(t, "Wrap up", completion.Components[0].Props.Get("title"))
	assert.Equal(t, `[sessionEnd:title="Wrap up"]`, completion.Raw)
}

func TestScanOccurrenceIndices(t *testing.T) {
	text := `[a:x="1"] [b:y="2"] [a:x="3"]`

	got := tokens.Scan(text)
	require.Len(t, got, 3)

	as := tokens.OfType(got, "a")
	require.Len(t, as, 2)
	assert.Equal(t, 0, as[0].Index)
	assert.Equal(t, 1, as[1].Index)
	assert.Equal(t, "3", as[1].Props.Get("x"))
	assert.Equal(t, 0, got[1].Index)
	assert.Equal(t, `[b:y="2"]`, got[1].Raw)
}

func TestScanIsDeterministic(t *testing.T) {
	text := `one [a:x="1"] two [b:y="2",z="3"] three [a:x="4"]`
	first := tokens.Scan(text)
	second := tokens.Scan(text)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Type, second[i].Type)
		assert.Equal(t, first[i].Index, second[i].Index)
		assert.Equal(t, first[i].Raw, second[i].Raw)
	}
}

func TestScanSkipsMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "no colon", text: `[focus] [a:x="1"]`, want: []string{`[a:x="1"]`}},
		{name: "empty property list", text: `[focus:] [a:x="1"]`, want: []string{`[a:x="1"]`}},
		{name: "unterminated bracket", text: `[focus:focus="x" and more [a:x="1"]`, want: []string{`[a:x="1"]`}},
		{name: "unterminated value", text: `[focus:focus="x] [a:x="1"]`, want: []string{`[a:x="1"]`}},
		{name: "markers are not tokens", text: `[finish-start][finish-end]`, want: nil},
		{name: "whitespace tolerated", text: `[a : x = "1" , y="2"]`, want: []string{`[a : x = "1" , y="2"]`}},
		{name: "trailing partial token", text: `hello [commitmentDetected:title="Wal`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raws []string
			for _, tok := range tokens.Scan(tt.text) {
				raws = append(raws, tok.Raw)
			}
			assert.Equal(t, tt.want, raws)
		})
	}
}

func TestScanCeilings(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, `[t:n="%d"] `, i)
	}
	got := tokens.Scan(b.String())
	assert.Len(t, got, tokens.DefaultMaxTokens)
	assert.Equal(t, "49", got[len(got)-1].Props.Get("n"))

	var props []string
	for i := 0; i < 25; i++ {
		props = append(props, fmt.Sprintf(`k%d="%d"`, i, i))
	}
	wide := tokens.Scan("[wide:" + strings.Join(props, ",") + "]")
	require.Len(t, wide, 1)
	assert.Equal(t, tokens.DefaultMaxProps, wide[0].Props.Len())

	small := tokens.Scanner{MaxTokens: 2, MaxProps: 1}.Scan(`[a:x="1",y="2"] [a:x="3"] [a:x="4"]`)
	require.Len(t, small, 2)
	assert.Equal(t, []string{"x"}, small[0].Props.Keys())
}

func TestScanDuplicateKeyKeepsFirstPosition(t *testing.T) {
	got := tokens.Scan(`[a:x="1",y="2",x="3"]`)
	require.Len(t, got, 1)
	want := []tokens.Pair{{Key: "x", Value: "3"}, {Key: "y", Value: "2"}}
	if diff := cmp.Diff(want, got[0].Props.Pairs()); diff != "" {
		t.Errorf("props mismatch (-want +got):\n%s", diff)
	}
}

func TestParseExcludesCompletionBlock(t *testing.T) {
	text := `[insight:text="a"] [finish-start][insight:text="b"][finish-end] [insight:text="c"]`
	got := tokens.Parse(text)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Props.Get("text"))
	assert.Equal(t, "c", got[1].Props.Get("text"))
	assert.Equal(t, 1, got[1].Index)

	streaming := `[insight:text="a"] [finish-start][sessionEnd:title="x"]`
	assert.Len(t, tokens.Parse(streaming), 1)
}

func TestExtractCompletionBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		found bool
		count int
	}{
		{name: "absent", text: `hello [a:x="1"]`},
		{name: "start only", text: `hello [finish-start][a:x="1"]`},
		{name: "end only", text: `hello [a:x="1"][finish-end]`},
		{name: "end before start", text: `[finish-end] hi [finish-start][a:x="1"]`},
		{name: "well formed", text: "hi [finish-start]\n [a:x=\"1\"] [b:y=\"2\"] \n[finish-end] bye", found: true, count: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tokens.ExtractCompletion(tt.text)
			assert.Equal(t, tt.found, c.Found())
			assert.Len(t, c.Components, tt.count)
		})
	}
}

func TestDisplayText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "plain", text: "  hello  ", want: "hello"},
		{name: "block in the middle", text: "before [finish-start][a:x=\"1\"][finish-end] after", want: "before\n\nafter"},
		{name: "block at start", text: "[finish-start][a:x=\"1\"][finish-end]\n\nafter", want: "after"},
		{name: "unterminated block truncates", text: "shown [finish-start][sessionEnd:title=\"x\"", want: "shown"},
		{name: "end before start", text: "[finish-end] middle [finish-start] tail", want: "middle"},
		{name: "unknown token stripped", text: `hi [zzz:foo="bar"] there`, want: "hi  there"},
		{name: "blank lines collapse", text: "a\n\n\n\n[a:x=\"1\"]\n\n\nb", want: "a\n\nb"},
		{name: "partial token stays literal", text: `Try this [focus:focus="Deep`, want: `Try this [focus:focus="Deep`},
		{name: "nested leftovers", text: `x [a:[b:y="1"]x="2"] y`, want: "x  y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokens.DisplayText(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, tokens.DisplayText(got), "not idempotent")
		})
	}
}

func TestDisplayTextIdempotentOnStreamPrefixes(t *testing.T) {
	full := example + "\n\n\nThanks [commitmentDetected:title=\"Walk\",state=\"none\"]"
	for i := 0; i <= len(full); i++ {
		once := tokens.DisplayText(full[:i])
		require.Equal(t, once, tokens.DisplayText(once), "prefix %d", i)
	}
}

func TestMutateOnlyTargetOccurrence(t *testing.T) {
	text := `[a:x="1"] [b:y="2"] [a:x="3"]`
	got := tokens.Mutate(text, "a", 1, "done")
	assert.Equal(t, `[a:x="1"] [b:y="2"] [a:x="3",state="done"]`, got)
}

func TestMutateRoundTrip(t *testing.T) {
	text := "Intro [commitmentDetected:title=\"Walk\",state=\"none\"]\n" +
		"[sessionSuggestion:title=\"Talk\",duration=\"30m\"] middle " +
		"[commitmentDetected:title=\"Read\",type=\"recurring\",state=\"none\"]" +
		" [finish-start][commitmentDetected:title=\"Hidden\"][finish-end]"

	before := countByType(tokens.Scan(text))
	got := tokens.Mutate(text, "commitmentDetected", 1, "accepted",
		tokens.Pair{Key: "commitmentId", Value: "cmt_0123456789abcdef"},
		tokens.Pair{Key: "skipped", Value: ""},
		tokens.Pair{Key: "bad key", Value: "x"},
	)
	assert.Equal(t, before, countByType(tokens.Scan(got)))

	commitments := tokens.OfType(tokens.Parse(got), "commitmentDetected")
	require.Len(t, commitments, 2)
	assert.Equal(t, "none", commitments[0].Props.Get("state"))
	assert.Equal(t, []tokens.Pair{
		{Key: "title", Value: "Read"},
		{Key: "type", Value: "recurring"},
		{Key: "state", Value: "accepted"},
		{Key: "commitmentId", Value: "cmt_0123456789abcdef"},
	}, commitments[1].Props.Pairs())

	orig := tokens.Parse(text)
	mutated := tokens.Parse(got)
	for i := range orig {
		if orig[i].Type == "commitmentDetected" && orig[i].Index == 1 {
			continue
		}
		assert.Equal(t, orig[i].Raw, mutated[i].Raw)
	}
	assert.True(t, strings.HasSuffix(got, `[finish-start][commitmentDetected:title="Hidden"][finish-end]`))
}

func TestMutateNoOps(t *testing.T) {
	text := `[a:x="1"] [b:y="2"]`
	assert.Equal(t, text, tokens.Mutate(text, "a", 1, "done"))
	assert.Equal(t, text, tokens.Mutate(text, "a", -1, "done"))
	assert.Equal(t, text, tokens.Mutate(text, "c", 0, "done"))
	assert.Equal(t, text, tokens.Mutate(text, "a", 0, "", tokens.Pair{Key: "z", Value: ""}))
}

func TestMutateKeepsPropsPastCeiling(t *testing.T) {
	pairs := make([]string, 22)
	for i := range pairs {
		pairs[i] = fmt.Sprintf(`k%d="v%d"`, i, i)
	}
	text := "Before [a:" + strings.Join(pairs, ",") + "] after"
	require.Equal(t, tokens.DefaultMaxProps, tokens.Scan(text)[0].Props.Len())

	got := tokens.Mutate(text, "a", 0, "done")
	assert.Equal(t, "Before [a:"+strings.Join(pairs, ",")+`,state="done"] after`, got)
	assert.Contains(t, got, `k20="v20"`)
	assert.Contains(t, got, `k21="v21"`)
}

func TestMutateEmptyExtraKeepsProperty(t *testing.T) {
	text := `[commitmentDetected:title="Walk",commitmentId="cmt_0123456789abcdef"]`
	got := tokens.Mutate(text, "commitmentDetected", 0, "accepted", tokens.Pair{Key: "commitmentId", Value: ""})
	assert.Equal(t, `[commitmentDetected:title="Walk",commitmentId="cmt_0123456789abcdef",state="accepted"]`, got)
}

func TestMutateNeverEmitsQuotes(t *testing.T) {
	got := tokens.Mutate(`[a:x="1"]`, "a", 0, "done", tokens.Pair{Key: "note", Value: `say "hi"`})
	assert.Equal(t, `[a:x="1",state="done",note="say 'hi'"]`, got)
	require.Len(t, tokens.Scan(got), 1)
}

func TestAccumulator(t *testing.T) {
	acc := tokens.NewAccumulator()
	for _, chunk := range []string{"Hello ", `[focus:focus="Deep`, ` work"] `, "[finish-start]"} {
		require.True(t, acc.Write(chunk))
	}

	snap := acc.Snapshot()
	assert.Equal(t, "Hello", snap.Display)
	assert.Len(t, snap.Tokens, 1)
	assert.True(t, snap.FinishStarted)
	assert.False(t, snap.Complete)

	acc.Close()
	assert.False(t, acc.Write("[finish-end]"))
	assert.False(t, acc.Snapshot().Complete)
}

func countByType(toks []tokens.Token) map[string]int {
	out := make(map[string]int)
	for _, tok := range toks {
		out[tok.Type]++
	}
	return out
}

func TestPropsEncodeInOrder(t *testing.T) {
	p := tokens.NewProps(
		tokens.Pair{Key: "title", Value: "Walk"},
		tokens.Pair{Key: "state", Value: "none"},
	)
	p.Set("title", "Run")

	js, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Run","state":"none"}`, string(js))
	assert.Equal(t, `{"title":"Run","state":"none"}`, string(js))

	out, err := yaml.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, "title: \"Run\"\nstate: \"none\"\n", string(out))
}
