package geocode

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/internal/resilience"
	"github.com/sells-group/microarea-cli/pkg/perplexity"
)

type fakeChat struct {
	answers []string
	errs    []error
	calls   int
	last    perplexity.Request
}

func (f *fakeChat) Complete(_ context.Context, req perplexity.Request) (*perplexity.Response, error) {
	i := f.calls
	f.calls++
	f.last = req
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	content := ""
	if i < len(f.answers) {
		content = f.answers[i]
	}
	return &perplexity.Response{Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: content}}}}, nil
}

func newTestAssisted(chat perplexity.Client, attempts int) *Assisted {
	return NewAssisted(chat, "", WithPacer(NewPacer(0)), WithRetry(fastRetry(attempts)))
}

func TestAssistedLookup_ParsesAnswer(t *testing.T) {
	chat := &fakeChat{answers: []string{"Found it: [[[-10.8935, -37.1567]]] according to the map."}}
	a := newTestAssisted(chat, 1)

	m, err := a.Lookup(context.Background(), Query{
		Address:      "Rua Vinte e Um",
		Unit:         "UBS Guajará",
		UnitLocation: "Av. Principal, Guajará",
		Bias:         testBox,
	})
	require.NoError(t, err)
	assert.InDelta(t, -10.8935, m.Point.Lat, 1e-9)
	assert.InDelta(t, -37.1567, m.Point.Lon, 1e-9)
	assert.Equal(t, model.ConfidenceLow, m.Confidence)

	prompt := chat.last.Messages[0].Content
	assert.Contains(t, prompt, `"Rua Vinte e Um"`)
	assert.Contains(t, prompt, "UBS Guajará")
	assert.Contains(t, prompt, "Av. Principal, Guajará")
	assert.Contains(t, prompt, "Nossa Senhora do Socorro")
	assert.Contains(t, prompt, "-11.05")
	require.NotNil(t, chat.last.MaxTokens)
	assert.Equal(t, 100, *chat.last.MaxTokens)
}

func TestAssistedLookup_NotFound(t *testing.T) {
	a := newTestAssisted(&fakeChat{answers: []string{"[[[NOT_FOUND]]]"}}, 1)
	_, err := a.Lookup(context.Background(), Query{Address: "Rua Z"})
	require.Error(t, err)
	assert.Equal(t, KindZeroResults, KindOf(err))
}

func TestAssistedLookup_Unparseable(t *testing.T) {
	a := newTestAssisted(&fakeChat{answers: []string{"I think it is near the church."}}, 1)
	_, err := a.Lookup(context.Background(), Query{Address: "Rua Z"})
	require.Error(t, err)
	assert.Equal(t, KindZeroResults, KindOf(err))
	assert.Contains(t, err.Error(), "unparseable")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 80))
	assert.Equal(t, "Guaj", clip("Guajá", 5))
	assert.Equal(t, "Guajá", clip("Guajá", 6))

	long := strings.Repeat("é", 50)
	got := clip(long, 80)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 80)
}

func TestAssistedLookup_RetriesThrottling(t *testing.T) {
	throttled := resilience.NewTransientError(errors.New("perplexity: status 429"), 429)
	chat := &fakeChat{
		errs:    []error{throttled, nil},
		answers: []string{"", "[[[-10.9, -37.1]]]"},
	}
	a := newTestAssisted(chat, 3)

	m, err := a.Lookup(context.Background(), Query{Address: "Rua Z"})
	require.NoError(t, err)
	assert.Equal(t, 2, chat.calls)
	assert.InDelta(t, -10.9, m.Point.Lat, 1e-9)
}

func TestAssistedLookup_AuthFailureRejected(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("perplexity: status 401")}}
	a := newTestAssisted(chat, 3)

	_, err := a.Lookup(context.Background(), Query{Address: "Rua Z"})
	require.Error(t, err)
	assert.Equal(t, KindRejected, KindOf(err))
	assert.Equal(t, 1, chat.calls)
	assert.Equal(t, "perplexity", a.Name())
}
