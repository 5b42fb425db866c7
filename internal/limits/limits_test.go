package limits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter int

func (c counter) Len() int { return int(c) }

func TestLimits_MessageSize(t *testing.T) {
	l := New(10, 0, 0, 0)

	assert.True(t, l.ValidateMessageSize(10))
	assert.False(t, l.ValidateMessageSize(11))
	assert.True(t, New(0, 0, 0, 0).ValidateMessageSize(1<<30), "zero means unlimited")
}

func TestLimits_CanAddObject(t *testing.T) {
	l := New(0, 2, 0, 0)

	assert.True(t, l.CanAddObject(counter(1)))
	assert.False(t, l.CanAddObject(counter(2)))
	assert.True(t, Default().CanAddObject(counter(5)))
}

func TestLimits_ValidateContent(t *testing.T) {
	l := Default()

	line := map[string]any{
		"begin": map[string]any{"x": 0.0, "y": 0.0},
		"end":   map[string]any{"x": 1.0, "y": 0.0},
	}
	require.NoError(t, l.ValidateContent(line))
	require.NoError(t, l.ValidateContent(nil))

	deep := map[string]any{"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": map[string]any{"e": 1}}}}}
	assert.ErrorContains(t, l.ValidateContent(deep), "too deep")

	nestedInArray := map[string]any{"a": []any{[]any{[]any{map[string]any{"b": 1}}}}}
	assert.ErrorContains(t, l.ValidateContent(nestedInArray), "too deep")

	wide := map[string]any{}
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p", "q"} {
		wide[k] = 1
	}
	assert.ErrorContains(t, l.ValidateContent(wide), "too many fields")

	assert.NoError(t, New(0, 0, 0, 0).ValidateContent(deep), "zero means unlimited")
}

func TestPacer_FirstWaitIsImmediate(t *testing.T) {
	p := NewPacer(time.Hour)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	assert.False(t, p.Allow(), "second token must not be available yet")
	assert.Equal(t, time.Hour, p.Interval())
}

func TestPacer_WaitHonoursContext(t *testing.T) {
	p := NewPacer(time.Hour)
	require.True(t, p.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "must not give up before the deadline")
}

func TestPacer_ZeroIntervalIsUnlimited(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 5; i++ {
		assert.True(t, p.Allow())
	}
}
