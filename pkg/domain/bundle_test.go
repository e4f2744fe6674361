package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBundle_CopiesAndTracksMinimum(t *testing.T) {
	elems := []Element{At(30, "c"), At(10, "a"), At(20, "b")}
	b := NewBundle("words", elems...)
	elems[0] = At(0, "mutated")

	assert.NotEmpty(t, b.ID())
	assert.Equal(t, CollectionID("words"), b.Collection())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, Instant(10), b.MinTimestamp())
	assert.Equal(t, "c", b.At(0).Value)

	out := b.Elements()
	out[1] = At(0, "mutated")
	assert.Equal(t, "a", b.At(1).Value)
}

func TestNewBundle_Empty(t *testing.T) {
	b := NewBundle("empty")
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, EndOfTime, b.MinTimestamp())
}

func TestBundle_Commit(t *testing.T) {
	now := time.Now()
	cb := NewRootBundle("src", At(1, 1)).Commit("", MinInstant, 0, now)

	assert.Equal(t, RootInput("src"), cb.Collection())
	assert.Equal(t, MinInstant, cb.ProducerWatermark)
	assert.Equal(t, now, cb.CommittedAt)
}

func TestInstant(t *testing.T) {
	assert.Equal(t, "-inf", MinInstant.String())
	assert.Equal(t, "end-of-time", EndOfTime.String())
	assert.Equal(t, "42", Instant(42).String())

	assert.True(t, EndOfTime.IsTerminal())
	assert.False(t, MaxInstant.IsTerminal())
	assert.True(t, MaxInstant.Before(EndOfTime))

	assert.Equal(t, EndOfTime, MinOf())
	assert.Equal(t, Instant(3), MinOf(7, 3, 5))

	ts := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
	assert.True(t, ts.Equal(InstantFromTime(ts).Time()))
}

func TestPerElement_StopsOnCancel(t *testing.T) {
	var seen int
	p := PerElement(func(ctx context.Context, e Element, emit Emitter) error {
		seen++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cb := NewBundle("c", At(1, 1), At(2, 2)).Commit("", MinInstant, 0, time.Now())
	err := p.Process(ctx, cb, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, seen)
}

func TestDefaultClassifier(t *testing.T) {
	plain := errors.New("boom")

	assert.Equal(t, Fatal, DefaultClassifier(plain))
	assert.Equal(t, Retry, DefaultClassifier(Transient(plain)))
	assert.Equal(t, Retry, DefaultClassifier(fmt.Errorf("wrapped: %w", Transient(plain))))
	assert.Equal(t, Fatal, DefaultClassifier(context.Canceled))
	assert.Equal(t, Fatal, DefaultClassifier(&PanicError{Value: "x"}))
	assert.Equal(t, Fatal, DefaultClassifier(fmt.Errorf("%w: late", ErrTimestampBehindInput)))

	assert.Nil(t, Transient(nil))
	assert.True(t, errors.Is(Transient(plain), plain))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, FailureKindUser, KindOf(errors.New("user")))
	assert.Equal(t, FailureKindScheduling, KindOf(&SchedulingError{Reason: "x"}))
	assert.Equal(t, FailureKindBackpressure, KindOf(fmt.Errorf("submit: %w", &BackpressureTimeoutError{Node: "a"})))
}

func TestFailure_UnwrapsCause(t *testing.T) {
	cause := errors.New("cause")
	f := &Failure{Kind: FailureKindUser, Node: "a", BundleID: "b1", Err: cause}

	require.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "bundle b1")

	summary := f.Summarize()
	assert.Equal(t, "cause", summary.Message)
	assert.Equal(t, NodeID("a"), summary.Node)
}

func TestPendingWork_Key(t *testing.T) {
	cb := NewBundle("c", At(1, 1)).Commit("p", MinInstant, 0, time.Now())

	w := &PendingWork{Node: "n", Bundle: cb}
	assert.False(t, w.IsFlush())
	assert.Equal(t, WorkKey{Node: "n", Bundle: cb.ID()}, w.Key())

	flush := &PendingWork{Node: "n"}
	assert.True(t, flush.IsFlush())
	assert.Empty(t, flush.BundleID())
	assert.Equal(t, FlushBundleID, flush.Key().Bundle)
	assert.NotEqual(t, w.Key(), flush.Key())
}
