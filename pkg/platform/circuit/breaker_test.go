package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBreakerTransitions(t *testing.T) {
	type step struct {
		ok       bool
		wantOpen bool
		opened   bool
		closed   bool
	}
	tests := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "opens on the third consecutive failure",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{ok: false},
				{ok: false},
				{ok: false, wantOpen: true, opened: true},
				{ok: false, wantOpen: true},
			},
		},
		{
			name: "a success in between restarts the failure count",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{ok: false},
				{ok: true},
				{ok: false},
				{ok: false, wantOpen: true, opened: true},
			},
		},
		{
			name: "needs consecutive probe successes to close",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{ok: false, wantOpen: true, opened: true},
				{ok: true, wantOpen: true},
				{ok: false, wantOpen: true},
				{ok: true, wantOpen: true},
				{ok: true, closed: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("smtp", tt.opts...)
			for i, st := range tt.steps {
				var change StateChange
				if st.ok {
					_, change = b.RecordSuccess()
				} else {
					_, change = b.RecordFailure()
				}
				assert.Equal(t, st.wantOpen, b.IsOpen(), "step %d", i)
				assert.Equal(t, st.opened, change.Opened, "step %d opened", i)
				assert.Equal(t, st.closed, change.Closed, "step %d closed", i)
			}
		})
	}
}

func TestBreakerReset(t *testing.T) {
	b := New("smtp", WithFailureThreshold(1))
	useFallback, _ := b.RecordFailure()
	require.True(t, useFallback)

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "smtp", b.Name())
}

// The breaker is open exactly when the last run of failures since it last
// closed reached the threshold.
func TestBreakerMatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 5).Draw(t, "failures")
		closeAfter := rapid.IntRange(1, 3).Draw(t, "successes")
		b := New("model", WithFailureThreshold(threshold), WithSuccessThreshold(closeAfter))

		open, failRun, okRun := false, 0, 0
		outcomes := rapid.SliceOfN(rapid.Bool(), 1, 50).Draw(t, "outcomes")
		for _, ok := range outcomes {
			if ok {
				b.RecordSuccess()
				failRun = 0
				if open {
					okRun++
					if okRun >= closeAfter {
						open, okRun = false, 0
					}
				}
			} else {
				b.RecordFailure()
				okRun = 0
				if !open {
					failRun++
					if failRun >= threshold {
						open, failRun = true, 0
					}
				}
			}
			if b.IsOpen() != open {
				t.Fatalf("breaker open=%v, model open=%v", b.IsOpen(), open)
			}
		}
	})
}
