package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualScheduler queues tasks until Fire is called.
type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	tasks  []func()
}

func (s *manualScheduler) AfterFunc(delay time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, delay)
	s.tasks = append(s.tasks, f)
}

func (s *manualScheduler) Fire() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

type fakeWindow struct {
	alive  bool
	choose int
	shown  [][]string
}

func (w *fakeWindow) Alive() bool {
	return w.alive
}

func (w *fakeWindow) ShowQuickPanel(_ context.Context, items []string, onSelect func(index int)) {
	w.shown = append(w.shown, items)
	onSelect(w.choose)
}

func TestParseWhich(t *testing.T) {
	which, err := ParseWhich("enabled")
	require.NoError(t, err)
	assert.Equal(t, WhichEnabled, which)

	which, err = ParseWhich("disabled")
	require.NoError(t, err)
	assert.Equal(t, WhichDisabled, which)

	_, err = ParseWhich("all")
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	f := newFixture(t, threeFormatters(true, false, true))

	assert.Equal(t, []string{"A", "C"}, f.dispatcher.Candidates(WhichEnabled))
	assert.Equal(t, []string{"B"}, f.dispatcher.Candidates(WhichDisabled))
}

func TestManage(t *testing.T) {
	tests := []struct {
		name          string
		which         Which
		choose        int
		expectedItems []string
		expected      map[string]bool
	}{
		{
			name:          "disable an enabled formatter",
			which:         WhichEnabled,
			choose:        1,
			expectedItems: []string{"A", "C"},
			expected:      map[string]bool{"A": true, "B": false, "C": false},
		},
		{
			name:          "enable a disabled formatter",
			which:         WhichDisabled,
			choose:        0,
			expectedItems: []string{"B"},
			expected:      map[string]bool{"A": true, "B": true, "C": true},
		},
		{
			name:          "dismissed",
			which:         WhichEnabled,
			choose:        -1,
			expectedItems: []string{"A", "C"},
			expected:      map[string]bool{"A": true, "B": false, "C": true},
		},
		{
			name:          "index out of range",
			which:         WhichDisabled,
			choose:        5,
			expectedItems: []string{"B"},
			expected:      map[string]bool{"A": true, "B": false, "C": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, threeFormatters(true, false, true))
			window := &fakeWindow{alive: true, choose: tt.choose}

			f.dispatcher.Manage(context.Background(), tt.which, window)
			assert.Empty(t, window.shown, "the picker waits for the delay")
			assert.Equal(t, []time.Duration{PickerDelay}, f.scheduler.delays)

			f.scheduler.Fire()
			require.Len(t, window.shown, 1)
			assert.Equal(t, tt.expectedItems, window.shown[0])
			assert.Equal(t, tt.expected, flags(f.dispatcher))
			assert.Empty(t, f.reporter.Errors())
		})
	}
}

func TestManage_ItemsBuiltBeforeDelay(t *testing.T) {
	f := newFixture(t, threeFormatters(true, false, true))
	window := &fakeWindow{alive: true, choose: 0}

	f.dispatcher.Manage(context.Background(), WhichDisabled, window)
	require.NoError(t, f.dispatcher.Toggle("", boolPtr(true)))

	f.scheduler.Fire()
	require.Len(t, window.shown, 1)
	assert.Equal(t, []string{"B"}, window.shown[0])
	assert.Equal(t, map[string]bool{"A": true, "B": false, "C": true}, flags(f.dispatcher))
}

func TestManage_WindowGone(t *testing.T) {
	f := newFixture(t, threeFormatters(true, false, true))
	window := &fakeWindow{alive: false, choose: 0}

	f.dispatcher.Manage(context.Background(), WhichEnabled, window)
	f.scheduler.Fire()

	assert.Empty(t, window.shown)
	assert.Equal(t, map[string]bool{"A": true, "B": false, "C": true}, flags(f.dispatcher))
}

func TestManage_FormatterRemovedBeforeSelection(t *testing.T) {
	f := newFixture(t, threeFormatters(true, false, true))
	window := &fakeWindow{alive: true, choose: 0}

	f.dispatcher.Manage(context.Background(), WhichEnabled, window)
	f.registry.Clear()
	f.scheduler.Fire()

	require.Len(t, f.reporter.Errors(), 1)
}
