package dispatch

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cristianradulescu/format-ls/internal/config"
	"github.com/cristianradulescu/format-ls/internal/container"
	"github.com/cristianradulescu/format-ls/internal/formatting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upperRunner upper-cases stdin and fails on input containing "bad".
type upperRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *upperRunner) Run(_ context.Context, cmd container.Command) container.Result {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	data, _ := io.ReadAll(cmd.Stdin)
	if strings.Contains(string(data), "bad") {
		return container.Result{ExitCode: 1, Stderr: []byte("cannot parse"), Err: errors.New("exit status 1")}
	}
	return container.Result{Stdout: []byte(strings.ToUpper(string(data)))}
}

func (r *upperRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type collectingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (c *collectingReporter) Report(_ context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collectingReporter) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

type fixture struct {
	dispatcher *Dispatcher
	registry   *formatting.Registry
	runner     *upperRunner
	reporter   *collectingReporter
	scheduler  *manualScheduler
}

func newFixture(t *testing.T, formatters map[string]config.Formatter) *fixture {
	t.Helper()

	runner := &upperRunner{}
	registry := formatting.NewRegistry(runner, formatting.WithValidator(nil))
	errs := registry.Populate(context.Background(), &config.Config{Formatters: formatters}, "")
	require.Empty(t, errs)

	reporter := &collectingReporter{}
	scheduler := &manualScheduler{}

	return &fixture{
		dispatcher: New(registry, WithReporter(reporter), WithScheduler(scheduler)),
		registry:   registry,
		runner:     runner,
		reporter:   reporter,
		scheduler:  scheduler,
	}
}

func goFormatter(onSave bool) config.Formatter {
	return config.Formatter{Enabled: true, Sources: []string{"go"}, Path: "upper", FormatOnSave: onSave}
}

func TestDispatcher_NoFormatter(t *testing.T) {
	f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(false)})
	ctx := context.Background()

	t.Run("selection", func(t *testing.T) {
		f.reporter.errs = nil
		buf := NewBuffer("rust", "/p/main.rs", "fn main() {}", Region{Start: 0, End: 2})

		count, err := f.dispatcher.FormatSelection(ctx, buf)
		assert.ErrorIs(t, err, formatting.ErrNoFormatter)
		assert.Equal(t, 0, count)
		assert.False(t, buf.Modified())
		assert.Len(t, f.reporter.Errors(), 1)
	})

	t.Run("file", func(t *testing.T) {
		f.reporter.errs = nil
		buf := NewBuffer("", "/p/README", "text")

		err := f.dispatcher.FormatFile(ctx, buf)
		assert.ErrorIs(t, err, formatting.ErrNoFormatter)
		assert.False(t, buf.Modified())
		require.Len(t, f.reporter.Errors(), 1)
		assert.ErrorIs(t, f.reporter.Errors()[0], formatting.ErrNoFormatter)
	})

	assert.Equal(t, 0, f.runner.Calls())
}

func TestDispatcher_Formatter(t *testing.T) {
	f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(false)})

	assert.NotNil(t, f.dispatcher.Formatter(NewBuffer("go", "", "")))
	assert.Nil(t, f.dispatcher.Formatter(NewBuffer("python", "", "")))
	assert.Same(t, f.registry, f.dispatcher.Registry())
}

func TestDispatcher_FormatSelection(t *testing.T) {
	f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(false)})

	text := "aaa bad ccc ddd"
	buf := NewBuffer("go", "/p/a.go", text,
		Region{Start: 0, End: 3},
		Region{Start: 4, End: 7},
		Region{Start: 7, End: 7},
		Region{Start: 8, End: 11},
	)

	count, err := f.dispatcher.FormatSelection(context.Background(), buf)
	require.NoError(t, err)

	// three non-empty regions, one fails
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, f.runner.Calls())
	assert.Len(t, f.reporter.Errors(), 1)
	assert.Equal(t, "AAA bad CCC ddd", buf.String())

	var formatErr *formatting.FormatError
	require.ErrorAs(t, f.reporter.Errors()[0], &formatErr)
	assert.Equal(t, "upper", formatErr.Formatter)
}

func TestDispatcher_FormatSelectionEmpty(t *testing.T) {
	f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(false)})

	buf := NewBuffer("go", "/p/a.go", "abc", Region{Start: 1, End: 1})

	count, err := f.dispatcher.FormatSelection(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, f.runner.Calls())
	assert.Empty(t, f.reporter.Errors())
}

func TestDispatcher_FormatFile(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		modified bool
		reports  int
		wantErr  bool
	}{
		{
			name:     "success replaces whole buffer",
			text:     "package main\n",
			expected: "PACKAGE MAIN\n",
			modified: true,
		},
		{
			name:     "already formatted",
			text:     "PACKAGE MAIN\n",
			expected: "PACKAGE MAIN\n",
		},
		{
			name:     "failure leaves buffer",
			text:     "bad code\n",
			expected: "bad code\n",
			reports:  1,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(false)})
			buf := NewBuffer("go", "/p/a.go", tt.text)

			err := f.dispatcher.FormatFile(context.Background(), buf)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, buf.String())
			assert.Equal(t, tt.modified, buf.Modified())
			assert.Len(t, f.reporter.Errors(), tt.reports)
		})
	}
}

func TestDispatcher_OnSave(t *testing.T) {
	ctx := context.Background()

	t.Run("flag off", func(t *testing.T) {
		f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(false)})
		buf := NewBuffer("go", "/p/a.go", "x")

		ran, err := f.dispatcher.OnSave(ctx, buf)
		require.NoError(t, err)
		assert.False(t, ran)
		assert.False(t, buf.Modified())
		assert.Equal(t, 0, f.runner.Calls())
	})

	t.Run("flag on", func(t *testing.T) {
		f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(true)})
		buf := NewBuffer("go", "/p/a.go", "x")

		ran, err := f.dispatcher.OnSave(ctx, buf)
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, "X", buf.String())
	})

	t.Run("no formatter is silent", func(t *testing.T) {
		f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(true)})
		buf := NewBuffer("python", "/p/a.py", "x")

		ran, err := f.dispatcher.OnSave(ctx, buf)
		require.NoError(t, err)
		assert.False(t, ran)
		assert.Empty(t, f.reporter.Errors())
	})

	t.Run("toggled at runtime", func(t *testing.T) {
		f := newFixture(t, map[string]config.Formatter{"upper": goFormatter(false)})
		require.NoError(t, f.dispatcher.Toggle("upper", nil))

		buf := NewBuffer("go", "/p/a.go", "x")
		ran, err := f.dispatcher.OnSave(ctx, buf)
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, "X", buf.String())
	})
}

func TestBuffer(t *testing.T) {
	buf := NewBuffer("go", "/p/a.go", "hello world")

	assert.Equal(t, "go", buf.Source())
	assert.Equal(t, "/p/a.go", buf.Path())
	assert.Equal(t, 11, buf.Size())
	assert.Equal(t, "world", buf.Substr(Region{Start: 6, End: 11}))
	assert.Equal(t, "world", buf.Substr(Region{Start: 6, End: 50}))
	assert.Equal(t, "", buf.Substr(Region{Start: 8, End: 2}))

	// edits address the original text regardless of recording order
	buf.Replace(Region{Start: 6, End: 11}, "there")
	buf.Replace(Region{Start: 0, End: 5}, "hi")
	buf.Replace(Region{Start: 1, End: 3}, "overlap")
	assert.True(t, buf.Modified())
	assert.Equal(t, "hi there", buf.String())
	assert.Equal(t, 11, buf.Size(), "the snapshot does not change")
}

func TestBuffer_OverlappingSelection(t *testing.T) {
	buf := NewBuffer("go", "/p/a.go", "abcdefghij",
		Region{Start: 2, End: 8},
		Region{Start: 0, End: 5},
	)

	assert.Equal(t, []Region{{Start: 0, End: 8}}, buf.Selection())
}

func TestRegion(t *testing.T) {
	assert.True(t, Region{Start: 3, End: 3}.Empty())
	assert.True(t, Region{Start: 4, End: 3}.Empty())
	assert.False(t, Region{Start: 1, End: 3}.Empty())
}

func TestMergeRegions(t *testing.T) {
	tests := []struct {
		name     string
		regions  []Region
		expected []Region
	}{
		{
			name:     "none",
			regions:  nil,
			expected: nil,
		},
		{
			name:     "disjoint regions are sorted",
			regions:  []Region{{Start: 6, End: 9}, {Start: 0, End: 3}},
			expected: []Region{{Start: 0, End: 3}, {Start: 6, End: 9}},
		},
		{
			name:     "overlapping regions join",
			regions:  []Region{{Start: 0, End: 5}, {Start: 2, End: 8}},
			expected: []Region{{Start: 0, End: 8}},
		},
		{
			name:     "contained region disappears",
			regions:  []Region{{Start: 0, End: 10}, {Start: 2, End: 4}, {Start: 12, End: 14}},
			expected: []Region{{Start: 0, End: 10}, {Start: 12, End: 14}},
		},
		{
			name:     "touching regions stay apart",
			regions:  []Region{{Start: 0, End: 3}, {Start: 3, End: 3}, {Start: 3, End: 6}},
			expected: []Region{{Start: 0, End: 3}, {Start: 3, End: 3}, {Start: 3, End: 6}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MergeRegions(tt.regions))
		})
	}
}
