package decision

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/step"
)

var deploy = step.NewAtomic("deploy", "d", "Deploy the artifacts", nil)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
		ok   bool
	}{
		{"", Continue, true},
		{"Y\n", Continue, true},
		{"yes", Continue, true},
		{"s", Skip, true},
		{"SKIP", Skip, true},
		{"a", Abort, true},
		{"q", AbortAll, true},
		{"quit", AbortAll, true},
		{"maybe", Continue, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestNonInteractive(t *testing.T) {
	d, err := NonInteractive{}.Before(context.Background(), "p", deploy)
	require.NoError(t, err)
	assert.Equal(t, Continue, d)
}

func TestConsole(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Decision
	}{
		{"enter continues", "\n", Continue},
		{"skip", "s\n", Skip},
		{"abort", "a\n", Abort},
		{"quit", "q\n", AbortAll},
		{"reprompts on garbage", "what\nskip\n", Skip},
		{"answer without newline", "a", Abort},
		{"end of input quits", "", AbortAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConsole(strings.NewReader(tt.input), &out)
			d, err := c.Before(context.Background(), "spring-cloud-sleuth", deploy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
			assert.Contains(t, out.String(), "[spring-cloud-sleuth] Deploy the artifacts (deploy)?")
		})
	}
}

func TestConsole_GivesUpAfterRepeatedGarbage(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("x\nx\nx\n"), &out)
	d, err := c.Before(context.Background(), "p", deploy)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, Abort, d)
}

func TestConsole_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	d, err := NewConsole(strings.NewReader("y\n"), &out).Before(ctx, "p", deploy)
	assert.ErrorIs(t, err, errors.ErrCanceled)
	assert.Equal(t, Abort, d)
	assert.Empty(t, out.String())
}

func TestConsole_PromptBoundReleasesPendingPrompt(t *testing.T) {
	in, answers := io.Pipe()
	defer answers.Close()
	var out bytes.Buffer
	c := NewConsole(in, &out)

	bound, expire := context.WithCancel(context.Background())
	timedOut := make(chan Decision, 1)
	go func() {
		d, err := c.Before(WithPromptBound(context.Background(), bound), "spring-cloud-sleuth", deploy)
		assert.ErrorIs(t, err, errors.ErrCanceled)
		timedOut <- d
	}()
	expire()
	select {
	case d := <-timedOut:
		assert.Equal(t, Abort, d)
	case <-time.After(5 * time.Second):
		t.Fatal("prompt kept waiting after its bound expired")
	}

	// The next answer goes to the next prompt, not the abandoned one.
	go func() { _, _ = answers.Write([]byte("s\n")) }()
	d, err := c.Before(context.Background(), "spring-cloud-zipkin", deploy)
	require.NoError(t, err)
	assert.Equal(t, Skip, d)
}

func TestConsole_SerialisesConcurrentPrompts(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(strings.Repeat("y\n", 8)), &out)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.Before(context.Background(), "p", deploy)
			assert.NoError(t, err)
			assert.Equal(t, Continue, d)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, strings.Count(out.String(), "[p] Deploy"))
}

func TestScripted(t *testing.T) {
	s := NewScripted(Continue, map[string]Decision{
		"deploy":     Skip,
		"b":          Abort,
		"sleuth/tag": AbortAll,
	})
	ctx := context.Background()

	d, _ := s.Before(ctx, "commons", deploy)
	assert.Equal(t, Skip, d)
	d, _ = s.Before(ctx, "commons", step.NewAtomic("build", "b", "", nil))
	assert.Equal(t, Abort, d)
	d, _ = s.Before(ctx, "sleuth", step.NewAtomic("tag", "", "", nil))
	assert.Equal(t, AbortAll, d)
	d, _ = s.Before(ctx, "commons", step.NewAtomic("tag", "", "", nil))
	assert.Equal(t, Continue, d)

	assert.Equal(t, []string{"commons/deploy", "commons/build", "sleuth/tag", "commons/tag"}, s.Asked())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "skip", Skip.String())
	assert.Equal(t, "abort", Abort.String())
	assert.Equal(t, "abort-all", AbortAll.String())
	assert.Equal(t, "unknown", Decision(9).String())
}
