package release

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGit records git invocations and serves canned responses.
type fakeGit struct {
	calls    [][]string
	existing string // tag reported by `git tag -l`
	failOn   string // first argument that should fail
}

func (g *fakeGit) Run(_ context.Context, args ...string) (string, error) {
	g.calls = append(g.calls, args)
	if g.failOn != "" && args[0] == g.failOn {
		return "", fmt.Errorf("git %s failed", args[0])
	}
	if args[0] == "tag" && len(args) > 1 && args[1] == "-l" {
		if args[2] == g.existing {
			return g.existing + "\n", nil
		}
		return "", nil
	}
	return "", nil
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 1, 2, 20, 0, 0, time.UTC)
}

func TestRunTagsAndPushes(t *testing.T) {
	git := &fakeGit{}
	checkRuns := 0

	tagger := New(Options{
		Git: git,
		Now: fixedNow,
		Check: func(context.Context, string) (string, error) {
			checkRuns++
			return "ok", nil
		},
		CheckCommand: "go test ./...",
	})

	res, err := tagger.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2026.08.01", res.Tag)
	assert.Equal(t, OutcomeTagged, res.Outcome)
	assert.Equal(t, 1, checkRuns)

	require.Len(t, git.calls, 3)
	assert.Equal(t, []string{"tag", "-l", "2026.08.01"}, git.calls[0])
	assert.Equal(t, []string{"tag", "-a", "2026.08.01", "-m", "Release 2026.08.01"}, git.calls[1])
	assert.Equal(t, []string{"push", "origin", "2026.08.01"}, git.calls[2])
}

func TestRunSkipsExistingTag(t *testing.T) {
	git := &fakeGit{existing: "2026.08.01"}

	tagger := New(Options{Git: git, Now: fixedNow})
	res, err := tagger.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	// Only the existence check ran; nothing was tagged or pushed.
	require.Len(t, git.calls, 1)
	assert.Equal(t, []string{"tag", "-l", "2026.08.01"}, git.calls[0])
}

func TestRunCheckGateBlocksTagging(t *testing.T) {
	git := &fakeGit{}

	tagger := New(Options{
		Git: git,
		Now: fixedNow,
		Check: func(context.Context, string) (string, error) {
			return "FAIL", fmt.Errorf("tests failed")
		},
		CheckCommand: "go test ./...",
	})

	_, err := tagger.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check gate failed")
	assert.Empty(t, git.calls, "no git command may run when the check gate fails")
}

func TestRunPushFailure(t *testing.T) {
	git := &fakeGit{failOn: "push"}

	tagger := New(Options{Git: git, Now: fixedNow})
	_, err := tagger.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pushing tag")
}

func TestRunPushesWithToken(t *testing.T) {
	git := &fakeGit{}
	t.Setenv("NDEMO_PAT_TOKEN", "secret-token")

	tagger := New(Options{
		Git:       git,
		Now:       fixedNow,
		RemoteURL: "https://example.com/ndemo/scalesep.git",
	})

	res, err := tagger.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTagged, res.Outcome)

	push := git.calls[len(git.calls)-1]
	require.Equal(t, "push", push[0])
	assert.Contains(t, push[1], "x-access-token:secret-token@example.com")
}

func TestRunFallsBackToRemoteWithoutToken(t *testing.T) {
	git := &fakeGit{}
	t.Setenv("NDEMO_PAT_TOKEN", "")

	tagger := New(Options{
		Git:       git,
		Now:       fixedNow,
		Remote:    "upstream",
		RemoteURL: "https://example.com/ndemo/scalesep.git",
	})

	_, err := tagger.Run(context.Background())
	require.NoError(t, err)

	push := git.calls[len(git.calls)-1]
	assert.Equal(t, []string{"push", "upstream", "2026.08.01"}, push)
}

func TestTokenNeverAppearsInErrors(t *testing.T) {
	git := &fakeGit{failOn: "push"}
	t.Setenv("NDEMO_PAT_TOKEN", "secret-token")

	tagger := New(Options{
		Git:       git,
		Now:       fixedNow,
		RemoteURL: "https://example.com/ndemo/scalesep.git",
	})

	_, err := tagger.Run(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
	assert.True(t, strings.Contains(err.Error(), "x-access-token:***@example.com"),
		"redacted remote expected in error, got: %s", err.Error())
}

func TestNewSchedulerValidatesSchedule(t *testing.T) {
	tagger := New(Options{Git: &fakeGit{}, Now: fixedNow})

	s, err := NewScheduler(tagger, "", nil)
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = NewScheduler(tagger, "not a schedule", nil)
	assert.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	tagger := New(Options{Git: &fakeGit{}, Now: fixedNow})
	s, err := NewScheduler(tagger, DefaultSchedule, nil)
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
