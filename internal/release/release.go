// Package release implements the monthly release automation: run the check
// gate, derive a calendar version tag from the current UTC date, create it
// as an annotated tag and push it to the remote. Tagging semantics stay with
// the external git client; this package only orchestrates it.
package release

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ndemo/scalesep/internal/calver"
	"github.com/ndemo/scalesep/internal/metrics"
)

// Outcomes of a tagger run.
const (
	OutcomeTagged  = "tagged"
	OutcomeSkipped = "skipped"
)

// GitRunner runs a git command and returns its combined output.
type GitRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecGit runs git against a repository on disk.
type ExecGit struct {
	Dir string
}

// Run executes git with the given arguments in the repository directory.
func (g *ExecGit) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s failed: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// CheckRunner runs the pre-tag check command and returns its combined
// output.
type CheckRunner func(ctx context.Context, command string) (string, error)

func execCheck(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("check command failed: %w", err)
	}
	return string(out), nil
}

// Options configures the tagger.
type Options struct {
	RepoDir string
	// Remote is the push target name. Ignored when RemoteURL and a token
	// are available.
	Remote string
	// RemoteURL, when set together with a token in TokenEnv, is rewritten
	// with the token as an authenticated push URL.
	RemoteURL string
	// TokenEnv names the environment variable holding the access token.
	TokenEnv string
	// CheckCommand is the test gate. Tagging is never attempted when it
	// fails. Empty disables the gate.
	CheckCommand string

	Now     func() time.Time
	Git     GitRunner
	Check   CheckRunner
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Result describes a completed tagger run.
type Result struct {
	Tag     string
	Outcome string
}

// Tagger creates and pushes the monthly calendar version tag.
type Tagger struct {
	opts   Options
	logger *zap.Logger
}

// New builds a tagger. Zero-value options fall back to a real git client in
// RepoDir and the system clock.
func New(opts Options) *Tagger {
	if opts.RepoDir == "" {
		opts.RepoDir = "."
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.TokenEnv == "" {
		opts.TokenEnv = "NDEMO_PAT_TOKEN"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Git == nil {
		opts.Git = &ExecGit{Dir: opts.RepoDir}
	}
	if opts.Check == nil {
		opts.Check = execCheck
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tagger{opts: opts, logger: opts.Logger}
}

// Run performs one release attempt: check gate, tag, push. Re-running on a
// day that is already tagged is a no-op.
func (t *Tagger) Run(ctx context.Context) (*Result, error) {
	tag := calver.Now(t.opts.Now())
	logger := t.logger.With(zap.String("tag", tag))

	if t.opts.CheckCommand != "" {
		logger.Info("running check gate", zap.String("command", t.opts.CheckCommand))
		out, err := t.opts.Check(ctx, t.opts.CheckCommand)
		if err != nil {
			t.record("check_failed")
			logger.Error("check gate failed", zap.Error(err), zap.String("output", strings.TrimSpace(out)))
			return nil, fmt.Errorf("check gate failed for %s: %w", tag, err)
		}
		logger.Info("check gate passed")
	}

	exists, err := t.tagExists(ctx, tag)
	if err != nil {
		t.record("error")
		return nil, err
	}
	if exists {
		t.record(OutcomeSkipped)
		logger.Info("tag already exists, skipping")
		return &Result{Tag: tag, Outcome: OutcomeSkipped}, nil
	}

	if _, err := t.opts.Git.Run(ctx, "tag", "-a", tag, "-m", "Release "+tag); err != nil {
		t.record("error")
		return nil, fmt.Errorf("creating tag %s: %w", tag, err)
	}

	target, redacted := t.pushTarget()
	if _, err := t.opts.Git.Run(ctx, "push", target, tag); err != nil {
		t.record("error")
		return nil, fmt.Errorf("pushing tag %s to %s: %w", tag, redacted, err)
	}

	t.record(OutcomeTagged)
	logger.Info("release tag pushed", zap.String("remote", redacted))
	return &Result{Tag: tag, Outcome: OutcomeTagged}, nil
}

// tagExists asks git whether the tag is already present locally.
func (t *Tagger) tagExists(ctx context.Context, tag string) (bool, error) {
	out, err := t.opts.Git.Run(ctx, "tag", "-l", tag)
	if err != nil {
		return false, fmt.Errorf("listing tags: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// pushTarget picks the push destination. With a token and a remote URL the
// push authenticates through the rewritten URL; the redacted form is used
// for logs and errors so the token never leaks.
func (t *Tagger) pushTarget() (target, redacted string) {
	token := os.Getenv(t.opts.TokenEnv)
	if token == "" || t.opts.RemoteURL == "" {
		return t.opts.Remote, t.opts.Remote
	}

	u, err := url.Parse(t.opts.RemoteURL)
	if err != nil || u.Host == "" {
		return t.opts.Remote, t.opts.Remote
	}
	auth := url.UserPassword("x-access-token", token)
	u.User = auth
	target = u.String()
	// URL.String percent-encodes userinfo, so the redaction marker is
	// substituted on the rendered string instead of through url.UserPassword.
	redacted = strings.Replace(target, auth.String(), "x-access-token:***", 1)
	return target, redacted
}

func (t *Tagger) record(result string) {
	if t.opts.Metrics != nil {
		t.opts.Metrics.RecordReleaseRun(result)
	}
}
