// Package publisher turns a task into a pushed branch and an open pull
// request.
package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/vibecoder/internal/domain/model"
	"github.com/okian/vibecoder/pkg/logger"
	"github.com/okian/vibecoder/pkg/metrics"
)

const (
	defaultRemote       = "origin"
	defaultBaseBranch   = "main"
	defaultBranchPrefix = "auto"
)

// Step names reported in errors and metrics.
const (
	StepBranch = "branch"
	StepApply  = "apply"
	StepStage  = "stage"
	StepCommit = "commit"
	StepPush   = "push"
	StepPR     = "pull_request"
)

// GitPublisher applies a task's patch on a fresh branch, pushes it and opens
// a pull request. Steps run in order and stop at the first failure; nothing
// is rolled back.
type GitPublisher struct {
	runner  Runner
	creator PullRequestCreator

	owner        string
	repo         string
	remote       string
	baseBranch   string
	branchPrefix string
	timeout      time.Duration
	now          func() time.Time
	logger       logger.Logger
}

// NewGitPublisher creates a publisher over runner and creator.
func NewGitPublisher(runner Runner, creator PullRequestCreator, opts ...Option) *GitPublisher {
	p := &GitPublisher{
		runner:       runner,
		creator:      creator,
		remote:       defaultRemote,
		baseBranch:   defaultBaseBranch,
		branchPrefix: defaultBranchPrefix,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("publisher")
	}
	return p
}

// BranchName returns the branch a task is published on.
func (p *GitPublisher) BranchName(task model.Task) string {
	return fmt.Sprintf("%s/%d-%s", p.branchPrefix, p.now().Unix(), sanitizeRef(task.ID))
}

// Publish runs the git steps and returns the pull request URL.
func (p *GitPublisher) Publish(ctx context.Context, task model.Task) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	branch := p.BranchName(task)

	steps := []struct {
		name  string
		stdin []byte
		args  []string
	}{
		{StepBranch, nil, []string{"checkout", "-b", branch, p.baseBranch}},
		{StepApply, []byte(task.Patch), []string{"apply", "-"}},
		{StepStage, nil, []string{"add", "-A"}},
		{StepCommit, nil, []string{"commit", "-m", task.CommitMessage()}},
		{StepPush, nil, []string{"push", p.remote, branch}},
	}
	for _, s := range steps {
		if _, err := p.runner.Run(ctx, s.stdin, s.args...); err != nil {
			return "", p.fail(ctx, task, s.name, err)
		}
	}

	url, err := p.creator.CreatePullRequest(ctx, PullRequest{
		Owner: p.owner,
		Repo:  p.repo,
		Title: task.Title,
		Head:  branch,
		Base:  p.baseBranch,
		Body:  task.Rationale,
	})
	if err != nil {
		return "", p.fail(ctx, task, StepPR, err)
	}

	metrics.RecordPublishLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordPullRequestOpened()
	p.logger.Info(ctx, "pull request opened",
		logger.String("task_id", task.ID),
		logger.String("branch", branch),
		logger.String("pr", url))
	return url, nil
}

func (p *GitPublisher) fail(ctx context.Context, task model.Task, step string, err error) error {
	metrics.RecordPublishFailure(step)
	p.logger.Error(ctx, "publish step failed",
		logger.String("task_id", task.ID),
		logger.String("step", step),
		logger.Error(err))
	if step == StepApply {
		return fmt.Errorf("%w: %v", ErrPatchApply, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrPublish, step, err)
}

// sanitizeRef keeps characters git accepts in a ref component.
func sanitizeRef(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "task"
	}
	return b.String()
}
