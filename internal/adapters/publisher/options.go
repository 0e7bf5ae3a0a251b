package publisher

import (
	"time"

	"github.com/okian/vibecoder/pkg/logger"
)

// Option applies a configuration option to the GitPublisher.
type Option func(*GitPublisher)

// WithRemote sets the git remote pushed to.
func WithRemote(remote string) Option {
	return func(p *GitPublisher) {
		if remote != "" {
			p.remote = remote
		}
	}
}

// WithBaseBranch sets the branch new work starts from and targets.
func WithBaseBranch(branch string) Option {
	return func(p *GitPublisher) {
		if branch != "" {
			p.baseBranch = branch
		}
	}
}

// WithBranchPrefix sets the prefix of generated branch names.
func WithBranchPrefix(prefix string) Option {
	return func(p *GitPublisher) {
		if prefix != "" {
			p.branchPrefix = prefix
		}
	}
}

// WithRepository names the GitHub repository pull requests are opened on.
func WithRepository(owner, name string) Option {
	return func(p *GitPublisher) {
		p.owner = owner
		p.repo = name
	}
}

// WithTimeout bounds a whole publish. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *GitPublisher) {
		if d >= 0 {
			p.timeout = d
		}
	}
}

// WithClock replaces the time source used for branch names.
func WithClock(now func() time.Time) Option {
	return func(p *GitPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *GitPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}
