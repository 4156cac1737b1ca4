// Package workflow orchestrates the multi-step source-control operations:
// branch creation, single-file commits conditioned on a known branch tip,
// and the feature-switch create/update flows built on top of them.
//
// Correctness under concurrent writers rests entirely on the push
// precondition: a push succeeds only if the branch tip is unchanged since it
// was read. Conflicts are reported, never retried here; only the caller can
// safely re-read state and decide to try again.
package workflow

import (
	"go.uber.org/zap"

	"github.com/switchgate/switchgate/scm"
)

// Runner binds the workflows to a backend and an observability sink. All
// state lives in the remote service; Runner itself is stateless and safe
// for concurrent use.
type Runner struct {
	client scm.Client
	log    *zap.Logger
}

// NewRunner builds a Runner. A nil logger disables logging.
func NewRunner(client scm.Client, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{client: client, log: log}
}
