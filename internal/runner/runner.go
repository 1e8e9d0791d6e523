// Package runner executes a probed artifact for one synchronization cycle.
//
// A runner must return only after the artifact's entry function has run to
// completion, so the probe log is quiescent when the orchestrator reads it.
package runner

import "context"

// Runner executes the artifact at path with probe capture enabled for the
// duration of the run.
type Runner interface {
	Run(ctx context.Context, artifact string) error
}
