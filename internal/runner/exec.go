package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"probewatch/pkg/probe"
)

// ExecRunner runs the artifact as a `go run` subprocess. Each cycle gets a
// fresh process, so package state never leaks from one run into the next.
// The capture flag and log destination travel through the environment.
type ExecRunner struct {
	LogPath string
	Dir     string
	Logger  *zap.Logger
}

func (r *ExecRunner) Run(ctx context.Context, artifact string) error {
	cmd := exec.CommandContext(ctx, "go", "run", artifact)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		probe.EnvCapture+"=1",
		probe.EnvLog+"="+r.LogPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if r.Logger != nil {
			r.Logger.Debug("artifact run failed",
				zap.String("artifact", artifact),
				zap.ByteString("output", out),
				zap.Error(err))
		}
		return fmt.Errorf("run %s: %w", artifact, err)
	}
	return nil
}
