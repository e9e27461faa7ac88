// Package remote is the narrow surface the bootstrap core uses to talk to
// fleet hosts: run a command, copy a file. Anything satisfying Executor
// works; the shipped implementation speaks SSH.
package remote

import (
	"context"
	"os"

	"github.com/superbench/sbfleet/pkg/entity"
)

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Executor runs work on a single fleet host. Exec returns an error only for
// transport-level failures (unreachable host, auth, dropped session); a
// non-zero remote exit code is a successful Exec with Result.ExitCode set.
type Executor interface {
	Exec(ctx context.Context, host entity.Host, command string) (Result, error)
	Copy(ctx context.Context, host entity.Host, localPath string, remotePath string, mode os.FileMode) error
}
