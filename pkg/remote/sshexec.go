package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"time"

	"github.com/alessio/shellescape"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/superbench/sbfleet/pkg/config"
	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
)

const dialTimeout = 30 * time.Second

type SSHExecutorStore interface {
	ReadString(path string) (string, error)
}

// SSHExecutor satisfies Executor over plain SSH with the fleet identity key.
type SSHExecutor struct {
	store          SSHExecutorStore
	privateKeyPath string
}

var _ Executor = SSHExecutor{}

func NewSSHExecutor(store SSHExecutorStore, privateKeyPath string) SSHExecutor {
	return SSHExecutor{store: store, privateKeyPath: privateKeyPath}
}

func (s SSHExecutor) Exec(ctx context.Context, host entity.Host, command string) (Result, error) {
	client, err := s.dial(ctx, host)
	if err != nil {
		return Result{}, sberrors.WrapAndTrace(err, "connecting to", host.ID())
	}
	defer client.Close() //nolint:errcheck,gosec // defer

	res, err := s.run(ctx, client, host, command)
	if err != nil {
		return Result{}, sberrors.WrapAndTrace(err)
	}
	return res, nil
}

func (s SSHExecutor) Copy(ctx context.Context, host entity.Host, localPath string, remotePath string, mode os.FileMode) error {
	data, err := s.store.ReadString(localPath)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}

	client, err := s.dial(ctx, host)
	if err != nil {
		return sberrors.WrapAndTrace(err, "connecting to", host.ID())
	}
	defer client.Close() //nolint:errcheck,gosec // defer

	res, err := s.runWithStdin(ctx, client, host, copyCommand(remotePath, mode), bytes.NewBufferString(data))
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	if !res.OK() {
		return sberrors.WrapAndTrace(fmt.Errorf("copy to %s:%s failed: %s", host.ID(), remotePath, res.Stderr))
	}
	return nil
}

// copyCommand stages the payload in a temp file and renames it over the
// target. Renaming needs only directory write permission, so a rerun can
// replace a previously installed read-only file (the 0400 private key).
func copyCommand(remotePath string, mode os.FileMode) string {
	tmp := remotePath + ".tmp"
	return fmt.Sprintf(
		"mkdir -p %s && rm -f %s && cat > %s && chmod %o %s && mv -f %s %s",
		shellescape.Quote(path.Dir(remotePath)),
		shellescape.Quote(tmp),
		shellescape.Quote(tmp),
		mode.Perm(),
		shellescape.Quote(tmp),
		shellescape.Quote(tmp),
		shellescape.Quote(remotePath),
	)
}

func (s SSHExecutor) dial(ctx context.Context, host entity.Host) (*ssh.Client, error) {
	signer, err := s.signer()
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}

	sshConfig := &ssh.ClientConfig{ //nolint:exhaustruct // defaults are fine
		User:            host.SSHUser(),
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // fleet hosts are provisioned from scratch
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(host.Address, fmt.Sprint(host.SSHPort()))
	dialer := net.Dialer{Timeout: dialTimeout} //nolint:exhaustruct // only timeout matters
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, sberrors.WrapAndTrace(err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (s SSHExecutor) signer() (ssh.Signer, error) {
	keyData, err := s.store.ReadString(s.privateKeyPath)
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}
	signer, err := ssh.ParsePrivateKey([]byte(keyData))
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}
	return signer, nil
}

func (s SSHExecutor) run(ctx context.Context, client *ssh.Client, host entity.Host, command string) (Result, error) {
	return s.runWithStdin(ctx, client, host, command, nil)
}

func (s SSHExecutor) runWithStdin(ctx context.Context, client *ssh.Client, host entity.Host, command string, stdin *bytes.Buffer) (Result, error) {
	session, err := client.NewSession()
	if err != nil {
		return Result{}, sberrors.WrapAndTrace(err)
	}
	defer session.Close() //nolint:errcheck,gosec // defer

	if host.Become && host.SSHUser() != "root" {
		command = "sudo -n sh -c " + shellescape.Quote(command)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	if config.GlobalConfig.GetDebugRemote() {
		logrus.WithField("host", host.ID()).Debugf("remote exec: %s", command)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return Result{}, sberrors.WrapAndTrace(ctx.Err(), "remote call deadline exceeded on", host.ID())
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0}
	if err != nil {
		exitErr, ok := err.(*ssh.ExitError)
		if !ok {
			return Result{}, sberrors.WrapAndTrace(err)
		}
		res.ExitCode = exitErr.ExitStatus()
	}
	if config.GlobalConfig.GetDebugRemote() {
		logrus.WithField("host", host.ID()).Debugf("remote exec done: exit=%d", res.ExitCode)
	}
	return res, nil
}
