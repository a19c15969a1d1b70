package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rjboer/gosoapy/internal/ipc"
)

// SSHConfig describes how to reach the host a radio is attached to and which
// worker to run there.
type SSHConfig struct {
	Host     string
	User     string
	Password string
	KeyPath  string
	Port     int
	// Command is the remote worker executable; DefaultBinary when empty.
	Command string
	Args    []string
}

func (c SSHConfig) withDefaults() (SSHConfig, error) {
	if c.Host == "" {
		return c, errors.New("ssh host is required")
	}
	if c.User == "" {
		c.User = "root"
	}
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Command == "" {
		c.Command = DefaultBinary
	}
	return c, nil
}

// commandLine quotes every argument for the remote shell.
func (c SSHConfig) commandLine() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Command))
	for _, a := range c.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func (c SSHConfig) auth() ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}
	if c.KeyPath != "" {
		key, err := os.ReadFile(c.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh password or key configured")
	}
	return auth, nil
}

// DialSSH starts a worker on a remote host and carries both channels over
// the session's stdin and stdout. Closing the Conn ends the session and the
// SSH connection.
func DialSSH(ctx context.Context, cfg SSHConfig) (ipc.Conn, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	auth, err := cfg.auth()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create ssh client: %w", err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create ssh session: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("session stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("session stdout: %w", err)
	}
	session.Stderr = os.Stderr
	if err := session.Start(cfg.commandLine()); err != nil {
		client.Close()
		return nil, fmt.Errorf("start remote worker: %w", err)
	}
	return ipc.NewMux(stdout, stdin, &sshWorker{stdin: stdin, session: session, client: client}), nil
}

type sshWorker struct {
	stdin   io.Closer
	session *ssh.Session
	client  *ssh.Client
}

func (r *sshWorker) Close() error {
	err := r.stdin.Close()
	waitErr := r.session.Wait()
	var exitMissing *ssh.ExitMissingError
	if errors.As(waitErr, &exitMissing) {
		waitErr = nil
	}
	return errors.Join(err, waitErr, r.client.Close())
}

// shellQuote wraps value in single quotes with embedded quotes escaped.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
