// Package sshexec runs commands and transfers small files on remote
// hosts over SSH. Authentication is key-based only; host keys are not
// verified, a documented trade-off for unattended provisioning of
// customer machines.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultDialTimeout bounds the SSH handshake.
const DefaultDialTimeout = 30 * time.Second

// Result holds the outcome of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client is an established SSH connection to one host.
type Client struct {
	conn *ssh.Client
}

// Dial connects to host:port with the given private key.
func Dial(ctx context.Context, host string, port int, user string, privateKey []byte) (*Client, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         DefaultDialTimeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialer := net.Dialer{Timeout: cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	return &Client{conn: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// Run executes a command and captures stdout, stderr, and the exit code.
// A non-zero exit code is reported in the Result, not as an error.
func (c *Client) Run(command string) (*Result, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	res := &Result{}
	if err := session.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
		} else {
			return nil, fmt.Errorf("run %q: %w", command, err)
		}
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res, nil
}

// Output runs a command and returns stdout, failing on a non-zero exit.
func (c *Client) Output(command string) (string, error) {
	res, err := c.Run(command)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("run %q: exit %d: %s", command, res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}

// ReadFile returns a remote file's contents.
func (c *Client) ReadFile(path string) ([]byte, error) {
	out, err := c.Output(fmt.Sprintf("cat %s", shellQuote(path)))
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// WriteFile writes content to a remote path via stdin, creating parent
// directories as needed.
func (c *Client) WriteFile(path string, content []byte, mode string) error {
	session, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(content)
	var stderr bytes.Buffer
	session.Stderr = &stderr

	quoted := shellQuote(path)
	cmd := fmt.Sprintf("mkdir -p $(dirname %s) && cat > %s && chmod %s %s", quoted, quoted, mode, quoted)
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("write %s: %w: %s", path, err, stderr.String())
	}
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
