package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultDialTimeout = 15 * time.Second

// SSHConfig describes how to reach the remote host.
type SSHConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// KeyFile is a PEM private key used in addition to Password.
	KeyFile string
	// KnownHosts enables host key verification when set.
	KnownHosts  string
	DialTimeout time.Duration
}

func (c SSHConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SSHSession runs commands over one SSH connection. Each command gets its
// own channel on the shared connection.
type SSHSession struct {
	client *ssh.Client
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// DialSSH connects and authenticates to the remote host.
func DialSSH(ctx context.Context, cfg SSHConfig, logger *slog.Logger) (*SSHSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg, err := clientConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	addr := cfg.addr()
	dialer := net.Dialer{Timeout: clientCfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	logger.Info("SSH session established", "addr", addr, "user", cfg.User)
	return &SSHSession{client: ssh.NewClient(sshConn, chans, reqs), logger: logger}, nil
}

func clientConfig(cfg SSHConfig, logger *slog.Logger) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh: no password or key file configured")
	}

	var hostKey ssh.HostKeyCallback
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	} else {
		logger.Warn("SSH host key verification disabled, set RM_KNOWN_HOSTS to enable it", "host", cfg.Host)
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// Run implements Session.
func (s *SSHSession) Run(_ context.Context, command string, stdout, stderr io.Writer) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("open ssh channel: %w", err)
	}
	defer sess.Close()

	sess.Stdout = stdout
	sess.Stderr = stderr
	err = sess.Run(command)

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		s.logger.Debug("Remote command exited non-zero", "status", exitErr.ExitStatus())
		return nil
	}
	return err
}

// Ping implements Session with an OpenSSH keepalive request.
func (s *SSHSession) Ping(_ context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if _, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
		return fmt.Errorf("ssh keepalive: %w", err)
	}
	return nil
}

// Close implements Session.
func (s *SSHSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *SSHSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
