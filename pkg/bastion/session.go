package bastion

import (
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
)

// Session is a live SSH channel to one device, tunnelled through the
// bastion. Not shared between concurrent callers; C4 owns it exclusively
// and collectors borrow it for the duration of one layer.
type Session struct {
	key       string
	hostname  string
	client    *ssh.Client
	createdAt time.Time
	alive     bool
}

// Key returns the device key (hostname:port:username) this session was
// built for.
func (s *Session) Key() string { return s.key }

// CreatedAt returns when the session was established.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Close tears down the device-side SSH client. It does not touch the
// shared bastion connection.
func (s *Session) Close() error {
	s.alive = false
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// sessionPrepCommands suppress pagination so multi-page show output comes
// back in one response (§4.4).
var sessionPrepCommands = []string{
	"terminal length 0",
	"terminal width 0",
	"terminal no more",
}

// prepare runs the session-preparation commands on a freshly built session.
// Failures are tolerated: some platforms reject one of the three and that's
// not fatal to the session.
func (s *Session) prepare() {
	for _, cmd := range sessionPrepCommands {
		_, _ = s.run(cmd, 5*time.Second)
	}
}

// run executes one command over a fresh ssh.Session (each Execute opens its
// own channel; the underlying ssh.Client is reused across commands).
func (s *Session) run(command string, timeout time.Duration) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening ssh channel: %w", err)
	}
	defer sess.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(command)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return string(r.out), r.err
	case <-time.After(timeout):
		sess.Close()
		return "", fmt.Errorf("command %q timed out after %s", command, timeout)
	}
}

// probe sends an empty line and expects a prompt within deadline, the
// lightweight aliveness check Acquire runs on a cached Session.
func (s *Session) probe(deadline time.Duration) bool {
	_, err := s.run("", deadline)
	return err == nil
}

// buildDeviceClient opens a direct-tcpip channel from the bastion to
// (addr, port) and runs the device-side SSH handshake over it. Grounded in
// the same direct-tcpip forwarding mechanism as a local-port-forwarding
// tunnel, generalized here to dial straight at the device instead of a
// fixed local listener.
func buildDeviceClient(bastionClient *ssh.Client, addr string, port int, config *ssh.ClientConfig) (*ssh.Client, error) {
	remote := fmt.Sprintf("%s:%d", addr, port)

	conn, err := bastionClient.Dial("tcp", remote)
	if err != nil {
		return nil, fmt.Errorf("opening direct-tcpip channel to %s: %w", remote, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, remote, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("device handshake with %s: %w", remote, err)
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}
