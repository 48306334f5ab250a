//go:build integration

// Package testutil provides fakes for integration tests that need a live SSH
// server or Redis instance, gated behind the integration build tag so the
// default test run never depends on external services.
package testutil

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// FakeDevice is an in-process SSH server that answers exec requests with
// scripted output, standing in for a real router across a real bastion
// tunnel in C4/C5/C6 tests.
type FakeDevice struct {
	listener net.Listener
	config   *ssh.ServerConfig

	mu        sync.Mutex
	responses map[string]string
	calls     []string

	wg sync.WaitGroup
}

// NewFakeDevice starts a password-authenticated SSH server on an ephemeral
// localhost port, accepting any username/password pair (the scope of these
// tests is command execution, not authentication).
func NewFakeDevice(responses map[string]string) (*FakeDevice, error) {
	signer, err := generateHostKey()
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening: %w", err)
	}

	d := &FakeDevice{
		listener:  listener,
		config:    config,
		responses: responses,
	}
	d.wg.Add(1)
	go d.serve()
	return d, nil
}

// Addr returns the "host:port" the fake device is listening on.
func (d *FakeDevice) Addr() string {
	return d.listener.Addr().String()
}

// Close stops accepting new connections and waits for the serve loop to exit.
func (d *FakeDevice) Close() error {
	err := d.listener.Close()
	d.wg.Wait()
	return err
}

// Calls returns every command the device has been asked to run, in order.
func (d *FakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *FakeDevice) serve() {
	defer d.wg.Done()
	for {
		nConn, err := d.listener.Accept()
		if err != nil {
			return // listener closed
		}
		go d.handleConn(nConn)
	}
}

func (d *FakeDevice) handleConn(nConn net.Conn) {
	sConn, chans, reqs, err := ssh.NewServerConn(nConn, d.config)
	if err != nil {
		nConn.Close()
		return
	}
	defer sConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go d.handleSession(channel, requests)
	}
}

func (d *FakeDevice) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			command := string(req.Payload[4:])
			req.Reply(true, nil)

			d.mu.Lock()
			d.calls = append(d.calls, command)
			output, ok := d.responses[command]
			d.mu.Unlock()

			if !ok {
				output = ""
			}
			channel.Write([]byte(output))
			channel.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
			return
		default:
			req.Reply(false, nil)
		}
	}
}

func generateHostKey() (ssh.Signer, error) {
	key, err := rsaKey()
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(key)
}
