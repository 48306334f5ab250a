//go:build integration

package testutil

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// FakeBastion is an in-process SSH server that accepts direct-tcpip channel
// requests and proxies them to the requested address, standing in for a
// real bastion host so pkg/bastion's pool can be exercised end-to-end
// without any real network infrastructure.
type FakeBastion struct {
	listener net.Listener
	config   *ssh.ServerConfig
	wg       sync.WaitGroup
}

// NewFakeBastion starts a password-authenticated SSH server that forwards
// any direct-tcpip request it receives.
func NewFakeBastion() (*FakeBastion, error) {
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

	b := &FakeBastion{listener: listener, config: config}
	b.wg.Add(1)
	go b.serve()
	return b, nil
}

// Addr returns the "host:port" the fake bastion is listening on.
func (b *FakeBastion) Addr() string {
	return b.listener.Addr().String()
}

// Close stops accepting connections and waits for the serve loop to exit.
func (b *FakeBastion) Close() error {
	err := b.listener.Close()
	b.wg.Wait()
	return err
}

func (b *FakeBastion) serve() {
	defer b.wg.Done()
	for {
		nConn, err := b.listener.Accept()
		if err != nil {
			return
		}
		go b.handleConn(nConn)
	}
}

func (b *FakeBastion) handleConn(nConn net.Conn) {
	sConn, chans, reqs, err := ssh.NewServerConn(nConn, b.config)
	if err != nil {
		nConn.Close()
		return
	}
	defer sConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "direct-tcpip" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		go b.forward(newChannel)
	}
}

// directTCPIPPayload mirrors the RFC 4254 §7.2 direct-tcpip channel payload
// ssh.Client.Dial sends: destination host/port, then originator host/port.
type directTCPIPPayload struct {
	DestAddr   string
	DestPort   uint32
	OriginAddr string
	OriginPort uint32
}

func (b *FakeBastion) forward(newChannel ssh.NewChannel) {
	var payload directTCPIPPayload
	if err := parseDirectTCPIP(newChannel.ExtraData(), &payload); err != nil {
		newChannel.Reject(ssh.ConnectionFailed, "malformed direct-tcpip payload")
		return
	}

	target := fmt.Sprintf("%s:%d", payload.DestAddr, payload.DestPort)
	targetConn, err := net.Dial("tcp", target)
	if err != nil {
		newChannel.Reject(ssh.ConnectionFailed, fmt.Sprintf("dialing %s: %v", target, err))
		return
	}

	channel, requests, err := newChannel.Accept()
	if err != nil {
		targetConn.Close()
		return
	}
	go ssh.DiscardRequests(requests)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(targetConn, channel) }()
	go func() { defer wg.Done(); io.Copy(channel, targetConn) }()
	wg.Wait()

	channel.Close()
	targetConn.Close()
}

// parseDirectTCPIP decodes the SSH string/uint32 wire encoding of a
// direct-tcpip channel-open payload by hand, since golang.org/x/crypto/ssh
// doesn't export a decoder for it.
func parseDirectTCPIP(data []byte, out *directTCPIPPayload) error {
	var ok bool
	out.DestAddr, data, ok = readSSHString(data)
	if !ok {
		return fmt.Errorf("truncated dest addr")
	}
	out.DestPort, data, ok = readSSHUint32(data)
	if !ok {
		return fmt.Errorf("truncated dest port")
	}
	out.OriginAddr, data, ok = readSSHString(data)
	if !ok {
		return fmt.Errorf("truncated origin addr")
	}
	out.OriginPort, _, ok = readSSHUint32(data)
	if !ok {
		return fmt.Errorf("truncated origin port")
	}
	return nil
}

func readSSHString(data []byte) (string, []byte, bool) {
	if len(data) < 4 {
		return "", nil, false
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return "", nil, false
	}
	return string(data[:n]), data[n:], true
}

func readSSHUint32(data []byte) (uint32, []byte, bool) {
	if len(data) < 4 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint32(data[:4]), data[4:], true
}
