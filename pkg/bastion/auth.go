package bastion

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// bastionAuthMethods builds the bastion's ssh.AuthMethod list: a private
// key if KeyPath is set, otherwise password auth.
func bastionAuthMethods(cfg rtconfigBastion) ([]ssh.AuthMethod, error) {
	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading bastion key %s: %w", cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing bastion key %s: %w", cfg.KeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
}

// classifyConnectError maps a low-level SSH/network error to the
// retry-classification taxonomy of §7: auth and invalid-address failures
// are non-retryable; timeouts, refused connections, and device-busy
// responses are retryable.
func classifyConnectError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "auth"):
		return "auth"
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "invalid address"), strings.Contains(msg, "no such host"):
		return "invalid_address"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "refused"), strings.Contains(msg, "busy"):
		return "network"
	default:
		return "network"
	}
}

func commandLower(command string) string {
	return strings.ToLower(command)
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
