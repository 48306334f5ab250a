//go:build integration

package testutil

import (
	"crypto/rand"
	"crypto/rsa"
)

// rsaKey generates a throwaway host key for FakeDevice; these tests never
// verify host key identity (bastion.Pool dials with InsecureIgnoreHostKey),
// so key size and reuse don't matter.
func rsaKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}
