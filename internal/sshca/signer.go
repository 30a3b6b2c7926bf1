// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package sshca

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrHostNotInDomain is returned when a requested principal is outside the
// authority's host domain.
var ErrHostNotInDomain = errors.New("hostname is not in the authority host domain")

// HostRequest describes a host key to be certified.
type HostRequest struct {
	// PublicKey is the host key in authorized_keys format.
	PublicKey string
	// Hostnames become the certificate principals.
	Hostnames []string
	// Domain, when set, every hostname must be a subdomain of.
	Domain string
	// Validity is the certificate lifetime.
	Validity time.Duration
}

// SignHostKey issues a host certificate for req using the PEM encoded
// authority key. The certificate is returned in authorized_keys format.
func SignHostKey(privateKeyPEM string, req HostRequest) (string, error) {
	signer, err := ssh.ParsePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("failed to parse authority key: %w", err)
	}

	hostKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(req.PublicKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse host key: %w", err)
	}

	if len(req.Hostnames) == 0 {
		return "", fmt.Errorf("at least one hostname is required")
	}
	if req.Domain != "" {
		suffix := "." + strings.TrimPrefix(req.Domain, ".")
		for _, h := range req.Hostnames {
			if !strings.HasSuffix(h, suffix) {
				return "", fmt.Errorf("%w: %s", ErrHostNotInDomain, h)
			}
		}
	}

	var serial [8]byte
	if _, err := rand.Read(serial[:]); err != nil {
		return "", fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	cert := &ssh.Certificate{
		Key:             hostKey,
		Serial:          binary.BigEndian.Uint64(serial[:]),
		CertType:        ssh.HostCert,
		KeyId:           req.Hostnames[0],
		ValidPrincipals: req.Hostnames,
		// Allow some clock skew on the receiving side.
		ValidAfter:  uint64(now.Add(-5 * time.Minute).Unix()),
		ValidBefore: uint64(now.Add(req.Validity).Unix()),
	}
	if err := cert.SignCert(rand.Reader, signer); err != nil {
		return "", fmt.Errorf("failed to sign host certificate: %w", err)
	}

	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(cert))), nil
}
