// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshca generates authority key pairs and signs host keys with them.
package sshca // import "github.com/toeirei/keymaster-ca/internal/sshca"

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Supported key types.
const (
	KeyEd25519 = "ed25519"
	KeyRSA     = "rsa"
	KeyECDSA   = "ecdsa"
)

// KeyPair is a freshly generated authority key.
type KeyPair struct {
	// PublicKey is in authorized_keys format without trailing newline.
	PublicKey string
	// PrivateKey is an OpenSSH PEM block.
	PrivateKey string
	// Algorithm is a display name such as "ED25519" or "RSA 4096".
	Algorithm string
}

// GenerateKey creates a new authority key of the given type. An empty type
// means ed25519.
func GenerateKey(keyType, comment string) (KeyPair, error) {
	var (
		pub  crypto.PublicKey
		priv crypto.PrivateKey
		alg  string
		err  error
	)

	switch strings.ToLower(keyType) {
	case "", KeyEd25519:
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
		alg = "ED25519"
	case KeyRSA:
		var k *rsa.PrivateKey
		k, err = rsa.GenerateKey(rand.Reader, 4096)
		if err == nil {
			pub, priv = &k.PublicKey, k
		}
		alg = "RSA 4096"
	case KeyECDSA:
		var k *ecdsa.PrivateKey
		k, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err == nil {
			pub, priv = &k.PublicKey, k
		}
		alg = "ECDSA P-256"
	default:
		return KeyPair{}, fmt.Errorf("unsupported key type %q", keyType)
	}
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate %s key pair: %w", alg, err)
	}

	sshPubKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to create SSH public key: %w", err)
	}
	publicKey := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPubKey)))
	if comment != "" {
		publicKey += " " + comment
	}

	pemBlock, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return KeyPair{
		PublicKey:  publicKey,
		PrivateKey: string(pem.EncodeToMemory(pemBlock)),
		Algorithm:  alg,
	}, nil
}
