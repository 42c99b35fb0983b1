package cipher

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateKeyMaterial creates a fresh X25519 key pair for a user.
func GenerateKeyMaterial() (KeyMaterial, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("cipher: generate key pair: %w", err)
	}
	return KeyMaterial{
		PublicKey:  base64.StdEncoding.EncodeToString(priv.PublicKey().Bytes()),
		PrivateKey: base64.StdEncoding.EncodeToString(priv.Bytes()),
	}, nil
}
