package identity

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	nostr "github.com/nbd-wtf/go-nostr"
)

// KeyFileName is where the client secret key lives inside the data dir when
// no explicit path is configured.
const KeyFileName = "client.key"

// ClientIdentity holds the client's signing keypair in hex form.
type ClientIdentity struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key,omitempty"` // only ever stored locally
}

// Generate creates a fresh secp256k1 keypair.
func Generate() (*ClientIdentity, error) {
	sk := nostr.GeneratePrivateKey()
	if sk == "" {
		return nil, fmt.Errorf("failed to generate secret key")
	}
	return FromPrivateKey(sk)
}

// FromPrivateKey derives the x-only public key from a 64-char hex secret key.
func FromPrivateKey(sk string) (*ClientIdentity, error) {
	sk = strings.TrimSpace(sk)
	raw, err := hex.DecodeString(sk)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("secret key must be 64 hex characters")
	}
	_, pub := btcec.PrivKeyFromBytes(raw)
	return &ClientIdentity{
		PublicKey:  hex.EncodeToString(schnorr.SerializePubKey(pub)),
		PrivateKey: sk,
	}, nil
}

// LoadOrCreate reads the secret key from path, generating and persisting a
// new one when the file does not exist. An empty path resolves to
// dataDir/client.key.
func LoadOrCreate(dataDir, path string) (*ClientIdentity, error) {
	if path == "" {
		path = filepath.Join(dataDir, KeyFileName)
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return FromPrivateKey(string(data))
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id.PrivateKey), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return id, nil
}
