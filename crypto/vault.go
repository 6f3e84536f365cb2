package crypto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Credentials is the plaintext shape of a destination's secret material.
// Managed-API providers carry OAuth tokens; raw-ingestion providers carry
// only an ingest URL and optional stream key.
type Credentials struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       string    `json:"scopes,omitempty"`
	IngestURL    string    `json:"ingest_url,omitempty"`
	StreamKey    string    `json:"stream_key,omitempty"`
}

// Vault seals and opens Credentials blobs for storage in a text column.
// It is injected into destination adapters and the token refresher so the
// encryption strategy is swappable in tests.
type Vault struct {
	enc Encryptor
}

// NewVault creates a Vault around an Encryptor. A nil encryptor yields a
// plaintext vault (blobs stored as raw JSON), matching deployments without
// an ENCRYPTION_KEY.
func NewVault(enc Encryptor) *Vault {
	return &Vault{enc: enc}
}

// Encrypted reports whether sealed blobs are ciphertext.
func (v *Vault) Encrypted() bool { return v.enc != nil }

// Seal serializes and (when configured) encrypts credentials for storage.
func (v *Vault) Seal(c Credentials) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	if v.enc == nil {
		return string(raw), nil
	}
	sealed, err := EncryptString(v.enc, string(raw))
	if err != nil {
		return "", fmt.Errorf("encrypt credentials: %w", err)
	}
	return sealed, nil
}

// Open decrypts (when configured) and deserializes a stored credentials blob.
func (v *Vault) Open(blob string) (Credentials, error) {
	var c Credentials
	if blob == "" {
		return c, nil
	}
	raw := blob
	if v.enc != nil {
		var err error
		raw, err = DecryptString(v.enc, blob)
		if err != nil {
			return c, fmt.Errorf("decrypt credentials: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return c, nil
}
