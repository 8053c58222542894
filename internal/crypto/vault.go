package crypto

import (
	"cmp"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultVersion    = 2
	vaultIterations = 600_000
	vaultSaltLen    = 16
	vaultKeyLen     = 32
)

// vaultAAD binds the ciphertext to its purpose so a sealed blob from another
// tool cannot be opened as OKX credentials.
var vaultAAD = []byte("perpbot/okx-credentials")

// Credentials is the OKX API key set.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Complete reports whether all three parts are present.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.Secret != "" && c.Passphrase != ""
}

// vaultFile is the on-disk envelope. Byte fields are base64 via encoding/json.
type vaultFile struct {
	Version    int    `json:"v"`
	Iterations int    `json:"iter"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Sealed     []byte `json:"sealed"`
}

// SealCredentials encrypts creds under password with PBKDF2-SHA256 and
// AES-256-GCM and returns the envelope to write to disk.
func SealCredentials(creds Credentials, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: seal: empty password")
	}
	if creds == (Credentials{}) {
		return nil, errors.New("crypto: seal: empty credentials")
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("crypto: seal: %w", err)
	}

	env := vaultFile{Version: vaultVersion, Iterations: vaultIterations, Salt: make([]byte, vaultSaltLen)}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, fmt.Errorf("crypto: seal: salt: %w", err)
	}
	aead, err := vaultAEAD(password, env.Salt, env.Iterations)
	if err != nil {
		return nil, err
	}
	env.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: seal: nonce: %w", err)
	}
	env.Sealed = aead.Seal(nil, env.Nonce, plain, vaultAAD)
	return json.MarshalIndent(env, "", "  ")
}

// OpenCredentials reverses SealCredentials.
func OpenCredentials(blob []byte, password string) (Credentials, error) {
	if password == "" {
		return Credentials{}, errors.New("crypto: open: empty password")
	}
	var env vaultFile
	if err := json.Unmarshal(blob, &env); err != nil {
		return Credentials{}, fmt.Errorf("crypto: open: parse envelope: %w", err)
	}
	if env.Version != vaultVersion {
		return Credentials{}, fmt.Errorf("crypto: open: unsupported version %d", env.Version)
	}
	if len(env.Salt) == 0 || env.Iterations <= 0 {
		return Credentials{}, errors.New("crypto: open: malformed key derivation parameters")
	}

	aead, err := vaultAEAD(password, env.Salt, env.Iterations)
	if err != nil {
		return Credentials{}, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return Credentials{}, fmt.Errorf("crypto: open: nonce is %d bytes", len(env.Nonce))
	}
	plain, err := aead.Open(nil, env.Nonce, env.Sealed, vaultAAD)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: open: wrong password or corrupted file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return Credentials{}, fmt.Errorf("crypto: open: %w", err)
	}
	return creds, nil
}

// CredentialSource says where LoadCredentials looks.
type CredentialSource struct {
	Plain    Credentials // fields set here win over the file
	File     string      // written by SealCredentials, optional
	Password string
}

// LoadCredentials merges the sealed file, if any, with the plaintext fields.
// A missing part is left empty; callers decide whether that is fatal.
func LoadCredentials(src CredentialSource) (Credentials, error) {
	var sealed Credentials
	if src.File != "" {
		blob, err := os.ReadFile(src.File)
		if err != nil {
			return Credentials{}, fmt.Errorf("crypto: read credentials file: %w", err)
		}
		if sealed, err = OpenCredentials(blob, src.Password); err != nil {
			return Credentials{}, err
		}
	}
	return Credentials{
		APIKey:     cmp.Or(src.Plain.APIKey, sealed.APIKey),
		Secret:     cmp.Or(src.Plain.Secret, sealed.Secret),
		Passphrase: cmp.Or(src.Plain.Passphrase, sealed.Passphrase),
	}, nil
}

func vaultAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, vaultKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}
