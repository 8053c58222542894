package crypto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "22582BD0CFF14C41EDBF1AB98506286D"

func TestHeadersAt(t *testing.T) {
	t.Parallel()

	auth := &HMACAuth{Key: "key-1", Secret: testSecret, Passphrase: "pass"}
	at := time.Date(2020, 12, 8, 9, 8, 57, 715_000_000, time.UTC)

	h := auth.HeadersAt("GET", "/api/v5/account/balance?ccy=USDT", "", at)

	assert.Equal(t, "key-1", h[HeaderAccessKey])
	assert.Equal(t, "pass", h[HeaderAccessPassphrase])
	assert.Equal(t, "2020-12-08T09:08:57.715Z", h[HeaderAccessTimestamp])
	assert.Equal(t, "Ku79U+75wKPSP3i+t02ssUto76AYiAT/aws7hI3GZpg=", h[HeaderAccessSign])
	assert.NotContains(t, h, HeaderSimulatedTrading)
}

func TestHeadersAtSignsBody(t *testing.T) {
	t.Parallel()

	auth := &HMACAuth{Key: "key-1", Secret: testSecret, Passphrase: "pass", Simulated: true}
	at := time.Date(2020, 12, 8, 9, 8, 57, 715_000_000, time.UTC)

	h := auth.HeadersAt("POST", "/api/v5/trade/order", `{"instId":"BTC-USDT-SWAP"}`, at)

	assert.Equal(t, "jJaDvhTo9Th18z7EibpnZ4RawxPiL4Py1Gj/bjkEvp4=", h[HeaderAccessSign])
	assert.Equal(t, "1", h[HeaderSimulatedTrading])
}

func TestTimestampIsUTCMillis(t *testing.T) {
	t.Parallel()

	auth := &HMACAuth{Key: "k", Secret: "s", Passphrase: "p"}
	loc := time.FixedZone("UTC+8", 8*3600)
	h := auth.HeadersAt("GET", "/", "", time.Date(2024, 1, 2, 8, 0, 0, 5_000_000, loc))

	assert.Equal(t, "2024-01-02T00:00:00.005Z", h[HeaderAccessTimestamp])
}

func TestHMACAuthString(t *testing.T) {
	t.Parallel()

	auth := &HMACAuth{Key: "abcdefgh", Secret: "supersecret"}
	s := auth.String()
	assert.NotContains(t, s, "supersecret")
	assert.Contains(t, s, "abcd****")
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Parallel()

	creds := Credentials{APIKey: "key-1", Secret: testSecret, Passphrase: "pass"}
	blob, err := SealCredentials(creds, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), testSecret)

	got, err := OpenCredentials(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, creds, got)
	assert.True(t, got.Complete())

	_, err = OpenCredentials(blob, "wrong")
	assert.ErrorContains(t, err, "wrong password")
}

func TestSealCredentialsRejects(t *testing.T) {
	t.Parallel()

	_, err := SealCredentials(Credentials{Secret: "s"}, "")
	assert.ErrorContains(t, err, "empty password")
	_, err = SealCredentials(Credentials{}, "pw")
	assert.ErrorContains(t, err, "empty credentials")
}

func TestOpenCredentialsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		blob    string
		wantErr string
	}{
		{name: "not json", blob: "nope", wantErr: "parse envelope"},
		{name: "old version", blob: `{"v":1}`, wantErr: "unsupported version 1"},
		{name: "no salt", blob: `{"v":2,"iter":10}`, wantErr: "malformed"},
		{name: "short nonce", blob: `{"v":2,"iter":10,"salt":"c2FsdA==","nonce":"AA=="}`, wantErr: "nonce is 1 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := OpenCredentials([]byte(tt.blob), "pw")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Parallel()

	got, err := LoadCredentials(CredentialSource{})
	require.NoError(t, err)
	assert.False(t, got.Complete())

	blob, err := SealCredentials(Credentials{APIKey: "file-key", Secret: "file-secret", Passphrase: "file-pass"}, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "okx.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadCredentials(CredentialSource{
		Plain:    Credentials{APIKey: "env-key"},
		File:     path,
		Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "env-key", Secret: "file-secret", Passphrase: "file-pass"}, got)

	_, err = LoadCredentials(CredentialSource{File: filepath.Join(t.TempDir(), "missing.json"), Password: "pw"})
	assert.ErrorContains(t, err, "read credentials file")
}
