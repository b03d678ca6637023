package exchange

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
)

// jwtTTL is the validity window Coinbase accepts for CDP-signed tokens.
const jwtTTL = 2 * time.Minute

// RequestSigner mints per-request bearer tokens for authenticated API
// calls. Implementations must be safe for sequential reuse; the clients
// call SignRequest once per HTTP request.
type RequestSigner interface {
	SignRequest(method, host, path string) (string, error)
}

// cdpKeyFile is the on-disk shape of a Coinbase Developer Platform API
// key export.
type cdpKeyFile struct {
	Name       string `json:"name"`
	PrivateKey string `json:"privateKey"`
}

// CDPSigner signs Advanced Trade requests with an ES256 JWT derived from
// a CDP API key file.
type CDPSigner struct {
	keyName    string
	privateKey *ecdsa.PrivateKey

	now func() time.Time
}

// NewCDPSigner loads and parses the CDP key file at path. The file is the
// JSON document the Coinbase developer portal hands out, holding the key
// name and a PEM-encoded EC private key.
func NewCDPSigner(fs afero.Fs, path string) (*CDPSigner, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading CDP key file: %w", err)
	}

	var key cdpKeyFile
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("parsing CDP key file: %w", err)
	}
	if key.Name == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("CDP key file %s missing name or privateKey", path)
	}

	priv, err := jwt.ParseECPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing EC private key: %w", err)
	}

	return &CDPSigner{keyName: key.Name, privateKey: priv, now: time.Now}, nil
}

// SignRequest builds a short-lived ES256 token scoped to one method, host
// and path, per the CDP authentication scheme.
func (s *CDPSigner) SignRequest(method, host, path string) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub": s.keyName,
		"iss": "coinbase-cloud",
		"nbf": now.Unix(),
		"exp": now.Add(jwtTTL).Unix(),
		"uri": fmt.Sprintf("%s %s%s", method, host, path),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyName
	token.Header["nonce"] = nonce

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
