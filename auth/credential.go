package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	stderrors "errors"

	"github.com/rounds/go-bqdestination/lib/errors"
)

// A Credential is a Google service account JSON key.
type Credential struct {
	ProjectID         string `json:"project_id"`
	PrivateKeyID      string `json:"private_key_id"`
	PrivateKey        string `json:"private_key"`
	ClientEmail       string `json:"client_email"`
	ClientID          string `json:"client_id"`
	AuthURI           string `json:"auth_uri"`
	TokenURI          string `json:"token_uri"`
	ClientX509CertURL string `json:"client_x509_cert_url"`
}

// ParseCredential decodes a service account JSON key.
//
// The private_key, client_email and token_uri fields are required, and are
// checked in that order.
func ParseCredential(b []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errors.NewMalformedCredentialError("", err)
	}

	switch {
	case c.PrivateKey == "":
		return nil, errors.NewMalformedCredentialError("private_key", nil)
	case c.ClientEmail == "":
		return nil, errors.NewMalformedCredentialError("client_email", nil)
	case c.TokenURI == "":
		return nil, errors.NewMalformedCredentialError("token_uri", nil)
	}

	return &c, nil
}

// RSAPrivateKey parses the credential's PEM encoded private key.
// Both PKCS #8 and PKCS #1 encodings are accepted.
func (c *Credential) RSAPrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(c.PrivateKey))
	if block == nil {
		return nil, errors.NewInvalidKeyError(stderrors.New("no PEM data found"))
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		k, err1 := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err1 != nil {
			return nil, errors.NewInvalidKeyError(err)
		}
		return k, nil
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.NewInvalidKeyError(stderrors.New("private key is not an RSA key"))
	}
	return key, nil
}
