// Package auth builds OAuth2 token requests for Google service accounts,
// using signed JWT assertions (RFC 7523).
//
// No request is executed here: the returned TokenRequest is a descriptor,
// to be sent by the caller.
package auth

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/jws"

	"github.com/rounds/go-bqdestination/lib"
	"github.com/rounds/go-bqdestination/lib/errors"
)

const (
	// Scope is the OAuth2 scope requested by assertions.
	Scope = "https://www.googleapis.com/auth/bigquery.insertdata"

	// TokenURL is Google's OAuth2 token endpoint.
	TokenURL = "https://oauth2.googleapis.com/token"

	// GrantType is the JWT bearer grant type.
	GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// TokenDuration is both the assertion's lifetime, and the validity of the
	// access token it is exchanged for.
	TokenDuration = 3600 * time.Second

	// TokenProperty is the token response JSON field holding the access token,
	// and the setting name it should be stored under.
	TokenProperty = "access_token"
)

// Claims are the JWT claims of a service account assertion.
type Claims struct {
	Iss   string
	Scope string
	Aud   string
}

// NewClaims returns the assertion claims for c.
// The audience is always the credential's token URI.
func NewClaims(c *Credential) Claims {
	return Claims{
		Iss:   c.ClientEmail,
		Scope: Scope,
		Aud:   c.TokenURI,
	}
}

// A TokenRequest is an access token exchange request descriptor.
type TokenRequest struct {
	lib.Request

	// TokenDuration is how long the returned access token is valid for.
	TokenDuration time.Duration

	// ResponseTokenPropertyName is the response JSON field holding the token.
	ResponseTokenPropertyName string

	// ComponentTokenSettingName is the setting the token should be stored
	// under, for later insert requests.
	ComponentTokenSettingName string
}

// A Builder builds token requests from service account JSON keys.
//
// A Builder holds no state between calls and is safe for concurrent use.
type Builder struct {
	now func() time.Time
}

// New returns a new Builder.
func New(options ...OptionFunc) (*Builder, error) {
	b := Builder{now: time.Now}

	// Override defaults with options if given.
	for _, option := range options {
		if err := option(&b); err != nil {
			return nil, err
		}
	}

	return &b, nil
}

// BuildTokenRequest builds a token request from a service account JSON key,
// using the current time.
func BuildTokenRequest(credentialJSON []byte) (*TokenRequest, error) {
	return (&Builder{now: time.Now}).BuildTokenRequest(credentialJSON)
}

// BuildTokenRequest parses credentialJSON, signs an assertion with its private
// key, and returns the request exchanging this assertion for an access token.
func (b *Builder) BuildTokenRequest(credentialJSON []byte) (*TokenRequest, error) {
	c, err := ParseCredential(credentialJSON)
	if err != nil {
		return nil, err
	}

	assertion, err := b.Sign(c)
	if err != nil {
		return nil, err
	}

	return &TokenRequest{
		Request: lib.Request{
			Method: http.MethodPost,
			URL:    TokenURL,
			Headers: []lib.Header{
				{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
			},
			Body: EncodeForm(assertion),
		},
		TokenDuration:             TokenDuration,
		ResponseTokenPropertyName: TokenProperty,
		ComponentTokenSettingName: TokenProperty,
	}, nil
}

// Sign returns a RS256 signed JWT assertion for c,
// issued now and expiring after TokenDuration.
func (b *Builder) Sign(c *Credential) (string, error) {
	key, err := c.RSAPrivateKey()
	if err != nil {
		return "", err
	}

	claims := NewClaims(c)
	iat := b.now()

	assertion, err := jws.Encode(
		&jws.Header{Algorithm: "RS256", Typ: "JWT", KeyID: c.PrivateKeyID},
		&jws.ClaimSet{
			Iss:   claims.Iss,
			Scope: claims.Scope,
			Aud:   claims.Aud,
			Iat:   iat.Unix(),
			Exp:   iat.Add(TokenDuration).Unix(),
		},
		key)
	if err != nil {
		return "", errors.NewSigningError(err)
	}

	return assertion, nil
}

// EncodeForm returns the form encoded token request body for assertion.
//
// url.Values sorts its keys, so the body is assembled by hand to keep
// grant_type first.
func EncodeForm(assertion string) string {
	return "grant_type=" + url.QueryEscape(GrantType) +
		"&assertion=" + url.QueryEscape(assertion)
}
