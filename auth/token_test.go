package auth

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jws"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"

	"github.com/rounds/go-bqdestination/lib/errors"
)

// transport is a mock http.Transport, and implements http.RoundTripper
// interface.
type transport func(*http.Request) (*http.Response, error)

func (t transport) RoundTrip(req *http.Request) (*http.Response, error) { return t(req) }

func response(req *http.Request, code int, body string) *http.Response {
	return &http.Response{
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString(body))}
}

// TestExchange tests a token request is sent as built, and its response's
// access token is returned.
func TestExchange(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)

	b := fixedBuilder(t)
	req, err := b.BuildTokenRequest(credentialJSON(t, nil))
	require.NoError(err)

	client := &http.Client{Transport: transport(func(r *http.Request) (*http.Response, error) {
		assert.Equal("POST", r.Method)
		assert.Equal(TokenURL, r.URL.String())
		assert.Equal("application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(req.Body, string(body))

		return response(r, 200, `{"access_token": "ya29.token", "expires_in": 3599, "token_type": "Bearer"}`), nil
	})}

	token, err := b.Exchange(context.Background(), client, req)
	require.NoError(err)
	assert.Equal("ya29.token", token.AccessToken)
	assert.Equal("Bearer", token.Type())
	assert.Equal(issuedAt.Add(3600*time.Second), token.Expiry)
}

// TestExchangeErrors tests failed and malformed token responses.
func TestExchangeErrors(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)

	b := fixedBuilder(t)
	req, err := b.BuildTokenRequest(credentialJSON(t, nil))
	require.NoError(err)

	exchange := func(code int, body string) error {
		client := &http.Client{Transport: transport(func(r *http.Request) (*http.Response, error) {
			return response(r, code, body), nil
		})}
		_, err := b.Exchange(context.Background(), client, req)
		return err
	}

	err = exchange(400, `{"error": "invalid_grant", "error_description": "Invalid JWT Signature."}`)
	var gerr *googleapi.Error
	if assert.True(stderrors.As(err, &gerr)) {
		assert.Equal(400, gerr.Code)
	}

	var terr *errors.TokenResponseError
	for _, body := range []string{`{}`, `{"access_token": ""}`, `{"access_token": 1}`, `{"id_token": "x"}`} {
		err = exchange(200, body)
		if assert.True(stderrors.As(err, &terr), body) {
			assert.Equal("access_token", terr.Property)
			assert.EqualError(err, `token response is missing "access_token"`)
		}
	}

	err = exchange(200, `not json`)
	if assert.True(stderrors.As(err, &terr)) {
		assert.Error(terr.Err)
	}

	// Transport errors are returned as is.
	client := &http.Client{Transport: transport(func(*http.Request) (*http.Response, error) {
		return nil, stderrors.New("connection refused")
	})}
	_, err = b.Exchange(context.Background(), client, req)
	var uerr *url.Error
	assert.True(stderrors.As(err, &uerr))
}

// TestTokenSource tests tokens are reused until they expire.
func TestTokenSource(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)

	var calls int32
	client := &http.Client{Transport: transport(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return response(r, 200, `{"access_token": "ya29.token"}`), nil
	})}

	b, err := New()
	require.NoError(err)
	ts := b.TokenSource(context.Background(), client, credentialJSON(t, nil))

	for i := 0; i < 3; i++ {
		token, err := ts.Token()
		require.NoError(err)
		assert.Equal("ya29.token", token.AccessToken)
	}
	assert.Equal(int32(1), atomic.LoadInt32(&calls))

	// Build errors are returned without sending anything.
	ts = b.TokenSource(context.Background(), client, []byte("{"))
	_, err = ts.Token()
	var merr *errors.MalformedCredentialError
	assert.True(stderrors.As(err, &merr))
	assert.Equal(int32(1), atomic.LoadInt32(&calls))
}

// TestTokenSourceTimeout tests a hung token endpoint fails once the client
// timeout expires.
func TestTokenSourceTimeout(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)

	client := &http.Client{
		Timeout: 50 * time.Millisecond,
		Transport: transport(func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, r.Context().Err()
		})}

	b, err := New()
	require.NoError(err)
	ts := b.TokenSource(context.Background(), client, credentialJSON(t, nil))

	done := make(chan error, 1)
	go func() {
		_, err := ts.Token()
		done <- err
	}()

	select {
	case err := <-done:
		var uerr *url.Error
		if assert.True(stderrors.As(err, &uerr)) {
			assert.True(uerr.Timeout())
		}
	case <-time.After(5 * time.Second):
		require.Fail("Token() didn't return after the client timeout")
	}
}

// TestTokenURL tests requests are sent to Google's token endpoint.
func TestTokenURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, google.Endpoint.TokenURL, TokenURL)
}

// TestMatchesJWTConfig tests assertions carry the same claims as the ones
// sent by a jwt.Config for the same service account.
func TestMatchesJWTConfig(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)

	var body string
	client := &http.Client{Transport: transport(func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		return response(r, 200, `{"access_token": "ya29.token", "token_type": "Bearer", "expires_in": 3600}`), nil
	})}

	conf := &jwt.Config{
		Email:        "streamer@project-id.iam.gserviceaccount.com",
		PrivateKey:   []byte(pkcs8PEM(t, testKey())),
		PrivateKeyID: "key-id",
		Scopes:       []string{Scope},
		TokenURL:     "https://oauth2.googleapis.com/token",
	}
	_, err := conf.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, client)).Token()
	require.NoError(err)

	theirs, err := url.ParseQuery(body)
	require.NoError(err)

	req, err := fixedBuilder(t).BuildTokenRequest(credentialJSON(t, nil))
	require.NoError(err)
	ours, err := url.ParseQuery(req.Body)
	require.NoError(err)

	assert.Equal(theirs.Get("grant_type"), ours.Get("grant_type"))

	want, err := jws.Decode(theirs.Get("assertion"))
	require.NoError(err)
	got, err := jws.Decode(ours.Get("assertion"))
	require.NoError(err)

	assert.Equal(want.Iss, got.Iss)
	assert.Equal(want.Scope, got.Scope)
	assert.Equal(want.Aud, got.Aud)
	assert.Equal(want.Exp-want.Iat, got.Exp-got.Iat)
}
