package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/rounds/go-bqdestination/lib/errors"
)

// Exchange sends a token request, and returns the access token found in its
// response under req.ResponseTokenPropertyName.
// The token expires TokenDuration after being received.
//
// Non-2xx responses are returned as *googleapi.Error.
func (b *Builder) Exchange(ctx context.Context, client *http.Client, req *TokenRequest) (*oauth2.Token, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer googleapi.CloseBody(res)

	if err := googleapi.CheckResponse(res); err != nil {
		return nil, err
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, errors.NewTokenResponseError(req.ResponseTokenPropertyName, err)
	}

	token, _ := body[req.ResponseTokenPropertyName].(string)
	if token == "" {
		return nil, errors.NewTokenResponseError(req.ResponseTokenPropertyName, nil)
	}

	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      b.now().Add(req.TokenDuration),
	}, nil
}

// TokenSource returns an oauth2.TokenSource exchanging a new assertion for
// an access token whenever the previous token has expired.
func (b *Builder) TokenSource(ctx context.Context, client *http.Client, credentialJSON []byte) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &tokenSource{
		ctx:            ctx,
		client:         client,
		builder:        b,
		credentialJSON: credentialJSON,
	})
}

type tokenSource struct {
	ctx            context.Context
	client         *http.Client
	builder        *Builder
	credentialJSON []byte
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	req, err := ts.builder.BuildTokenRequest(ts.credentialJSON)
	if err != nil {
		return nil, err
	}
	return ts.builder.Exchange(ts.ctx, ts.client, req)
}
