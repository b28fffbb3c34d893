package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TokenFetcher obtains a fresh single-use socket token. A new fetch happens
// on every connection attempt; tokens are never reused across attempts.
type TokenFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// TokenFetcherFunc adapts a function to the TokenFetcher interface.
type TokenFetcherFunc func(ctx context.Context) (string, error)

// Fetch satisfies TokenFetcher.
func (f TokenFetcherFunc) Fetch(ctx context.Context) (string, error) {
	return f(ctx)
}

// HTTPTokenFetcher fetches tokens from the session-token endpoint using the
// caller's existing HTTP session.
type HTTPTokenFetcher struct {
	// URL is the absolute token endpoint, e.g.
	// "https://app.example.com/api/auth/session-token".
	URL string
	// Client defaults to http.DefaultClient; supply one carrying the app's
	// session cookies or auth headers.
	Client *http.Client
	// Decorate, when set, amends each request (bearer headers etc.).
	Decorate func(req *http.Request)
}

var _ TokenFetcher = (*HTTPTokenFetcher)(nil)

// Fetch requests one token.
func (f *HTTPTokenFetcher) Fetch(ctx context.Context) (string, error) {
	if f.URL == "" {
		return "", errors.New("client: token endpoint URL is required")
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("client: build token request: %w", err)
	}
	if f.Decorate != nil {
		f.Decorate(req)
	}

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("client: fetch token: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("client: token endpoint returned %d", res.StatusCode)
	}
	var body struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("client: decode token response: %w", err)
	}
	if body.SessionToken == "" {
		return "", errors.New("client: empty session token")
	}
	return body.SessionToken, nil
}
