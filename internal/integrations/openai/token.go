package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"assistant-relay/internal/integrations/paramstore"
)

// TokenSource yields the provider API key.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is an API key supplied directly, e.g. from the environment.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	key := strings.TrimSpace(string(t))
	if key == "" {
		return "", errors.New("openai: API token is empty")
	}
	return key, nil
}

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// ParamToken reads the API key from a parameter store entry holding
// {"token":"..."}.
type ParamToken struct {
	Getter paramstore.Getter
	Name   string
}

func (p ParamToken) Token(ctx context.Context) (string, error) {
	return fetchAPIKeyFromParamStore(ctx, p.Getter, p.Name)
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter paramstore.Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
