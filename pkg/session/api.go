package session

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"chat-service/internal/models"
)

// APIClient consumes the chat HTTP endpoints: the channel directory and
// auth check served here, plus login/register served by the external
// SSO behind the same gateway.
type APIClient struct {
	baseURL string
	http    *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiEnvelope struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Token    string           `json:"token,omitempty"`
	User     *models.Identity `json:"user,omitempty"`
	Channels []models.Channel `json:"channels,omitempty"`
}

// Login exchanges credentials for a session token and identity.
func (c *APIClient) Login(ctx context.Context, email, password string) (string, models.Identity, error) {
	return c.authCall(ctx, "/api/chat/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account and returns its first session token.
func (c *APIClient) Register(ctx context.Context, username, email, password string) (string, models.Identity, error) {
	return c.authCall(ctx, "/api/chat/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

// Me validates a stored token and returns the identity it belongs to.
// Used to restore a session on load.
func (c *APIClient) Me(ctx context.Context, token string) (models.Identity, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/chat/auth/me", token, nil)
	if err != nil {
		return models.Identity{}, err
	}
	if env.User == nil {
		return models.Identity{}, fmt.Errorf("auth check: no user in response")
	}
	return *env.User, nil
}

// Channels fetches the channel directory.
func (c *APIClient) Channels(ctx context.Context) ([]models.Channel, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/chat/channels", "", nil)
	if err != nil {
		return nil, err
	}
	return env.Channels, nil
}

func (c *APIClient) authCall(ctx context.Context, path string, body map[string]string) (string, models.Identity, error) {
	env, err := c.do(ctx, http.MethodPost, path, "", body)
	if err != nil {
		return "", models.Identity{}, err
	}
	if env.Token == "" || env.User == nil {
		return "", models.Identity{}, fmt.Errorf("%s: incomplete response", path)
	}
	return env.Token, *env.User, nil
}

func (c *APIClient) do(ctx context.Context, method, path, token string, body any) (*apiEnvelope, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = resp.Status
		}
		return nil, fmt.Errorf("%s: %s", path, env.Error)
	}
	return &env, nil
}
