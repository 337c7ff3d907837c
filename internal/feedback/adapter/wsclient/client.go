// Package wsclient talks to the dev store over HTTP and WebSocket. One Client
// serves as the RemoteStore, the IdentityProvider and the ProfileRepository of
// the remote backend; they share the bearer token obtained at sign-in.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	authmodel "feedback-sync/internal/auth/domain/model"
	"feedback-sync/internal/feedback/adapter/wire"
	sessionmodel "feedback-sync/internal/session/model"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/metrics"

	"github.com/gofiber/fiber/v2"
)

const defaultTimeout = 10 * time.Second

// Client is a remote store client.
type Client struct {
	baseURL string
	wsURL   string
	timeout time.Duration
	logger  logger.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout bounds every REST call and the listen handshake.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records remote call durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the dev store at baseURL (for example
// http://localhost:8090).
func New(baseURL string, log logger.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store url must be http or https, got %q", baseURL)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	ws := *u
	ws.Scheme = "ws"
	if u.Scheme == "https" {
		ws.Scheme = "wss"
	}
	c := &Client{
		baseURL: u.String() + "/v1",
		wsURL:   ws.String() + "/v1/listen",
		timeout: defaultTimeout,
		logger:  log.WithComponent("wsclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the current bearer token, empty when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SignIn implements repository.IdentityProvider.
func (c *Client) SignIn(ctx context.Context, email, password string) (*authmodel.Identity, error) {
	return c.authenticate(ctx, "signin", email, password)
}

// SignUp implements repository.IdentityProvider. The new account is signed in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*authmodel.Identity, error) {
	return c.authenticate(ctx, "signup", email, password)
}

func (c *Client) authenticate(ctx context.Context, op, email, password string) (*authmodel.Identity, error) {
	var identity authmodel.Identity
	err := c.call(ctx, op, fiber.MethodPost, "/auth/"+op, wire.Credentials{Email: email, Password: password}, &identity)
	if err != nil {
		return nil, err
	}
	c.setToken(identity.Token)
	return &identity, nil
}

// SignOut implements repository.IdentityProvider. The local token is dropped
// even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	defer c.setToken("")
	if c.Token() == "" {
		return nil
	}
	return c.call(ctx, "signout", fiber.MethodPost, "/auth/signout", nil, nil)
}

// GetProfile implements repository.ProfileRepository.
func (c *Client) GetProfile(ctx context.Context, uid string) (*sessionmodel.Profile, error) {
	var profile sessionmodel.Profile
	if err := c.call(ctx, "get_profile", fiber.MethodGet, "/profiles/"+url.PathEscape(uid), nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveProfile implements repository.ProfileRepository.
func (c *Client) SaveProfile(ctx context.Context, profile *sessionmodel.Profile) error {
	if profile == nil {
		return apperrors.NewValidationError("profile is required")
	}
	return c.call(ctx, "save_profile", fiber.MethodPut, "/profiles/"+url.PathEscape(profile.Identity), profile, nil)
}

// Write implements repository.RemoteStore. Server timestamp sentinels travel
// as null plus a field list.
func (c *Client) Write(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	encoded, fields := wire.EncodeData(data)
	var out wire.WriteResponse
	err := c.call(ctx, "write", fiber.MethodPost, "/collections/"+url.PathEscape(collection)+"/documents",
		wire.WriteRequest{Data: encoded, ServerTimestamps: fields}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// call performs one JSON request with fiber's client agent. Non-2xx answers
// decode into the AppError the server sent.
func (c *Client) call(ctx context.Context, op, method, path string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveRemoteCall(op, start, err) }()

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return apperrors.NewTransportError("deadline exceeded before " + op)
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return apperrors.NewTransportError("invalid request").WithCause(err)
	}
	agent.Timeout(timeout)
	if token := c.Token(); token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		agent.JSON(body)
	}

	status, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		c.logger.WithContext(ctx).Warnf("%s %s failed: %v", method, path, errs[0])
		return apperrors.NewTransportError(op + " failed").WithCause(errs[0])
	}
	if status < 200 || status >= 300 {
		return wire.DecodeError(status, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperrors.NewTransportError("invalid response").WithCause(err)
	}
	return nil
}
