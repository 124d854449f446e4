// Package remote talks to the authoritative data service over REST and
// classifies its failures as retryable or not.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"field-sync-service/internal/config"
	"field-sync-service/internal/entity"
	"field-sync-service/internal/logger"
)

// Service is the remote data service the engine depends on.
type Service interface {
	CreateEntity(ctx context.Context, payload entity.Entity) (entity.Entity, error)
	UpdateEntity(ctx context.Context, id string, payload entity.Entity) (entity.Entity, error)
}

// envelope is the backend's uniform response shape.
type envelope struct {
	Success bool              `json:"success"`
	Data    entity.Entity     `json:"data"`
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

// maxErrorBody bounds how much of a failed response is read for the message.
const maxErrorBody = 64 << 10

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL     string
	clientsPath string
	authToken   string
	http        *http.Client
}

// NewClient builds a client for cfg. When httpClient is nil a client with
// cfg's timeout is used.
func NewClient(cfg config.RemoteConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.GetTimeout()}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clientsPath: "/" + strings.Trim(cfg.ClientsPath, "/"),
		authToken:   cfg.AuthToken,
		http:        httpClient,
	}
}

func (c *Client) CreateEntity(ctx context.Context, payload entity.Entity) (entity.Entity, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+c.clientsPath, payload)
}

func (c *Client) UpdateEntity(ctx context.Context, id string, payload entity.Entity) (entity.Entity, error) {
	if id == "" {
		return nil, &Error{Message: "missing entity id for update", Err: ErrRejected}
	}
	return c.do(ctx, http.MethodPut, c.baseURL+c.clientsPath+"/"+url.PathEscape(id), payload)
}

func (c *Client) do(ctx context.Context, method, target string, payload entity.Entity) (entity.Entity, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("remote: encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &Error{Message: err.Error(), Err: errors.Join(ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: err.Error(), Err: ErrUnavailable}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := firstNonEmpty(env.Error, env.Message, http.StatusText(resp.StatusCode))
		logger.Log.Debug("Remote call failed",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Fields:     env.Errors,
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	if decodeErr != nil {
		// A 2xx is an acknowledgement even without a readable envelope.
		logger.Log.Warn("Remote acknowledged without a JSON body",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(raw)),
		)
		return acknowledged(payload, resp.Header.Get("Location")), nil
	}
	if !env.Success {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    firstNonEmpty(env.Error, env.Message, "request refused"),
			Fields:     env.Errors,
			Err:        ErrRejected,
		}
	}

	return env.Data, nil
}

// acknowledged echoes payload, taking the id from location when the server
// sent one.
func acknowledged(payload entity.Entity, location string) entity.Entity {
	out := payload.Clone()
	if location == "" {
		return out
	}
	if u, err := url.Parse(location); err == nil {
		if id := path.Base(u.Path); id != "" && id != "/" && id != "." {
			out[entity.FieldID] = id
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
