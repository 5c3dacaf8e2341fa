// Package chat implements the homeserver transport behind ports.RoomIntent.
// The HTTP client speaks the client-server API of a Matrix-compatible
// homeserver and impersonates virtual users through the application-service
// user_id query parameter.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/ports"
)

// Config carries the homeserver connection settings.
type Config struct {
	BaseURL     string
	AccessToken string
	BotUserID   string
	Timeout     time.Duration
}

// Client is a ports.RoomIntent backed by a Matrix-compatible homeserver.
type Client struct {
	cfg  Config
	http *http.Client

	mu         sync.Mutex
	registered map[string]struct{}
}

var _ ports.RoomIntent = (*Client)(nil)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: timeout},
		registered: make(map[string]struct{}),
	}
}

// SendMessage posts a text message into the room as the bridge bot.
func (c *Client) SendMessage(ctx context.Context, roomID string, content string) (string, error) {
	return c.sendEvent(ctx, "", roomID, "m.text", content)
}

// SendMessageAs posts on behalf of a virtual identity, registering it and
// pushing its display name on first contact.
func (c *Client) SendMessageAs(ctx context.Context, identity bridge.VirtualIdentity, roomID string, content string) (string, error) {
	if !bridge.IsBridgeOwnedKey(identity.Key) {
		return "", fmt.Errorf("%w: cannot impersonate %s", bridge.ErrInvalidOperation, identity.Key)
	}
	if err := c.ensureRegistered(ctx, identity); err != nil {
		return "", err
	}
	return c.sendEvent(ctx, identity.Key, roomID, "m.text", content)
}

// JoinRoom joins the bridge bot into a room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/join", url.PathEscape(roomID))
	return c.do(ctx, http.MethodPost, path, "", map[string]any{}, nil)
}

// GetProfile fetches the homeserver-side profile of an identity.
func (c *Client) GetProfile(ctx context.Context, identityKey string) (string, string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/profile/%s", url.PathEscape(identityKey))
	var out struct {
		DisplayName string `json:"displayname"`
		AvatarURL   string `json:"avatar_url"`
	}
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return "", "", err
	}
	return out.DisplayName, out.AvatarURL, nil
}

func (c *Client) sendEvent(ctx context.Context, asUser, roomID, msgtype, body string) (string, error) {
	txnID := uuid.NewString()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID), url.PathEscape(txnID))

	var out struct {
		EventID string `json:"event_id"`
	}
	payload := map[string]any{"msgtype": msgtype, "body": body}
	if err := c.do(ctx, http.MethodPut, path, asUser, payload, &out); err != nil {
		return "", err
	}
	if out.EventID == "" {
		return "", fmt.Errorf("homeserver returned no event id for room %s", roomID)
	}
	return out.EventID, nil
}

// ensureRegistered provisions the virtual user once per process lifetime.
// An already-taken username from an earlier run is not an error.
func (c *Client) ensureRegistered(ctx context.Context, identity bridge.VirtualIdentity) error {
	c.mu.Lock()
	_, ok := c.registered[identity.Key]
	c.mu.Unlock()
	if ok {
		return nil
	}

	localpart := strings.TrimPrefix(identity.Key, "@")
	if i := strings.IndexByte(localpart, ':'); i >= 0 {
		localpart = localpart[:i]
	}

	err := c.do(ctx, http.MethodPost, "/_matrix/client/v3/register", "", map[string]any{
		"type":     "m.login.application_service",
		"username": localpart,
	}, nil)
	if err != nil {
		var me *matrixError
		if !errors.As(err, &me) || me.Code != "M_USER_IN_USE" {
			return errs.Wrapf(err, "register %s", identity.Key)
		}
	}

	if identity.DisplayName != "" {
		path := fmt.Sprintf("/_matrix/client/v3/profile/%s/displayname", url.PathEscape(identity.Key))
		if err := c.do(ctx, http.MethodPut, path, identity.Key, map[string]any{"displayname": identity.DisplayName}, nil); err != nil {
			logging.Warn(ctx, "set displayname failed",
				slog.String("component", "chat"),
				slog.String("identity", identity.Key),
				slog.Any("err", errs.Loggable(err)))
		}
	}

	c.mu.Lock()
	c.registered[identity.Key] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, path, asUser string, in any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if asUser != "" {
		endpoint += "?user_id=" + url.QueryEscape(asUser)
	}

	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errs.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return errs.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errs.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		me := &matrixError{Status: resp.StatusCode}
		if json.Unmarshal(raw, me) != nil || me.Code == "" {
			me.Code = "M_UNKNOWN"
			me.Message = strings.TrimSpace(string(raw))
		}
		return me
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errs.Wrap(err, "decode response")
		}
	}
	return nil
}

// matrixError is the standard homeserver error envelope.
type matrixError struct {
	Status  int
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

func (e *matrixError) Error() string {
	return fmt.Sprintf("homeserver %d %s: %s", e.Status, e.Code, e.Message)
}
