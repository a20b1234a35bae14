package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ Gateway = (*Client)(nil)

// Client posts JSON commands to a single endpoint URL.
type Client struct {
	rc  *resty.Client
	url string
}

func NewClient(url string, timeout time.Duration) *Client {
	rc := resty.New().SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	return &Client{rc: rc, url: url}
}

func (c *Client) SyncNow(ctx context.Context, token string) (Ack, error) {
	return c.do(ctx, SyncRequest(token))
}

func (c *Client) UpdateEvent(ctx context.Context, token, eventID string, payload EventPayload) (Ack, error) {
	return c.do(ctx, UpdateRequest(token, eventID, payload))
}

func (c *Client) DeleteEvent(ctx context.Context, token, eventID string) (Ack, error) {
	return c.do(ctx, DeleteRequest(token, eventID))
}

func (c *Client) Fallback(ctx context.Context, req Request) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", uuid.NewString()).
		SetDoNotParseResponse(true).
		SetBody(req).
		Post(c.url)
	if err != nil {
		log.Warn().Err(err).Str("action", string(req.Action)).Str("eventID", req.EventID).Msg("fallback request failed")
		return
	}
	resp.RawBody().Close()
}

func (c *Client) do(ctx context.Context, req Request) (Ack, error) {
	reqID := uuid.NewString()
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", reqID).
		SetBody(req).
		Post(c.url)
	if err != nil {
		return Ack{}, errors.Wrapf(ErrTransport, "%s: %s", req.Action, err)
	}
	log.Debug().
		Str("action", string(req.Action)).
		Str("eventID", req.EventID).
		Str("requestID", reqID).
		Int("status", resp.StatusCode()).
		Msg("gateway response")

	var ack Ack
	decodeErr := json.Unmarshal(resp.Body(), &ack)
	if resp.IsError() {
		if decodeErr != nil || ack.Error == "" {
			ack.Error = fmt.Sprintf("%s: %s", req.Action, resp.Status())
		}
		ack.OK = false
		return ack, nil
	}
	if decodeErr != nil {
		return Ack{}, errors.Wrapf(ErrTransport, "%s: unreadable response: %s", req.Action, decodeErr)
	}
	return ack, nil
}
