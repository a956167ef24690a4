package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"triage/internal/config"
	"triage/internal/logging"
	"triage/internal/review"
	"triage/internal/services"
)

const userAgent = "Triage-Go/0.1.0"

// Client talks to the review backend over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// New constructs a backend client from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	timeout := 15 * time.Second
	baseURL := ""
	token := ""
	if cfg != nil {
		if cfg.Backend.RequestTimeout > 0 {
			timeout = time.Duration(cfg.Backend.RequestTimeout) * time.Second
		}
		baseURL = cfg.Backend.BaseURL
		token = cfg.Backend.Token
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "backend"),
	}
}

// ListQueues fetches every queue visible in the given view.
func (c *Client) ListQueues(ctx context.Context, view review.ViewType) ([]review.Queue, error) {
	query := url.Values{"view": []string{string(view)}}
	var payload []queuePayload
	if err := c.get(ctx, "/api/queues", query, &payload); err != nil {
		return nil, err
	}
	queues := make([]review.Queue, 0, len(payload))
	for _, p := range payload {
		queues = append(queues, convertQueue(p))
	}
	return queues, nil
}

// GetQueue fetches a single queue by id.
func (c *Client) GetQueue(ctx context.Context, queueID string) (*review.Queue, error) {
	var payload queuePayload
	if err := c.get(ctx, "/api/queues/"+url.PathEscape(queueID), nil, &payload); err != nil {
		return nil, err
	}
	queue := convertQueue(payload)
	return &queue, nil
}

// ListItems fetches one page of queue items. An empty cursor requests
// the first page; the returned cursor is empty when no more pages
// remain.
func (c *Client) ListItems(ctx context.Context, queueID, cursor string, limit int) ([]review.WorkItem, string, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var payload itemsPagePayload
	if err := c.get(ctx, "/api/queues/"+url.PathEscape(queueID)+"/items", query, &payload); err != nil {
		return nil, "", err
	}
	items := make([]review.WorkItem, 0, len(payload.Items))
	for _, p := range payload.Items {
		items = append(items, convertItem(p))
	}
	return items, payload.NextCursor, nil
}

// NextReviewItem asks the server for the head-of-order item in a queue
// and locks it to the caller.
func (c *Client) NextReviewItem(ctx context.Context, queueID string) (*review.WorkItem, error) {
	var payload itemPayload
	if err := c.post(ctx, "/api/queues/"+url.PathEscape(queueID)+"/next", nil, &payload); err != nil {
		return nil, err
	}
	item := convertItem(payload)
	return &item, nil
}

// ClaimItem locks a specific item in a queue to the caller (free pick).
func (c *Client) ClaimItem(ctx context.Context, itemID, queueID string) (*review.WorkItem, error) {
	path := "/api/queues/" + url.PathEscape(queueID) + "/items/" + url.PathEscape(itemID) + "/claim"
	var payload itemPayload
	if err := c.post(ctx, path, nil, &payload); err != nil {
		return nil, err
	}
	item := convertItem(payload)
	return &item, nil
}

// ApplyLabel submits a labeling decision for a locked item. The server
// clears the lock on success.
func (c *Client) ApplyLabel(ctx context.Context, itemID string, label review.Label, notes string) error {
	body := labelRequest{Label: string(label), Notes: notes}
	return c.post(ctx, "/api/items/"+url.PathEscape(itemID)+"/label", body, nil)
}

// ListLocks fetches every lock owned by the calling user.
func (c *Client) ListLocks(ctx context.Context) ([]review.Lock, error) {
	var payload []lockPayload
	if err := c.get(ctx, "/api/locks", nil, &payload); err != nil {
		return nil, err
	}
	locks := make([]review.Lock, 0, len(payload))
	for _, p := range payload {
		locks = append(locks, convertLock(p))
	}
	return locks, nil
}

// ReleaseLock drops the caller's lock on an item. Releasing an item
// that is not locked is not an error.
func (c *Client) ReleaseLock(ctx context.Context, itemID string) error {
	err := c.do(ctx, http.MethodDelete, "/api/locks/"+url.PathEscape(itemID), nil, nil, nil)
	if err != nil && services.Kind(err) == "not_found" {
		return nil
	}
	return err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, "backend", method+" "+path, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return services.Wrap(services.ErrValidation, "backend", method+" "+path, "build request", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			logging.String(logging.FieldRequestID, requestID),
			logging.String("path", path),
			logging.Error(err),
		)
		return services.Wrap(services.ErrTransient, "backend", method+" "+path, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.classify(resp, method, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "backend", method+" "+path, "decode response", err)
	}
	return nil
}

func (c *Client) classify(resp *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload errorPayload
	_ = json.Unmarshal(raw, &payload)
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		message = fmt.Sprintf("status %d", resp.StatusCode)
	}
	op := method + " " + path

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "backend", op, message, nil)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusLocked:
		conflict := &ConflictError{}
		if payload.Conflict != nil {
			conflict.ItemID = payload.Conflict.ItemID
			conflict.OwnerID = payload.Conflict.LockedBy
			conflict.QueueID = payload.Conflict.QueueID
		}
		return conflict
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrPermissionDenied, "backend", op, message, nil)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return services.Wrap(services.ErrValidation, "backend", op, message, nil)
	default:
		return services.Wrap(services.ErrTransient, "backend", op, message, nil)
	}
}
