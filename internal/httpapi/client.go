package httpapi

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/store"
)

// APIError is a non-2xx response decoded by the Client.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to a Server.
type Client struct {
	client *resty.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
	}
}

// Health checks the server and returns its queue depth.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/health", nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenAccount opens an account.
func (c *Client) OpenAccount(ctx context.Context, req OpenAccountRequest) (*bank.AccountView, error) {
	var resp bank.AccountView
	if err := c.do(ctx, "POST", "/accounts", &req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Account fetches an account.
func (c *Client) Account(ctx context.Context, id string) (*bank.AccountView, error) {
	var resp bank.AccountView
	if err := c.do(ctx, "GET", "/accounts/{id}", nil, &resp, map[string]string{"id": id}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Collect starts a collect into account id.
func (c *Client) Collect(ctx context.Context, id string, req CollectRequest) (*Accepted, error) {
	var resp Accepted
	if err := c.do(ctx, "POST", "/accounts/{id}/collections", &req, &resp, map[string]string{"id": id}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transfer starts a transfer.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*Accepted, error) {
	var resp Accepted
	if err := c.do(ctx, "POST", "/transfers", &req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TransferStatus fetches a transfer.
func (c *Client) TransferStatus(ctx context.Context, id string) (*bank.TransferView, error) {
	var resp bank.TransferView
	if err := c.do(ctx, "GET", "/transfers/{id}", nil, &resp, map[string]string{"id": id}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Freeze starts a freeze of account id.
func (c *Client) Freeze(ctx context.Context, id string, req FreezeRequest) (*Accepted, error) {
	var resp Accepted
	if err := c.do(ctx, "POST", "/accounts/{id}/freezes", &req, &resp, map[string]string{"id": id}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FreezeStatus fetches a freeze.
func (c *Client) FreezeStatus(ctx context.Context, id string) (*bank.FreezeView, error) {
	var resp bank.FreezeView
	if err := c.do(ctx, "GET", "/freezes/{id}", nil, &resp, map[string]string{"id": id}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History fetches the stored records of stream.
func (c *Client) History(ctx context.Context, stream store.Stream) ([]HistoryEntry, error) {
	var resp []HistoryEntry
	params := map[string]string{"type": stream.Type, "id": stream.ID}
	if err := c.do(ctx, "GET", "/streams/{type}/{id}", nil, &resp, params); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, params map[string]string) error {
	var apiErr ErrorResponse
	req := c.client.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr).
		SetPathParams(params)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.String()
		}
		return &APIError{Status: resp.StatusCode(), Code: apiErr.Code, Message: msg}
	}
	return nil
}
