package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned when the election service has no such election.
var ErrNotFound = errors.New("election not found")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Get fetches one election by id and adapts the response to a Config.
func (c *Client) Get(ctx context.Context, electionID int) (*Config, error) {
	body, err := c.fetch(ctx, fmt.Sprintf("%s/elections/%d", c.baseURL, electionID))
	if err != nil {
		return nil, err
	}
	return Adapt(body)
}

// ListEnded fetches elections whose end date has passed but which have
// not been settled yet. The election-end processor drives off this.
func (c *Client) ListEnded(ctx context.Context) ([]*Config, error) {
	body, err := c.fetch(ctx, c.baseURL+"/elections/ended")
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data struct {
			Elections []json.RawMessage `json:"elections"`
		} `json:"data"`
		Elections []json.RawMessage `json:"elections"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode ended elections: %w", err)
	}
	raw := envelope.Data.Elections
	if raw == nil {
		raw = envelope.Elections
	}
	configs := make([]*Config, 0, len(raw))
	for _, item := range raw {
		cfg, err := Adapt(item)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get election data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("election service returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
