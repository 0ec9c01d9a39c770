package connectors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// OpsClient talks to the JSM Ops alerts API. The Atlassian cloud ID is
// discovered lazily from the tenant and cached for the client's lifetime.
type OpsClient struct {
	baseURL    string // e.g. https://api.atlassian.com/jsm/ops/api
	tenantURL  string // e.g. https://example.atlassian.net
	authHeader string
	httpClient *http.Client

	mu      sync.Mutex
	cloudID string

	// pageSize caps a single /v1/alerts request; FetchAll pages up to the
	// caller's limit.
	pageSize int
}

// OpsClientOptions configures an OpsClient.
type OpsClientOptions struct {
	BaseURL   string
	TenantURL string
	UserEmail string
	APIToken  string
	CloudID   string // skip discovery when already known
	Timeout   time.Duration
}

// NewOpsClient creates a new JSM Ops client.
func NewOpsClient(opts OpsClientOptions) *OpsClient {
	auth := base64.StdEncoding.EncodeToString([]byte(opts.UserEmail + ":" + opts.APIToken))
	return &OpsClient{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		tenantURL:  strings.TrimSuffix(opts.TenantURL, "/"),
		authHeader: "Basic " + auth,
		cloudID:    opts.CloudID,
		pageSize:   100,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// getCloudID returns the cached Atlassian cloud ID, discovering it from the
// tenant on first use.
func (c *OpsClient) getCloudID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cloudID != "" {
		return c.cloudID, nil
	}

	var info struct {
		CloudID string `json:"cloudId"`
	}
	if err := c.getJSON(ctx, c.tenantURL+"/_edge/tenant_info", &info); err != nil {
		return "", fmt.Errorf("retrieving cloud ID: %w", err)
	}
	if info.CloudID == "" {
		return "", fmt.Errorf("cloud ID not found in tenant info")
	}

	c.cloudID = info.CloudID
	log.Printf("OpsClient: retrieved cloud ID %s", c.cloudID)
	return c.cloudID, nil
}

// FetchAll returns up to limit alerts, newest first. Failures are wrapped in
// a FetchError.
func (c *OpsClient) FetchAll(ctx context.Context, limit int) ([]OpsAlert, error) {
	cloudID, err := c.getCloudID(ctx)
	if err != nil {
		return nil, &FetchError{Source: "jsm-ops", Err: err}
	}

	var alerts []OpsAlert
	for offset := 0; offset < limit; offset += c.pageSize {
		size := c.pageSize
		if remaining := limit - offset; remaining < size {
			size = remaining
		}

		url := fmt.Sprintf("%s/%s/v1/alerts?limit=%d&offset=%d&sort=createdAt&order=desc",
			c.baseURL, cloudID, size, offset)

		var page struct {
			Values []OpsAlert `json:"values"`
		}
		if err := c.getJSON(ctx, url, &page); err != nil {
			return nil, &FetchError{Source: "jsm-ops", Err: err}
		}

		alerts = append(alerts, page.Values...)
		if len(page.Values) < size {
			break // last page
		}
	}

	log.Printf("OpsClient: fetched %d ops alerts", len(alerts))
	return alerts, nil
}

// Acknowledge acknowledges an ops alert. Best-effort: failures are returned
// as RemoteActionError for the caller to log.
func (c *OpsClient) Acknowledge(ctx context.Context, alertID, note, actor string) error {
	if err := c.alertAction(ctx, alertID, "acknowledge", note, actor); err != nil {
		return &RemoteActionError{Action: "acknowledge", AlertID: alertID, Err: err}
	}
	log.Printf("OpsClient: acknowledged ops alert %s", alertID)
	return nil
}

// Close closes an ops alert. Best-effort, same contract as Acknowledge.
func (c *OpsClient) Close(ctx context.Context, alertID, note, actor string) error {
	if err := c.alertAction(ctx, alertID, "close", note, actor); err != nil {
		return &RemoteActionError{Action: "close", AlertID: alertID, Err: err}
	}
	log.Printf("OpsClient: closed ops alert %s", alertID)
	return nil
}

// alertAction posts an action (acknowledge/close) against one alert.
func (c *OpsClient) alertAction(ctx context.Context, alertID, action, note, actor string) error {
	cloudID, err := c.getCloudID(ctx)
	if err != nil {
		return err
	}

	payload := map[string]string{}
	if note != "" {
		payload["note"] = note
	}
	if actor != "" {
		payload["user"] = actor
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/v1/alerts/%s/%s", c.baseURL, cloudID, alertID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *OpsClient) getJSON(ctx context.Context, url string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}
