package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// GrafanaClient fetches active alerts from Grafana's Alertmanager-compatible
// API.
type GrafanaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGrafanaClient creates a new Grafana client. The timeout applies per
// HTTP call.
func NewGrafanaClient(baseURL, apiKey string, timeout time.Duration) *GrafanaClient {
	return &GrafanaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// gettableAlert is the Alertmanager v2 wire shape for one alert.
type gettableAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// FetchActive returns the currently firing alerts. Any transport, auth, or
// decoding failure is wrapped in a FetchError.
func (c *GrafanaClient) FetchActive(ctx context.Context) ([]GrafanaAlert, error) {
	url := c.baseURL + "/api/alertmanager/grafana/api/v2/alerts?active=true&silenced=false&inhibited=false"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: "grafana", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Source: "grafana", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			Source: "grafana",
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var wire []gettableAlert
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &FetchError{Source: "grafana", Err: fmt.Errorf("decoding response: %w", err)}
	}

	alerts := make([]GrafanaAlert, 0, len(wire))
	for i, a := range wire {
		if a.Fingerprint == "" {
			log.Printf("GrafanaClient: alert at index %d has no fingerprint, skipping", i)
			continue
		}
		alerts = append(alerts, GrafanaAlert{
			ID:           a.Fingerprint,
			Name:         a.Labels["alertname"],
			Cluster:      a.Labels["cluster"],
			Pod:          a.Labels["pod"],
			Severity:     a.Labels["severity"],
			Summary:      a.Annotations["summary"],
			Description:  a.Annotations["description"],
			StartsAt:     a.StartsAt,
			Labels:       a.Labels,
			GeneratorURL: a.GeneratorURL,
		})
	}

	log.Printf("GrafanaClient: fetched %d active alerts", len(alerts))
	return alerts, nil
}
