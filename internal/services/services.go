// Package services probes the satellite backends the dashboard talks to.
package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Target is one satellite service. Probe requests go to BaseURL+Path.
type Target struct {
	Name    string
	BaseURL string
	Path    string
}

type ServiceStatus struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Up         bool   `json:"up"`
	StatusCode int    `json:"statusCode,omitempty"`
	LatencyMS  int64  `json:"latencyMs"`
	Error      string `json:"error,omitempty"`
}

type Status struct {
	Services  []ServiceStatus `json:"services"`
	AllUp     bool            `json:"allUp"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// DefaultTargets names the three satellites and the endpoint the dashboard
// polls on each.
func DefaultTargets(jsonScanner, toolManager, platesManager string) []Target {
	return []Target{
		{Name: "jsonScanner", BaseURL: jsonScanner, Path: "/api/status"},
		{Name: "toolManager", BaseURL: toolManager, Path: "/api/status"},
		{Name: "platesManager", BaseURL: platesManager, Path: "/api/plates"},
	}
}

type Prober struct {
	Targets []Target
	Timeout time.Duration
	Client  *http.Client
}

func NewProber(targets []Target, timeout time.Duration) *Prober {
	return &Prober{Targets: targets, Timeout: timeout, Client: &http.Client{}}
}

// Check probes every target concurrently. A target is up when it answers
// with a 2xx status inside the per-probe timeout; a target without a URL
// is reported down without a request.
func (p *Prober) Check(ctx context.Context) Status {
	results := make([]ServiceStatus, len(p.Targets))

	var g errgroup.Group
	for i, target := range p.Targets {
		g.Go(func() error {
			results[i] = p.probe(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	allUp := len(results) > 0
	for _, r := range results {
		allUp = allUp && r.Up
	}
	return Status{Services: results, AllUp: allUp, CheckedAt: time.Now().UTC()}
}

func (p *Prober) probe(ctx context.Context, target Target) ServiceStatus {
	status := ServiceStatus{Name: target.Name}
	if target.BaseURL == "" {
		status.Error = "not configured"
		return status
	}
	status.URL = strings.TrimRight(target.BaseURL, "/") + target.Path

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, status.URL, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	start := time.Now()
	resp, err := p.Client.Do(req)
	status.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp.Body.Close()

	status.StatusCode = resp.StatusCode
	status.Up = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !status.Up {
		status.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return status
}
