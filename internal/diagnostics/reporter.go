// Package diagnostics reports unclassified server exceptions out of band.
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bhandras/noderunner/pkg/logger"
	"github.com/google/uuid"
)

const (
	// ExceptionType is the type tag carried by every report.
	ExceptionType = "C9 SERVER EXCEPTION"
	// contentType is the request content type.
	contentType = "application/json"
	// defaultTimeout bounds a single report delivery.
	defaultTimeout = 10 * time.Second
)

// Config describes where and how reports are delivered.
type Config struct {
	// Endpoint is the URL reports are POSTed to.
	Endpoint string
	// ClientID identifies this controller in the agent string. A random id is
	// generated when empty.
	ClientID string
	// Version is included in the agent string.
	Version string
	// Timeout bounds each delivery. Defaults to 10s.
	Timeout time.Duration
}

// Exception is the report payload.
type Exception struct {
	Agent   string `json:"agent"`
	Type    string `json:"type"`
	Code    *int   `json:"code,omitempty"`
	Message string `json:"message"`
}

// Reporter POSTs one report per exception. ReportException never blocks the
// caller.
type Reporter struct {
	endpoint string
	agent    string
	timeout  time.Duration

	client *http.Client
	wg     sync.WaitGroup

	mu        sync.Mutex
	lastError error
}

// NewReporter creates a new reporter using the supplied config.
func NewReporter(cfg Config) (*Reporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("diagnostics endpoint is required")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Reporter{
		endpoint: cfg.Endpoint,
		agent:    fmt.Sprintf("noderunner/%s (%s; %s) client/%s", version, runtime.GOOS, runtime.GOARCH, clientID),
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// ReportException delivers one report in the background.
func (r *Reporter) ReportException(code *int, message string) {
	exc := Exception{
		Agent:   r.agent,
		Type:    ExceptionType,
		Code:    code,
		Message: message,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.send(ctx, exc); err != nil {
			logger.Warnf("diagnostics: %v", err)
			r.setLastError(err)
			return
		}
		r.setLastError(nil)
	}()
}

// Wait blocks until in-flight reports have finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}

// LastError returns the most recent send error, if any.
func (r *Reporter) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// Agent returns the agent string attached to every report.
func (r *Reporter) Agent() string {
	return r.agent
}

func (r *Reporter) setLastError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = err
}

// send performs the HTTP request.
func (r *Reporter) send(ctx context.Context, exc Exception) error {
	body, err := json.Marshal(exc)
	if err != nil {
		return fmt.Errorf("diagnostics encode failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("diagnostics request build failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("diagnostics request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("diagnostics response read failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("diagnostics response %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}
