// Package loki pushes security alerts to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// Loki label values are free-form, but we keep them to a safe charset.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// alertFields are the parts of a notify.Alert that become labels or the timestamp.
type alertFields struct {
	Action       string `json:"action"`
	Severity     string `json:"severity"`
	DepartmentID string `json:"departmentId"`
	CreatedAt    string `json:"createdAt"`
}

// Client pushes lines to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100). job is the stream's job label.
func NewClient(baseURL, job string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("loki: base URL is empty")
	}
	if job == "" {
		job = "deptreports"
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		job:     job,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// PushAlertJSON parses an alert (Kafka message value), extracts timestamp and labels, and pushes
// the raw JSON as the log line. An unparsable value is pushed with the current time and no extra labels.
func (c *Client) PushAlertJSON(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var f alertFields
	if err := json.Unmarshal(raw, &f); err == nil {
		if f.Action != "" {
			labels["action"] = f.Action
		}
		if f.Severity != "" {
			labels["severity"] = f.Severity
		}
		if f.DepartmentID != "" {
			labels["department_id"] = f.DepartmentID
		}
		if t, err := time.Parse(time.RFC3339Nano, f.CreatedAt); err == nil {
			ts = t
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends a single log line. It returns an error when the request fails or Loki answers non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = c.job
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// StatusError is a non-2xx answer from Loki.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "loki: push returned " + e.Status }

// Retryable reports whether the push may succeed later. Client errors other than 429 are permanent.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}
