// Package slackapi is a minimal Slack Web API client covering the calls the
// bot needs, with Socket Mode support and retry on 429/5xx.
package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://slack.com/api"

type Client struct {
	http     *http.Client
	baseURL  string
	botToken string
	appToken string
}

// New builds a client for the Slack Web API. The bot token is required; the
// app token may be empty when Socket Mode is not used.
func New(httpClient *http.Client, baseURL, botToken, appToken string) (*Client, error) {
	botToken = strings.TrimSpace(botToken)
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/")); baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: botToken,
		appToken: strings.TrimSpace(appToken),
	}, nil
}

// BotToken exposes the bot token for callers that must authorize direct file
// downloads (files.url_private_download).
func (c *Client) BotToken() string {
	if c == nil {
		return ""
	}
	return c.botToken
}

type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// callJSON posts payload to path, retrying on 429 and 5xx, and unmarshals the
// response body into out. The response's ok/error envelope is checked here.
func (c *Client) callJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("slack api is not initialized")
	}
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, httpStatus, headers, err := c.do(ctx, method, path, query, payload)
		if err != nil {
			lastErr = err
		} else if httpStatus < 200 || httpStatus >= 300 {
			lastErr = fmt.Errorf("slack %s http %d", path, httpStatus)
		} else {
			var env apiEnvelope
			if parseErr := json.Unmarshal(body, &env); parseErr != nil {
				lastErr = parseErr
			} else if !env.OK {
				code := strings.TrimSpace(env.Error)
				if code == "" {
					code = "unknown_error"
				}
				return &APIError{Method: path, Code: code}
			} else {
				if out == nil {
					return nil
				}
				return json.Unmarshal(body, out)
			}
		}
		if attempt >= maxAttempts {
			break
		}
		wait, retryable := retryDelay(httpStatus, headers, attempt)
		if !retryable {
			break
		}
		if sleepErr := sleepWithContext(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}

// APIError is a Slack-level failure (ok=false), distinct from transport
// errors. Tools surface these to the model as failure strings.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, int, http.Header, error) {
	token := c.botToken
	if path == "/apps.connections.open" {
		token = c.appToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, 0, nil, fmt.Errorf("slack api path is required")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}

func retryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		if retryAfter == "" {
			return 1 * time.Second, true
		}
		secs, err := strconv.Atoi(retryAfter)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
