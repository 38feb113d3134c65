// Package adapter — web.go
//
// Web is the browser-flavored Adapter implementation. It is expressed in
// idiomatic Go against the same capability interfaces a mini-program or
// test adapter satisfies — there is no browser DOM here, only the shape a
// Go embedder (a server-rendered front end, a WASM build, or a native
// shell hosting a webview) would wire up.

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lqt0707/monitor/pkg/sdk/model"
)

// WebHTTPClient is the default HTTPClient backed by net/http.
type WebHTTPClient struct {
	client *http.Client
}

// NewWebHTTPClient builds a client with the given request timeout.
func NewWebHTTPClient(timeout time.Duration) *WebHTTPClient {
	return &WebHTTPClient{client: &http.Client{Timeout: timeout}}
}

func (c *WebHTTPClient) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytesReader(body))
	if err != nil {
		return 0, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, _ := readAll(resp.Body)
	return resp.StatusCode, respBody, nil
}

// WebNetwork is the Network capability: the sole issuer of the telemetry
// upload, holding the undecorated client.
type WebNetwork struct {
	original HTTPClient
}

// NewWebNetwork stores the original, unwrapped client reference. This must
// happen before Performance decorates any client passed to it.
func NewWebNetwork(original HTTPClient) *WebNetwork {
	return &WebNetwork{original: original}
}

// SendData serializes record to the report DTO and POSTs it using the
// original, unwrapped HTTP primitive, bypassing whatever interception was
// installed afterward by Performance.
func (n *WebNetwork) SendData(ctx context.Context, url string, record model.MonitorData, opts SendOptions) error {
	dto := toReportDTO(record)
	body, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal report dto: %w", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if opts.APIKey != "" {
		headers["X-API-Key"] = opts.APIKey
	}
	status, _, err := n.original.Do(ctx, http.MethodPost, url, body, headers)
	if err != nil {
		return fmt.Errorf("send data: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("send data: unexpected status %d", status)
	}
	return nil
}

// WebPerformance decorates an HTTPClient to time every call and filter out
// the SDK's own telemetry endpoints before reporting a sample.
type WebPerformance struct {
	onSample func(HTTPCall)
}

func (p *WebPerformance) Init(client HTTPClient, onSample func(HTTPCall)) HTTPClient {
	p.onSample = onSample
	return &timedClient{inner: client, parent: p}
}

func (p *WebPerformance) PagePerformance() (map[string]float64, bool) {
	// No navigation-timing API in a headless Go embedder; left unsupported.
	return nil, false
}

func (p *WebPerformance) Destroy() { p.onSample = nil }

type timedClient struct {
	inner  HTTPClient
	parent *WebPerformance
}

func (t *timedClient) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	start := time.Now()
	status, respBody, err := t.inner.Do(ctx, method, url, body, headers)
	duration := time.Since(start).Seconds() * 1000

	if !IsTelemetryURL(url) && t.parent.onSample != nil {
		t.parent.onSample(HTTPCall{
			URL:      url,
			Method:   method,
			Status:   status,
			Duration: duration,
			Success:  err == nil && status < 300,
		})
	}
	return status, respBody, err
}

func toReportDTO(m model.MonitorData) model.ReportDTO {
	dto := model.ReportDTO{
		ProjectID:      m.ProjectID,
		PageURL:        m.PageURL,
		UserAgent:      m.UserAgent,
		ProjectVersion: m.ProjectVersion,
	}
	switch m.Kind {
	case model.KindError:
		dto.Type = model.ReportJSError
		if m.Error != nil {
			dto.ErrorMessage = m.Error.Message
			dto.ErrorStack = m.Error.Stack
			if m.Error.Type == model.ErrorTypePromise {
				dto.Type = model.ReportUnhandledRejection
			} else if m.Error.Type == model.ErrorTypeHTTP {
				dto.Type = model.ReportRequestError
			}
		}
		dto.UserID = m.UserID
	case model.KindPerformance:
		dto.Type = model.ReportPerformanceInfoReady
		if m.Performance != nil {
			raw, _ := json.Marshal(m.Performance.Metrics)
			dto.PerformanceData = raw
			if m.Performance.Resource != nil && m.Performance.Resource.Duration > 1000 {
				dto.Type = model.ReportSlowHTTPRequest
			}
		}
	case model.KindBehavior:
		dto.Type = model.ReportPerformanceInfoReady // behaviors ride the extraData channel
		if m.Behavior != nil {
			dto.ExtraData = m.Behavior.Data
		}
	}
	return dto
}
