package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/shiftcast/pkg/staffing"
)

// HTTPSource calls a REST endpoint and extracts forecast volumes using gjson
// path expressions.
//
// Example configuration for a forecasting API:
//
//	src := &HTTPSource{
//	    URL:    "https://forecast.example.com/v1/volumes",
//	    Method: "POST",
//	    Headers: map[string]string{
//	        "Authorization": "Bearer {{.Token}}",
//	        "Content-Type":  "application/json",
//	    },
//	    Body:          `{"queue": "support", "from": "{{.StartRFC3339}}", "to": "{{.EndRFC3339}}"}`,
//	    VolumePath:    "intervals.#.volume",
//	    TimestampPath: "intervals.#.start",
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required). It may use template variables.
	URL string

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are added to the request. Values can use template variables.
	Headers map[string]string

	// Body is the request body template. Supports:
	//   {{.Start}} {{.End}}                - Unix seconds
	//   {{.StartRFC3339}} {{.EndRFC3339}}  - RFC3339 strings
	//   {{.Step}}                          - interval length in seconds
	//   {{.Horizon}}                       - horizon in seconds
	Body string

	// VolumePath selects the forecast volumes, e.g. "data.#.volume".
	VolumePath string

	// TimestampPath selects interval start times and must yield as many
	// elements as VolumePath.
	TimestampPath string

	// TimestampFormat is "rfc3339" (default), "unix" or "unix_milli".
	TimestampFormat string

	// HTTPClient is optional; if nil a client with a 10s timeout is used.
	HTTPClient *http.Client

	// TemplateVars are extra variables for URL, Body and Headers.
	TemplateVars map[string]string
}

func (h *HTTPSource) Name() string { return "http" }

// Fetch implements Source.
func (h *HTTPSource) Fetch(ctx context.Context, w Window) ([]staffing.ForecastInterval, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	data := map[string]any{
		"Start":        w.Start.Unix(),
		"End":          w.End().Unix(),
		"StartRFC3339": w.Start.UTC().Format(time.RFC3339),
		"EndRFC3339":   w.End().UTC().Format(time.RFC3339),
		"Step":         int(w.Step.Seconds()),
		"Horizon":      int(w.Horizon.Seconds()),
	}
	for k, v := range h.TemplateVars {
		data[k] = v
	}

	url, err := renderTemplate(h.URL, data)
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, data)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, data)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	points, err := extractPoints(raw, h.VolumePath, h.TimestampPath, h.TimestampFormat)
	if err != nil {
		return nil, err
	}
	return toIntervals(points, w)
}

// ValidateConfig checks that the source can be used.
func (h *HTTPSource) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.VolumePath == "" {
		return errors.New("volumePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	if !validTimestampFormat(h.TimestampFormat) {
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
	return nil
}

// extractPoints reads parallel volume and timestamp arrays out of a JSON
// document.
func extractPoints(doc []byte, volumePath, timestampPath, format string) ([]point, error) {
	if !gjson.ValidBytes(doc) {
		return nil, errors.New("response is not valid JSON")
	}

	volumes := gjson.GetBytes(doc, volumePath)
	timestamps := gjson.GetBytes(doc, timestampPath)
	if !volumes.Exists() {
		return nil, fmt.Errorf("volume path %q not found in document", volumePath)
	}
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in document", timestampPath)
	}

	vols := volumes.Array()
	tss := timestamps.Array()
	if len(vols) != len(tss) {
		return nil, fmt.Errorf("volume count (%d) != timestamp count (%d)", len(vols), len(tss))
	}

	points := make([]point, 0, len(vols))
	for i := range vols {
		if vols[i].Type != gjson.Number {
			return nil, fmt.Errorf("volume[%d] is not a number: %s", i, vols[i].Raw)
		}
		ts, err := parseTimestamp(format, tss[i].String(), tss[i].Float())
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		points = append(points, point{ts: ts, value: vols[i].Float()})
	}
	return points, nil
}

func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
