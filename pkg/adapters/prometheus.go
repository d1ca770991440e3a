package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HatiCode/shiftcast/pkg/staffing"
)

// DefaultLookback is the season used by PrometheusSource.
const DefaultLookback = 7 * 24 * time.Hour

// PrometheusSource builds a seasonal-naive forecast from history kept in
// Prometheus or VictoriaMetrics: the volume observed one Lookback ago is the
// forecast for the same interval now.
//
// Query must evaluate to the number of contacts per interval, for example
//
//	sum(increase(contacts_offered_total{queue="support"}[30m]))
//
// It is issued against /api/v1/query_range over the window moved back by
// Lookback, at one step per interval. If multiple series are returned, values
// with the same timestamp are SUMMED.
type PrometheusSource struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL/MetricsQL expression to evaluate.
	Query string
	// Lookback defaults to DefaultLookback if <= 0.
	Lookback time.Duration
	// Flavor is reported by Name; "prometheus" when empty.
	Flavor string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusSource) Name() string {
	if p.Flavor == "" {
		return "prometheus"
	}
	return p.Flavor
}

// Fetch implements Source.
func (p *PrometheusSource) Fetch(ctx context.Context, w Window) ([]staffing.ForecastInterval, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, errors.New("prometheus source: ServerURL and Query are required")
	}
	if w.Step <= 0 || w.Horizon <= 0 {
		return nil, errors.New("prometheus source: window step and horizon must be > 0")
	}
	lookback := p.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	from := w.Start.Add(-lookback)
	// query_range is inclusive of end; stop one step short.
	to := w.End().Add(-lookback - w.Step)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(from.Unix(), 10))
	q.Set("end", strconv.FormatInt(to.Unix(), 10))
	q.Set("step", strconv.Itoa(int(w.Step.Seconds())))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	var pr RangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("%s status: %s", p.Name(), pr.Status)
	}

	points, err := rangePoints(pr.Data.Result)
	if err != nil {
		return nil, err
	}
	for i := range points {
		points[i].ts = points[i].ts.Add(lookback)
	}
	return toIntervals(points, w)
}

// RangeResponse is a Prometheus-compatible query_range response.
type RangeResponse struct {
	Status string    `json:"status"`
	Data   RangeData `json:"data"`
}

// RangeData contains the result data from a range query.
type RangeData struct {
	ResultType string        `json:"resultType"`
	Result     []RangeSeries `json:"result"`
}

// RangeSeries is a single time series in the result.
type RangeSeries struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// rangePoints flattens series into points. Series sharing a timestamp are
// summed later by toIntervals.
func rangePoints(series []RangeSeries) ([]point, error) {
	var points []point
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			tsSec, ok := pair[0].(float64)
			if !ok {
				return nil, fmt.Errorf("unexpected timestamp type %T", pair[0])
			}

			var val float64
			switch v := pair[1].(type) {
			case string:
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("parse value: %w", err)
				}
				val = f
			case float64:
				val = v
			default:
				return nil, fmt.Errorf("unexpected value type %T", v)
			}
			if math.IsNaN(val) {
				// No samples in the range; leave the interval out.
				continue
			}
			points = append(points, point{ts: time.Unix(int64(tsSec), 0).UTC(), value: val})
		}
	}
	return points, nil
}
