package adapters

import (
	"encoding/json"
	"fmt"
	"time"
)

// New creates a forecast source from its kind and a flat configuration map
// (typically the SOURCE_* environment variables).
//
// Supported kinds:
//   - "http": HTTPSource (url, method, headers, body, volumePath,
//     timestampPath, timestampFormat, templateVars)
//   - "file": FileSource (path, volumePath, timestampPath, timestampFormat)
//   - "prometheus", "victoriametrics": PrometheusSource (url, query, lookback)
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "http":
		return newHTTP(config)
	case "file":
		return newFile(config)
	case "prometheus":
		return newPrometheus(config, "prometheus", "http://localhost:9090")
	case "victoriametrics":
		return newPrometheus(config, "victoriametrics", "http://localhost:8428")
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be http, file, prometheus, or victoriametrics)", kind)
	}
}

func newHTTP(config map[string]string) (Source, error) {
	src := &HTTPSource{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		VolumePath:      config["volumePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &src.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &src.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := src.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	return src, nil
}

func newFile(config map[string]string) (Source, error) {
	src := &FileSource{
		Path:            config["path"],
		VolumePath:      config["volumePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
	}
	if src.Path == "" {
		return nil, fmt.Errorf("file source requires 'path' config")
	}
	if src.VolumePath == "" || src.TimestampPath == "" {
		return nil, fmt.Errorf("file source requires 'volumePath' and 'timestampPath' config")
	}
	if !validTimestampFormat(src.TimestampFormat) {
		return nil, fmt.Errorf("file source: invalid timestampFormat: %s", src.TimestampFormat)
	}
	return src, nil
}

func newPrometheus(config map[string]string, flavor, defaultURL string) (Source, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s source requires 'query' config", flavor)
	}

	url := config["url"]
	if url == "" {
		url = defaultURL
	}

	src := &PrometheusSource{ServerURL: url, Query: query, Flavor: flavor}
	if lb := config["lookback"]; lb != "" {
		d, err := time.ParseDuration(lb)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s source: invalid 'lookback' %q", flavor, lb)
		}
		src.Lookback = d
	}
	return src, nil
}
