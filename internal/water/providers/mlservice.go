package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// MLClient talks to the external prediction service.
type MLClient struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewMLClient(client *http.Client, baseURL string, log *zap.Logger) *MLClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &MLClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("ml-service"),
		log:     log,
	}
}

// WithBackoff overrides the retry settings.
func (c *MLClient) WithBackoff(b BackoffConfig) *MLClient {
	c.httpCfg.Backoff = b
	return c
}

func (c *MLClient) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *MLClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// Predict fetches a forecast. The station endpoint falls back to the general
// one when it fails.
func (c *MLClient) Predict(ctx context.Context, stationID string, days int) (water.Forecast, error) {
	general := fmt.Sprintf("/predict/%d", days)

	path := general
	if stationID != "" && stationID != water.AllStations {
		path = fmt.Sprintf("/predict/station/%s/%d", url.PathEscape(stationID), days)
	}

	raw, err := c.get(ctx, path)
	if err != nil && path != general {
		c.log.Warn("station forecast failed; using general forecast",
			zap.String("station_id", stationID), zap.Int("days", days), zap.Error(err))
		raw, err = c.get(ctx, general)
	}
	if err != nil {
		return water.Forecast{}, err
	}

	f, issues, err := decodeForecast(raw)
	if err != nil {
		return water.Forecast{}, err
	}
	if len(issues) > 0 {
		c.log.Warn("forecast records had fields that could not be read",
			zap.String("path", path), zap.Int("issues", len(issues)), zap.String("first", issues[0]))
	}
	f.StationID = stationID
	f.Days = days
	c.log.Debug("forecast fetched", zap.String("path", path), zap.Int("points", len(f.Predictions)))
	return f, nil
}

// Standards fetches the standards the service trains against.
func (c *MLClient) Standards(ctx context.Context) (water.StandardsTable, error) {
	raw, err := c.get(ctx, "/standards")
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Standards json.RawMessage `json:"standards"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Standards) > 0 {
		raw = envelope.Standards
	}
	return decodeStandards(raw)
}

// Train asks the service to retrain its model.
func (c *MLClient) Train(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/train", []byte("{}"))
	return err
}

// DecodeForecast accepts either a bare array of records or an object with
// predictions and standards.
func DecodeForecast(raw []byte) (water.Forecast, error) {
	f, _, err := decodeForecast(raw)
	return f, err
}

// decodeForecast also returns the normalization issues of every record,
// prefixed with the record number.
func decodeForecast(raw []byte) (water.Forecast, []string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return water.Forecast{}, nil, fmt.Errorf("empty forecast payload")
	}

	var (
		records   []map[string]any
		standards json.RawMessage
	)
	if raw[0] == '[' {
		if err := unmarshalNumbers(raw, &records); err != nil {
			return water.Forecast{}, nil, fmt.Errorf("decode forecast: %w", err)
		}
	} else {
		var obj struct {
			Predictions json.RawMessage `json:"predictions"`
			Standards   json.RawMessage `json:"standards"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return water.Forecast{}, nil, fmt.Errorf("decode forecast: %w", err)
		}
		if len(obj.Predictions) > 0 && string(obj.Predictions) != "null" {
			if err := unmarshalNumbers(obj.Predictions, &records); err != nil {
				return water.Forecast{}, nil, fmt.Errorf("decode predictions: %w", err)
			}
		}
		standards = obj.Standards
	}

	f := water.Forecast{Predictions: make([]water.Reading, 0, len(records))}
	var issues []string
	for i, rec := range records {
		r, recIssues := water.NormalizeRecord(rec)
		for _, issue := range recIssues {
			issues = append(issues, fmt.Sprintf("record %d: %s", i+1, issue))
		}
		f.Predictions = append(f.Predictions, r)
	}

	if len(standards) > 0 && string(standards) != "null" {
		table, err := decodeStandards(standards)
		if err != nil {
			return water.Forecast{}, nil, err
		}
		f.Standards = table
	}
	return f, issues, nil
}

func unmarshalNumbers(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func decodeStandards(raw []byte) (water.StandardsTable, error) {
	var byName map[string]water.Standard
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("decode standards: %w", err)
	}
	table := make(water.StandardsTable, len(byName))
	for name, s := range byName {
		canon, ok := water.CanonicalField(name)
		if !ok || !water.Parameter(canon).Valid() {
			continue
		}
		table[water.Parameter(canon)] = s
	}
	return table, nil
}
