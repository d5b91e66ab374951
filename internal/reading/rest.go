package reading

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RESTOptions configure the Home Assistant REST adapter.
type RESTOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// RESTAdapter reads sensor states from the Home Assistant REST API.
type RESTAdapter struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewREST constructs a REST adapter.
func NewREST(opts RESTOptions, logger zerolog.Logger) *RESTAdapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &RESTAdapter{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger.With().Str("component", "reading_rest").Logger(),
	}
}

type stateResponse struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged *time.Time     `json:"last_changed"`
}

// Get fetches /api/states/{sensorID}. A transport failure or non-2xx
// response degrades to "absent"; the caller treats that as a zero
// contribution, never as an error.
func (a *RESTAdapter) Get(ctx context.Context, sensorID string) (Reading, bool) {
	url := fmt.Sprintf("%s/api/states/%s", a.baseURL, sensorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		a.logger.Error().Err(err).Str("sensor", sensorID).Msg("build state request")
		return Reading{}, false
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn().Err(err).Str("sensor", sensorID).Msg("state request failed")
		return Reading{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Reading{}, false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Warn().Int("status", resp.StatusCode).Str("sensor", sensorID).Msg("unexpected state response")
		return Reading{}, false
	}

	var state stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		a.logger.Warn().Err(err).Str("sensor", sensorID).Msg("decode state response")
		return Reading{}, false
	}

	value := state.State
	r := Reading{Value: &value, LastChanged: state.LastChanged}
	if raw, ok := state.Attributes["unit_of_measurement"]; ok {
		if unit, ok := raw.(string); ok {
			r.Unit = &unit
		}
	}
	return r, true
}

var _ Adapter = (*RESTAdapter)(nil)
