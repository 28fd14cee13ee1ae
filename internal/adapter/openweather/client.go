package openweather

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

// DefaultBaseURL is the OpenWeather current-weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// maxErrorBody caps how much of a non-2xx body is kept on a TransportError.
const maxErrorBody = 1024

// Client fetches the current observation for one location from OpenWeather.
// It implements pipeline.Extractor.
type Client struct {
	apiKey     string
	location   domain.Location
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an OpenWeather client. An empty baseURL selects
// DefaultBaseURL. The timeout bounds the whole request including the body read.
func NewClient(apiKey string, loc domain.Location, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:   apiKey,
		location: loc,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Validate reports a ConfigError when no API key is configured.
func (c *Client) Validate() error {
	if c.apiKey == "" {
		return &domain.ConfigError{Key: "OPENWEATHER_API_KEY"}
	}
	return nil
}

// Extract performs one GET against the provider and normalizes the response
// into an Observation with HeatIndex unset.
func (c *Client) Extract(ctx context.Context) (domain.Observation, error) {
	if err := c.Validate(); err != nil {
		return domain.Observation{}, err
	}

	params := url.Values{
		"lat":   {strconv.FormatFloat(c.location.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(c.location.Lon, 'f', -1, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}

	body, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return domain.Observation{}, err
	}

	obs, err := parseObservation(body)
	if err != nil {
		return domain.Observation{}, err
	}

	c.logger.Debug("observation extracted",
		"timestamp", obs.Timestamp,
		"temperature", obs.Temperature,
		"humidity", obs.Humidity,
	)
	return obs, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("openweather request: %w", redact(err, c.apiKey))}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// redact strips the API key from errors that embed the request URL.
func redact(err error, apiKey string) error {
	var uerr *url.Error
	if apiKey == "" || !errors.As(err, &uerr) {
		return err
	}
	u, perr := url.Parse(uerr.URL)
	if perr != nil {
		return err
	}
	q := u.Query()
	q.Set("appid", "REDACTED")
	u.RawQuery = q.Encode()
	return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
}

// OpenWeather response types. Pointer fields distinguish absent from zero.

type response struct {
	Dt      *int64        `json:"dt"`
	Main    *mainMetrics  `json:"main"`
	Wind    *wind         `json:"wind"`
	Weather []description `json:"weather"`
}

type mainMetrics struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
}

type wind struct {
	Speed *float64 `json:"speed"`
}

type description struct {
	Main        string  `json:"main"`
	Description *string `json:"description"`
}

// requiredKeys are the top-level members a usable payload must carry.
var requiredKeys = []string{"main", "wind", "weather", "dt"}

// parseObservation validates the payload shape and flattens it. Any missing
// piece fails the whole extraction with a SchemaError carrying the payload.
func parseObservation(body []byte) (domain.Observation, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return domain.Observation{}, &domain.SchemaError{Payload: body, Err: fmt.Errorf("decode response: %w", err)}
	}

	var missing []string
	for _, k := range requiredKeys {
		if _, ok := top[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return domain.Observation{}, &domain.SchemaError{Missing: missing, Payload: body}
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Observation{}, &domain.SchemaError{Payload: body, Err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.Main == nil {
		missing = append(missing, "main")
	} else {
		if resp.Main.Temp == nil {
			missing = append(missing, "main.temp")
		}
		if resp.Main.Humidity == nil {
			missing = append(missing, "main.humidity")
		}
		if resp.Main.Pressure == nil {
			missing = append(missing, "main.pressure")
		}
	}
	if resp.Wind == nil || resp.Wind.Speed == nil {
		missing = append(missing, "wind.speed")
	}
	if len(resp.Weather) == 0 || resp.Weather[0].Description == nil {
		missing = append(missing, "weather[0].description")
	}
	if len(missing) > 0 {
		return domain.Observation{}, &domain.SchemaError{Missing: missing, Payload: body}
	}

	return domain.Observation{
		Timestamp:        observationTime(resp.Dt),
		Temperature:      *resp.Main.Temp,
		Humidity:         int(math.Round(*resp.Main.Humidity)),
		Pressure:         int(math.Round(*resp.Main.Pressure)),
		WindSpeed:        *resp.Wind.Speed,
		WeatherCondition: *resp.Weather[0].Description,
	}, nil
}

// observationTime converts the provider's epoch to UTC, falling back to now
// when dt is null or zero.
func observationTime(dt *int64) time.Time {
	if dt == nil || *dt == 0 {
		return domain.Now()
	}
	return time.Unix(*dt, 0).UTC()
}
