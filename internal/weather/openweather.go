package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

const providerName = "openweather"

// OpenWeatherConfig configures the current-weather client.
type OpenWeatherConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds the whole check, retries included.
	Timeout time.Duration
	// RetryMax is the number of retries on connection errors and 5xx.
	RetryMax int
	Logger   *slog.Logger
}

// OpenWeather queries GET {base}/weather?lat&lon&appid&units=metric.
type OpenWeather struct {
	cfg    OpenWeatherConfig
	client *retryablehttp.Client
}

var _ Provider = (*OpenWeather)(nil)

// NewOpenWeather returns a client. Zero Timeout uses 5s.
func NewOpenWeather(cfg OpenWeatherConfig) *OpenWeather {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = cfg.Logger
	return &OpenWeather{cfg: cfg, client: rc}
}

type currentWeather struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Rain *struct {
		OneHour *float64 `json:"1h"`
	} `json:"rain"`
}

func (o *OpenWeather) Check(ctx context.Context, lat, lon float64) (Decision, error) {
	ctx, span := telemetry.Tracer("weather").Start(ctx, "weather.check")
	defer span.End()
	span.SetAttributes(attribute.Float64("geo.lat", lat), attribute.Float64("geo.lon", lon))

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	cw, err := o.fetch(ctx, lat, lon)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, &domain.ProviderFailureError{Provider: providerName, Err: err}
	}
	return decide(cw), nil
}

func (o *OpenWeather) fetch(ctx context.Context, lat, lon float64) (*currentWeather, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", o.cfg.APIKey)
	q.Set("units", "metric")
	endpoint := strings.TrimRight(o.cfg.BaseURL, "/") + "/weather?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var cw currentWeather
	if err := json.NewDecoder(resp.Body).Decode(&cw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &cw, nil
}

func decide(cw *currentWeather) Decision {
	var d Decision
	for _, w := range cw.Weather {
		if strings.Contains(strings.ToLower(w.Main), "rain") ||
			strings.Contains(strings.ToLower(w.Description), "rain") {
			d.IsRainingNow = true
			break
		}
	}
	if cw.Rain != nil && cw.Rain.OneHour != nil {
		d.RainNextHourMM = *cw.Rain.OneHour
		d.RainWithinHour = d.RainNextHourMM > SignificantRainMM
	}

	switch {
	case d.IsRainingNow:
		d.Recommendation = RecommendSkip
		d.Details = "Currently raining at location"
	case d.RainWithinHour:
		d.Recommendation = RecommendSkip
		d.Details = fmt.Sprintf("Significant rain expected in next hour (%.2fmm)", d.RainNextHourMM)
	default:
		d.Recommendation = RecommendProceed
		d.Details = "No rain currently and none expected in next hour"
	}
	return d
}
