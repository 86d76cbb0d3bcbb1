// Package weather decides whether rain should defer an irrigation.
package weather

import (
	"context"
	"log/slog"

	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

const (
	RecommendProceed = "PROCEED_WITH_IRRIGATION"
	RecommendSkip    = "SKIP_IRRIGATION"
)

// SignificantRainMM is the forecast rain volume over the next hour above which
// irrigation is deferred.
const SignificantRainMM = 0.5

// Decision is the gate's answer for one location.
type Decision struct {
	IsRainingNow   bool    `json:"is_raining_now"`
	RainWithinHour bool    `json:"rain_within_hour"`
	RainNextHourMM float64 `json:"rain_next_hour_mm"`
	Recommendation string  `json:"recommendation"`
	Details        string  `json:"details"`
}

// ShouldPostpone reports whether the task must be deferred.
func (d Decision) ShouldPostpone() bool {
	return d.IsRainingNow || d.RainWithinHour
}

// Proceed is the decision returned when the provider cannot answer.
func Proceed(details string) Decision {
	return Decision{Recommendation: RecommendProceed, Details: details}
}

// Provider fetches conditions from an upstream weather service.
type Provider interface {
	Check(ctx context.Context, lat, lon float64) (Decision, error)
}

// Gate answers the rain question and never fails; it is what the irrigation
// engine consumes.
type Gate interface {
	CheckRain(ctx context.Context, lat, lon float64) Decision
}

// FailOpen turns provider errors into a proceed decision.
type FailOpen struct {
	provider Provider
	logger   *slog.Logger
}

var _ Gate = (*FailOpen)(nil)

// NewFailOpen wraps provider. A nil logger uses slog.Default().
func NewFailOpen(provider Provider, logger *slog.Logger) *FailOpen {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailOpen{provider: provider, logger: logger}
}

func (g *FailOpen) CheckRain(ctx context.Context, lat, lon float64) Decision {
	d, err := g.provider.Check(ctx, lat, lon)
	if err != nil {
		telemetry.WeatherChecks.WithLabelValues("error").Inc()
		g.logger.Warn("weather check failed, proceeding",
			slog.Float64("lat", lat),
			slog.Float64("lon", lon),
			slog.String("error", err.Error()),
		)
		return Proceed("Weather check failed - proceeding with irrigation")
	}

	result := "proceed"
	if d.ShouldPostpone() {
		result = "skip"
	}
	telemetry.WeatherChecks.WithLabelValues(result).Inc()
	g.logger.Debug("rain check",
		slog.Float64("lat", lat),
		slog.Float64("lon", lon),
		slog.Bool("raining", d.IsRainingNow),
		slog.Bool("rain_within_hour", d.RainWithinHour),
		slog.String("recommendation", d.Recommendation),
	)
	return d
}

// Static is a Provider that always returns the same decision; used when no
// weather service is configured.
type Static struct {
	Decision Decision
	Err      error
}

func (s Static) Check(context.Context, float64, float64) (Decision, error) {
	return s.Decision, s.Err
}
