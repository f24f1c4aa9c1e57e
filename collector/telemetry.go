package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/perfdiag/logging"
)

// TelemetrySource polls an HTTP endpoint returning a flat JSON object of
// metric name to number. One fetch is shared by all providers of a tick.
type TelemetrySource struct {
	URL       string
	HTTP      *http.Client
	Log       *zap.Logger
	UserAgent string
	// MaxAge is how long a fetched document is reused.
	MaxAge time.Duration

	now       func() time.Time
	mu        sync.Mutex
	cached    map[string]float64
	cachedErr error
	fetchedAt time.Time
}

// NewTelemetrySource returns a ready-to-use source for url.
func NewTelemetrySource(url string, maxAge time.Duration, log *zap.Logger) *TelemetrySource {
	return &TelemetrySource{
		URL:       url,
		HTTP:      &http.Client{Timeout: 5 * time.Second},
		Log:       logging.OrNop(log),
		UserAgent: "perfdiag/0.1",
		MaxAge:    maxAge,
		now:       time.Now,
	}
}

// Provider returns a provider for one field of the document.
func (t *TelemetrySource) Provider(field string) Provider {
	return Func(field, func(ctx context.Context) (float64, error) {
		doc, err := t.snapshot(ctx)
		if err != nil {
			return 0, err
		}
		v, ok := doc[field]
		if !ok {
			return 0, fmt.Errorf("telemetry field %q not present", field)
		}
		return v, nil
	})
}

// Providers returns one provider per field.
func (t *TelemetrySource) Providers(fields ...string) []Provider {
	out := make([]Provider, 0, len(fields))
	for _, f := range fields {
		out = append(out, t.Provider(f))
	}
	return out
}

func (t *TelemetrySource) snapshot(ctx context.Context) (map[string]float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.fetchedAt.IsZero() && now.Sub(t.fetchedAt) < t.MaxAge {
		return t.cached, t.cachedErr
	}
	t.cached, t.cachedErr = t.fetch(ctx)
	t.fetchedAt = now
	if t.cachedErr != nil {
		t.Log.Debug("telemetry fetch failed", zap.String("url", t.URL), zap.Error(t.cachedErr))
	}
	return t.cached, t.cachedErr
}

func (t *TelemetrySource) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, err
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	resp, err := t.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telemetry request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("telemetry endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode telemetry response: %w", err)
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		// non-numeric fields are ignored
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out, nil
}
