// Package usage provides cost lookup helpers and token usage recording for
// the AI gateway. Providers compute dollar cost from their static catalogs;
// callers can persist per-call records for accounting.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatgate/internal/core"
)

// Rates is a per-1k-token price pair used when a model id is not in the
// catalog. Falling back keeps cost accounting from crashing on new or
// unlisted models at the price of slight inaccuracy.
type Rates struct {
	InputPer1K  float64
	OutputPer1K float64
}

// CostFor computes the dollar cost of a completion against a provider's
// catalog. Unknown models use the fallback rates and the miss is logged.
func CostFor(catalog []core.ModelInfo, model string, inputTokens, outputTokens int, fallback Rates) float64 {
	for _, m := range catalog {
		if m.ID == model {
			return float64(inputTokens)/1000*m.InputCostPer1K +
				float64(outputTokens)/1000*m.OutputCostPer1K
		}
	}
	slog.Debug("model not in pricing catalog, using fallback rates", "model", model)
	return float64(inputTokens)/1000*fallback.InputPer1K +
		float64(outputTokens)/1000*fallback.OutputPer1K
}

// Record is one completed chat call worth of accounting data.
type Record struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	AccountID    string    `json:"account_id,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
}

// Recorder persists usage records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// Write stores one usage record.
	Write(ctx context.Context, rec *Record) error

	// TotalCost sums the cost of records for a provider since the given
	// time. An empty provider sums across all providers.
	TotalCost(ctx context.Context, provider string, since time.Time) (float64, error)

	// Close releases resources.
	Close() error
}

// MemoryRecorder is an in-process Recorder for single-instance deployments
// and tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []*Record
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Write implements Recorder.
func (r *MemoryRecorder) Write(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rec
	r.records = append(r.records, &clone)
	return nil
}

// TotalCost implements Recorder.
func (r *MemoryRecorder) TotalCost(_ context.Context, provider string, since time.Time) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total float64
	for _, rec := range r.records {
		if provider != "" && rec.Provider != provider {
			continue
		}
		if rec.Timestamp.Before(since) {
			continue
		}
		total += rec.Cost
	}
	return total, nil
}

// Records returns a snapshot of everything written, newest last.
func (r *MemoryRecorder) Records() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.records))
	copy(out, r.records)
	return out
}

// Close implements Recorder.
func (r *MemoryRecorder) Close() error {
	return nil
}
