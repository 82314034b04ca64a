package assignment

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shuttletrack/internal/api"
)

// Telemetry is a live-tracking sample: current position plus the ETA for
// the rider the tracker was started for.
type Telemetry struct {
	Location *Location
	ETA      string
}

// Tracker polls live shuttle telemetry on a fixed interval. Discovery and
// tracking are deliberately separate operations: discovery walks the whole
// fallback chain, while the tracker only refreshes location and ETA on a
// shuttle that is already known.
type Tracker struct {
	api      *api.Client
	interval time.Duration
	log      *zap.Logger
}

// NewTracker creates a tracker polling at the given interval.
func NewTracker(client *api.Client, interval time.Duration, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Tracker{api: client, interval: interval, log: log}
}

// Start begins polling telemetry for the shuttle and applies each sample
// through the callback. The returned stop function halts the poller and is
// safe to call more than once; the poller also halts when ctx is
// cancelled. Once stopped, no further samples are applied; a fetch that
// was in flight when the consumer went away is discarded, not delivered
// late.
func (t *Tracker) Start(ctx context.Context, shuttleID, riderID string, apply func(Telemetry)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		// First sample immediately; screens should not wait a full
		// interval for the map pin to appear.
		t.poll(ctx, shuttleID, riderID, apply)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.poll(ctx, shuttleID, riderID, apply)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (t *Tracker) poll(ctx context.Context, shuttleID, riderID string, apply func(Telemetry)) {
	sample, err := t.Fetch(ctx, shuttleID, riderID)
	if err != nil {
		t.log.Debug("telemetry fetch failed", zap.String("shuttle", shuttleID), zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		// Stopped while the request was in flight; drop the sample.
		return
	}
	apply(sample)
}

// Fetch performs one telemetry read. Exposed for callers that want a single
// sample without a poller.
func (t *Tracker) Fetch(ctx context.Context, shuttleID, riderID string) (Telemetry, error) {
	var body payload
	if err := t.api.GetJSON(ctx, "/eta/shuttle/"+shuttleID+"/students", &body); err != nil {
		return Telemetry{}, err
	}

	var sample Telemetry
	if loc := body.obj("shuttleLocation"); loc != nil {
		sample.Location = &Location{
			Lat: floatField(loc, "lat"),
			Lng: floatField(loc, "lng"),
		}
	}

	if students, ok := body["students"].([]any); ok {
		for _, raw := range students {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			p := payload(entry)
			if p.str("studentId") == riderID {
				sample.ETA = p.str("duration")
				break
			}
		}
		// Per-rider match failed; any rider's ETA beats none.
		if sample.ETA == "" && len(students) > 0 {
			if entry, ok := students[0].(map[string]any); ok {
				sample.ETA = payload(entry).str("duration")
			}
		}
	}
	return sample, nil
}

func floatField(p payload, key string) float64 {
	if v, ok := p[key].(float64); ok {
		return v
	}
	return 0
}
