// Package compact runs the background sweep that clears long-stale
// typing heartbeats out of conversation documents. Readers already
// ignore stale entries; the sweep just keeps documents from growing a
// permanent map of everyone who ever typed.
package compact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"parlor/pkg/config"
	"parlor/pkg/logger"
	"parlor/pkg/store"
)

// Start launches the scheduler when enabled. Returns a cancel func.
func Start(ctx context.Context, st store.Store, cfg config.CompactionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("compaction_disabled")
		return func() {}, nil
	}
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "*/10 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid compaction cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr, cfg.MaxAge.Std())
	logger.Info("compaction_scheduler_started", "cron", cronExpr, "max_age", cfg.MaxAge.Std().String())
	return cancel, nil
}

func runScheduler(ctx context.Context, st store.Store, cronExpr string, maxAge time.Duration) {
	for {
		now := time.Now()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("compaction_next_tick_failed", "error", err.Error())
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}
		if n, err := RunOnce(st, maxAge, time.Now()); err != nil {
			logger.Error("compaction_run_failed", "error", err.Error())
		} else if n > 0 {
			logger.Info("compaction_run_complete", "cleared", n)
		}
	}
}

// RunOnce sweeps every conversation once and returns how many typing
// entries were cleared.
func RunOnce(st store.Store, maxAge time.Duration, now time.Time) (int, error) {
	cutoff := now.UnixMilli() - maxAge.Milliseconds()
	var keys []string
	err := st.Scan("conv:", func(key string, _ []byte) error {
		if strings.HasSuffix(key, ":meta") {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, key := range keys {
		err := st.Update(key, func(cur []byte) ([]byte, error) {
			var doc map[string]json.RawMessage
			if err := json.Unmarshal(cur, &doc); err != nil {
				return nil, err
			}
			raw, ok := doc["typing_indicators"]
			if !ok {
				return cur, nil
			}
			var typing map[string]int64
			if err := json.Unmarshal(raw, &typing); err != nil {
				return nil, err
			}
			changed := false
			for uid, ts := range typing {
				if ts < cutoff {
					delete(typing, uid)
					changed = true
					cleared++
				}
			}
			if !changed {
				return cur, nil
			}
			if len(typing) == 0 {
				delete(doc, "typing_indicators")
			} else {
				b, err := json.Marshal(typing)
				if err != nil {
					return nil, err
				}
				doc["typing_indicators"] = b
			}
			return json.Marshal(doc)
		})
		if err != nil {
			return cleared, err
		}
	}
	return cleared, nil
}
