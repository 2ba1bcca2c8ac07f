package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfilings/relgraph/backend/pkg/leaselock"
	"github.com/openfilings/relgraph/backend/pkg/logger"
	"github.com/openfilings/relgraph/backend/pkg/store"
)

const recalcLockKey = "node_metrics_recalc"

// defaultRecalcBatch bounds one RecalculateMetrics pass when the message
// does not name a limit.
const defaultRecalcBatch = 500

// ProcessRecalcMessage recomputes aggregate metrics for nodes flagged by
// edge writes. The lease lock keeps recalculation single-flight across
// workers; a message arriving while another worker holds the lease is a
// no-op, since the holder will pick up the same flagged nodes.
func ProcessRecalcMessage(
	ctx context.Context,
	locks *leaselock.Client,
	storeClient store.GraphStorage,
	msg string,
) error {
	data := new(RecalcMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to unmarshal recalc message: %w", err)
	}

	limit := data.Limit
	if limit <= 0 {
		limit = defaultRecalcBatch
	}

	err := locks.WithLease(ctx, recalcLockKey, leaselock.Options{
		TTL: 2 * time.Minute,
	}, func(ctx context.Context) error {
		total := 0
		for {
			n, err := storeClient.RecalculateMetrics(ctx, limit)
			if err != nil {
				return err
			}
			total += n
			if n == 0 {
				break
			}
		}
		logger.Info("[Queue] Recalculated node metrics", "nodes", total)
		return nil
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Debug("[Queue] Recalculation already running elsewhere")
		return nil
	}
	return err
}
