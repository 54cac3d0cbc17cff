package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"handreceipt/internal/logging"
	"handreceipt/internal/metrics"
	"handreceipt/internal/queue"
	"handreceipt/internal/remote"
)

// Reasons a pass did not run.
const (
	ReasonBusy    = "already running"
	ReasonOffline = "offline"
	ReasonEmpty   = "queue empty"
)

// Summary describes one pass.
type Summary struct {
	Trigger     string        `json:"trigger"`
	Ran         bool          `json:"ran"`
	Reason      string        `json:"reason,omitempty"`
	StartedAt   time.Time     `json:"startedAt,omitzero"`
	Duration    time.Duration `json:"duration"`
	Attempted   int           `json:"attempted"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Exhausted   int           `json:"exhausted"`
	Purged      int           `json:"purged"`
	StoreErrors int           `json:"storeErrors"`
	Interrupted bool          `json:"interrupted,omitempty"`
}

// AttemptPass is the single entry point for every trigger. It returns with
// Ran=false when a pass is already running, the endpoint is offline, or the
// queue is empty. Failures are recorded per transfer; nothing escapes.
func (e *Engine) AttemptPass(ctx context.Context, trigger string) Summary {
	summary := Summary{Trigger: trigger}
	if !e.running.CompareAndSwap(false, true) {
		summary.Reason = ReasonBusy
		return summary
	}
	defer e.running.Store(false)

	if !e.observer.Online() {
		summary.Reason = ReasonOffline
		return summary
	}
	snapshot := e.queue.Snapshot()
	if len(snapshot) == 0 {
		summary.Reason = ReasonEmpty
		return summary
	}

	summary.Ran = true
	summary.StartedAt = e.now()
	e.metrics.ObservePass(trigger)
	e.logger.Info("sync pass started",
		logging.String(logging.FieldTrigger, trigger),
		logging.Int("queued", len(snapshot)),
		logging.String(logging.FieldEventType, "sync_started"),
	)

groups:
	for property, group := range groupByProperty(snapshot) {
		for _, t := range group {
			if ctx.Err() != nil {
				summary.Interrupted = true
				break groups
			}
			if !e.shouldAttempt(t) {
				summary.Skipped++
				continue
			}
			if !e.process(ctx, t, &summary) {
				summary.Interrupted = true
				e.logger.Info("sync pass interrupted",
					logging.String(logging.FieldPropertyID, property),
					logging.String(logging.FieldTransferID, t.ID),
				)
				break groups
			}
		}
	}

	if ctx.Err() == nil {
		purged, err := e.queue.PurgeCompleted(ctx)
		if err != nil {
			summary.StoreErrors++
			logging.WarnWithContext(e.logger, "purge completed transfers failed", "purge_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "completed transfers remain until the next pass"),
			)
		}
		summary.Purged = purged
	}

	summary.Duration = e.now().Sub(summary.StartedAt)
	e.finish(ctx, summary)
	return summary
}

func (e *Engine) shouldAttempt(t queue.Transfer) bool {
	switch t.Status {
	case queue.StatusCompleted:
		return false
	case queue.StatusFailed:
		return e.policy.Eligible(t, e.now())
	default:
		return true
	}
}

// process submits one transfer and records the outcome. It returns false only
// when ctx ended before the outcome could be recorded. A transfer removed from
// the queue after the pass took its snapshot is not submitted.
func (e *Engine) process(ctx context.Context, t queue.Transfer, summary *Summary) bool {
	logger := logging.WithContext(logging.WithTransfer(ctx, t.ID, t.PropertyID), e.logger)

	marked, err := e.queue.UpdateStatus(ctx, t.ID, queue.StatusSyncing, "")
	switch {
	case errors.Is(err, queue.ErrNotFound):
		logger.Info("transfer removed before submission; skipping",
			logging.String(logging.FieldEventType, "transfer_removed"),
		)
		return true
	case err != nil:
		summary.StoreErrors++
		logging.WarnWithContext(logger, "mark transfer syncing failed", "status_update_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "transfer is submitted without a SYNCING marker"),
		)
	default:
		t = marked
	}
	summary.Attempted++

	started := time.Now()
	result, err := e.submitter.Submit(ctx, remote.NewSubmitRequest(t))
	elapsed := time.Since(started)
	if ctx.Err() != nil {
		return false
	}

	if err == nil && result.Success {
		e.metrics.ObserveSubmission(metrics.ResultAccepted, elapsed)
		if _, err := e.queue.UpdateStatus(ctx, t.ID, queue.StatusCompleted, ""); errors.Is(err, queue.ErrNotFound) {
			logger.Info("accepted transfer was removed during submission")
		} else if err != nil {
			summary.StoreErrors++
			logging.WarnWithContext(logger, "mark transfer completed failed", "status_update_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "accepted transfer will be resubmitted; the receiver deduplicates it"),
			)
		}
		summary.Succeeded++
		logger.Info("transfer submitted",
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "transfer_submitted"),
		)
		return true
	}

	message := failureMessage(result, err)
	outcome := metrics.ResultRejected
	if err != nil {
		outcome = metrics.ResultError
	}
	e.metrics.ObserveSubmission(outcome, elapsed)
	summary.Failed++

	updated, updateErr := e.queue.UpdateStatus(ctx, t.ID, queue.StatusFailed, message)
	if errors.Is(updateErr, queue.ErrNotFound) {
		logger.Info("failed transfer was removed during submission", logging.String("reason", message))
		return true
	}
	if updateErr != nil {
		summary.StoreErrors++
		logging.WarnWithContext(logger, "record transfer failure failed", "status_update_failed",
			logging.Error(updateErr),
			logging.String(logging.FieldImpact, "retry count not advanced"),
		)
		return true
	}

	logging.WarnWithContext(logger, "transfer submission failed", "transfer_failed",
		logging.String("reason", message),
		logging.Int("retry_count", updated.RetryCount),
		logging.String(logging.FieldErrorHint, "the transfer is retried after the cooldown"),
	)
	if e.policy.Exhausted(updated) {
		summary.Exhausted++
		logging.WarnWithContext(logger, "transfer retries exhausted", "transfer_exhausted",
			logging.Int("retry_count", updated.RetryCount),
			logging.String(logging.FieldErrorHint, "run 'handreceipt queue retry' after fixing the cause"),
			logging.String(logging.FieldImpact, "transfer will not be resent automatically"),
		)
		if err := e.notifier.NotifyRetryExhausted(ctx, t.ID, t.PropertyID, message); err != nil {
			logger.Debug("exhausted notification failed", logging.Error(err))
		}
	}
	return true
}

func (e *Engine) finish(ctx context.Context, summary Summary) {
	e.logger.Info("sync pass finished",
		logging.String(logging.FieldTrigger, summary.Trigger),
		logging.Int("attempted", summary.Attempted),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("purged", summary.Purged),
		logging.Int("store_errors", summary.StoreErrors),
		logging.Bool("interrupted", summary.Interrupted),
		logging.Duration("duration", summary.Duration),
		logging.String(logging.FieldEventType, "sync_finished"),
	)
	if summary.Attempted > 0 && ctx.Err() == nil {
		if err := e.notifier.NotifySyncCompleted(ctx, summary.Succeeded, summary.Failed, summary.Duration); err != nil {
			e.logger.Debug("sync notification failed", logging.Error(err))
		}
	}
	if summary.StoreErrors > 0 && ctx.Err() == nil {
		storeErr := fmt.Errorf("%d queue storage write(s) failed", summary.StoreErrors)
		if err := e.notifier.NotifyError(ctx, storeErr, "sync pass"); err != nil {
			e.logger.Debug("store error notification failed", logging.Error(err))
		}
	}
	e.record(summary)
}

func failureMessage(result remote.SubmitResult, err error) string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "request timed out"
		}
		return err.Error()
	}
	if msg := strings.TrimSpace(result.Error); msg != "" {
		return msg
	}
	return queue.DefaultFailureMessage
}

// groupByProperty partitions items by property and orders each group oldest
// first. Unparsable timestamps compare as strings.
func groupByProperty(items []queue.Transfer) map[string][]queue.Transfer {
	groups := make(map[string][]queue.Transfer)
	for _, item := range items {
		groups[item.PropertyID] = append(groups[item.PropertyID], item)
	}
	for _, group := range groups {
		slices.SortStableFunc(group, compareTimestamp)
	}
	return groups
}

func compareTimestamp(a, b queue.Transfer) int {
	at, aok := a.CreatedAt()
	bt, bok := b.CreatedAt()
	if aok && bok {
		return at.Compare(bt)
	}
	return strings.Compare(a.Timestamp, b.Timestamp)
}
