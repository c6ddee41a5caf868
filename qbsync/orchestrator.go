package qbsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

const jobStatusTTL = time.Hour

// Orchestrator drives one incremental sync run through its states:
// connecting, syncing, optional verifying, then completed or failed. Every
// run persists exactly one sync-log row, inserted up front and finalized
// once; a failed run never advances the checkpoint.
type Orchestrator struct {
	db       func() *gorm.DB
	client   *Client
	auth     *TokenManager
	applier  *Applier
	verifier *Verifier
	hub      *ProgressHub
	logger   *logrus.Logger
	now      func() time.Time
}

func NewOrchestrator(db func() *gorm.DB, client *Client, auth *TokenManager, hub *ProgressHub, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		db:       db,
		client:   client,
		auth:     auth,
		applier:  NewApplier(db, logger),
		verifier: NewVerifier(client, db, logger),
		hub:      hub,
		logger:   logger,
		now:      time.Now,
	}
}

// emit reports progress to whoever is watching. Observer trouble never
// fails the run: the hub is non-blocking and in-memory, and a nil hub is
// simply skipped.
func (o *Orchestrator) emit(jobID string, step string, message string, data any) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(jobID, ProgressEvent{Step: step, Message: message, Data: data})
}

func (o *Orchestrator) cacheStatus(status *JobStatus) {
	if err := config.SetRedisObject(jobStatusKey(status.JobId), status, jobStatusTTL); err != nil {
		config.LogError(o.logger, "qbsync", "cacheStatus", "cache job status", status.JobId, err)
	}
}

// Run executes one sync for the realm. The caller supplies a fresh jobID;
// the returned error is also recorded on the sync log and the job status.
func (o *Orchestrator) Run(ctx context.Context, jobID string, realmID string, opts SyncOptions) error {
	startedAt := o.now().UTC()
	triggeredBy := opts.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.SyncTriggeredManual
	}

	entityTypes, err := resolveEntityTypes(opts.EntityTypes)
	if err != nil {
		return err
	}

	syncLog := models.QuickbooksSyncLog{
		RealmId:       realmID,
		JobId:         jobID,
		Status:        models.SyncLogStatusInProgress,
		TriggeredBy:   triggeredBy,
		SyncStartedAt: startedAt,
		ParentLogId:   opts.ParentLogId,
	}
	if err := o.db().WithContext(ctx).Create(&syncLog).Error; err != nil {
		return err
	}

	status := &JobStatus{JobId: jobID, RealmId: realmID, State: JobStateRunning, StartedAt: startedAt}
	o.cacheStatus(status)

	o.emit(jobID, ProgressStepConnecting, "resolving quickbooks connection", nil)
	if _, err := o.auth.GetActiveToken(ctx, realmID); err != nil {
		return o.fail(ctx, &syncLog, status, jobID, err)
	}

	changedSince, source := ResolveStartPoint(ctx, o.db(), realmID, startedAt)
	syncLog.ChangedSince = changedSince
	status.ChangedSince = &changedSince
	if dbErr := o.db().WithContext(ctx).Model(&syncLog).Update("changed_since", changedSince).Error; dbErr != nil {
		config.LogError(o.logger, "qbsync", "RunSync", "Failed to record changed_since on sync log", realmID, dbErr)
	}
	o.logger.WithFields(logrus.Fields{
		"realm_id":      realmID,
		"job_id":        jobID,
		"changed_since": FormatChangedSince(changedSince),
		"source":        source,
	}).Info("sync checkpoint resolved")

	o.emit(jobID, ProgressStepSyncing, "fetching changes since "+FormatChangedSince(changedSince), nil)
	changes, err := o.client.FetchChanges(ctx, realmID, entityTypes, changedSince)
	if err != nil {
		return o.fail(ctx, &syncLog, status, jobID, fmt.Errorf("fetch cdc changes: %w", err))
	}
	o.emit(jobID, ProgressStepSyncing, fmt.Sprintf("%d changes received", changes.Total()), nil)

	total := ApplyResult{}
	perType := make([]ApplyResult, 0, len(entityTypes))
	for _, reg := range entityRegistry {
		events := changes.Events[reg.Name]
		if len(events) == 0 || !containsString(entityTypes, reg.Name) {
			continue
		}
		o.emit(jobID, ProgressStepApplying, fmt.Sprintf("applying %d %s changes", len(events), reg.Name), nil)
		result, err := o.applier.Apply(ctx, realmID, reg.Name, events, syncLog.ID)
		if err != nil {
			return o.fail(ctx, &syncLog, status, jobID, err)
		}
		perType = append(perType, result)
		total = total.Add(result)
	}

	var verification []VerificationResult
	if opts.Verify || config.SyncVerifyCounts() {
		o.emit(jobID, ProgressStepVerifying, "verifying entity counts", nil)
		verification = o.verifier.VerifyCounts(ctx, realmID, entityTypes)
	}

	completedAt := o.now().UTC()
	statsJSON, _ := json.Marshal(perType)
	updates := successSyncLogUpdates(startedAt, completedAt, total, statsJSON)
	if verification != nil {
		verificationJSON, _ := json.Marshal(verification)
		updates["verification_json"] = verificationJSON
	}
	if err := o.db().WithContext(ctx).Model(&syncLog).Updates(updates).Error; err != nil {
		return o.fail(ctx, &syncLog, status, jobID, err)
	}

	status.State = JobStateCompleted
	status.CompletedAt = &completedAt
	status.Created = total.Created
	status.Updated = total.Updated
	status.Deleted = total.Deleted
	status.Errors = total.Errors
	status.TotalChanges = total.Created + total.Updated + total.Deleted
	o.cacheStatus(status)

	o.emit(jobID, ProgressStepComplete, "sync complete", map[string]any{
		"created":      total.Created,
		"deleted":      total.Deleted,
		"errors":       total.Errors,
		"verification": verification,
	})
	o.logger.WithFields(logrus.Fields{
		"realm_id": realmID,
		"job_id":   jobID,
		"created":  total.Created,
		"deleted":  total.Deleted,
		"errors":   total.Errors,
		"elapsed":  completedAt.Sub(startedAt).String(),
	}).Info("sync run complete")
	return nil
}

// successSyncLogUpdates finalizes a sync log for a successful run. The
// checkpoint advances to the run's start time so the next run picks up any
// change that landed while this one was in flight.
func successSyncLogUpdates(startedAt, completedAt time.Time, total ApplyResult, statsJSON []byte) map[string]any {
	return map[string]any{
		"status":        models.SyncLogStatusSuccess,
		"completed_at":  completedAt,
		"checkpoint":    startedAt,
		"created_count": total.Created,
		"updated_count": total.Updated,
		"deleted_count": total.Deleted,
		"error_count":   total.Errors,
		"total_changes": total.Created + total.Updated + total.Deleted,
		"stats_json":    statsJSON,
	}
}

// failureSyncLogUpdates finalizes a sync log for a failed run. The checkpoint
// column is deliberately absent: a failed run must not advance it, so the next
// run re-covers the same window.
func failureSyncLogUpdates(completedAt time.Time, cause error) map[string]any {
	return map[string]any{
		"status":        models.SyncLogStatusFailed,
		"completed_at":  completedAt,
		"error_message": cause.Error(),
	}
}

func (o *Orchestrator) fail(ctx context.Context, syncLog *models.QuickbooksSyncLog, status *JobStatus, jobID string, cause error) error {
	completedAt := o.now().UTC()
	err := o.db().WithContext(ctx).Model(syncLog).Updates(failureSyncLogUpdates(completedAt, cause)).Error
	if err != nil {
		config.LogError(o.logger, "qbsync", "fail", "persist failed sync log", jobID, err)
	}

	status.State = JobStateFailed
	status.CompletedAt = &completedAt
	status.Error = cause.Error()
	o.cacheStatus(status)

	o.emit(jobID, ProgressStepError, cause.Error(), nil)
	config.LogError(o.logger, "qbsync", "Run", "sync run failed", syncLog.RealmId, cause)
	return cause
}

func resolveEntityTypes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return SupportedEntityTypes(), nil
	}
	requested = utils.UniqueSlice(requested)
	out := make([]string, 0, len(requested))
	for _, entityType := range requested {
		if _, err := lookupEntityType(entityType); err != nil {
			return nil, err
		}
		out = append(out, entityType)
	}
	return out, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
