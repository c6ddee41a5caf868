package qbsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		var token models.QuickbooksToken
		connected := true
		if err := db.Where("realm_id = ? AND is_active = ?", realmId, true).Take(&token).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			connected = false
		}

		resp := ConnectionStatusResponse{RealmId: realmId}
		if connected {
			resp.Status = ConnectionStatusConnected
			resp.ConnectedAt = formatTime(&token.CreatedAt)
		} else {
			resp.Status = ConnectionStatusDisconnected
		}

		var lastLog models.QuickbooksSyncLog
		if err := db.Where("realm_id = ?", realmId).Order("id desc").Take(&lastLog).Error; err == nil {
			resp.LastSyncAt = formatTime(&lastLog.SyncStartedAt)
		}
		var lastSuccess models.QuickbooksSyncLog
		if err := db.Where("realm_id = ? AND status = ?", realmId, models.SyncLogStatusSuccess).
			Order("id desc").Take(&lastSuccess).Error; err == nil {
			resp.LastSuccessSyncAt = formatTime(&lastSuccess.SyncStartedAt)
		}

		c.JSON(http.StatusOK, resp)
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.FirstValidationError(err)})
			return
		}
		// A body-supplied realm gets the same authorization as a query
		// override; a non-admin may only connect their own realm.
		if req.RealmId != "" && req.RealmId != realmId {
			username, _ := utils.GetUsernameFromContext(c.Request.Context())
			user, err := lookupUser(c.Request.Context(), username)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			if err := authorizeRealmAccess(user, req.RealmId); err != nil {
				c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
				return
			}
			realmId = req.RealmId
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		expiresAt := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		err = db.Transaction(func(tx *gorm.DB) error {
			// One active credential per realm; the old row stays for audit.
			if err := tx.Model(&models.QuickbooksToken{}).
				Where("realm_id = ? AND is_active = ?", realmId, true).
				Update("is_active", false).Error; err != nil {
				return err
			}
			return tx.Create(&models.QuickbooksToken{
				RealmId:              realmId,
				AccessToken:          req.AccessToken,
				RefreshToken:         req.RefreshToken,
				AccessTokenExpiresAt: expiresAt,
				IsActive:             true,
			}).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "realm_id": realmId})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		if err := db.Model(&models.QuickbooksToken{}).
			Where("realm_id = ? AND is_active = ?", realmId, true).
			Update("is_active", false).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func StartSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req StartSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		if _, err := resolveEntityTypes(req.EntityTypes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		if !hasActiveConnection(ctx, realmId) {
			c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
			return
		}

		jobId := uuid.NewString()
		payload := SyncPubSubPayload{
			JobId:   jobId,
			RealmId: realmId,
			Options: SyncOptions{
				EntityTypes: req.EntityTypes,
				Verify:      req.Verify,
				TriggeredBy: models.SyncTriggeredManual,
			},
		}
		_ = config.SetRedisObject(jobStatusKey(jobId), &JobStatus{
			JobId:     jobId,
			RealmId:   realmId,
			State:     JobStateQueued,
			StartedAt: time.Now().UTC(),
		}, jobStatusTTL)

		if err := PublishSyncRun(ctx, payload); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobId})
	}
}

// StreamProgressHandler streams a job's progress events over SSE. Attaching
// after completion replays the buffered events, so a reconnecting client
// still gets the terminal event.
func StreamProgressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := ResolveRealmID(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		jobId := strings.TrimSpace(c.Param("jobId"))
		if jobId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "job id is required"})
			return
		}

		svc := getService()
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		// Without an explicit offset the hub's delivered cursor decides where
		// to resume, so a reconnect never replays events it already received.
		offset := -1
		if v := strings.TrimSpace(c.Query("offset")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}
		for {
			var events []ProgressEvent
			var done bool
			var err error
			if offset >= 0 {
				events, done, err = svc.Hub.Next(c.Request.Context(), jobId, offset)
				offset += len(events)
			} else {
				events, done, err = svc.Hub.NextUndelivered(c.Request.Context(), jobId)
			}
			if err != nil {
				return
			}
			for _, event := range events {
				c.SSEvent("progress", event)
			}
			c.Writer.Flush()
			if done {
				c.SSEvent("done", gin.H{"job_id": jobId})
				c.Writer.Flush()
				return
			}
		}
	}
}

func JobStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := ResolveRealmID(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		jobId := strings.TrimSpace(c.Param("jobId"))

		var status JobStatus
		found, err := config.GetRedisObject(jobStatusKey(jobId), &status)
		if err == nil && found {
			c.JSON(http.StatusOK, status)
			return
		}

		// Cache miss: the job may have finished more than an hour ago.
		var syncLog models.QuickbooksSyncLog
		if err := config.GetDB().WithContext(c.Request.Context()).
			Where("job_id = ?", jobId).Take(&syncLog).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, jobStatusFromLog(syncLog))
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		var logs []models.QuickbooksSyncLog
		if err := config.GetDB().WithContext(ctx).
			Where("realm_id = ?", realmId).
			Order("id desc").
			Limit(limit).
			Find(&logs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncLogResponse, 0, len(logs))
		for _, log := range logs {
			items = append(items, mapLogToResponse(log))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		var syncLog models.QuickbooksSyncLog
		if err := db.Where("id = ? AND realm_id = ?", id, realmId).Take(&syncLog).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var deletions []models.QuickbooksDeletionLog
		if err := db.Where("sync_log_id = ?", syncLog.ID).Order("id desc").Find(&deletions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncLogResponse: mapLogToResponse(syncLog),
			Stats:           syncLog.StatsJSON,
			Verification:    syncLog.VerificationJSON,
			Deletions:       mapDeletions(deletions),
		})
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		var syncLog models.QuickbooksSyncLog
		if err := db.Where("id = ? AND realm_id = ?", id, realmId).Take(&syncLog).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if !hasActiveConnection(ctx, realmId) {
			c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
			return
		}

		jobId := uuid.NewString()
		payload := SyncPubSubPayload{
			JobId:   jobId,
			RealmId: realmId,
			Options: SyncOptions{
				TriggeredBy: models.SyncTriggeredRetry,
				ParentLogId: &syncLog.ID,
			},
		}
		if err := PublishSyncRun(ctx, payload); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobId})
	}
}

func VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		entityTypes := SupportedEntityTypes()
		if v := strings.TrimSpace(c.Query("entities")); v != "" {
			entityTypes, err = resolveEntityTypes(utils.SplitAndTrim(v))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		if !hasActiveConnection(ctx, realmId) {
			c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
			return
		}

		results := getService().Verifier.VerifyCounts(ctx, realmId, entityTypes)
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// BackfillHandler starts a full historical import in the background and
// reports progress on the job's stream like a regular sync.
func BackfillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req BackfillRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		entityTypes, err := resolveEntityTypes(req.EntityTypes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		dateRange, err := req.dateRange()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		if !hasActiveConnection(ctx, realmId) {
			c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
			return
		}

		jobId := uuid.NewString()
		go runBackfill(jobId, realmId, entityTypes, dateRange)
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobId})
	}
}

func runBackfill(jobId string, realmId string, entityTypes []string, dateRange *DateRange) {
	svc := getService()
	logger := config.GetLogger()
	ctx := utils.SetRealmIdInContext(context.Background(), realmId)

	results := make([]ImportResult, 0, len(entityTypes))
	for _, entityType := range entityTypes {
		svc.Hub.Publish(jobId, ProgressEvent{Step: ProgressStepSyncing, Message: "importing " + entityType})
		result, err := svc.Importer.ImportEntityType(ctx, realmId, entityType, dateRange)
		if err != nil {
			config.LogError(logger, "qbsync", "runBackfill", "import "+entityType, realmId, err)
			svc.Hub.Publish(jobId, ProgressEvent{Step: ProgressStepError, Message: err.Error()})
			return
		}
		results = append(results, result)
	}
	svc.Hub.Publish(jobId, ProgressEvent{Step: ProgressStepComplete, Message: "backfill complete", Data: results})
}

func hasActiveConnection(ctx context.Context, realmId string) bool {
	var count int64
	err := config.GetDB().WithContext(ctx).Model(&models.QuickbooksToken{}).
		Where("realm_id = ? AND is_active = ?", realmId, true).
		Count(&count).Error
	return err == nil && count > 0
}

// ResolveRealmID decides which QuickBooks company the request operates on:
// an explicit realm_id query parameter (admin or owning user only), else the
// realm attached to the authenticated user.
func ResolveRealmID(c *gin.Context) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", errors.New("unauthorized")
	}

	user, err := lookupUser(c.Request.Context(), username)
	if err != nil {
		return "", err
	}
	if user.Role == models.UserRoleAdmin {
		c.Request = c.Request.WithContext(utils.SetIsAdminInContext(c.Request.Context()))
	}

	realmId := strings.TrimSpace(c.Query("realm_id"))
	if realmId != "" {
		if err := authorizeRealmAccess(user, realmId); err != nil {
			return "", err
		}
		return realmId, nil
	}

	realmId = strings.TrimSpace(user.RealmId)
	if realmId == "" {
		return "", errors.New("realm_id is required")
	}
	return realmId, nil
}

func authorizeRealmAccess(user *models.User, realmId string) error {
	if user.Role == models.UserRoleAdmin {
		return nil
	}
	if user.RealmId != realmId {
		return errors.New("unauthorized")
	}
	return nil
}

func lookupUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return nil, errors.New("db is nil")
		}
		if err := db.WithContext(ctx).Model(&models.User{}).
			Where("username = ?", username).Take(&user).Error; err != nil {
			return nil, errors.New("unauthorized")
		}
	}
	return &user, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func jobStatusFromLog(log models.QuickbooksSyncLog) JobStatus {
	state := JobStateRunning
	switch log.Status {
	case models.SyncLogStatusSuccess, models.SyncLogStatusCompleted:
		state = JobStateCompleted
	case models.SyncLogStatusFailed:
		state = JobStateFailed
	}
	return JobStatus{
		JobId:        log.JobId,
		RealmId:      log.RealmId,
		State:        state,
		StartedAt:    log.SyncStartedAt,
		CompletedAt:  log.CompletedAt,
		ChangedSince: &log.ChangedSince,
		Created:      log.CreatedCount,
		Updated:      log.UpdatedCount,
		Deleted:      log.DeletedCount,
		Errors:       log.ErrorCount,
		TotalChanges: log.TotalChanges,
		Error:        log.ErrorMessage,
	}
}

func mapLogToResponse(log models.QuickbooksSyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:           log.ID,
		JobId:        log.JobId,
		Status:       log.Status,
		TriggeredBy:  log.TriggeredBy,
		StartedAt:    formatTime(&log.SyncStartedAt),
		CompletedAt:  formatTime(log.CompletedAt),
		ChangedSince: formatTime(&log.ChangedSince),
		Created:      log.CreatedCount,
		Updated:      log.UpdatedCount,
		Deleted:      log.DeletedCount,
		Errors:       log.ErrorCount,
		TotalChanges: log.TotalChanges,
		ErrorMessage: log.ErrorMessage,
	}
}

func mapDeletions(deletions []models.QuickbooksDeletionLog) []DeletionResponse {
	out := make([]DeletionResponse, 0, len(deletions))
	for _, d := range deletions {
		out = append(out, DeletionResponse{
			ID:              d.ID,
			EntityType:      d.EntityType,
			QbId:            d.QbId,
			RemoteDeletedAt: formatTime(d.RemoteDeletedAt),
		})
	}
	return out
}
