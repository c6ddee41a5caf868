package workflow

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/qbsync"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

func ListExpectationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := qbsync.ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		query := db.Where("realm_id = ?", realmId)
		if month := strings.TrimSpace(c.Query("month")); month != "" {
			query = query.Where("month = ?", month)
		}
		if status := strings.TrimSpace(c.Query("match_status")); status != "" {
			query = query.Where("match_status = ?", status)
		}

		var expectations []models.InvoiceExpectation
		if err := query.Order("month desc, customer_qb_id").Find(&expectations).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": expectations})
	}
}

func RecomputeReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := qbsync.ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		updated, err := RecomputeReconciliation(db, config.GetLogger(), realmId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

func ApproveExpectationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := qbsync.ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expectation id"})
			return
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		result := db.Model(&models.InvoiceExpectation{}).
			Where("id = ? AND realm_id = ?", id, realmId).
			Update("approved_for_creation", true)
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func CreateMissingInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmId, err := qbsync.ResolveRealmID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expectation id"})
			return
		}

		ctx := utils.SetRealmIdInContext(c.Request.Context(), realmId)
		db := config.GetDB().WithContext(ctx)

		err = CreateMissingInvoice(ctx, db, config.GetLogger(), qbsync.DefaultService().Client, uint(id))
		if err != nil {
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			case errors.Is(err, ErrInvoiceCreationDisabled),
				errors.Is(err, ErrNotApproved),
				errors.Is(err, ErrNotMissing):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
