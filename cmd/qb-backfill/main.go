package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/qbsync"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

// qb-backfill runs the full historical import from the command line, for the
// first sync after connecting a company or for repairing a gap.
func main() {
	var (
		realmId  = flag.String("realm", "", "QuickBooks realm id (required)")
		entities = flag.String("entities", "", "comma-separated entity types; empty means all")
		from     = flag.String("from", "", "TxnDate lower bound, YYYY-MM-DD (transactional kinds only)")
		to       = flag.String("to", "", "TxnDate upper bound, YYYY-MM-DD")
	)
	flag.Parse()

	logger := config.GetLogger()
	if *realmId == "" {
		logger.Error("missing -realm")
		flag.Usage()
		os.Exit(2)
	}

	entityTypes := qbsync.SupportedEntityTypes()
	if *entities != "" {
		entityTypes = utils.SplitAndTrim(*entities)
	}

	var dateRange *qbsync.DateRange
	if *from != "" || *to != "" {
		dateRange = &qbsync.DateRange{}
		var err error
		if *from != "" {
			if dateRange.From, err = time.Parse("2006-01-02", *from); err != nil {
				logger.WithField("from", *from).Error("invalid -from date")
				os.Exit(2)
			}
		}
		if *to != "" {
			if dateRange.To, err = time.Parse("2006-01-02", *to); err != nil {
				logger.WithField("to", *to).Error("invalid -to date")
				os.Exit(2)
			}
		}
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx := utils.SetRealmIdInContext(context.Background(), *realmId)
	svc := qbsync.DefaultService()

	failed := false
	for _, entityType := range entityTypes {
		result, err := svc.Importer.ImportEntityType(ctx, *realmId, entityType, dateRange)
		if err != nil {
			config.LogError(logger, "qb-backfill", "main", "import "+entityType, *realmId, err)
			failed = true
			continue
		}
		logger.WithFields(logrus.Fields{
			"entity_type":  result.EntityType,
			"remote_total": result.RemoteTotal,
			"imported":     result.Imported,
			"errors":       result.Errors,
			"elapsed":      result.Elapsed.String(),
			"per_second":   result.PerSecond,
		}).Info("import finished")
	}
	if failed {
		os.Exit(1)
	}
}
