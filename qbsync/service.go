package qbsync

import (
	"sync"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

// Service bundles the sync components behind one construction point. The
// HTTP handlers and the pub/sub worker share a single instance so the rate
// limiter and progress hub are process-wide.
type Service struct {
	Auth         *TokenManager
	Client       *Client
	Orchestrator *Orchestrator
	Importer     *Importer
	Verifier     *Verifier
	Hub          *ProgressHub
}

var (
	serviceOnce sync.Once
	service     *Service
)

// DefaultService exposes the shared instance to other packages that need
// the sync client, e.g. the reconciliation workflow's invoice creation.
func DefaultService() *Service { return getService() }

func getService() *Service {
	serviceOnce.Do(func() {
		logger := config.GetLogger()
		db := func() *gorm.DB { return config.GetDB() }
		limiter := NewRateLimiter(
			float64(utils.IntFromEnv("QBO_RATE_RPS", 8)),
			utils.IntFromEnv("QBO_RATE_BURST", 1),
			int64(utils.IntFromEnv("QBO_MAX_CONCURRENT", 6)),
		)
		auth := NewTokenManager(db, config.GetRedisLock(), logger)
		client := NewClient(auth, limiter, logger)
		hub := NewProgressHub()
		service = &Service{
			Auth:         auth,
			Client:       client,
			Orchestrator: NewOrchestrator(db, client, auth, hub, logger),
			Importer:     NewImporter(client, db, logger),
			Verifier:     NewVerifier(client, db, logger),
			Hub:          hub,
		}
	})
	return service
}
