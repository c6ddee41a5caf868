package qbsync

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
)

type VerificationResult struct {
	EntityType  string `json:"entity_type"`
	RemoteCount int    `json:"remote_count"`
	LocalCount  int    `json:"local_count"`
	Match       bool   `json:"match"`
	Error       string `json:"error,omitempty"`
}

// Verifier compares remote and local row counts per entity type. It is an
// operator sanity check, not part of the regular sync path.
type Verifier struct {
	client remoteQuerier
	db     func() *gorm.DB
	logger *logrus.Logger
}

func NewVerifier(client remoteQuerier, db func() *gorm.DB, logger *logrus.Logger) *Verifier {
	return &Verifier{client: client, db: db, logger: logger}
}

// VerifyCounts checks each type independently: a remote count failure marks
// that one row as errored and verification continues with the next type.
func (v *Verifier) VerifyCounts(ctx context.Context, realmID string, entityTypes []string) []VerificationResult {
	results := make([]VerificationResult, 0, len(entityTypes))
	for _, entityType := range entityTypes {
		results = append(results, v.verifyOne(ctx, realmID, entityType))
	}
	return results
}

func (v *Verifier) verifyOne(ctx context.Context, realmID string, entityType string) VerificationResult {
	result := VerificationResult{EntityType: entityType}
	reg, err := lookupEntityType(entityType)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	remote, err := v.remoteCount(ctx, realmID, entityType)
	if err != nil {
		config.LogError(v.logger, "qbsync", "verifyOne", "remote count "+entityType, realmID, err)
		result.Error = err.Error()
		return result
	}
	result.RemoteCount = remote

	var local int64
	err = v.db().WithContext(ctx).
		Table(reg.Table).
		Where("realm_id = ? AND is_deleted = ?", realmID, false).
		Count(&local).Error
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.LocalCount = int(local)
	result.Match = result.RemoteCount == result.LocalCount
	return result
}

func (v *Verifier) remoteCount(ctx context.Context, realmID string, entityType string) (int, error) {
	body, err := v.client.Query(ctx, realmID, "SELECT COUNT(*) FROM "+entityType)
	if err != nil {
		return 0, err
	}
	var envelope struct {
		QueryResponse struct {
			TotalCount int `json:"totalCount"`
		} `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return 0, err
	}
	return envelope.QueryResponse.TotalCount, nil
}
