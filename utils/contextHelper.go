package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/qbsync_backend/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyRealmId       = appctx.ContextKeyRealmId
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeyIsAdmin        = appctx.ContextKeyIsAdmin
	ContextKeySkipRealmScope = appctx.ContextKeySkipRealmScope
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetRealmIdInContext(ctx context.Context, realmId string) context.Context {
	return appctx.Set(ctx, ContextKeyRealmId, realmId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetIsAdminInContext(ctx context.Context) context.Context {
	return appctx.Set(ctx, ContextKeyIsAdmin, true)
}

func SetSkipRealmScopeInContext(ctx context.Context) context.Context {
	return appctx.Set(ctx, ContextKeySkipRealmScope, true)
}
