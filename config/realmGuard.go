package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/qbsync_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RealmGuardPlugin enforces tenant isolation by automatically scoping
// queries/updates/deletes to the request's realm_id when the model has a realm_id column.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include realm_id manually.
// - Internal bypass is explicit via context flags (worker paths that iterate realms).
type RealmGuardPlugin struct{}

func NewRealmGuardPlugin() *RealmGuardPlugin { return &RealmGuardPlugin{} }

func (p *RealmGuardPlugin) Name() string { return "realm_guard" }

func (p *RealmGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("realm_guard:query", realmGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("realm_guard:row", realmGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("realm_guard:update", realmGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("realm_guard:delete", realmGuardCallback); err != nil {
		return err
	}
	return nil
}

func realmGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassRealmScope(ctx) {
		return
	}
	realmID := realmIdFromContext(ctx)
	if realmID == "" {
		return
	}

	// Only apply if the current model/table includes a realm_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasRealmID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "realm_id") {
			hasRealmID = true
			break
		}
	}
	if !hasRealmID {
		return
	}

	// Don't duplicate an explicit realm filter.
	if whereHasRealmID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "realm_id"},
				Value:  realmID,
			},
		},
	})
}

func realmIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyRealmId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassRealmScope(ctx context.Context) bool {
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipRealmScope); ok && v {
		return true
	}
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); ok && v {
		return true
	}
	return false
}

func whereHasRealmID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasRealmID(e) {
			return true
		}
	}
	return false
}

func exprHasRealmID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsRealmID(v.Column)
	case clause.Neq:
		return colIsRealmID(v.Column)
	case clause.Gt:
		return colIsRealmID(v.Column)
	case clause.Gte:
		return colIsRealmID(v.Column)
	case clause.Lt:
		return colIsRealmID(v.Column)
	case clause.Lte:
		return colIsRealmID(v.Column)
	case clause.IN:
		return colIsRealmID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasRealmID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasRealmID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "realm_id")
	default:
		return false
	}
}

func colIsRealmID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "realm_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "realm_id")
	default:
		return false
	}
}
