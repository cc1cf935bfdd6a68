package config

import (
	"context"
	"strings"

	"github.com/conrover/DocFlow/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserGuardPlugin enforces per-user isolation by automatically scoping
// queries/updates/deletes to the request's user_id when the model has a user_id column.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include user_id manually.
// - Admin/internal bypass is explicit via context flags.
type UserGuardPlugin struct{}

func NewUserGuardPlugin() *UserGuardPlugin { return &UserGuardPlugin{} }

func (p *UserGuardPlugin) Name() string { return "user_guard" }

func (p *UserGuardPlugin) Initialize(db *gorm.DB) error {
	// Query
	if err := db.Callback().Query().Before("gorm:query").Register("user_guard:query", userGuardCallback); err != nil {
		return err
	}
	// Row (First/Take)
	if err := db.Callback().Row().Before("gorm:row").Register("user_guard:row", userGuardCallback); err != nil {
		return err
	}
	// Update
	if err := db.Callback().Update().Before("gorm:update").Register("user_guard:update", userGuardCallback); err != nil {
		return err
	}
	// Delete
	if err := db.Callback().Delete().Before("gorm:delete").Register("user_guard:delete", userGuardCallback); err != nil {
		return err
	}
	return nil
}

func userGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassUserScope(ctx) {
		return
	}
	userID := userIdFromContext(ctx)
	if userID == "" {
		return
	}

	// Only apply if the current model/table includes a user_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasUserID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "user_id") {
			hasUserID = true
			break
		}
	}
	if !hasUserID {
		return
	}

	// Don't duplicate an explicit scope filter.
	if whereHasUserID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "user_id"},
				Value:  userID,
			},
		},
	})
}

func userIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyUserId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassUserScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipUserScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasUserID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasUserID(e) {
			return true
		}
	}
	return false
}

func exprHasUserID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsUserID(v.Column)
	case clause.Neq:
		return colIsUserID(v.Column)
	case clause.IN:
		return colIsUserID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasUserID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasUserID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "user_id")
	default:
		return false
	}
}

func colIsUserID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "user_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "user_id")
	default:
		return false
	}
}
