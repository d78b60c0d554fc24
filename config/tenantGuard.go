package config

import (
	"context"
	"strings"

	"github.com/inayat82/pos-backoffice/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantGuardPlugin enforces multi-tenant isolation by automatically scoping
// queries/updates/deletes to the request's admin_id when the model has an admin_id column.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include admin_id manually.
// - Internal bypass is explicit via context flag.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	// Query
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	// Row (First/Take)
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	// Update
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	// Delete
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassTenantScope(ctx) {
		return
	}
	adminID := adminIdFromContext(ctx)
	if adminID == "" {
		return
	}

	// Only apply if the current model/table includes an admin_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasAdminID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "admin_id") {
			hasAdminID = true
			break
		}
	}
	if !hasAdminID {
		return
	}

	// Don't duplicate an explicit tenant filter.
	if whereHasAdminID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "admin_id"},
				Value:  adminID,
			},
		},
	})
}

func adminIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyAdminId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope)
	return ok && v
}

func whereHasAdminID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasAdminID(e) {
			return true
		}
	}
	return false
}

func exprHasAdminID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsAdminID(v.Column)
	case clause.Neq:
		return colIsAdminID(v.Column)
	case clause.IN:
		return colIsAdminID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasAdminID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasAdminID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "admin_id")
	default:
		return false
	}
}

func colIsAdminID(col interface{}) bool {
	switch c := col.(type) {
	case clause.Column:
		return strings.EqualFold(c.Name, "admin_id")
	case string:
		return strings.EqualFold(c, "admin_id") || strings.Contains(strings.ToLower(c), ".admin_id")
	default:
		return false
	}
}
