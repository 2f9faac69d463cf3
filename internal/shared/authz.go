package shared

import "net/http"

// Permissions checked by HTTP handlers.
const (
	PermCatalogView      = "catalog.view"
	PermCatalogEdit      = "catalog.edit"
	PermCustomersEdit    = "customers.edit"
	PermInventoryView    = "inventory.view"
	PermInventoryAdjust  = "inventory.adjust"
	PermSalesCreate      = "sales.create"
	PermSalesView        = "sales.view"
	PermPurchasesEdit    = "purchases.edit"
	PermPurchasesApprove = "purchases.approve"
	PermReservationsEdit = "reservations.edit"
	PermReportsView      = "reports.view"
	PermAuditView        = "audit.view"
	PermUsersEdit        = "users.edit"
	PermSettingsEdit     = "settings.edit"
)

var rolePermissions = map[string]map[string]bool{
	RoleAdmin: {
		PermCatalogView: true, PermCatalogEdit: true, PermCustomersEdit: true,
		PermInventoryView: true, PermInventoryAdjust: true,
		PermSalesCreate: true, PermSalesView: true,
		PermPurchasesEdit: true, PermPurchasesApprove: true,
		PermReservationsEdit: true, PermReportsView: true, PermAuditView: true,
		PermUsersEdit: true, PermSettingsEdit: true,
	},
	RoleSeller: {
		PermCatalogView: true, PermCustomersEdit: true, PermInventoryView: true,
		PermSalesCreate: true, PermSalesView: true, PermReservationsEdit: true,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role, perm string) bool {
	return rolePermissions[role][perm]
}

// PermissionGuard builds middleware that rejects actors lacking perm.
type PermissionGuard interface {
	Require(perm string) func(http.Handler) http.Handler
}
