package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
//
// controller: ingests and curates events, attaches receipts.
// approver:   may attempt approve/close and packet transitions.
// auditor:    read access to the audit export surface.
// viewer:     read-only event access and the live stream.
const (
	RoleAdmin      = "admin"
	RoleController = "controller"
	RoleApprover   = "approver"
	RoleAuditor    = "auditor"
	RoleViewer     = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
