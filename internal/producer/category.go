package producer

import "github.com/dbaudit/collector/internal/wire"

// Category is the policy-gated group a Type belongs to, matching the
// config keys spec.md §6 names (session, server_action, lock_user,
// privilege_admin, user_violation, ddl, dml, dml_select, exec, copy, set).
type Category int

const (
	CategorySession Category = iota
	CategoryServerAction
	CategoryLockUser
	CategoryPrivilegeAdmin
	CategoryUserViolation
	CategoryDDL
	CategoryDML
	CategoryDMLSelect
	CategoryExec
	CategoryCopy
	CategorySet
)

// categoryFor maps a wire.Type to its gating Category, mirroring
// audit_report's switch in the original collector. ok is false for
// wire.TypeUnknown and for wire.TypeInternalEvent, which is never gated —
// internal events are always recorded.
func categoryFor(t wire.Type) (Category, bool) {
	switch t {
	case wire.TypeLoginSuccess, wire.TypeLoginFailed, wire.TypeUserLogout:
		return CategorySession, true
	case wire.TypeSystemStart, wire.TypeSystemStop, wire.TypeSystemRecover, wire.TypeSystemSwitch:
		return CategoryServerAction, true
	case wire.TypeLockUser, wire.TypeUnlockUser:
		return CategoryLockUser, true
	case wire.TypeGrantRole, wire.TypeRevokeRole:
		return CategoryPrivilegeAdmin, true
	case wire.TypeUserViolation:
		return CategoryUserViolation, true
	case wire.TypeDDLDatabase, wire.TypeDDLDirectory, wire.TypeDDLTablespace, wire.TypeDDLSchema,
		wire.TypeDDLUser, wire.TypeDDLTable, wire.TypeDDLIndex, wire.TypeDDLView,
		wire.TypeDDLTrigger, wire.TypeDDLFunction:
		return CategoryDDL, true
	case wire.TypeDMLAction:
		return CategoryDML, true
	case wire.TypeDMLActionSelect:
		return CategoryDMLSelect, true
	case wire.TypeFunctionExec:
		return CategoryExec, true
	case wire.TypeCopyTo, wire.TypeCopyFrom:
		return CategoryCopy, true
	case wire.TypeSetParameter:
		return CategorySet, true
	default:
		return 0, false
	}
}

// Policy is the decoded per-category enable set, one bool per config key.
type Policy struct {
	Session        bool
	ServerAction   bool
	LockUser       bool
	PrivilegeAdmin bool
	UserViolation  bool
	DDL            bool
	DML            bool
	DMLSelect      bool
	Exec           bool
	Copy           bool
	Set            bool
}

func (p Policy) allows(c Category) bool {
	switch c {
	case CategorySession:
		return p.Session
	case CategoryServerAction:
		return p.ServerAction
	case CategoryLockUser:
		return p.LockUser
	case CategoryPrivilegeAdmin:
		return p.PrivilegeAdmin
	case CategoryUserViolation:
		return p.UserViolation
	case CategoryDDL:
		return p.DDL
	case CategoryDML:
		return p.DML
	case CategoryDMLSelect:
		return p.DMLSelect
	case CategoryExec:
		return p.Exec
	case CategoryCopy:
		return p.Copy
	case CategorySet:
		return p.Set
	default:
		return false
	}
}
