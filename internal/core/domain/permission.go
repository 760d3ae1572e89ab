package domain

// Permission enumerates the operations a credential may perform.
type Permission string

const (
	PermissionRead     Permission = "read"
	PermissionDeposit  Permission = "deposit"
	PermissionTransfer Permission = "transfer"
)

// AllPermissions is the full capability set granted to a valid user session.
var AllPermissions = PermissionSet{PermissionRead, PermissionDeposit, PermissionTransfer}

// PermissionSet is the enumerated capability set attached to a credential.
// Stored as a JSON array on api_keys rows.
type PermissionSet []Permission

// Has reports whether p grants the given permission.
func (ps PermissionSet) Has(p Permission) bool {
	for _, have := range ps {
		if have == p {
			return true
		}
	}
	return false
}

// Valid reports whether every entry is a known permission.
func (ps PermissionSet) Valid() bool {
	for _, p := range ps {
		if p != PermissionRead && p != PermissionDeposit && p != PermissionTransfer {
			return false
		}
	}
	return len(ps) > 0
}

// Strings returns the set as plain strings for storage.
func (ps PermissionSet) Strings() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// PermissionSetFromStrings parses stored permission strings.
func PermissionSetFromStrings(raw []string) PermissionSet {
	ps := make(PermissionSet, len(raw))
	for i, s := range raw {
		ps[i] = Permission(s)
	}
	return ps
}
