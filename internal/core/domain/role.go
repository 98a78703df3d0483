package domain

// Rank is the integer ordering over roles used for hierarchical
// authorization. Unknown role names always map to RankNone rather than
// failing, so a corrupted membership can never grant authority.
type Rank int

const (
	RankNone       Rank = 0
	RankUser       Rank = 1
	RankAdmin      Rank = 2
	RankSuperAdmin Rank = 3
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// rankTable is the fixed name→rank mapping for system roles. Custom roles
// are deliberately absent: they carry permission claims but no hierarchy.
var rankTable = map[string]Rank{
	RoleUser:       RankUser,
	RoleAdmin:      RankAdmin,
	RoleSuperAdmin: RankSuperAdmin,
}

// Role is a named permission group. System roles (user, admin, superadmin)
// are immutable in name; custom roles carry arbitrary permission claims.
type Role struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
}

// Rank returns the hierarchy rank of the role name.
func (r Role) Rank() Rank {
	return RankOf(r.Name)
}

// IsSystem reports whether the role name is one of the built-in system roles.
func (r Role) IsSystem() bool {
	_, ok := rankTable[r.Name]
	return ok
}

// RankOf maps a single role name to its rank; unrecognized names rank RankNone.
func RankOf(name string) Rank {
	return rankTable[name]
}

// HighestRank returns the highest rank among the given role names.
// An empty set ranks RankNone.
func HighestRank(names []string) Rank {
	highest := RankNone
	for _, n := range names {
		if r := RankOf(n); r > highest {
			highest = r
		}
	}
	return highest
}

// IsAdministrative reports whether the role name is one whose holder count
// must never drop to zero (admin or superadmin).
func IsAdministrative(name string) bool {
	return name == RoleAdmin || name == RoleSuperAdmin
}
