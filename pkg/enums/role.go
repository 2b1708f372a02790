package enums

// Role is the caller role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

var roles = newDomain("role", RoleCustomer, RoleStaff, RoleAdmin)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return roles.contains(r) }

// IsOperator reports whether the role may run back-office order transitions.
func (r Role) IsOperator() bool {
	return r == RoleAdmin || r == RoleStaff
}

func ParseRole(raw string) (Role, error) { return roles.parse(raw) }
