package models

// User is a provisioned bank customer or cashier.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
}

// Identity is the caller resolved from a verified token.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

// Identity returns the token-facing view of the user.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role, Email: u.Email}
}

const (
	RoleCustomer = "cliente"
	RoleCashier  = "cajero"
)
