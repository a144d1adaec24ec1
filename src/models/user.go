package models

// Role describes what an authenticated user is allowed to do.
type Role struct {
	Name        string          `json:"name"`
	Permissions map[string]bool `json:"permissions"`
}

// User represents an authenticated principal.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Can reports whether the user's role grants the named permission.
func (u *User) Can(permission string) bool {
	return u != nil && u.Role.Permissions[permission]
}

// LoginRequest represents the body of a login request.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response after a successful login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}
