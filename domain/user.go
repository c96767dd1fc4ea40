package domain

type User struct {
	ID       int64   `json:"id" db:"id"`
	Username string  `json:"username" db:"username"`
	Email    *string `json:"email,omitempty" db:"email"`
	Password string  `json:"-" db:"password"`
}

// EmailOrEmpty returns the stored email, or "" when none was given.
func (u User) EmailOrEmpty() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}
