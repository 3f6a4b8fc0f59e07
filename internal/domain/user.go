package domain

import "time"

// User carries the credential fields owned by this subsystem. Profile data
// beyond name/email lives with the rest of the Sprintdeck backend.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name          string     `gorm:"size:255" json:"name"`
	PasswordHash  string     `gorm:"size:1024;not null" json:"-"`
	EmailVerified bool       `gorm:"not null;default:false" json:"email_verified"`
	Active        bool       `gorm:"not null;default:true" json:"active"`
	LockedUntil   *time.Time `json:"-"`
	LoginCount    int64      `gorm:"not null;default:0" json:"-"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	Roles         []Role     `gorm:"many2many:user_roles" json:"roles"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// PublicUser is the projection returned through API boundaries. It never
// carries hashes, lockout state or plaintext secrets.
type PublicUser struct {
	ID            uint     `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	EmailVerified bool     `json:"email_verified"`
	Roles         []string `json:"roles"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Roles:         u.RoleNames(),
	}
}
