package models

import "time"

// Account represents a registered identity.
type Account struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username       string     `json:"username" gorm:"uniqueIndex:idx_accounts_username;type:varchar(20);not null"`
	SecretHash     string     `json:"-" gorm:"column:password_hash;type:varchar(255);not null"` // never serialized
	Email          *string    `json:"email" gorm:"uniqueIndex:idx_accounts_email;type:varchar(255)"`
	CreatedAt      time.Time  `json:"createdAt" gorm:"index:idx_accounts_created_at;not null;autoCreateTime:false"`
	LastLogin      *time.Time `json:"lastLogin"`
	IsActive       bool       `json:"isActive" gorm:"not null;default:true"`
	EmailVerified  bool       `json:"emailVerified" gorm:"not null;default:false"`
	RegistrationIP *string    `json:"-" gorm:"type:varchar(64)"`
}

// TableName pins the table name used by GORM.
func (Account) TableName() string {
	return "accounts"
}

// PublicAccount is what registration hands back to the caller.
type PublicAccount struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the account-derived data served to an authenticated caller.
type Profile struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     *string    `json:"email"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin"`
	IsActive  bool       `json:"isActive"`
}

// Public strips everything but the identity fields.
func (a *Account) Public() *PublicAccount {
	return &PublicAccount{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

// Profile returns the public profile of the account.
func (a *Account) Profile() *Profile {
	return &Profile{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		LastLogin: a.LastLogin,
		IsActive:  a.IsActive,
	}
}
