package models

// User represents a bookstore customer. Email and Mobile are nullable so the
// unique indexes only constrain identifiers that are actually set.
type User struct {
	BaseModel
	Name         string     `json:"name"`
	Email        *string    `gorm:"uniqueIndex" json:"email,omitempty"`
	Mobile       *string    `gorm:"uniqueIndex" json:"mobile,omitempty"`
	PasswordHash string     `json:"-"`
	IsNewUser    bool       `gorm:"not null;default:true" json:"is_new_user"`
	Purchases    []Purchase `json:"purchases,omitempty"`
}

// HasPassword reports whether the account can log in with a password.
// Accounts created through OTP verification have no password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// EmailAddress returns the email or an empty string.
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// MobileNumber returns the mobile number or an empty string.
func (u *User) MobileNumber() string {
	if u.Mobile == nil {
		return ""
	}
	return *u.Mobile
}
