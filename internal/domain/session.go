package domain

import "time"

// Session is a server-side session addressed by an opaque cookie token.
// A nil UserID marks an anonymous session which authorizes nothing.
//
// Sessions are removed explicitly on logout and account deletion, or
// passively once ExpiresAt has passed. TouchedAt records the last time the
// expiry was extended so refreshes can be rate-limited.
type Session struct {
	ID        string    `gorm:"type:char(64);primaryKey"`
	UserID    *string   `gorm:"type:char(36);index:idx_sessions_user"`
	CreatedAt time.Time `gorm:"not null"`
	TouchedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index:idx_sessions_expiry"`

	// User is the bound account; sessions are cascade-deleted with it.
	User *User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != nil && *s.UserID != ""
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RateWindow is one fixed counting window for a (client, route class) pair.
// Rows whose WindowStart is older than the class window are reset on the
// next hit rather than deleted.
type RateWindow struct {
	Client      string    `gorm:"type:varchar(128);primaryKey"`
	RouteClass  string    `gorm:"type:varchar(16);primaryKey"`
	WindowStart time.Time `gorm:"not null"`
	Hits        int64     `gorm:"not null;default:0"`
}

// TableName returns the database table name for RateWindow.
func (RateWindow) TableName() string { return "rate_windows" }
