// Package domain defines the persistence models for accounts, sessions,
// rate-limit windows and the searchable catalog. These types are mapped with
// GORM and shared by the repository, service and HTTP layers.
package domain

import "time"

// User is a credential record. Usernames are unique; the database index is
// the authority for that rule, not any read-before-write check.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Username: exact-match login name.
//   - PasswordHash: bcrypt hash; never serialized.
//   - CreatedAt: managed by GORM.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(100);not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Appearance names a series a catalog entry appears in.
type Appearance struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Waifu is a catalog entry served by the live search and browse endpoints.
// Appearances are stored as a JSON column.
type Waifu struct {
	ID             uint         `json:"-"               gorm:"primaryKey"`
	Slug           string       `json:"slug"            gorm:"type:varchar(128);not null;uniqueIndex:ux_waifus_slug"`
	Name           string       `json:"name"            gorm:"type:varchar(255);not null;index:idx_waifus_name"`
	DisplayPicture string       `json:"display_picture" gorm:"type:text"`
	Appearances    []Appearance `json:"appearances"     gorm:"type:text;serializer:json"`
}

// TableName returns the database table name for Waifu.
func (Waifu) TableName() string { return "waifus" }

// PrimarySeries returns the first appearance, or a zero value when none.
func (w Waifu) PrimarySeries() Appearance {
	if len(w.Appearances) == 0 {
		return Appearance{}
	}
	return w.Appearances[0]
}
