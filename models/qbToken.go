package models

import "time"

// QuickbooksToken is the stored OAuth credential for one QuickBooks company
// (realm). At most one row is active per realm; connecting again deactivates
// the previous row instead of deleting it.
type QuickbooksToken struct {
	ID                   uint      `gorm:"primary_key" json:"id"`
	RealmId              string    `gorm:"index;size:64;not null" json:"realm_id"`
	AccessToken          string    `gorm:"type:text;not null" json:"-"`
	RefreshToken         string    `gorm:"type:text;not null" json:"-"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	IsActive             bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
