package models

import "time"

// WatchlistItem 研究关注列表
type WatchlistItem struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Ticker    string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"ticker"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (WatchlistItem) TableName() string {
	return "watchlist"
}
