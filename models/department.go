package models

import "time"

// Department owns KPIs; HODs and data officers are attached to exactly one.
type Department struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Code      string    `gorm:"size:32;uniqueIndex" json:"code"`
}

// Pillar is a strategic grouping of KPIs.
type Pillar struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:1024" json:"description"`
}
