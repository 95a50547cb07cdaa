package models

import "time"

// ArchivedMatch mirrors a closed match into Postgres for reporting queries.
// Written by the archive worker only; the engine never reads it back, so it
// lives outside the optimistic-concurrency keyspace.
type ArchivedMatch struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	Player1Name string     `gorm:"index;not null" json:"player1_name"`
	Player2Name *string    `gorm:"index" json:"player2_name,omitempty"`
	State       string     `gorm:"type:varchar(16);not null" json:"state"`
	Winner      *string    `gorm:"index" json:"winner,omitempty"`
	TotalScore  int64      `json:"total_score"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ArchivedAt  time.Time  `gorm:"autoCreateTime" json:"archived_at"`
}

// TableName implements the GORM tabler interface.
func (ArchivedMatch) TableName() string { return "archived_matches" }
