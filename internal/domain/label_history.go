package domain

import "time"

// LabelHistory is an append-only log of every classification ever applied to
// a path. Rows are write-once, never mutated or deleted; used for audit, not
// for current-state queries.
type LabelHistory struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	Path       string    `gorm:"type:text;not null;index:idx_label_history_path" json:"path"`
	Label      string    `gorm:"type:text;not null" json:"label"`
	Confidence float64   `json:"confidence"`
	Source     string    `gorm:"type:text" json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for LabelHistory.
func (LabelHistory) TableName() string {
	return "label_history"
}
