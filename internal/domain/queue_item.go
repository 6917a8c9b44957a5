package domain

import "time"

// QueueKind identifies the type of work a queue item represents.
// Only one kind exists today.
type QueueKind string

const (
	// QueueKindActiveDescribe is the standard scan-and-describe work item.
	QueueKindActiveDescribe QueueKind = "active_ai_describe"
)

// QueueItem is one unit of pending work in the durable scan queue.
//
// Path is deliberately not unique: the same path may be enqueued again over
// its lifetime, and a duplicate pending row is tolerated rather than
// prevented. Items are created by the producers and only ever deleted
// (success) or rescheduled with an advanced NotBefore (failure) by the
// consumer.
type QueueItem struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Path      string    `gorm:"type:text;not null;index:idx_queue_items_path" json:"path"`
	Kind      QueueKind `gorm:"type:text;not null;default:active_ai_describe" json:"kind"`
	NotBefore time.Time `gorm:"index:idx_queue_items_not_before" json:"not_before"`
	Attempts  int       `gorm:"default:0" json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for QueueItem.
func (QueueItem) TableName() string {
	return "queue_items"
}
