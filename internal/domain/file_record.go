package domain

import "time"

// FileRecord is the authoritative index entry for one absolute path.
//
// ContentHash is a perceptual hash for images and a hex crypto digest for
// everything else. Duplicate is derivable at any time from ContentHash
// equality across records and is recomputed whenever ContentHash changes;
// sibling records keep their stale flag until their own next write
// (eventually consistent, see the duplicate detector).
//
// Path always refers to the record's current on-disk location. It is mutated
// only by the isolation manager.
type FileRecord struct {
	ID         string `gorm:"type:text;primaryKey" json:"id"`
	Path       string `gorm:"type:text;not null;uniqueIndex:idx_file_records_path" json:"path"`
	ParentPath string `gorm:"type:text;index:idx_file_records_parent" json:"parent_path"`

	// Filesystem facts.
	SizeBytes   int64     `json:"size_bytes"`
	ModifiedAt  time.Time `json:"modified_at"`
	ChangedAt   time.Time `json:"changed_at"`
	LastScanned time.Time `json:"last_scanned"`
	Ext         string    `gorm:"type:text" json:"ext"`
	Kind        FileKind  `gorm:"type:text;index:idx_file_records_kind" json:"kind"`

	// Content identity.
	ContentHash string `gorm:"type:text;index:idx_file_records_hash" json:"content_hash"`
	Duplicate   bool   `gorm:"default:false" json:"duplicate"`

	// Classification, written back by downstream analysis.
	TypeLabel           string     `gorm:"type:text" json:"type_label,omitempty"`
	TypeLabelConfidence float64    `json:"type_label_confidence,omitempty"`
	TypeLabelSource     string     `gorm:"type:text" json:"type_label_source,omitempty"`
	TypeLabelUpdatedAt  *time.Time `json:"type_label_updated_at,omitempty"`
	AISummary           string     `gorm:"type:text" json:"ai_summary,omitempty"`
	AIAnalyzedAt        *time.Time `json:"ai_analyzed_at,omitempty"`

	// Malware scan outcome.
	Infected       bool       `gorm:"default:false" json:"infected"`
	VirusScannedAt *time.Time `json:"virus_scanned_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for FileRecord.
func (FileRecord) TableName() string {
	return "file_records"
}
