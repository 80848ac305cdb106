package models

import (
	"time"
)

// BatchRelationship is a directed edge from a live batch to the dressed batch
// it produced, annotated with the birds moved across it. A dressed batch has
// exactly one inbound edge (unique index on TargetBatchId); the sum of
// outgoing quantities for a live batch never exceeds its initial count.
type BatchRelationship struct {
	ID               int              `gorm:"primary_key" json:"id"`
	FarmId           string           `gorm:"index;not null" json:"farm_id"`
	SourceBatchId    int              `gorm:"index;not null" json:"source_batch_id"`
	TargetBatchId    int              `gorm:"uniqueIndex;not null" json:"target_batch_id"`
	RelationshipKind RelationshipKind `gorm:"type:enum('fully_processed','partially_processed');not null" json:"relationship_kind"`
	Quantity         int              `gorm:"not null" json:"quantity"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
}
