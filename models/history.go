package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/utils"
)

// FieldChange records one field's old and new value inside an audit row.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// History is the audit trail the engine emits on every mutation. The engine
// only produces these rows; an external collaborator stores, filters, and
// displays them.
type History struct {
	ID            int    `gorm:"primary_key" json:"id"`
	FarmId        string `gorm:"index;not null" json:"farm_id"`
	ActionType    string `gorm:"size:20;not null" json:"action_type"`
	ReferenceType string `gorm:"size:50;not null" json:"reference_type"`
	ReferenceID   int    `gorm:"index;not null" json:"reference_id"`
	// ChangedFields is JSON: {field: {"old": ..., "new": ...}}
	ChangedFields string    `gorm:"type:text" json:"changed_fields"`
	UserId        int       `gorm:"index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NewHistory builds an audit row from context identity plus a field diff.
func NewHistory(ctx context.Context, actionType string, referenceType string, referenceId int, changes map[string]FieldChange) (*History, error) {
	farmId, ok := utils.GetFarmIdFromContext(ctx)
	if !ok || farmId == "" {
		return nil, errors.New("farm id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	changed, err := utils.MarshalToJSON(changes)
	if err != nil {
		return nil, err
	}

	return &History{
		FarmId:        farmId,
		ActionType:    actionType,
		ReferenceType: referenceType,
		ReferenceID:   referenceId,
		ChangedFields: changed,
		UserId:        userId,
		UserName:      userName,
		CorrelationId: correlationId,
	}, nil
}

// ParseChangedFields decodes a row's diff back into structured form.
func (h *History) ParseChangedFields() (map[string]FieldChange, error) {
	out := map[string]FieldChange{}
	if h.ChangedFields == "" {
		return out, nil
	}
	if err := utils.UnmarshalFromJSON([]byte(h.ChangedFields), &out); err != nil {
		return nil, err
	}
	return out, nil
}
