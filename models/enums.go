package models

import (
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
)

type CalculationMode string

const (
	// Stored values match the legacy order records (count_cost etc.).
	CalculationModeCountTimesPrice          CalculationMode = utils.CalcModeCountTimesPrice
	CalculationModeSizeTimesPrice           CalculationMode = utils.CalcModeSizeTimesPrice
	CalculationModeCountTimesSizeTimesPrice CalculationMode = utils.CalcModeCountTimesSizeTimesPrice
)

func (m CalculationMode) Valid() bool {
	switch m {
	case CalculationModeCountTimesPrice, CalculationModeSizeTimesPrice, CalculationModeCountTimesSizeTimesPrice:
		return true
	}
	return false
}

type InventorySource string

const (
	InventorySourceLive         InventorySource = "L"
	InventorySourceDressedWhole InventorySource = "DW"
	InventorySourceDressedPart  InventorySource = "DP"
)

func (s InventorySource) Valid() bool {
	switch s {
	case InventorySourceLive, InventorySourceDressedWhole, InventorySourceDressedPart:
		return true
	}
	return false
}

type PartType string

const (
	PartTypeBreast    PartType = "breast"
	PartTypeThigh     PartType = "thigh"
	PartTypeWing      PartType = "wing"
	PartTypeDrumstick PartType = "drumstick"
	PartTypeLiver     PartType = "liver"
	PartTypeGizzard   PartType = "gizzard"
	PartTypeFeet      PartType = "feet"
	PartTypeNeck      PartType = "neck"
)

func (p PartType) Valid() bool {
	switch p {
	case PartTypeBreast, PartTypeThigh, PartTypeWing, PartTypeDrumstick,
		PartTypeLiver, PartTypeGizzard, PartTypeFeet, PartTypeNeck:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPartial   OrderStatus = "Partial"
	OrderStatusPaid      OrderStatus = "Paid"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPartial, OrderStatusPaid,
		OrderStatusConfirmed, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Derived returns true for statuses the engine derives from payment state.
// The remaining statuses only ever come from explicit caller overrides.
func (s OrderStatus) Derived() bool {
	switch s {
	case OrderStatusPending, OrderStatusPartial, OrderStatusPaid:
		return true
	}
	return false
}

type LiveBatchStatus string

const (
	LiveBatchStatusHealthy    LiveBatchStatus = "Healthy"
	LiveBatchStatusSick       LiveBatchStatus = "Sick"
	LiveBatchStatusQuarantine LiveBatchStatus = "Quarantine"
	LiveBatchStatusProcessing LiveBatchStatus = "Processing"
)

type DressedBatchStatus string

const (
	DressedBatchStatusInStorage DressedBatchStatus = "InStorage"
	DressedBatchStatusSold      DressedBatchStatus = "Sold"
	DressedBatchStatusExpired   DressedBatchStatus = "Expired"
	DressedBatchStatusDamaged   DressedBatchStatus = "Damaged"
)

type RelationshipKind string

const (
	RelationshipKindFullyProcessed     RelationshipKind = "fully_processed"
	RelationshipKindPartiallyProcessed RelationshipKind = "partially_processed"
)
