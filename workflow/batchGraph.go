package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Graph maintains the live-to-dressed lineage edges. Edges are append-only;
// the two invariants it defends are one inbound edge per dressed batch and
// outgoing quantities never exceeding the source's initial count.
type Graph struct{}

func NewGraph() Graph {
	return Graph{}
}

// RecordProcessing appends the edge created by a processing run. The cap is
// checked against InitialCount, not CurrentCount: birds already moved out
// stay counted against the source forever.
func (Graph) RecordProcessing(tx StoreTx, source *models.LiveBatch, target *models.DressedBatch, kind models.RelationshipKind, quantity int) (*models.BatchRelationship, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: edge quantity must be greater than zero", utils.ErrorInvalidInput)
	}
	moved, err := tx.OutgoingQuantity(source.ID)
	if err != nil {
		return nil, err
	}
	if moved+quantity > source.InitialCount {
		return nil, &utils.LineageViolationError{
			SourceBatchId: source.ID,
			InitialCount:  source.InitialCount,
			AlreadyMoved:  moved,
			Requested:     quantity,
		}
	}

	edge := &models.BatchRelationship{
		FarmId:           source.FarmId,
		SourceBatchId:    source.ID,
		TargetBatchId:    target.ID,
		RelationshipKind: kind,
		Quantity:         quantity,
	}
	if err := tx.CreateRelationship(edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// LineageOf walks a dressed batch back to its source live batch. Both return
// values are nil when no edge was ever recorded.
func (Graph) LineageOf(tx StoreTx, dressedBatchId int) (*models.BatchRelationship, *models.LiveBatch, error) {
	edge, err := tx.InboundEdge(dressedBatchId)
	if err != nil {
		return nil, nil, err
	}
	if edge == nil {
		return nil, nil, nil
	}
	source, err := tx.LiveBatch(edge.SourceBatchId)
	if err != nil {
		return nil, nil, err
	}
	return edge, source, nil
}

// YieldRate computes dressed units over birds moved across the inbound edge,
// as a percentage. ProcessedQuantity is the dressed-unit figure when
// recorded; legacy rows fall back to InitialCount. Rates outside [0, 100]
// are flagged anomalous but reported as computed.
func (g Graph) YieldRate(tx StoreTx, dressedBatchId int) (decimal.Decimal, bool, error) {
	batch, err := tx.DressedBatch(dressedBatchId)
	if err != nil {
		return decimal.Zero, false, err
	}
	edge, err := tx.InboundEdge(dressedBatchId)
	if err != nil {
		return decimal.Zero, false, err
	}
	if edge == nil {
		return decimal.Zero, false, fmt.Errorf("%w: dressed batch %d has no recorded lineage", utils.ErrorRecordNotFound, dressedBatchId)
	}
	if edge.Quantity <= 0 {
		return decimal.Zero, true, nil
	}

	dressedUnits := batch.ProcessedQuantity
	if dressedUnits == 0 {
		dressedUnits = batch.InitialCount
	}
	rate := decimal.NewFromInt(int64(dressedUnits)).
		Div(decimal.NewFromInt(int64(edge.Quantity))).
		Mul(oneHundred)
	anomalous := rate.IsNegative() || rate.GreaterThan(oneHundred)
	return rate, anomalous, nil
}
