package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
)

// MemoryStore keeps all engine entities in process memory. It backs the
// engine tests and any collaborator that supplies records directly instead of
// through MySQL. Mutations are serialized per batch id with plain mutexes;
// commit visibility is guarded by one RWMutex so readers always see a
// consistent snapshot and an aborted transaction leaves nothing behind.
type MemoryStore struct {
	mu     sync.RWMutex
	lockMu sync.Mutex

	batchLocks map[int]*sync.Mutex

	liveBatches    map[int]*models.LiveBatch
	dressedBatches map[int]*models.DressedBatch
	parts          map[int]map[models.PartType]*models.DressedBatchPart
	orders         map[int]*models.Order
	relationships  []*models.BatchRelationship
	histories      []*models.History

	nextId int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batchLocks:     map[int]*sync.Mutex{},
		liveBatches:    map[int]*models.LiveBatch{},
		dressedBatches: map[int]*models.DressedBatch{},
		parts:          map[int]map[models.PartType]*models.DressedBatchPart{},
		orders:         map[int]*models.Order{},
	}
}

func (s *MemoryStore) batchLock(id int) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m := s.batchLocks[id]
	if m == nil {
		m = &sync.Mutex{}
		s.batchLocks[id] = m
	}
	return m
}

func (s *MemoryStore) allocId() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	return s.nextId
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx := newMemTx(s)
	tx.snapshotHeld = true
	return fn(tx)
}

func (s *MemoryStore) WithBatchLock(ctx context.Context, batchIds []int, fn func(tx StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := utils.UniqueSlice(batchIds)
	sort.Ints(ids) // lock order is fixed to avoid deadlocks
	for _, id := range ids {
		m := s.batchLock(id)
		m.Lock()
		defer m.Unlock()
	}

	tx := newMemTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// Histories returns a copy of the audit trail, oldest first.
func (s *MemoryStore) Histories() []*models.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.History, len(s.histories))
	copy(out, s.histories)
	return out
}

type memTx struct {
	s *MemoryStore

	// snapshotHeld is set by View, which already holds the read lock for the
	// whole callback; per-read locking would recurse on the RWMutex.
	snapshotHeld bool

	live    map[int]*models.LiveBatch
	dressed map[int]*models.DressedBatch
	parts   map[int]map[models.PartType]*models.DressedBatchPart
	orders  map[int]*models.Order
	rels    []*models.BatchRelationship
	hist    []*models.History

	// expected committed version per staged save, recorded at first save so
	// commit can detect lost updates.
	expected map[saveKey]int
}

type saveKey struct {
	kind string
	id   int
}

func newMemTx(s *MemoryStore) *memTx {
	return &memTx{
		s:        s,
		live:     map[int]*models.LiveBatch{},
		dressed:  map[int]*models.DressedBatch{},
		parts:    map[int]map[models.PartType]*models.DressedBatchPart{},
		orders:   map[int]*models.Order{},
		expected: map[saveKey]int{},
	}
}

func (t *memTx) rlock() func() {
	if t.snapshotHeld {
		return func() {}
	}
	t.s.mu.RLock()
	return t.s.mu.RUnlock
}

func cloneLiveBatch(b *models.LiveBatch) *models.LiveBatch {
	c := *b
	return &c
}

func cloneDressedBatch(b *models.DressedBatch) *models.DressedBatch {
	c := *b
	if b.CurrentCount != nil {
		v := *b.CurrentCount
		c.CurrentCount = &v
	}
	if b.ExpiryDate != nil {
		v := *b.ExpiryDate
		c.ExpiryDate = &v
	}
	c.Parts = nil
	return &c
}

func clonePart(p *models.DressedBatchPart) *models.DressedBatchPart {
	c := *p
	return &c
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	if o.PartType != nil {
		v := *o.PartType
		c.PartType = &v
	}
	return &c
}

func cloneRelationship(r *models.BatchRelationship) *models.BatchRelationship {
	c := *r
	return &c
}

func (t *memTx) LiveBatch(id int) (*models.LiveBatch, error) {
	if b, ok := t.live[id]; ok {
		return cloneLiveBatch(b), nil
	}
	unlock := t.rlock()
	defer unlock()
	b, ok := t.s.liveBatches[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return cloneLiveBatch(b), nil
}

func (t *memTx) DressedBatch(id int) (*models.DressedBatch, error) {
	if b, ok := t.dressed[id]; ok {
		return cloneDressedBatch(b), nil
	}
	unlock := t.rlock()
	defer unlock()
	b, ok := t.s.dressedBatches[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return cloneDressedBatch(b), nil
}

func (t *memTx) DressedBatchPart(dressedBatchId int, part models.PartType) (*models.DressedBatchPart, error) {
	if byPart, ok := t.parts[dressedBatchId]; ok {
		if p, ok := byPart[part]; ok {
			return clonePart(p), nil
		}
	}
	unlock := t.rlock()
	defer unlock()
	byPart, ok := t.s.parts[dressedBatchId]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	p, ok := byPart[part]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return clonePart(p), nil
}

func (t *memTx) Order(id int) (*models.Order, error) {
	if o, ok := t.orders[id]; ok {
		return cloneOrder(o), nil
	}
	unlock := t.rlock()
	defer unlock()
	o, ok := t.s.orders[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return cloneOrder(o), nil
}

func (t *memTx) CreateLiveBatch(b *models.LiveBatch) error {
	b.ID = t.s.allocId()
	b.Version = 0
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	t.live[b.ID] = cloneLiveBatch(b)
	return nil
}

func (t *memTx) CreateDressedBatch(b *models.DressedBatch) error {
	b.ID = t.s.allocId()
	b.Version = 0
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	for i := range b.Parts {
		b.Parts[i].ID = t.s.allocId()
		b.Parts[i].DressedBatchId = b.ID
		byPart := t.parts[b.ID]
		if byPart == nil {
			byPart = map[models.PartType]*models.DressedBatchPart{}
			t.parts[b.ID] = byPart
		}
		byPart[b.Parts[i].PartType] = clonePart(&b.Parts[i])
	}
	t.dressed[b.ID] = cloneDressedBatch(b)
	return nil
}

func (t *memTx) CreateOrder(o *models.Order) error {
	o.ID = t.s.allocId()
	o.Version = 0
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) CreateRelationship(r *models.BatchRelationship) error {
	// One inbound edge per dressed batch (the GORM store enforces this with a
	// unique index).
	existing, err := t.InboundEdge(r.TargetBatchId)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: dressed batch %d already has a processed-from edge", utils.ErrorLineageViolation, r.TargetBatchId)
	}
	r.ID = t.s.allocId()
	r.CreatedAt = time.Now()
	t.rels = append(t.rels, cloneRelationship(r))
	return nil
}

func (t *memTx) stageSave(kind string, id int, version int) {
	key := saveKey{kind: kind, id: id}
	if _, ok := t.expected[key]; !ok {
		t.expected[key] = version
	}
}

func (t *memTx) SaveLiveBatch(b *models.LiveBatch) error {
	if _, staged := t.live[b.ID]; !staged {
		t.stageSave("live", b.ID, b.Version)
	}
	b.Version++
	b.UpdatedAt = time.Now()
	t.live[b.ID] = cloneLiveBatch(b)
	return nil
}

func (t *memTx) SaveDressedBatch(b *models.DressedBatch) error {
	if _, staged := t.dressed[b.ID]; !staged {
		t.stageSave("dressed", b.ID, b.Version)
	}
	b.Version++
	b.UpdatedAt = time.Now()
	t.dressed[b.ID] = cloneDressedBatch(b)
	return nil
}

func (t *memTx) SaveDressedBatchPart(p *models.DressedBatchPart) error {
	byPart := t.parts[p.DressedBatchId]
	if byPart == nil {
		byPart = map[models.PartType]*models.DressedBatchPart{}
		t.parts[p.DressedBatchId] = byPart
	}
	if _, staged := byPart[p.PartType]; !staged {
		t.stageSave("part", p.ID, p.Version)
	}
	p.Version++
	p.UpdatedAt = time.Now()
	byPart[p.PartType] = clonePart(p)
	return nil
}

func (t *memTx) SaveOrder(o *models.Order) error {
	if _, staged := t.orders[o.ID]; !staged {
		t.stageSave("order", o.ID, o.Version)
	}
	o.Version++
	o.UpdatedAt = time.Now()
	t.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) OutgoingQuantity(sourceBatchId int) (int, error) {
	total := 0
	unlock := t.rlock()
	for _, r := range t.s.relationships {
		if r.SourceBatchId == sourceBatchId {
			total += r.Quantity
		}
	}
	unlock()
	for _, r := range t.rels {
		if r.SourceBatchId == sourceBatchId {
			total += r.Quantity
		}
	}
	return total, nil
}

func (t *memTx) InboundEdge(targetBatchId int) (*models.BatchRelationship, error) {
	for _, r := range t.rels {
		if r.TargetBatchId == targetBatchId {
			return cloneRelationship(r), nil
		}
	}
	unlock := t.rlock()
	defer unlock()
	for _, r := range t.s.relationships {
		if r.TargetBatchId == targetBatchId {
			return cloneRelationship(r), nil
		}
	}
	return nil, nil
}

func (t *memTx) ExpiredDressedBatches(asOf time.Time) ([]*models.DressedBatch, error) {
	unlock := t.rlock()
	defer unlock()
	var out []*models.DressedBatch
	for _, b := range t.s.dressedBatches {
		if b.CurrentStatus != models.DressedBatchStatusInStorage {
			continue
		}
		if b.ExpiryDate == nil || b.ExpiryDate.After(asOf) {
			continue
		}
		out = append(out, cloneDressedBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) AppendHistory(h *models.History) error {
	t.hist = append(t.hist, h)
	return nil
}

func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// Lost-update check before anything is applied.
	for key, version := range t.expected {
		current := version
		switch key.kind {
		case "live":
			if b, ok := s.liveBatches[key.id]; ok {
				current = b.Version
			}
		case "dressed":
			if b, ok := s.dressedBatches[key.id]; ok {
				current = b.Version
			}
		case "order":
			if o, ok := s.orders[key.id]; ok {
				current = o.Version
			}
		case "part":
			for _, byPart := range s.parts {
				for _, p := range byPart {
					if p.ID == key.id {
						current = p.Version
					}
				}
			}
		}
		if current != version {
			return utils.ErrorConcurrencyConflict
		}
	}

	for id, b := range t.live {
		s.liveBatches[id] = b
	}
	for id, b := range t.dressed {
		s.dressedBatches[id] = b
	}
	for id, byPart := range t.parts {
		committed := s.parts[id]
		if committed == nil {
			committed = map[models.PartType]*models.DressedBatchPart{}
			s.parts[id] = committed
		}
		for part, p := range byPart {
			committed[part] = p
		}
	}
	for id, o := range t.orders {
		s.orders[id] = o
	}
	s.relationships = append(s.relationships, t.rels...)
	s.histories = append(s.histories, t.hist...)
	return nil
}
