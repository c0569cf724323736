package purchasing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/ledger"
)

type fakeCatalog struct {
	products map[int64]catalog.Product
	factors  map[string]decimal.Decimal
}

func (f *fakeCatalog) GetProduct(_ context.Context, _, productID int64) (catalog.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) ToBaseUnits(_ context.Context, _, productID, unitID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	if factor, ok := f.factors[fmt.Sprintf("%d/%d", productID, unitID)]; ok {
		return qty.Mul(factor), nil
	}
	return qty, nil
}

type stockRow struct {
	stock   decimal.Decimal
	tracked bool
}

// memoryStore backs RepositoryPort, TxRepository, and ledger.TxLedger for
// service tests; WithTx snapshots state so failures roll back like a real
// transaction.
type memoryStore struct {
	purchases map[int64]*Purchase
	items     map[int64][]Item
	counters  map[string]int64
	stock     map[int64]*stockRow
	batches   map[int64]*ledger.Batch
	movements []ledger.Movement
	nextID    int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		purchases: map[int64]*Purchase{},
		items:     map[int64][]Item{},
		counters:  map[string]int64{},
		stock:     map[int64]*stockRow{},
		batches:   map[int64]*ledger.Batch{},
		nextID:    1,
	}
}

func (m *memoryStore) snapshot() *memoryStore {
	cp := newMemoryStore()
	cp.nextID = m.nextID
	for id, p := range m.purchases {
		v := *p
		cp.purchases[id] = &v
	}
	for id, items := range m.items {
		cp.items[id] = append([]Item{}, items...)
	}
	for k, v := range m.counters {
		cp.counters[k] = v
	}
	for id, s := range m.stock {
		v := *s
		cp.stock[id] = &v
	}
	for id, b := range m.batches {
		v := *b
		cp.batches[id] = &v
	}
	cp.movements = append(cp.movements, m.movements...)
	return cp
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := m.snapshot()
	if err := fn(ctx, m); err != nil {
		*m = *saved
		return err
	}
	return nil
}

func (m *memoryStore) Get(_ context.Context, _, purchaseID int64) (Purchase, error) {
	p, ok := m.purchases[purchaseID]
	if !ok {
		return Purchase{}, ErrNotFound
	}
	out := *p
	out.Items = append([]Item{}, m.items[purchaseID]...)
	return out, nil
}

func (m *memoryStore) List(_ context.Context, _ int64, _ ListFilters) ([]Purchase, int, error) {
	out := []Purchase{}
	for _, p := range m.purchases {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memoryStore) NextReceiptSeq(_ context.Context, tenantID int64, day string) (int64, error) {
	key := fmt.Sprintf("%d/%s", tenantID, day)
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryStore) InsertPurchase(_ context.Context, p Purchase) (int64, error) {
	p.ID = m.nextID
	m.nextID++
	p.Items = nil
	m.purchases[p.ID] = &p
	return p.ID, nil
}

func (m *memoryStore) InsertItem(_ context.Context, it Item) (int64, error) {
	it.ID = m.nextID
	m.nextID++
	m.items[it.PurchaseID] = append(m.items[it.PurchaseID], it)
	return it.ID, nil
}

func (m *memoryStore) SetTotal(_ context.Context, _, purchaseID int64, total decimal.Decimal) error {
	p, ok := m.purchases[purchaseID]
	if !ok {
		return ErrNotFound
	}
	p.Total = total
	return nil
}

func (m *memoryStore) SetStatus(_ context.Context, _, purchaseID int64, status Status) error {
	p, ok := m.purchases[purchaseID]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (m *memoryStore) GetForUpdate(_ context.Context, _, purchaseID int64) (Purchase, error) {
	p, ok := m.purchases[purchaseID]
	if !ok {
		return Purchase{}, ErrNotFound
	}
	return *p, nil
}

func (m *memoryStore) ListItems(_ context.Context, _, purchaseID int64) ([]Item, error) {
	return append([]Item{}, m.items[purchaseID]...), nil
}

func (m *memoryStore) DeleteCascade(_ context.Context, _, purchaseID int64) error {
	if _, ok := m.purchases[purchaseID]; !ok {
		return ErrNotFound
	}
	delete(m.purchases, purchaseID)
	delete(m.items, purchaseID)
	for id, b := range m.batches {
		if b.PurchaseID == purchaseID {
			delete(m.batches, id)
		}
	}
	return nil
}

func (m *memoryStore) Ledger() ledger.TxLedger { return m }

func (m *memoryStore) CreateBatch(_ context.Context, b ledger.Batch) (int64, error) {
	if b.InitialQty.LessThanOrEqual(decimal.Zero) {
		return 0, ledger.ErrInvalidQuantity
	}
	b.ID = m.nextID
	b.CurrentStock = b.InitialQty
	m.nextID++
	m.batches[b.ID] = &b
	return b.ID, nil
}

func (m *memoryStore) GetBatchForUpdate(_ context.Context, _, batchID int64) (ledger.Batch, error) {
	b, ok := m.batches[batchID]
	if !ok {
		return ledger.Batch{}, ledger.ErrBatchNotFound
	}
	return *b, nil
}

func (m *memoryStore) SetBatchStock(_ context.Context, _, batchID int64, qty decimal.Decimal) error {
	b, ok := m.batches[batchID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	b.CurrentStock = qty
	return nil
}

func (m *memoryStore) GetProductStockForUpdate(_ context.Context, _, productID int64) (decimal.Decimal, bool, error) {
	row, ok := m.stock[productID]
	if !ok {
		return decimal.Zero, false, ledger.ErrProductNotFound
	}
	return row.stock, row.tracked, nil
}

func (m *memoryStore) SetProductStock(_ context.Context, _, productID int64, qty decimal.Decimal) error {
	row, ok := m.stock[productID]
	if !ok {
		return ledger.ErrProductNotFound
	}
	row.stock = qty
	return nil
}

func (m *memoryStore) InsertMovement(_ context.Context, mv ledger.Movement) (int64, error) {
	mv.ID = m.nextID
	m.nextID++
	m.movements = append(m.movements, mv)
	return mv.ID, nil
}

func (m *memoryStore) ResetAllStock(_ context.Context, _ int64) error { return nil }

func newFixture() (*Service, *memoryStore, *fakeCatalog) {
	store := newMemoryStore()
	cat := &fakeCatalog{
		products: map[int64]catalog.Product{
			1: {ID: 1, SKU: "TEA-01", Name: "Green Tea", TrackStock: true},
			2: {ID: 2, SKU: "SVC-01", Name: "Gift Wrap", TrackStock: false},
		},
		factors: map[string]decimal.Decimal{},
	}
	store.stock[1] = &stockRow{stock: decimal.Zero, tracked: true}
	store.stock[2] = &stockRow{stock: decimal.Zero, tracked: false}
	return NewService(store, cat, nil, nil, nil), store, cat
}

func receiveDate(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", "2024-05-10")
	require.NoError(t, err)
	return d
}

func TestReceiveCreatesBatchStockAndMovement(t *testing.T) {
	svc, store, _ := newFixture()

	p, err := svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		BranchID:   3,
		ActorID:    9,
		Date:       receiveDate(t),
		Lines: []ReceiveLine{
			{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(100), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "RCV-20240510-0001", p.RefNo)
	require.Equal(t, StatusCompleted, p.Status)
	require.True(t, p.Total.Equal(decimal.NewFromInt(200)))

	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(100)))
	require.Len(t, store.batches, 1)
	for _, b := range store.batches {
		require.True(t, b.InitialQty.Equal(decimal.NewFromInt(100)))
		require.True(t, b.CurrentStock.Equal(decimal.NewFromInt(100)))
		require.Equal(t, p.ID, b.PurchaseID)
	}
	require.Len(t, store.movements, 1)
	mv := store.movements[0]
	require.Equal(t, ledger.MovementIn, mv.Type)
	require.True(t, mv.Qty.Equal(decimal.NewFromInt(100)))
	require.True(t, mv.ResultingStock.Equal(decimal.NewFromInt(100)))
	require.Equal(t, p.RefNo, mv.RefID)
}

func TestReceiveWithoutSupplier(t *testing.T) {
	svc, store, _ := newFixture()

	p, err := svc.Receive(context.Background(), 1, ReceiveInput{
		BranchID: 3,
		ActorID:  9,
		Date:     receiveDate(t),
		Lines: []ReceiveLine{
			{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "RCV-20240510-0001", p.RefNo)
	require.Zero(t, p.SupplierID)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(10)))
	require.Len(t, store.batches, 1)
}

func TestReceiveConvertsEntryUnitsToBase(t *testing.T) {
	svc, store, cat := newFixture()
	cat.factors["1/5"] = decimal.NewFromInt(12)

	_, err := svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		Date:       receiveDate(t),
		Lines: []ReceiveLine{
			{ProductID: 1, UnitID: 5, Qty: decimal.NewFromInt(3), UnitCost: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)

	// aggregate moves in base units, the batch keeps the entry unit
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(36)))
	for _, b := range store.batches {
		require.True(t, b.InitialQty.Equal(decimal.NewFromInt(3)))
		require.Equal(t, int64(5), b.UnitID)
	}
}

func TestReceiveUntrackedProductSkipsStock(t *testing.T) {
	svc, store, _ := newFixture()

	_, err := svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		Date:       receiveDate(t),
		Lines: []ReceiveLine{
			{ProductID: 2, UnitID: 1, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)
	require.True(t, store.stock[2].stock.IsZero())
	require.Len(t, store.batches, 1)
	require.Empty(t, store.movements)
}

func TestReceiveRollsBackWholeReceiptOnFailure(t *testing.T) {
	svc, store, _ := newFixture()

	_, err := svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		Date:       receiveDate(t),
		Lines: []ReceiveLine{
			{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(50), UnitCost: decimal.NewFromInt(2)},
			{ProductID: 99, UnitID: 1, Qty: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(1)},
		},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Empty(t, store.purchases)
	require.Empty(t, store.batches)
	require.True(t, store.stock[1].stock.IsZero())
	require.Empty(t, store.movements)
}

func TestReceiptSequenceIncrementsPerDay(t *testing.T) {
	svc, _, _ := newFixture()
	line := []ReceiveLine{{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(1)}}

	first, err := svc.Receive(context.Background(), 1, ReceiveInput{SupplierID: 7, Date: receiveDate(t), Lines: line})
	require.NoError(t, err)
	second, err := svc.Receive(context.Background(), 1, ReceiveInput{SupplierID: 7, Date: receiveDate(t), Lines: line})
	require.NoError(t, err)

	require.Equal(t, "RCV-20240510-0001", first.RefNo)
	require.Equal(t, "RCV-20240510-0002", second.RefNo)
}

func TestDraftReceiptPostsOnComplete(t *testing.T) {
	svc, store, _ := newFixture()

	draft, err := svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		Date:       receiveDate(t),
		Status:     StatusDraft,
		Lines: []ReceiveLine{
			{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(40), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, draft.Status)
	require.True(t, store.stock[1].stock.IsZero())
	require.Empty(t, store.batches)

	completed, err := svc.Complete(context.Background(), 1, draft.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(40)))
	require.Len(t, store.batches, 1)

	_, err = svc.Complete(context.Background(), 1, draft.ID, 9)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(40)))
}

func TestDeleteCompletedReceiptRejected(t *testing.T) {
	svc, store, _ := newFixture()

	p, err := svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		Date:       receiveDate(t),
		Lines:      []ReceiveLine{{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), 1, p.ID, 9)
	require.ErrorIs(t, err, ErrCompletedLocked)
	require.Contains(t, store.purchases, p.ID)
}

func TestDeleteDraftCascades(t *testing.T) {
	svc, store, _ := newFixture()

	draft, err := svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		Date:       receiveDate(t),
		Status:     StatusDraft,
		Lines:      []ReceiveLine{{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), 1, draft.ID, 9))
	require.Empty(t, store.purchases)
	require.Empty(t, store.items)
}

func TestReceiveValidation(t *testing.T) {
	svc, _, _ := newFixture()

	_, err := svc.Receive(context.Background(), 1, ReceiveInput{Date: receiveDate(t), Lines: []ReceiveLine{{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(1)}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Receive(context.Background(), 1, ReceiveInput{SupplierID: 7, Date: receiveDate(t)})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Receive(context.Background(), 1, ReceiveInput{
		SupplierID: 7,
		Date:       receiveDate(t),
		Lines:      []ReceiveLine{{ProductID: 1, UnitID: 1, Qty: decimal.Zero, UnitCost: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, ErrValidation)
}
