package returns

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

type fakeConverter struct {
	factors map[string]decimal.Decimal
}

func (f *fakeConverter) ToBaseUnits(_ context.Context, _, productID, unitID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	if factor, ok := f.factors[fmt.Sprintf("%d/%d", productID, unitID)]; ok {
		return qty.Mul(factor), nil
	}
	return qty, nil
}

type fakeUnits struct {
	known map[int64]bool
}

func (f *fakeUnits) UnitExists(_ context.Context, _, unitID int64) error {
	if !f.known[unitID] {
		return catalog.ErrNotFound
	}
	return nil
}

type fakeProducts struct {
	known map[int64]bool
}

func (f *fakeProducts) ProductExists(_ context.Context, _, productID int64) error {
	if !f.known[productID] {
		return ledger.ErrProductNotFound
	}
	return nil
}

type stockRow struct {
	stock   decimal.Decimal
	tracked bool
}

// memoryStore backs RepositoryPort, TxRepository, and ledger.TxLedger for
// service tests; WithTx snapshots state so failures roll back like a real
// transaction.
type memoryStore struct {
	supplierReturns   map[int64]*SupplierReturn
	supplierItems     map[int64][]SupplierReturnItem
	customerReturns   map[int64]*CustomerReturn
	customerItems     map[int64][]CustomerReturnItem
	stock             map[int64]*stockRow
	batches           map[int64]*ledger.Batch
	purchaseSuppliers map[int64]int64
	movements         []ledger.Movement
	nextID            int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		supplierReturns:   map[int64]*SupplierReturn{},
		supplierItems:     map[int64][]SupplierReturnItem{},
		customerReturns:   map[int64]*CustomerReturn{},
		customerItems:     map[int64][]CustomerReturnItem{},
		stock:             map[int64]*stockRow{},
		batches:           map[int64]*ledger.Batch{},
		purchaseSuppliers: map[int64]int64{},
		nextID:            1,
	}
}

func (m *memoryStore) snapshot() *memoryStore {
	cp := newMemoryStore()
	cp.nextID = m.nextID
	for id, sup := range m.purchaseSuppliers {
		cp.purchaseSuppliers[id] = sup
	}
	for id, r := range m.supplierReturns {
		v := *r
		cp.supplierReturns[id] = &v
	}
	for id, items := range m.supplierItems {
		cp.supplierItems[id] = append([]SupplierReturnItem{}, items...)
	}
	for id, r := range m.customerReturns {
		v := *r
		cp.customerReturns[id] = &v
	}
	for id, items := range m.customerItems {
		cp.customerItems[id] = append([]CustomerReturnItem{}, items...)
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

func (m *memoryStore) GetSupplierReturn(_ context.Context, _, returnID int64) (SupplierReturn, error) {
	r, ok := m.supplierReturns[returnID]
	if !ok {
		return SupplierReturn{}, ErrNotFound
	}
	out := *r
	out.Items = append([]SupplierReturnItem{}, m.supplierItems[returnID]...)
	return out, nil
}

func (m *memoryStore) ListSupplierReturns(_ context.Context, _ int64, _ ListFilters) ([]SupplierReturn, int, error) {
	out := []SupplierReturn{}
	for _, r := range m.supplierReturns {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *memoryStore) GetCustomerReturn(_ context.Context, _, returnID int64) (CustomerReturn, error) {
	r, ok := m.customerReturns[returnID]
	if !ok {
		return CustomerReturn{}, ErrNotFound
	}
	out := *r
	out.Items = append([]CustomerReturnItem{}, m.customerItems[returnID]...)
	return out, nil
}

func (m *memoryStore) ListCustomerReturns(_ context.Context, _ int64, _ ListFilters) ([]CustomerReturn, int, error) {
	out := []CustomerReturn{}
	for _, r := range m.customerReturns {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *memoryStore) InsertSupplierReturn(_ context.Context, ret SupplierReturn) (int64, error) {
	ret.ID = m.nextID
	m.nextID++
	ret.Items = nil
	m.supplierReturns[ret.ID] = &ret
	return ret.ID, nil
}

func (m *memoryStore) InsertSupplierItem(_ context.Context, it SupplierReturnItem) (int64, error) {
	it.ID = m.nextID
	m.nextID++
	m.supplierItems[it.ReturnID] = append(m.supplierItems[it.ReturnID], it)
	return it.ID, nil
}

func (m *memoryStore) GetSupplierForUpdate(_ context.Context, _, returnID int64) (SupplierReturn, error) {
	r, ok := m.supplierReturns[returnID]
	if !ok {
		return SupplierReturn{}, ErrNotFound
	}
	return *r, nil
}

func (m *memoryStore) ListSupplierItems(_ context.Context, _, returnID int64) ([]SupplierReturnItem, error) {
	return append([]SupplierReturnItem{}, m.supplierItems[returnID]...), nil
}

func (m *memoryStore) SetSupplierStatus(_ context.Context, _, returnID int64, status SupplierStatus) error {
	r, ok := m.supplierReturns[returnID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	return nil
}

func (m *memoryStore) SetSupplierTotal(_ context.Context, _, returnID int64, total decimal.Decimal) error {
	r, ok := m.supplierReturns[returnID]
	if !ok {
		return ErrNotFound
	}
	r.Total = total
	return nil
}

func (m *memoryStore) BatchPurchaseSupplier(_ context.Context, _, batchID int64) (int64, error) {
	b, ok := m.batches[batchID]
	if !ok {
		return 0, ledger.ErrBatchNotFound
	}
	return m.purchaseSuppliers[b.PurchaseID], nil
}

func (m *memoryStore) DeleteSupplierReturn(_ context.Context, _, returnID int64) error {
	if _, ok := m.supplierReturns[returnID]; !ok {
		return ErrNotFound
	}
	delete(m.supplierReturns, returnID)
	delete(m.supplierItems, returnID)
	return nil
}

func (m *memoryStore) InsertCustomerReturn(_ context.Context, ret CustomerReturn) (int64, error) {
	ret.ID = m.nextID
	m.nextID++
	ret.Items = nil
	m.customerReturns[ret.ID] = &ret
	return ret.ID, nil
}

func (m *memoryStore) InsertCustomerItem(_ context.Context, it CustomerReturnItem) (int64, error) {
	it.ID = m.nextID
	m.nextID++
	m.customerItems[it.ReturnID] = append(m.customerItems[it.ReturnID], it)
	return it.ID, nil
}

func (m *memoryStore) GetCustomerForUpdate(_ context.Context, _, returnID int64) (CustomerReturn, error) {
	r, ok := m.customerReturns[returnID]
	if !ok {
		return CustomerReturn{}, ErrNotFound
	}
	return *r, nil
}

func (m *memoryStore) ListCustomerItems(_ context.Context, _, returnID int64) ([]CustomerReturnItem, error) {
	return append([]CustomerReturnItem{}, m.customerItems[returnID]...), nil
}

func (m *memoryStore) SetCustomerStatus(_ context.Context, _, returnID int64, status CustomerStatus) error {
	r, ok := m.customerReturns[returnID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	return nil
}

func (m *memoryStore) DeleteCustomerReturn(_ context.Context, _, returnID int64) error {
	if _, ok := m.customerReturns[returnID]; !ok {
		return ErrNotFound
	}
	delete(m.customerReturns, returnID)
	delete(m.customerItems, returnID)
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

func returnDate(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", "2024-06-01")
	require.NoError(t, err)
	return d
}

func supplierFixture() (*SupplierService, *memoryStore) {
	store := newMemoryStore()
	// a receipt of 100 already posted: batch 1 full, aggregate at 100
	store.stock[1] = &stockRow{stock: decimal.NewFromInt(100), tracked: true}
	store.batches[1] = &ledger.Batch{
		ID: 1, ProductID: 1, PurchaseID: 1, UnitID: 1,
		InitialQty: decimal.NewFromInt(100), CurrentStock: decimal.NewFromInt(100),
	}
	store.purchaseSuppliers[1] = 7
	store.nextID = 10
	conv := &fakeConverter{factors: map[string]decimal.Decimal{}}
	units := &fakeUnits{known: map[int64]bool{1: true}}
	svc := NewSupplierService(store, conv, units, nil, nil, nil, nil, nil)
	return svc, store
}

func TestNextSupplierStatus(t *testing.T) {
	cases := []struct {
		from  SupplierStatus
		event Event
		to    SupplierStatus
		ok    bool
	}{
		{SupplierDraft, EventComplete, SupplierCompleted, true},
		{SupplierDraft, EventCancel, SupplierCancelled, true},
		{SupplierCompleted, EventCancel, SupplierCancelled, true},
		{SupplierCompleted, EventComplete, "", false},
		{SupplierCancelled, EventComplete, "", false},
		{SupplierCancelled, EventCancel, "", false},
	}
	for _, tc := range cases {
		next, err := NextSupplierStatus(tc.from, tc.event)
		if tc.ok {
			require.NoError(t, err)
			require.Equal(t, tc.to, next)
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
}

func TestNextCustomerStatus(t *testing.T) {
	cases := []struct {
		from  CustomerStatus
		event Event
		to    CustomerStatus
		ok    bool
	}{
		{CustomerPending, EventApprove, CustomerApproved, true},
		{CustomerPending, EventReject, CustomerRejected, true},
		{CustomerApproved, EventComplete, CustomerCompleted, true},
		{CustomerPending, EventComplete, "", false},
		{CustomerRejected, EventApprove, "", false},
		{CustomerCompleted, EventApprove, "", false},
		{CustomerApproved, EventApprove, "", false},
	}
	for _, tc := range cases {
		next, err := NextCustomerStatus(tc.from, tc.event)
		if tc.ok {
			require.NoError(t, err)
			require.Equal(t, tc.to, next)
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
}

func TestSupplierReturnCompleteThenCancelRestores(t *testing.T) {
	svc, store := supplierFixture()
	ctx := context.Background()

	ret, err := svc.Create(ctx, 1, CreateSupplierReturnInput{
		SupplierID: 7,
		BranchID:   3,
		ActorID:    9,
		Date:       returnDate(t),
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 1, UnitID: 1, Qty: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, SupplierDraft, ret.Status)
	require.True(t, ret.Total.Equal(decimal.NewFromInt(40)))
	// drafts have no stock effect
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(100)))
	require.True(t, store.batches[1].CurrentStock.Equal(decimal.NewFromInt(100)))

	completed, err := svc.Complete(ctx, 1, ret.ID, 9, "")
	require.NoError(t, err)
	require.Equal(t, SupplierCompleted, completed.Status)
	require.True(t, store.batches[1].CurrentStock.Equal(decimal.NewFromInt(80)))
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(80)))
	require.Len(t, store.movements, 1)
	require.Equal(t, ledger.MovementOut, store.movements[0].Type)
	require.True(t, store.movements[0].Qty.Equal(decimal.NewFromInt(-20)))

	cancelled, err := svc.Cancel(ctx, 1, ret.ID, 9, "")
	require.NoError(t, err)
	require.Equal(t, SupplierCancelled, cancelled.Status)
	require.True(t, store.batches[1].CurrentStock.Equal(decimal.NewFromInt(100)))
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(100)))
	require.Len(t, store.movements, 2)
	require.Equal(t, ledger.MovementIn, store.movements[1].Type)
}

func TestSupplierReturnCompleteIsExactlyOnce(t *testing.T) {
	svc, store := supplierFixture()
	ctx := context.Background()

	ret, err := svc.Create(ctx, 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 1, UnitID: 1, Qty: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, 1, ret.ID, 9, "")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, 1, ret.ID, 9, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.True(t, store.batches[1].CurrentStock.Equal(decimal.NewFromInt(80)))
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(80)))
	require.Len(t, store.movements, 1)
}

func TestSupplierReturnCancelDraftHasNoStockEffect(t *testing.T) {
	svc, store := supplierFixture()
	ctx := context.Background()

	ret, err := svc.Create(ctx, 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 1, UnitID: 1, Qty: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, 1, ret.ID, 9, "")
	require.NoError(t, err)
	require.Equal(t, SupplierCancelled, cancelled.Status)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(100)))
	require.True(t, store.batches[1].CurrentStock.Equal(decimal.NewFromInt(100)))
	require.Empty(t, store.movements)

	// cancelled is terminal
	_, err = svc.Cancel(ctx, 1, ret.ID, 9, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSupplierReturnCreateCompletedAppliesImmediately(t *testing.T) {
	svc, store := supplierFixture()

	ret, err := svc.Create(context.Background(), 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Status:     SupplierCompleted,
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 1, UnitID: 1, Qty: decimal.NewFromInt(30), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, SupplierCompleted, ret.Status)
	require.True(t, store.batches[1].CurrentStock.Equal(decimal.NewFromInt(70)))
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(70)))
}

func TestSupplierReturnBatchMismatchRejected(t *testing.T) {
	svc, store := supplierFixture()
	store.stock[2] = &stockRow{stock: decimal.NewFromInt(50), tracked: true}

	_, err := svc.Create(context.Background(), 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Lines: []SupplierReturnLine{
			{ProductID: 2, BatchID: 1, UnitID: 1, Qty: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(1)},
		},
	})
	require.ErrorIs(t, err, ErrBatchMismatch)
	require.Empty(t, store.supplierReturns)
}

func TestSupplierReturnWrongSupplierBatchRejected(t *testing.T) {
	svc, store := supplierFixture()

	// a second batch of the same product, bought from supplier 8
	store.batches[2] = &ledger.Batch{
		ID: 2, ProductID: 1, PurchaseID: 2, UnitID: 1,
		InitialQty: decimal.NewFromInt(50), CurrentStock: decimal.NewFromInt(50),
	}
	store.purchaseSuppliers[2] = 8

	_, err := svc.Create(context.Background(), 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 2, UnitID: 1, Qty: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.ErrorIs(t, err, ErrBatchMismatch)
	require.Empty(t, store.supplierReturns)
	require.True(t, store.batches[2].CurrentStock.Equal(decimal.NewFromInt(50)))
}

func TestSupplierReturnUnknownUnitRejected(t *testing.T) {
	svc, store := supplierFixture()

	_, err := svc.Create(context.Background(), 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 1, UnitID: 99, Qty: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Empty(t, store.supplierReturns)
}

func TestSupplierReturnInsufficientBatchRollsBack(t *testing.T) {
	svc, store := supplierFixture()

	_, err := svc.Create(context.Background(), 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Status:     SupplierCompleted,
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 1, UnitID: 1, Qty: decimal.NewFromInt(150), UnitCost: decimal.NewFromInt(2)},
		},
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBatchStock)
	require.Empty(t, store.supplierReturns)
	require.True(t, store.batches[1].CurrentStock.Equal(decimal.NewFromInt(100)))
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(100)))
}

func TestSupplierReturnDeleteDraftOnly(t *testing.T) {
	svc, store := supplierFixture()
	ctx := context.Background()

	ret, err := svc.Create(ctx, 1, CreateSupplierReturnInput{
		SupplierID: 7,
		Date:       returnDate(t),
		Status:     SupplierCompleted,
		Lines: []SupplierReturnLine{
			{ProductID: 1, BatchID: 1, UnitID: 1, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, 1, ret.ID, 9)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Contains(t, store.supplierReturns, ret.ID)
}

func customerFixture() (*CustomerService, *memoryStore, *fakeConverter) {
	store := newMemoryStore()
	store.stock[1] = &stockRow{stock: decimal.NewFromInt(10), tracked: true}
	store.nextID = 10
	conv := &fakeConverter{factors: map[string]decimal.Decimal{}}
	products := &fakeProducts{known: map[int64]bool{1: true}}
	svc := NewCustomerService(store, conv, products, nil, nil, nil, nil)
	return svc, store, conv
}

func TestCustomerReturnApprovalRaisesConvertedStock(t *testing.T) {
	svc, store, conv := customerFixture()
	conv.factors["1/5"] = decimal.NewFromInt(12)
	ctx := context.Background()

	ret, err := svc.Create(ctx, 1, CreateCustomerReturnInput{
		Date: returnDate(t),
		Lines: []CustomerReturnLine{
			{ProductID: 1, UnitID: 5, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(30)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, CustomerPending, ret.Status)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(10)))

	approved, err := svc.UpdateStatus(ctx, 1, ret.ID, 9, EventApprove, "")
	require.NoError(t, err)
	require.Equal(t, CustomerApproved, approved.Status)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(34)))
	require.Empty(t, store.batches)
	require.Len(t, store.movements, 1)
	require.Equal(t, ledger.MovementIn, store.movements[0].Type)
	require.True(t, store.movements[0].Qty.Equal(decimal.NewFromInt(24)))

	// fulfillment is bookkeeping only
	completed, err := svc.UpdateStatus(ctx, 1, ret.ID, 9, EventComplete, "")
	require.NoError(t, err)
	require.Equal(t, CustomerCompleted, completed.Status)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(34)))
	require.Len(t, store.movements, 1)
}

func TestCustomerReturnRejectionHasNoStockEffect(t *testing.T) {
	svc, store, _ := customerFixture()
	ctx := context.Background()

	ret, err := svc.Create(ctx, 1, CreateCustomerReturnInput{
		Date: returnDate(t),
		Lines: []CustomerReturnLine{
			{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(30)},
		},
	})
	require.NoError(t, err)

	rejected, err := svc.UpdateStatus(ctx, 1, ret.ID, 9, EventReject, "")
	require.NoError(t, err)
	require.Equal(t, CustomerRejected, rejected.Status)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(10)))
	require.Empty(t, store.movements)

	// rejected is terminal
	_, err = svc.UpdateStatus(ctx, 1, ret.ID, 9, EventApprove, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCustomerReturnIllegalTransitionLeavesStock(t *testing.T) {
	svc, store, _ := customerFixture()
	ctx := context.Background()

	ret, err := svc.Create(ctx, 1, CreateCustomerReturnInput{
		Date: returnDate(t),
		Lines: []CustomerReturnLine{
			{ProductID: 1, UnitID: 1, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(30)},
		},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, 1, ret.ID, 9, EventComplete, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.True(t, store.stock[1].stock.Equal(decimal.NewFromInt(10)))
	require.Empty(t, store.movements)
}

func TestCustomerReturnUnknownProductRejected(t *testing.T) {
	svc, store, _ := customerFixture()

	_, err := svc.Create(context.Background(), 1, CreateCustomerReturnInput{
		Date: returnDate(t),
		Lines: []CustomerReturnLine{
			{ProductID: 99, UnitID: 1, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(30)},
		},
	})
	require.ErrorIs(t, err, ledger.ErrProductNotFound)
	require.Empty(t, store.customerReturns)
}
