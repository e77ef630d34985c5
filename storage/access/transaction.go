package access

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sasha-s/go-deadlock"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

/**
 * Transaction states:
 *
 *     _________________________
 *    |                         v
 * GROWING -> SHRINKING -> COMMITTED   ABORTED
 *    |__________|________________________^
 *
 **/
type TransactionState int32

const (
	GROWING TransactionState = iota
	SHRINKING
	COMMITTED
	ABORTED
)

type IsolationLevel int32

const (
	READ_UNCOMMITTED IsolationLevel = iota
	READ_COMMITTED
	REPEATABLE_READ
)

/**
 * Transaction tracks the state the lock manager and the index latching
 * protocol need: the two-phase-locking state, one lock set per table
 * lock mode, the row lock sets, and the page sets of an in-flight index
 * mutation.
 */
type Transaction struct {
	mutex deadlock.Mutex

	state          TransactionState
	isolationLevel IsolationLevel
	txnID          types.TxnID

	sharedTableLockSet                   mapset.Set[types.TableOID]
	exclusiveTableLockSet                mapset.Set[types.TableOID]
	intentionSharedTableLockSet          mapset.Set[types.TableOID]
	intentionExclusiveTableLockSet       mapset.Set[types.TableOID]
	sharedIntentionExclusiveTableLockSet mapset.Set[types.TableOID]

	sharedRowLockSet    map[types.TableOID]mapset.Set[page.RID]
	exclusiveRowLockSet map[types.TableOID]mapset.Set[page.RID]

	// pages latched by an in-flight B+-tree mutation, in descent order.
	// A nil entry marks the point where the tree latch was taken.
	pageSet []*page.Page
	// pages emptied by an in-flight B+-tree mutation, freed once every
	// latch is released
	deletedPageSet mapset.Set[types.PageID]
}

func NewTransaction(txnID types.TxnID, isolationLevel IsolationLevel) *Transaction {
	return &Transaction{
		state:                                GROWING,
		isolationLevel:                       isolationLevel,
		txnID:                                txnID,
		sharedTableLockSet:                   mapset.NewSet[types.TableOID](),
		exclusiveTableLockSet:                mapset.NewSet[types.TableOID](),
		intentionSharedTableLockSet:          mapset.NewSet[types.TableOID](),
		intentionExclusiveTableLockSet:       mapset.NewSet[types.TableOID](),
		sharedIntentionExclusiveTableLockSet: mapset.NewSet[types.TableOID](),
		sharedRowLockSet:                     make(map[types.TableOID]mapset.Set[page.RID]),
		exclusiveRowLockSet:                  make(map[types.TableOID]mapset.Set[page.RID]),
		deletedPageSet:                       mapset.NewSet[types.PageID](),
	}
}

// LockTxn serializes accesses to the transaction's state against the
// lock manager's deadlock detector.
func (txn *Transaction) LockTxn() {
	txn.mutex.Lock()
}

func (txn *Transaction) UnlockTxn() {
	txn.mutex.Unlock()
}

// GetTransactionId returns the id of this transaction
func (txn *Transaction) GetTransactionId() types.TxnID { return txn.txnID }

// GetState returns the current state of the transaction
func (txn *Transaction) GetState() TransactionState { return txn.state }

// SetState sets the state of the transaction
func (txn *Transaction) SetState(state TransactionState) { txn.state = state }

// GetIsolationLevel returns the isolation level of this transaction
func (txn *Transaction) GetIsolationLevel() IsolationLevel { return txn.isolationLevel }

func (txn *Transaction) GetSharedTableLockSet() mapset.Set[types.TableOID] {
	return txn.sharedTableLockSet
}

func (txn *Transaction) GetExclusiveTableLockSet() mapset.Set[types.TableOID] {
	return txn.exclusiveTableLockSet
}

func (txn *Transaction) GetIntentionSharedTableLockSet() mapset.Set[types.TableOID] {
	return txn.intentionSharedTableLockSet
}

func (txn *Transaction) GetIntentionExclusiveTableLockSet() mapset.Set[types.TableOID] {
	return txn.intentionExclusiveTableLockSet
}

func (txn *Transaction) GetSharedIntentionExclusiveTableLockSet() mapset.Set[types.TableOID] {
	return txn.sharedIntentionExclusiveTableLockSet
}

// GetSharedRowLockSet returns the S-locked rows grouped by table
func (txn *Transaction) GetSharedRowLockSet(oid types.TableOID) mapset.Set[page.RID] {
	if _, ok := txn.sharedRowLockSet[oid]; !ok {
		txn.sharedRowLockSet[oid] = mapset.NewSet[page.RID]()
	}
	return txn.sharedRowLockSet[oid]
}

// GetExclusiveRowLockSet returns the X-locked rows grouped by table
func (txn *Transaction) GetExclusiveRowLockSet(oid types.TableOID) mapset.Set[page.RID] {
	if _, ok := txn.exclusiveRowLockSet[oid]; !ok {
		txn.exclusiveRowLockSet[oid] = mapset.NewSet[page.RID]()
	}
	return txn.exclusiveRowLockSet[oid]
}

func (txn *Transaction) IsTableSharedLocked(oid types.TableOID) bool {
	return txn.sharedTableLockSet.Contains(oid)
}

func (txn *Transaction) IsTableExclusiveLocked(oid types.TableOID) bool {
	return txn.exclusiveTableLockSet.Contains(oid)
}

func (txn *Transaction) IsTableIntentionSharedLocked(oid types.TableOID) bool {
	return txn.intentionSharedTableLockSet.Contains(oid)
}

func (txn *Transaction) IsTableIntentionExclusiveLocked(oid types.TableOID) bool {
	return txn.intentionExclusiveTableLockSet.Contains(oid)
}

func (txn *Transaction) IsTableSharedIntentionExclusiveLocked(oid types.TableOID) bool {
	return txn.sharedIntentionExclusiveTableLockSet.Contains(oid)
}

func (txn *Transaction) IsRowSharedLocked(oid types.TableOID, rid page.RID) bool {
	set, ok := txn.sharedRowLockSet[oid]
	return ok && set.Contains(rid)
}

func (txn *Transaction) IsRowExclusiveLocked(oid types.TableOID, rid page.RID) bool {
	set, ok := txn.exclusiveRowLockSet[oid]
	return ok && set.Contains(rid)
}

// AddIntoPageSet records a page latched by an index mutation
func (txn *Transaction) AddIntoPageSet(p *page.Page) {
	txn.pageSet = append(txn.pageSet, p)
}

// GetPageSet returns the latched pages in descent order
func (txn *Transaction) GetPageSet() []*page.Page { return txn.pageSet }

// SetPageSet replaces the latched page list
func (txn *Transaction) SetPageSet(pageSet []*page.Page) { txn.pageSet = pageSet }

// AddIntoDeletedPageSet records a page an index mutation emptied
func (txn *Transaction) AddIntoDeletedPageSet(pageID types.PageID) {
	txn.deletedPageSet.Add(pageID)
}

// GetDeletedPageSet returns the pages waiting to be freed
func (txn *Transaction) GetDeletedPageSet() mapset.Set[types.PageID] { return txn.deletedPageSet }

// ClearDeletedPageSet empties the deleted page set
func (txn *Transaction) ClearDeletedPageSet() { txn.deletedPageSet.Clear() }
