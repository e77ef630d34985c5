package access

import (
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"github.com/tkobori/ShachiDB/types"
)

// TransactionManager hands out transaction ids and keeps the registry
// the deadlock detector resolves victims through. Commit and Abort
// release every lock the transaction still holds, rows before tables.
type TransactionManager struct {
	nextTxnID   int32
	lockManager *LockManager

	txnMap      map[types.TxnID]*Transaction
	txnMapMutex deadlock.Mutex
}

func NewTransactionManager(lockManager *LockManager) *TransactionManager {
	tm := &TransactionManager{
		nextTxnID:   0,
		lockManager: lockManager,
		txnMap:      make(map[types.TxnID]*Transaction),
	}
	if lockManager != nil {
		lockManager.txnMgr = tm
	}
	return tm
}

// Begin starts a new transaction at the given isolation level
func (tm *TransactionManager) Begin(isolationLevel IsolationLevel) *Transaction {
	txnID := types.TxnID(atomic.AddInt32(&tm.nextTxnID, 1) - 1)
	txn := NewTransaction(txnID, isolationLevel)

	tm.txnMapMutex.Lock()
	tm.txnMap[txnID] = txn
	tm.txnMapMutex.Unlock()
	return txn
}

// Commit commits the transaction and releases its locks
func (tm *TransactionManager) Commit(txn *Transaction) {
	txn.LockTxn()
	txn.SetState(COMMITTED)
	txn.UnlockTxn()

	tm.releaseAllLocks(txn)
}

// Abort rolls the transaction state to ABORTED and releases its locks
func (tm *TransactionManager) Abort(txn *Transaction) {
	txn.LockTxn()
	txn.SetState(ABORTED)
	txn.UnlockTxn()

	tm.releaseAllLocks(txn)
}

// GetTransaction resolves a transaction id
func (tm *TransactionManager) GetTransaction(txnID types.TxnID) *Transaction {
	tm.txnMapMutex.Lock()
	defer tm.txnMapMutex.Unlock()
	return tm.txnMap[txnID]
}

func (tm *TransactionManager) releaseAllLocks(txn *Transaction) {
	if tm.lockManager == nil {
		return
	}

	// rows first, then their tables
	for oid := range txn.sharedRowLockSet {
		for _, rid := range txn.GetSharedRowLockSet(oid).ToSlice() {
			tm.lockManager.UnlockRow(txn, oid, rid)
		}
	}
	for oid := range txn.exclusiveRowLockSet {
		for _, rid := range txn.GetExclusiveRowLockSet(oid).ToSlice() {
			tm.lockManager.UnlockRow(txn, oid, rid)
		}
	}

	for _, oid := range txn.GetSharedTableLockSet().ToSlice() {
		tm.lockManager.UnlockTable(txn, oid)
	}
	for _, oid := range txn.GetExclusiveTableLockSet().ToSlice() {
		tm.lockManager.UnlockTable(txn, oid)
	}
	for _, oid := range txn.GetIntentionSharedTableLockSet().ToSlice() {
		tm.lockManager.UnlockTable(txn, oid)
	}
	for _, oid := range txn.GetIntentionExclusiveTableLockSet().ToSlice() {
		tm.lockManager.UnlockTable(txn, oid)
	}
	for _, oid := range txn.GetSharedIntentionExclusiveTableLockSet().ToSlice() {
		tm.lockManager.UnlockTable(txn, oid)
	}
}
