package access

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

const testTable = types.TableOID(1)

func abortReasonOf(t *testing.T, err error) AbortReason {
	t.Helper()
	require.Error(t, err)
	abortErr, ok := err.(*TransactionAbortError)
	require.True(t, ok, "expected TransactionAbortError, got %v", err)
	return abortErr.GetAbortReason()
}

func TestLockTableSharedCompatibility(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)

	txn1 := tm.Begin(REPEATABLE_READ)
	txn2 := tm.Begin(REPEATABLE_READ)

	require.NoError(t, lm.LockTable(txn1, SHARED, testTable))
	require.NoError(t, lm.LockTable(txn2, SHARED, testTable))
	require.True(t, txn1.IsTableSharedLocked(testTable))
	require.True(t, txn2.IsTableSharedLocked(testTable))

	// re-acquiring the held mode is a no-op
	require.NoError(t, lm.LockTable(txn1, SHARED, testTable))

	require.NoError(t, lm.UnlockTable(txn1, testTable))
	require.False(t, txn1.IsTableSharedLocked(testTable))
	// REPEATABLE_READ: unlocking S moves the txn to SHRINKING
	require.Equal(t, SHRINKING, txn1.GetState())

	require.NoError(t, lm.UnlockTable(txn2, testTable))
}

func TestLockTableExclusiveBlocks(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)

	txn1 := tm.Begin(REPEATABLE_READ)
	txn2 := tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn1, EXCLUSIVE, testTable))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, lm.LockTable(txn2, SHARED, testTable))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("S lock granted while X lock is held")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, lm.UnlockTable(txn1, testTable))
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("S lock not granted after X release")
	}
}

func TestLockPreconditionViolations(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)
	rid := page.RID{PageId: 1, SlotNum: 1}

	// READ_UNCOMMITTED forbids shared modes
	txn := tm.Begin(READ_UNCOMMITTED)
	require.Equal(t, LOCK_SHARED_ON_READ_UNCOMMITTED,
		abortReasonOf(t, lm.LockTable(txn, SHARED, testTable)))
	require.Equal(t, ABORTED, txn.GetState())

	// intention modes are not valid on rows
	txn = tm.Begin(REPEATABLE_READ)
	require.Equal(t, ATTEMPTED_INTENTION_LOCK_ON_ROW,
		abortReasonOf(t, lm.LockRow(txn, INTENTION_SHARED, testTable, rid)))

	// a row lock needs a matching table lock
	txn = tm.Begin(REPEATABLE_READ)
	require.Equal(t, TABLE_LOCK_NOT_PRESENT,
		abortReasonOf(t, lm.LockRow(txn, SHARED, testTable, rid)))

	// an X row lock needs X, IX or SIX on the table; IS is not enough
	txn = tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn, INTENTION_SHARED, testTable))
	require.Equal(t, TABLE_LOCK_NOT_PRESENT,
		abortReasonOf(t, lm.LockRow(txn, EXCLUSIVE, testTable, rid)))

	// unlocking something never locked aborts
	txn = tm.Begin(REPEATABLE_READ)
	require.Equal(t, ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD,
		abortReasonOf(t, lm.UnlockTable(txn, testTable)))

	// a table cannot be unlocked while rows of it are still locked
	txn = tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn, INTENTION_EXCLUSIVE, testTable))
	require.NoError(t, lm.LockRow(txn, EXCLUSIVE, testTable, rid))
	require.Equal(t, TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS,
		abortReasonOf(t, lm.UnlockTable(txn, testTable)))

	// no acquisition in SHRINKING under REPEATABLE_READ
	txn = tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn, SHARED, types.TableOID(7)))
	require.NoError(t, lm.UnlockTable(txn, types.TableOID(7)))
	require.Equal(t, SHRINKING, txn.GetState())
	require.Equal(t, LOCK_ON_SHRINKING,
		abortReasonOf(t, lm.LockTable(txn, SHARED, types.TableOID(7))))
}

func TestLockUpgradeLattice(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)

	// IS -> X is permitted
	txn := tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn, INTENTION_SHARED, testTable))
	require.NoError(t, lm.LockTable(txn, EXCLUSIVE, testTable))
	require.True(t, txn.IsTableExclusiveLocked(testTable))
	require.False(t, txn.IsTableIntentionSharedLocked(testTable))
	require.NoError(t, lm.UnlockTable(txn, testTable))

	// X -> S is not an upgrade
	txn = tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn, EXCLUSIVE, types.TableOID(2)))
	require.Equal(t, INCOMPATIBLE_UPGRADE,
		abortReasonOf(t, lm.LockTable(txn, SHARED, types.TableOID(2))))
}

func TestLockUpgradeConflict(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)

	txn1 := tm.Begin(REPEATABLE_READ)
	txn2 := tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn1, SHARED, testTable))
	require.NoError(t, lm.LockTable(txn2, SHARED, testTable))

	// txn1's upgrade waits for txn2's S lock to go away
	upgraded := make(chan error, 1)
	go func() {
		upgraded <- lm.LockTable(txn1, EXCLUSIVE, testTable)
	}()
	time.Sleep(100 * time.Millisecond)

	// a second in-flight upgrade on the same resource aborts
	require.Equal(t, UPGRADE_CONFLICT,
		abortReasonOf(t, lm.LockTable(txn2, EXCLUSIVE, testTable)))

	require.NoError(t, lm.UnlockTable(txn2, testTable))
	require.NoError(t, <-upgraded)
	require.True(t, txn1.IsTableExclusiveLocked(testTable))
	require.NoError(t, lm.UnlockTable(txn1, testTable))
}

func TestUpgradePriority(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)

	txnA := tm.Begin(REPEATABLE_READ)
	txnB := tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txnA, SHARED, testTable))

	var order [2]int32
	var next int32
	var wg sync.WaitGroup
	wg.Add(2)

	// B queues for X first and waits behind A's S lock
	go func() {
		defer wg.Done()
		require.NoError(t, lm.LockTable(txnB, EXCLUSIVE, testTable))
		order[atomic.AddInt32(&next, 1)-1] = 2
		require.NoError(t, lm.UnlockTable(txnB, testTable))
	}()
	time.Sleep(100 * time.Millisecond)

	// A's upgrade jumps ahead of B
	go func() {
		defer wg.Done()
		require.NoError(t, lm.LockTable(txnA, EXCLUSIVE, testTable))
		order[atomic.AddInt32(&next, 1)-1] = 1
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, lm.UnlockTable(txnA, testTable))
	}()

	wg.Wait()
	require.Equal(t, [2]int32{1, 2}, order)
}

func TestDeadlockDetection(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)

	txnA := tm.Begin(REPEATABLE_READ)
	txnB := tm.Begin(REPEATABLE_READ)
	r1 := page.RID{PageId: 1, SlotNum: 1}
	r2 := page.RID{PageId: 1, SlotNum: 2}

	require.NoError(t, lm.LockTable(txnA, INTENTION_EXCLUSIVE, testTable))
	require.NoError(t, lm.LockTable(txnB, INTENTION_EXCLUSIVE, testTable))
	require.NoError(t, lm.LockRow(txnA, EXCLUSIVE, testTable, r1))
	require.NoError(t, lm.LockRow(txnB, EXCLUSIVE, testTable, r2))

	resultA := make(chan error, 1)
	resultB := make(chan error, 1)
	go func() { resultA <- lm.LockRow(txnA, EXCLUSIVE, testTable, r2) }()
	go func() {
		err := lm.LockRow(txnB, EXCLUSIVE, testTable, r1)
		if err != nil {
			// the victim unwinds, releasing its locks for the survivor
			tm.Abort(txnB)
		}
		resultB <- err
	}()

	// the youngest transaction (B, the higher id) is chosen as victim
	select {
	case errB := <-resultB:
		require.Error(t, errB)
		require.Equal(t, DEADLOCK, errB.(*TransactionAbortError).GetAbortReason())
		require.Equal(t, ABORTED, txnB.GetState())
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock not detected")
	}

	// the survivor acquires its lock and commits
	select {
	case errA := <-resultA:
		require.NoError(t, errA)
	case <-time.After(5 * time.Second):
		t.Fatal("survivor never granted")
	}
	require.True(t, txnA.IsRowExclusiveLocked(testTable, r2))
	tm.Commit(txnA)
}

func TestTransactionManagerCommitReleasesLocks(t *testing.T) {
	lm := NewLockManager()
	defer lm.ShutDown()
	tm := NewTransactionManager(lm)
	rid := page.RID{PageId: 3, SlotNum: 0}

	txn1 := tm.Begin(REPEATABLE_READ)
	require.Same(t, txn1, tm.GetTransaction(txn1.GetTransactionId()))

	require.NoError(t, lm.LockTable(txn1, INTENTION_EXCLUSIVE, testTable))
	require.NoError(t, lm.LockRow(txn1, EXCLUSIVE, testTable, rid))
	tm.Commit(txn1)
	require.Equal(t, COMMITTED, txn1.GetState())
	require.False(t, txn1.IsRowExclusiveLocked(testTable, rid))

	// everything was released; a second txn locks without waiting
	txn2 := tm.Begin(REPEATABLE_READ)
	require.NoError(t, lm.LockTable(txn2, EXCLUSIVE, testTable))
	require.NoError(t, lm.UnlockTable(txn2, testTable))
}
