package access

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	stack "github.com/golang-collections/collections/stack"
	"github.com/sasha-s/go-deadlock"
	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

// LockMode is the mode of a table or row lock. The numeric order of
// SHARED and EXCLUSIVE is relied on by the unlock state transition.
type LockMode int32

const (
	SHARED LockMode = iota
	EXCLUSIVE
	INTENTION_SHARED
	INTENTION_EXCLUSIVE
	SHARED_INTENTION_EXCLUSIVE
)

// compatibleMap lists, per requested mode, the held modes it coexists with
var compatibleMap = map[LockMode][]LockMode{
	INTENTION_SHARED:           {INTENTION_SHARED, INTENTION_EXCLUSIVE, SHARED, SHARED_INTENTION_EXCLUSIVE},
	INTENTION_EXCLUSIVE:        {INTENTION_SHARED, INTENTION_EXCLUSIVE},
	SHARED:                     {INTENTION_SHARED, SHARED},
	SHARED_INTENTION_EXCLUSIVE: {INTENTION_SHARED},
	EXCLUSIVE:                  {},
}

// upgradeMap lists the permitted upgrade transitions:
// IS -> [S, X, IX, SIX]; S -> [X, SIX]; IX -> [X, SIX]; SIX -> [X]
var upgradeMap = map[LockMode][]LockMode{
	INTENTION_SHARED:           {SHARED, EXCLUSIVE, INTENTION_EXCLUSIVE, SHARED_INTENTION_EXCLUSIVE},
	SHARED:                     {EXCLUSIVE, SHARED_INTENTION_EXCLUSIVE},
	INTENTION_EXCLUSIVE:        {EXCLUSIVE, SHARED_INTENTION_EXCLUSIVE},
	SHARED_INTENTION_EXCLUSIVE: {EXCLUSIVE},
}

// LockRequest is a lock request on a table or on a row. rid is unused
// for table requests.
type LockRequest struct {
	txnID    types.TxnID
	lockMode LockMode
	oid      types.TableOID
	rid      page.RID
	granted  bool
	onTable  bool
}

// LockRequestQueue holds the requests of one resource in FIFO order plus
// the condition variable its waiters block on.
type LockRequestQueue struct {
	requests []*LockRequest
	// txn id of the upgrading transaction, if any
	upgrading types.TxnID
	latch     deadlock.Mutex
	cv        *sync.Cond
}

func newLockRequestQueue() *LockRequestQueue {
	q := &LockRequestQueue{upgrading: types.InvalidTxnID}
	q.cv = sync.NewCond(&q.latch)
	return q
}

// insert places the request at the queue tail, or, for an upgrade, ahead
// of every request not yet granted (but behind all grants).
func (q *LockRequestQueue) insert(request *LockRequest, insertHead bool) {
	if !insertHead {
		q.requests = append(q.requests, request)
		return
	}

	index := len(q.requests)
	for i, req := range q.requests {
		if !req.granted {
			index = i
			break
		}
	}
	q.requests = append(q.requests, nil)
	copy(q.requests[index+1:], q.requests[index:])
	q.requests[index] = request
}

// isGranted is the wait predicate: the request is granted iff it is the
// earliest non-granted request and compatible with every grant ahead of
// it. A transaction found ABORTED unwinds its request and reports done.
// Callers hold the queue latch.
func (q *LockRequestQueue) isGranted(request *LockRequest, txn *Transaction, aborted *bool) bool {
	txn.LockTxn()
	defer txn.UnlockTxn()

	if txn.GetState() == ABORTED {
		if q.upgrading == request.txnID {
			q.upgrading = types.InvalidTxnID
		}
		q.remove(request)
		*aborted = true
		return true
	}

	firstUngranted := -1
	for i, req := range q.requests {
		if !req.granted {
			firstUngranted = i
			break
		}
	}
	if firstUngranted == -1 || q.requests[firstUngranted] != request {
		return false
	}

	compatibleModes := compatibleMap[request.lockMode]
	for _, req := range q.requests[:firstUngranted] {
		compatible := false
		for _, mode := range compatibleModes {
			if req.lockMode == mode {
				compatible = true
				break
			}
		}
		if !compatible {
			return false
		}
	}

	request.granted = true
	if q.upgrading == request.txnID {
		q.upgrading = types.InvalidTxnID
	}
	if request.onTable {
		getTableLockSetByMode(txn, int32(request.lockMode)).Add(request.oid)
	} else {
		getRowLockSetByMode(txn, int32(request.lockMode), request.oid).Add(request.rid)
	}
	return true
}

func (q *LockRequestQueue) remove(request *LockRequest) {
	for i, req := range q.requests {
		if req == request {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

func (q *LockRequestQueue) removeByTxnID(txnID types.TxnID) {
	for i, req := range q.requests {
		if req.txnID == txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

/**
 * LockManager handles transactions asking for locks on tables and rows.
 * Grants follow FIFO over the non-granted requests of each resource;
 * upgrades jump ahead of every waiter. A background task periodically
 * rebuilds the waits-for graph and aborts the youngest transaction of
 * every cycle.
 */
type LockManager struct {
	tableLockMap      map[types.TableOID]*LockRequestQueue
	tableLockMapLatch deadlock.Mutex

	rowLockMap      map[page.RID]*LockRequestQueue
	rowLockMapLatch deadlock.Mutex

	enableCycleDetection atomic.Bool
	detectorStop         chan struct{}
	detectorDone         chan struct{}

	// waits-for graph, rebuilt by every detection round. An edge t1->t2
	// means t1 waits for a lock t2 holds.
	waitsFor map[types.TxnID][]types.TxnID

	txnMgr *TransactionManager
}

// NewLockManager creates a lock manager and launches its cycle detection
// task.
func NewLockManager() *LockManager {
	lm := &LockManager{
		tableLockMap: make(map[types.TableOID]*LockRequestQueue),
		rowLockMap:   make(map[page.RID]*LockRequestQueue),
		detectorStop: make(chan struct{}),
		detectorDone: make(chan struct{}),
		waitsFor:     make(map[types.TxnID][]types.TxnID),
	}
	lm.enableCycleDetection.Store(true)
	go lm.runCycleDetection()
	return lm
}

// SetCycleDetection toggles the background detection rounds
func (lm *LockManager) SetCycleDetection(enable bool) {
	lm.enableCycleDetection.Store(enable)
}

// ShutDown stops the cycle detection task and waits for it to exit
func (lm *LockManager) ShutDown() {
	close(lm.detectorStop)
	<-lm.detectorDone
}

func (lm *LockManager) getTableQueue(oid types.TableOID) *LockRequestQueue {
	lm.tableLockMapLatch.Lock()
	defer lm.tableLockMapLatch.Unlock()
	if _, ok := lm.tableLockMap[oid]; !ok {
		lm.tableLockMap[oid] = newLockRequestQueue()
	}
	return lm.tableLockMap[oid]
}

func (lm *LockManager) getRowQueue(rid page.RID) *LockRequestQueue {
	lm.rowLockMapLatch.Lock()
	defer lm.rowLockMapLatch.Unlock()
	if _, ok := lm.rowLockMap[rid]; !ok {
		lm.rowLockMap[rid] = newLockRequestQueue()
	}
	return lm.rowLockMap[rid]
}

func upgradable(from LockMode, to LockMode) bool {
	for _, mode := range upgradeMap[from] {
		if mode == to {
			return true
		}
	}
	return false
}

// lockPreCheck validates the isolation level, transaction state and lock
// hierarchy preconditions of an acquisition.
func (lm *LockManager) lockPreCheck(txn *Transaction, mode LockMode, onTable bool, oid types.TableOID, reason *AbortReason) bool {
	state := txn.GetState()
	isolationLevel := txn.GetIsolationLevel()

	// row locking does not support intention locks
	if !onTable && mode != SHARED && mode != EXCLUSIVE {
		*reason = ATTEMPTED_INTENTION_LOCK_ON_ROW
		return false
	}

	switch isolationLevel {
	case READ_UNCOMMITTED:
		if mode == SHARED || mode == INTENTION_SHARED || mode == SHARED_INTENTION_EXCLUSIVE {
			*reason = LOCK_SHARED_ON_READ_UNCOMMITTED
			return false
		}
		if state == SHRINKING {
			*reason = LOCK_ON_SHRINKING
			return false
		}
	case READ_COMMITTED:
		if state == SHRINKING && (mode == EXCLUSIVE || mode == INTENTION_EXCLUSIVE || mode == SHARED_INTENTION_EXCLUSIVE) {
			*reason = LOCK_ON_SHRINKING
			return false
		}
	case REPEATABLE_READ:
		if state == SHRINKING {
			*reason = LOCK_ON_SHRINKING
			return false
		}
	}

	// multiple-level locking: a row lock needs a matching table lock
	if !onTable {
		code := getTableLockMode(txn, oid)
		if mode == EXCLUSIVE {
			if code != int32(EXCLUSIVE) && code != int32(INTENTION_EXCLUSIVE) && code != int32(SHARED_INTENTION_EXCLUSIVE) {
				*reason = TABLE_LOCK_NOT_PRESENT
				return false
			}
		} else if code == -1 {
			*reason = TABLE_LOCK_NOT_PRESENT
			return false
		}
	}

	return true
}

// unlockPreCheck validates that the lock is held and that no row of a
// table stays locked past its table lock.
func (lm *LockManager) unlockPreCheck(txn *Transaction, onTable bool, oid types.TableOID, rid page.RID, fromUpgrade bool, reason *AbortReason) bool {
	var code int32
	if onTable {
		code = getTableLockMode(txn, oid)
	} else {
		code = getRowLockMode(txn, oid, rid)
	}
	if code == -1 {
		*reason = ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD
		return false
	}

	if onTable && !fromUpgrade {
		if txn.GetSharedRowLockSet(oid).Cardinality() > 0 || txn.GetExclusiveRowLockSet(oid).Cardinality() > 0 {
			*reason = TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS
			return false
		}
	}

	return true
}

// LockTable acquires a lock on the table in the given mode, upgrading a
// held lock when the transition is permitted. Blocks until granted;
// returns a TransactionAbortError after moving the transaction to
// ABORTED on a precondition violation, or after the deadlock detector
// chose this transaction as a victim.
func (lm *LockManager) LockTable(txn *Transaction, lockMode LockMode, oid types.TableOID) error {
	queue := lm.getTableQueue(oid)
	queue.latch.Lock()
	txn.LockTxn()

	txnID := txn.GetTransactionId()
	var reason AbortReason
	if !lm.lockPreCheck(txn, lockMode, true, oid, &reason) {
		txn.SetState(ABORTED)
		txn.UnlockTxn()
		queue.latch.Unlock()
		return NewTransactionAbortError(txnID, reason)
	}

	code := getTableLockMode(txn, oid)
	heldLockAlready := code != -1

	// a held lock in another mode is upgraded: remove the old grant,
	// re-enqueue ahead of the waiters
	if heldLockAlready {
		heldLockMode := LockMode(code)
		if heldLockMode == lockMode {
			txn.UnlockTxn()
			queue.latch.Unlock()
			return nil
		}

		if !upgradable(heldLockMode, lockMode) {
			txn.SetState(ABORTED)
			txn.UnlockTxn()
			queue.latch.Unlock()
			return NewTransactionAbortError(txnID, INCOMPATIBLE_UPGRADE)
		}

		if queue.upgrading != types.InvalidTxnID {
			txn.SetState(ABORTED)
			txn.UnlockTxn()
			queue.latch.Unlock()
			return NewTransactionAbortError(txnID, UPGRADE_CONFLICT)
		}
		queue.upgrading = txnID

		// release the held lock; the queue latch and txn lock stay held
		if err := lm.unlockTableHelper(txn, oid, queue, true); err != nil {
			txn.UnlockTxn()
			queue.latch.Unlock()
			return err
		}
	}

	txn.UnlockTxn()

	request := &LockRequest{txnID: txnID, lockMode: lockMode, oid: oid, onTable: true}
	queue.insert(request, heldLockAlready)

	aborted := false
	for !queue.isGranted(request, txn, &aborted) {
		queue.cv.Wait()
	}
	queue.cv.Broadcast()
	queue.latch.Unlock()

	if aborted {
		return NewTransactionAbortError(txnID, DEADLOCK)
	}
	return nil
}

// UnlockTable releases the table lock held by the transaction
func (lm *LockManager) UnlockTable(txn *Transaction, oid types.TableOID) error {
	return lm.unlockTableHelper(txn, oid, lm.getTableQueue(oid), false)
}

// unlockTableHelper releases the lock through the passed queue. An
// upgrade calls it with the queue latch and txn lock already held.
func (lm *LockManager) unlockTableHelper(txn *Transaction, oid types.TableOID, queue *LockRequestQueue, fromUpgrade bool) error {
	if !fromUpgrade {
		queue.latch.Lock()
		txn.LockTxn()
	}

	var reason AbortReason
	if !lm.unlockPreCheck(txn, true, oid, page.RID{}, fromUpgrade, &reason) {
		txn.SetState(ABORTED)
		if !fromUpgrade {
			txn.UnlockTxn()
			queue.latch.Unlock()
		}
		return NewTransactionAbortError(txn.GetTransactionId(), reason)
	}

	code := getTableLockMode(txn, oid)
	lm.updateStateOnUnlock(txn, code, fromUpgrade)
	getTableLockSetByMode(txn, code).Remove(oid)
	queue.removeByTxnID(txn.GetTransactionId())

	if !fromUpgrade {
		// an upgrade re-enqueues immediately, no other candidate may slip in
		queue.cv.Broadcast()
		txn.UnlockTxn()
		queue.latch.Unlock()
	}
	return nil
}

// LockRow acquires a lock on the row in the given mode. Rows accept only
// S and X, and require a matching table lock. See LockTable for the
// blocking and abort behavior.
func (lm *LockManager) LockRow(txn *Transaction, lockMode LockMode, oid types.TableOID, rid page.RID) error {
	queue := lm.getRowQueue(rid)
	queue.latch.Lock()
	txn.LockTxn()

	txnID := txn.GetTransactionId()
	var reason AbortReason
	if !lm.lockPreCheck(txn, lockMode, false, oid, &reason) {
		txn.SetState(ABORTED)
		txn.UnlockTxn()
		queue.latch.Unlock()
		return NewTransactionAbortError(txnID, reason)
	}

	code := getRowLockMode(txn, oid, rid)
	heldLockAlready := code != -1

	if heldLockAlready {
		heldLockMode := LockMode(code)
		if heldLockMode == lockMode {
			txn.UnlockTxn()
			queue.latch.Unlock()
			return nil
		}

		if !upgradable(heldLockMode, lockMode) {
			txn.SetState(ABORTED)
			txn.UnlockTxn()
			queue.latch.Unlock()
			return NewTransactionAbortError(txnID, INCOMPATIBLE_UPGRADE)
		}

		if queue.upgrading != types.InvalidTxnID {
			txn.SetState(ABORTED)
			txn.UnlockTxn()
			queue.latch.Unlock()
			return NewTransactionAbortError(txnID, UPGRADE_CONFLICT)
		}
		queue.upgrading = txnID

		if err := lm.unlockRowHelper(txn, oid, rid, queue, true); err != nil {
			txn.UnlockTxn()
			queue.latch.Unlock()
			return err
		}
	}

	txn.UnlockTxn()

	request := &LockRequest{txnID: txnID, lockMode: lockMode, oid: oid, rid: rid}
	queue.insert(request, heldLockAlready)

	aborted := false
	for !queue.isGranted(request, txn, &aborted) {
		queue.cv.Wait()
	}
	queue.cv.Broadcast()
	queue.latch.Unlock()

	if aborted {
		return NewTransactionAbortError(txnID, DEADLOCK)
	}
	return nil
}

// UnlockRow releases the row lock held by the transaction
func (lm *LockManager) UnlockRow(txn *Transaction, oid types.TableOID, rid page.RID) error {
	return lm.unlockRowHelper(txn, oid, rid, lm.getRowQueue(rid), false)
}

func (lm *LockManager) unlockRowHelper(txn *Transaction, oid types.TableOID, rid page.RID, queue *LockRequestQueue, fromUpgrade bool) error {
	if !fromUpgrade {
		queue.latch.Lock()
		txn.LockTxn()
	}

	var reason AbortReason
	if !lm.unlockPreCheck(txn, false, oid, rid, fromUpgrade, &reason) {
		txn.SetState(ABORTED)
		if !fromUpgrade {
			txn.UnlockTxn()
			queue.latch.Unlock()
		}
		return NewTransactionAbortError(txn.GetTransactionId(), reason)
	}

	code := getRowLockMode(txn, oid, rid)
	lm.updateStateOnUnlock(txn, code, fromUpgrade)
	getRowLockSetByMode(txn, code, oid).Remove(rid)
	queue.removeByTxnID(txn.GetTransactionId())

	if !fromUpgrade {
		queue.cv.Broadcast()
		txn.UnlockTxn()
		queue.latch.Unlock()
	}
	return nil
}

// updateStateOnUnlock moves the transaction to SHRINKING when the
// isolation level demands it: REPEATABLE_READ on unlocking S or X,
// READ_COMMITTED and READ_UNCOMMITTED on unlocking X.
func (lm *LockManager) updateStateOnUnlock(txn *Transaction, code int32, fromUpgrade bool) {
	if fromUpgrade {
		return
	}
	state := txn.GetState()
	if state == COMMITTED || state == ABORTED {
		return
	}

	isolationLevel := txn.GetIsolationLevel()
	needUpdate := (isolationLevel == REPEATABLE_READ && code <= int32(EXCLUSIVE)) ||
		(isolationLevel == READ_COMMITTED && code == int32(EXCLUSIVE)) ||
		(isolationLevel == READ_UNCOMMITTED && code == int32(EXCLUSIVE))
	if needUpdate {
		txn.SetState(SHRINKING)
	}
}

func getRowLockMode(txn *Transaction, oid types.TableOID, rid page.RID) int32 {
	if txn.IsRowSharedLocked(oid, rid) {
		return int32(SHARED)
	}
	if txn.IsRowExclusiveLocked(oid, rid) {
		return int32(EXCLUSIVE)
	}
	return -1
}

func getRowLockSetByMode(txn *Transaction, mode int32, oid types.TableOID) mapset.Set[page.RID] {
	if LockMode(mode) == SHARED {
		return txn.GetSharedRowLockSet(oid)
	}
	return txn.GetExclusiveRowLockSet(oid)
}

func getTableLockMode(txn *Transaction, oid types.TableOID) int32 {
	if txn.IsTableSharedLocked(oid) {
		return int32(SHARED)
	}
	if txn.IsTableExclusiveLocked(oid) {
		return int32(EXCLUSIVE)
	}
	if txn.IsTableIntentionSharedLocked(oid) {
		return int32(INTENTION_SHARED)
	}
	if txn.IsTableIntentionExclusiveLocked(oid) {
		return int32(INTENTION_EXCLUSIVE)
	}
	if txn.IsTableSharedIntentionExclusiveLocked(oid) {
		return int32(SHARED_INTENTION_EXCLUSIVE)
	}
	return -1
}

func getTableLockSetByMode(txn *Transaction, mode int32) mapset.Set[types.TableOID] {
	switch LockMode(mode) {
	case SHARED:
		return txn.GetSharedTableLockSet()
	case EXCLUSIVE:
		return txn.GetExclusiveTableLockSet()
	case INTENTION_SHARED:
		return txn.GetIntentionSharedTableLockSet()
	case INTENTION_EXCLUSIVE:
		return txn.GetIntentionExclusiveTableLockSet()
	default:
		return txn.GetSharedIntentionExclusiveTableLockSet()
	}
}

/*** Graph API ***/

// AddEdge adds the edge t1 -> t2 to the waits-for graph
func (lm *LockManager) AddEdge(t1 types.TxnID, t2 types.TxnID) {
	lm.waitsFor[t1] = append(lm.waitsFor[t1], t2)
}

// RemoveEdge removes the edge t1 -> t2 from the waits-for graph
func (lm *LockManager) RemoveEdge(t1 types.TxnID, t2 types.TxnID) {
	edges := lm.waitsFor[t1]
	for i, v := range edges {
		if v == t2 {
			lm.waitsFor[t1] = append(edges[:i], edges[i+1:]...)
			return
		}
	}
}

// GetEdgeList returns every edge of the current waits-for graph
func (lm *LockManager) GetEdgeList() [][2]types.TxnID {
	edges := make([][2]types.TxnID, 0)
	for u, vs := range lm.waitsFor {
		for _, v := range vs {
			edges = append(edges, [2]types.TxnID{u, v})
		}
	}
	return edges
}

// HasCycle reports whether the waits-for graph has a cycle, storing the
// youngest (highest) transaction id of the first cycle found into txnID.
// The search is a depth-first walk with an explicit stack; neighbor
// lists are kept sorted so victim selection is deterministic.
func (lm *LockManager) HasCycle(txnID *types.TxnID) bool {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	colors := make(map[types.TxnID]int)

	starts := make([]types.TxnID, 0, len(lm.waitsFor))
	for u := range lm.waitsFor {
		starts = append(starts, u)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	for _, start := range starts {
		if colors[start] != white {
			continue
		}

		parent := make(map[types.TxnID]types.TxnID)
		frontier := stack.New()
		frontier.Push(start)

		for frontier.Len() > 0 {
			u := frontier.Peek().(types.TxnID)
			if colors[u] == white {
				colors[u] = grey
				for _, v := range lm.waitsFor[u] {
					if colors[v] == grey {
						// cycle v -> ... -> u -> v: walk back for the youngest
						youngest := v
						for w := u; w != v; w = parent[w] {
							if w > youngest {
								youngest = w
							}
						}
						*txnID = youngest
						return true
					}
					if colors[v] == white {
						parent[v] = u
						frontier.Push(v)
					}
				}
			} else {
				colors[u] = black
				frontier.Pop()
			}
		}
	}

	*txnID = types.InvalidTxnID
	return false
}

// buildWaitsForGraph rebuilds the graph from the request queues: every
// non-granted request waits for every granted request ahead of it.
// Callers hold both lock map latches.
func (lm *LockManager) buildWaitsForGraph() {
	lm.waitsFor = make(map[types.TxnID][]types.TxnID)

	collect := func(queue *LockRequestQueue) {
		queue.latch.Lock()
		granted := make([]types.TxnID, 0)
		for _, request := range queue.requests {
			if request.granted {
				granted = append(granted, request.txnID)
			} else {
				for _, holder := range granted {
					lm.AddEdge(request.txnID, holder)
				}
			}
		}
		queue.latch.Unlock()
	}

	for _, queue := range lm.tableLockMap {
		collect(queue)
	}
	for _, queue := range lm.rowLockMap {
		collect(queue)
	}

	for u := range lm.waitsFor {
		vs := lm.waitsFor[u]
		sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	}
}

// notifyAll wakes every queue so aborted waiters unwind their requests
func (lm *LockManager) notifyAll() {
	for _, queue := range lm.tableLockMap {
		queue.cv.Broadcast()
	}
	for _, queue := range lm.rowLockMap {
		queue.cv.Broadcast()
	}
}

// runCycleDetection is the background detection loop
func (lm *LockManager) runCycleDetection() {
	defer close(lm.detectorDone)
	for {
		select {
		case <-lm.detectorStop:
			return
		case <-time.After(common.CycleDetectionInterval):
		}
		if !lm.enableCycleDetection.Load() {
			continue
		}

		lm.tableLockMapLatch.Lock()
		lm.rowLockMapLatch.Lock()

		lm.buildWaitsForGraph()
		hadCycle := false
		victim := types.InvalidTxnID
		for lm.HasCycle(&victim) {
			hadCycle = true
			common.Logger.Debugf("deadlock detected, aborting txn %d", victim)

			delete(lm.waitsFor, victim)
			for u := range lm.waitsFor {
				lm.RemoveEdge(u, victim)
			}

			if lm.txnMgr != nil {
				if txn := lm.txnMgr.GetTransaction(victim); txn != nil {
					txn.LockTxn()
					txn.SetState(ABORTED)
					txn.UnlockTxn()
				}
			}
		}

		if hadCycle {
			lm.notifyAll()
		}

		lm.rowLockMapLatch.Unlock()
		lm.tableLockMapLatch.Unlock()
	}
}
