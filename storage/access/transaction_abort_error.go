package access

import (
	"fmt"

	"github.com/tkobori/ShachiDB/types"
)

// AbortReason enumerates why the lock manager aborted a transaction
type AbortReason int32

const (
	LOCK_SHARED_ON_READ_UNCOMMITTED AbortReason = iota
	LOCK_ON_SHRINKING
	ATTEMPTED_INTENTION_LOCK_ON_ROW
	TABLE_LOCK_NOT_PRESENT
	INCOMPATIBLE_UPGRADE
	UPGRADE_CONFLICT
	ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD
	TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS
	DEADLOCK
)

var abortReasonText = map[AbortReason]string{
	LOCK_SHARED_ON_READ_UNCOMMITTED:      "shared lock requested on READ_UNCOMMITTED",
	LOCK_ON_SHRINKING:                    "lock requested in SHRINKING state",
	ATTEMPTED_INTENTION_LOCK_ON_ROW:      "intention lock requested on a row",
	TABLE_LOCK_NOT_PRESENT:               "row lock requested without a matching table lock",
	INCOMPATIBLE_UPGRADE:                 "lock upgrade not permitted",
	UPGRADE_CONFLICT:                     "another transaction is already upgrading",
	ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD:    "unlock requested without a lock held",
	TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS: "table unlocked while its rows are still locked",
	DEADLOCK:                             "aborted as the youngest transaction of a deadlock cycle",
}

// TransactionAbortError reports that the lock manager moved the
// transaction to ABORTED. The state is flipped before the error is
// returned, so concurrent waiters observing it exit cleanly.
type TransactionAbortError struct {
	txnID  types.TxnID
	reason AbortReason
}

func NewTransactionAbortError(txnID types.TxnID, reason AbortReason) *TransactionAbortError {
	return &TransactionAbortError{txnID: txnID, reason: reason}
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("transaction %d aborted: %s", e.txnID, abortReasonText[e.reason])
}

func (e *TransactionAbortError) GetTxnID() types.TxnID { return e.txnID }

func (e *TransactionAbortError) GetAbortReason() AbortReason { return e.reason }
