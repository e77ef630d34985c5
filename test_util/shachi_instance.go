package test_util

import (
	"github.com/tkobori/ShachiDB/storage/access"
	"github.com/tkobori/ShachiDB/storage/buffer"
	"github.com/tkobori/ShachiDB/storage/disk"
)

// ShachiInstance bundles the core subsystems tests wire together: a
// disk manager, a buffer pool, a lock manager and a transaction manager.
type ShachiInstance struct {
	diskManager        disk.DiskManager
	bpm                *buffer.BufferPoolManager
	lockManager        *access.LockManager
	transactionManager *access.TransactionManager
}

// NewShachiInstance builds an instance over an in-memory disk manager
func NewShachiInstance(poolSize uint32) *ShachiInstance {
	diskManager := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := buffer.NewBufferPoolManager(poolSize, diskManager)
	lockManager := access.NewLockManager()
	transactionManager := access.NewTransactionManager(lockManager)
	return &ShachiInstance{diskManager, bpm, lockManager, transactionManager}
}

func (si *ShachiInstance) GetDiskManager() disk.DiskManager {
	return si.diskManager
}

func (si *ShachiInstance) GetBufferPoolManager() *buffer.BufferPoolManager {
	return si.bpm
}

func (si *ShachiInstance) GetLockManager() *access.LockManager {
	return si.lockManager
}

func (si *ShachiInstance) GetTransactionManager() *access.TransactionManager {
	return si.transactionManager
}

// Finalize tears the instance down
func (si *ShachiInstance) Finalize() {
	si.lockManager.ShutDown()
	si.diskManager.ShutDown()
}
