package disk

import (
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/pkg/errors"
	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/types"
)

// VirtualDiskManagerImpl keeps the database file on memory. It is used
// by tests which do not care about data persistence.
type VirtualDiskManagerImpl struct {
	db          *memfile.File
	fileName    string
	nextPageID  types.PageID
	numWrites   uint64
	size        int64
	dbFileMutex sync.Mutex
}

func NewVirtualDiskManagerImpl(dbFilename string) DiskManager {
	file := memfile.New(make([]byte, 0))
	return &VirtualDiskManagerImpl{db: file, fileName: dbFilename}
}

// ShutDown does nothing. the data is just lost with the process.
func (d *VirtualDiskManagerImpl) ShutDown() {
}

// WritePage writes a page to the memory-backed file
func (d *VirtualDiskManagerImpl) WritePage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageID) * common.PageSize
	bytesWritten, err := d.db.WriteAt(pageData, offset)
	if err != nil {
		return errors.Wrapf(err, "write of page %d failed", pageID)
	}
	if bytesWritten != common.PageSize {
		return errors.Errorf("bytes written (%d) does not equal page size", bytesWritten)
	}
	if offset >= d.size {
		d.size = offset + int64(bytesWritten)
	}
	d.numWrites++
	return nil
}

// ReadPage reads a page from the memory-backed file
func (d *VirtualDiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageID) * common.PageSize
	if offset > int64(len(d.db.Bytes())) {
		return errors.Errorf("read of page %d past end of file", pageID)
	}

	bytesRead, err := d.db.ReadAt(pageData, offset)
	if err != nil && bytesRead == 0 {
		return errors.Wrapf(err, "read of page %d failed", pageID)
	}
	if bytesRead < common.PageSize {
		for i := bytesRead; i < common.PageSize; i++ {
			pageData[i] = 0
		}
	}
	return nil
}

func (d *VirtualDiskManagerImpl) AllocatePage() types.PageID {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

func (d *VirtualDiskManagerImpl) DeallocatePage(pageID types.PageID) {
}

func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	return d.numWrites
}

func (d *VirtualDiskManagerImpl) Size() int64 {
	return d.size
}
