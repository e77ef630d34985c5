package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/tkobori/ShachiDB/common"
	"github.com/tkobori/ShachiDB/types"
)

// DiskManagerImpl is the disk implementation of DiskManager
type DiskManagerImpl struct {
	db         *os.File
	fileName   string
	nextPageID types.PageID
	numWrites  uint64
	size       int64
	fileMutex  sync.Mutex
}

// NewDiskManagerImpl returns a DiskManager instance backed by a database file
func NewDiskManagerImpl(dbFilename string) DiskManager {
	file, err := os.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		common.Logger.WithError(err).Fatal("can't open db file")
		return nil
	}

	fileInfo, err := file.Stat()
	if err != nil {
		common.Logger.WithError(err).Fatal("file info error")
		return nil
	}

	fileSize := fileInfo.Size()
	nextPageID := types.PageID(fileSize / common.PageSize)

	return &DiskManagerImpl{db: file, fileName: dbFilename, nextPageID: nextPageID, size: fileSize}
}

// ShutDown closes the database file
func (d *DiskManagerImpl) ShutDown() {
	d.fileMutex.Lock()
	defer d.fileMutex.Unlock()
	d.db.Close()
}

// WritePage writes a page to the database file
func (d *DiskManagerImpl) WritePage(pageID types.PageID, pageData []byte) error {
	d.fileMutex.Lock()
	defer d.fileMutex.Unlock()

	offset := int64(pageID) * common.PageSize
	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to page %d failed", pageID)
	}
	bytesWritten, err := d.db.Write(pageData)
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

	d.db.Sync()
	return nil
}

// ReadPage reads a page from the database file
func (d *DiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.fileMutex.Lock()
	defer d.fileMutex.Unlock()

	offset := int64(pageID) * common.PageSize

	fileInfo, err := d.db.Stat()
	if err != nil {
		return errors.Wrap(err, "file info error")
	}
	if offset > fileInfo.Size() {
		return errors.Errorf("read of page %d past end of file", pageID)
	}

	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to page %d failed", pageID)
	}

	bytesRead, err := d.db.Read(pageData)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "read of page %d failed", pageID)
	}
	if bytesRead < common.PageSize {
		// the tail of the file; zero-fill the rest
		for i := bytesRead; i < common.PageSize; i++ {
			pageData[i] = 0
		}
	}
	return nil
}

// AllocatePage allocates a new page id. For now it just keeps an
// increasing counter; deallocated ids are not reused.
func (d *DiskManagerImpl) AllocatePage() types.PageID {
	d.fileMutex.Lock()
	defer d.fileMutex.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage marks a page id unused. Tracking of the free page ids
// for reuse needs a bitmap in a header page; nothing to do for now.
func (d *DiskManagerImpl) DeallocatePage(pageID types.PageID) {
}

// GetNumWrites returns the number of disk writes
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	return d.numWrites
}

// Size returns the size of the file in disk
func (d *DiskManagerImpl) Size() int64 {
	return d.size
}

// RemoveDBFile deletes the database file. Only valid after ShutDown.
func (d *DiskManagerImpl) RemoveDBFile() {
	os.Remove(d.fileName)
}
