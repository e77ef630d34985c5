package buffer

import (
	"github.com/sasha-s/go-deadlock"
	"github.com/tkobori/ShachiDB/storage/disk"
	"github.com/tkobori/ShachiDB/storage/page"
	"github.com/tkobori/ShachiDB/types"
)

// ParallelBufferPoolManager fans page traffic out over independent
// buffer pool instances to cut latch contention. Pages allocated through
// it are routed to the instance that created them; everything else maps
// by page id modulo the instance count.
type ParallelBufferPoolManager struct {
	instances []*BufferPoolManager
	pageOwner map[types.PageID]uint32
	curIndex  uint32
	mutex     deadlock.Mutex
}

// NewParallelBufferPoolManager creates numInstances pools of poolSize
// frames each, all backed by the same disk manager.
func NewParallelBufferPoolManager(numInstances uint32, poolSize uint32, diskManager disk.DiskManager) *ParallelBufferPoolManager {
	instances := make([]*BufferPoolManager, numInstances)
	for i := range instances {
		instances[i] = NewBufferPoolManager(poolSize, diskManager)
	}
	return &ParallelBufferPoolManager{
		instances: instances,
		pageOwner: make(map[types.PageID]uint32),
	}
}

// GetBufferPoolManager returns the instance responsible for the page id
func (p *ParallelBufferPoolManager) GetBufferPoolManager(pageID types.PageID) *BufferPoolManager {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.instances[p.ownerIndex(pageID)]
}

func (p *ParallelBufferPoolManager) ownerIndex(pageID types.PageID) uint32 {
	if owner, ok := p.pageOwner[pageID]; ok {
		return owner
	}
	return uint32(pageID) % uint32(len(p.instances))
}

// FetchPage fetches the page from the responsible instance
func (p *ParallelBufferPoolManager) FetchPage(pageID types.PageID) (*page.Page, error) {
	return p.GetBufferPoolManager(pageID).FetchPage(pageID)
}

// UnpinPage unpins the page at the responsible instance
func (p *ParallelBufferPoolManager) UnpinPage(pageID types.PageID, isDirty bool) bool {
	return p.GetBufferPoolManager(pageID).UnpinPage(pageID, isDirty)
}

// FlushPage flushes the page at the responsible instance
func (p *ParallelBufferPoolManager) FlushPage(pageID types.PageID) bool {
	return p.GetBufferPoolManager(pageID).FlushPage(pageID)
}

// NewPage allocates a page from the instances in a round-robin manner,
// starting one past the instance that served the previous allocation.
func (p *ParallelBufferPoolManager) NewPage() (*page.Page, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	startIndex := p.curIndex
	for {
		pg, err := p.instances[p.curIndex].NewPage()
		if pg != nil {
			p.pageOwner[pg.GetPageId()] = p.curIndex
			p.curIndex = (p.curIndex + 1) % uint32(len(p.instances))
			return pg, nil
		}

		p.curIndex = (p.curIndex + 1) % uint32(len(p.instances))
		if p.curIndex == startIndex {
			return nil, err
		}
	}
}

// DeletePage deletes the page at the responsible instance
func (p *ParallelBufferPoolManager) DeletePage(pageID types.PageID) bool {
	deleted := p.GetBufferPoolManager(pageID).DeletePage(pageID)
	if deleted {
		p.mutex.Lock()
		delete(p.pageOwner, pageID)
		p.mutex.Unlock()
	}
	return deleted
}

// FlushAllPages flushes every instance
func (p *ParallelBufferPoolManager) FlushAllPages() {
	for _, instance := range p.instances {
		instance.FlushAllPages()
	}
}

// GetPoolSize returns the total number of frames over all instances
func (p *ParallelBufferPoolManager) GetPoolSize() uint32 {
	size := uint32(0)
	for _, instance := range p.instances {
		size += instance.GetPoolSize()
	}
	return size
}
