// Package container provides typed, offset-addressed access to the four
// regions of an .omni container file: header, user table, entry table,
// and block area, plus the trailing free-space snapshot.
package container

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/omnifs/omnifs/internal/config"
	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/freespace"
)

const Extension = ".omni"

const blockCacheSize = 1024

// Container is an open handle over one container file. All record reads
// and writes go through it; block reads are served from a write-through
// LRU cache.
type Container struct {
	file   *os.File
	path   string
	header domain.Header
	cache  *blockCache
}

// CheckExtension rejects paths that do not end in .omni.
func CheckExtension(path string) error {
	if !strings.HasSuffix(path, Extension) || len(path) <= len(Extension) {
		return errors.Wrap(domain.ErrInvalidPath, "container requires the .omni extension")
	}
	return nil
}

// Format writes a fresh container end-to-end: header, admin user in slot
// 0, reserved entry 0, root directory entry 1, zeroed block area, and
// the initial free-space snapshot.
func Format(path string, cfg *config.Config) error {
	if err := CheckExtension(path); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	defer f.Close()

	// The truncate zero-fills every region, including all content
	// blocks; only non-zero records are written explicitly below.
	if err := f.Truncate(int64(cfg.TotalSize)); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}

	header := domain.Header{
		Version:         domain.FormatVersion,
		TotalSize:       cfg.TotalSize,
		HeaderSize:      cfg.HeaderSize,
		BlockSize:       cfg.BlockSize,
		UserTableOffset: cfg.HeaderSize,
		MaxUsers:        cfg.MaxUsers,
		MaxFiles:        cfg.MaxFiles,
	}
	copy(header.Magic[:], domain.Magic)
	copy(header.StudentID[:], domain.StudentID)
	copy(header.SubmissionDate[:], time.Now().Format("2006-01-02"))

	buf := make([]byte, cfg.HeaderSize)
	encodeHeader(buf, &header)
	if _, err := f.WriteAt(buf, 0); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}

	now := time.Now().Unix()

	admin := domain.UserInfo{
		Username:     cfg.AdminUsername,
		PasswordHash: domain.HashPassword(cfg.AdminPassword),
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedTime:  now,
	}
	userBuf := make([]byte, domain.UserInfoSize)
	encodeUser(userBuf, &admin)
	if _, err := f.WriteAt(userBuf, int64(header.UserTableOffset)); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}

	root := domain.FileEntry{
		Name:         "/",
		Type:         domain.TypeDirectory,
		Valid:        true,
		Permissions:  0755,
		Owner:        cfg.AdminUsername,
		CreatedTime:  now,
		ModifiedTime: now,
		Inode:        domain.RootIndex,
	}
	entryBuf := make([]byte, domain.FileEntrySize)
	encodeEntry(entryBuf, &root)
	entryTable := header.UserTableOffset + uint64(header.MaxUsers)*domain.UserInfoSize
	if _, err := f.WriteAt(entryBuf, int64(entryTable+domain.RootIndex*domain.FileEntrySize)); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}

	contentOffset := entryTable + uint64(header.MaxFiles)*domain.FileEntrySize
	totalBlocks := uint32((header.TotalSize - contentOffset) / header.BlockSize)
	snapshotOffset := contentOffset + uint64(totalBlocks)*header.BlockSize

	fsm := freespace.NewManager(totalBlocks)
	if _, err := f.WriteAt(fsm.Serialize(), int64(snapshotOffset)); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}

	if err := f.Sync(); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	return nil
}

// Open opens an existing container and verifies its header. A magic
// mismatch is an I/O error, not a format distinction.
func Open(path string) (*Container, error) {
	if err := CheckExtension(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(domain.ErrIO, err.Error())
	}

	buf := make([]byte, headerEncodedLen)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, errors.Wrap(domain.ErrIO, "short header read")
	}

	c := &Container{
		file:  f,
		path:  path,
		cache: newBlockCache(blockCacheSize),
	}
	decodeHeader(buf, &c.header)

	if string(c.header.Magic[:]) != domain.Magic {
		f.Close()
		return nil, errors.Wrap(domain.ErrIO, "bad container magic")
	}

	return c, nil
}

func (c *Container) Header() *domain.Header {
	return &c.header
}

func (c *Container) Path() string {
	return c.path
}

// UserTableOffset is the start of the user table region.
func (c *Container) UserTableOffset() uint64 {
	return c.header.UserTableOffset
}

// EntryTableOffset is the start of the entry table region.
func (c *Container) EntryTableOffset() uint64 {
	return c.header.UserTableOffset + uint64(c.header.MaxUsers)*domain.UserInfoSize
}

// ContentOffset is the start of the block area.
func (c *Container) ContentOffset() uint64 {
	return c.EntryTableOffset() + uint64(c.header.MaxFiles)*domain.FileEntrySize
}

// TotalBlocks is the number of blocks the block area holds.
func (c *Container) TotalBlocks() uint32 {
	return uint32((c.header.TotalSize - c.ContentOffset()) / c.header.BlockSize)
}

// SnapshotOffset locates the trailing free-space snapshot.
func (c *Container) SnapshotOffset() uint64 {
	return c.ContentOffset() + uint64(c.TotalBlocks())*c.header.BlockSize
}

// UsableBlockSize is the content capacity of one block after its next
// pointer.
func (c *Container) UsableBlockSize() uint32 {
	return uint32(c.header.BlockSize) - domain.NextPointerSize
}

func (c *Container) blockOffset(block uint32) int64 {
	return int64(c.ContentOffset() + uint64(block)*c.header.BlockSize)
}

// ReadUser reads user slot i.
func (c *Container) ReadUser(i uint32) (domain.UserInfo, error) {
	var u domain.UserInfo
	if i >= c.header.MaxUsers {
		return u, errors.Wrap(domain.ErrInvalidOperation, "user slot out of range")
	}
	buf := make([]byte, domain.UserInfoSize)
	off := int64(c.UserTableOffset() + uint64(i)*domain.UserInfoSize)
	if _, err := c.file.ReadAt(buf, off); err != nil {
		return u, errors.Wrapf(domain.ErrIO, "read user slot %d: %v", i, err)
	}
	decodeUser(buf, &u)
	return u, nil
}

// WriteUser writes user slot i.
func (c *Container) WriteUser(i uint32, u *domain.UserInfo) error {
	if i >= c.header.MaxUsers {
		return errors.Wrap(domain.ErrInvalidOperation, "user slot out of range")
	}
	buf := make([]byte, domain.UserInfoSize)
	encodeUser(buf, u)
	off := int64(c.UserTableOffset() + uint64(i)*domain.UserInfoSize)
	if _, err := c.file.WriteAt(buf, off); err != nil {
		return errors.Wrapf(domain.ErrIO, "write user slot %d: %v", i, err)
	}
	return nil
}

// ReadEntry reads entry slot i.
func (c *Container) ReadEntry(i uint32) (domain.FileEntry, error) {
	var e domain.FileEntry
	if i >= c.header.MaxFiles {
		return e, errors.Wrap(domain.ErrInvalidOperation, "entry slot out of range")
	}
	buf := make([]byte, domain.FileEntrySize)
	off := int64(c.EntryTableOffset() + uint64(i)*domain.FileEntrySize)
	if _, err := c.file.ReadAt(buf, off); err != nil {
		return e, errors.Wrapf(domain.ErrIO, "read entry slot %d: %v", i, err)
	}
	decodeEntry(buf, &e)
	return e, nil
}

// WriteEntry writes entry slot i.
func (c *Container) WriteEntry(i uint32, e *domain.FileEntry) error {
	if i >= c.header.MaxFiles {
		return errors.Wrap(domain.ErrInvalidOperation, "entry slot out of range")
	}
	buf := make([]byte, domain.FileEntrySize)
	encodeEntry(buf, e)
	off := int64(c.EntryTableOffset() + uint64(i)*domain.FileEntrySize)
	if _, err := c.file.WriteAt(buf, off); err != nil {
		return errors.Wrapf(domain.ErrIO, "write entry slot %d: %v", i, err)
	}
	return nil
}

// FindFreeEntrySlot returns the lowest index in [2, maxFiles) whose slot
// is empty or invalid, or 0 when the table is full. The bound comes from
// the container header, never from runtime configuration.
func (c *Container) FindFreeEntrySlot() (uint32, error) {
	for i := uint32(2); i < c.header.MaxFiles; i++ {
		e, err := c.ReadEntry(i)
		if err != nil {
			return 0, err
		}
		if e.Name == "" || !e.Valid {
			return i, nil
		}
	}
	return 0, nil
}

// ReadBlock returns the full block, next pointer included.
func (c *Container) ReadBlock(block uint32) ([]byte, error) {
	if cached, ok := c.cache.get(block); ok {
		return cached, nil
	}

	buf := make([]byte, c.header.BlockSize)
	if _, err := c.file.ReadAt(buf, c.blockOffset(block)); err != nil {
		return nil, errors.Wrapf(domain.ErrIO, "read block %d: %v", block, err)
	}
	c.cache.put(block, buf)
	return buf, nil
}

// WriteBlock writes a full block and keeps the cache coherent.
func (c *Container) WriteBlock(block uint32, buf []byte) error {
	if uint64(len(buf)) != c.header.BlockSize {
		return errors.Wrap(domain.ErrInvalidOperation, "short block buffer")
	}
	if _, err := c.file.WriteAt(buf, c.blockOffset(block)); err != nil {
		return errors.Wrapf(domain.ErrIO, "write block %d: %v", block, err)
	}
	c.cache.put(block, buf)
	return nil
}

// NextPointer extracts the next-block pointer from a block buffer.
func NextPointer(block []byte) uint32 {
	return leUint32(block[:domain.NextPointerSize])
}

// WriteSnapshot stores free-space snapshot bytes at the snapshot offset.
func (c *Container) WriteSnapshot(data []byte) error {
	if _, err := c.file.WriteAt(data, int64(c.SnapshotOffset())); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	return nil
}

// ReadSnapshot loads the free-space snapshot bytes, sized from the
// segment count in its fixed 12-byte header.
func (c *Container) ReadSnapshot() ([]byte, error) {
	head := make([]byte, 12)
	if _, err := c.file.ReadAt(head, int64(c.SnapshotOffset())); err != nil {
		return nil, errors.Wrap(domain.ErrIO, "short snapshot read")
	}

	segCount := beUint32(head[8:12])
	data := make([]byte, 12+segCount*8)
	copy(data, head)
	if segCount > 0 {
		if _, err := c.file.ReadAt(data[12:], int64(c.SnapshotOffset())+12); err != nil {
			return nil, errors.Wrap(domain.ErrIO, "short snapshot segment read")
		}
	}
	return data, nil
}

// Flush forces all buffered writes to stable storage.
func (c *Container) Flush() error {
	if err := c.file.Sync(); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	return nil
}

// Close flushes and releases the handle.
func (c *Container) Close() error {
	c.cache.clear()
	if err := c.file.Sync(); err != nil {
		c.file.Close()
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	if err := c.file.Close(); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	return nil
}
