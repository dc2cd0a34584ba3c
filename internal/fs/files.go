package fs

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/logger"
	"github.com/omnifs/omnifs/internal/tree"
)

// truncatePattern is the byte stream written over file content by
// FileTruncate, cycling by byte index since the start of the file.
const truncatePattern = "siruamr"

func validPath(path string) bool {
	return path != "" && path[0] == '/'
}

// extractFilename returns the final path component.
func extractFilename(path string) string {
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndexByte(path, '/')
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

func (in *Instance) truncateName(name string) string {
	if uint32(len(name)) > in.cfg.MaxFilenameLength {
		return name[:in.cfg.MaxFilenameLength]
	}
	return name
}

// parentEntryIndex resolves the parent directory of path to its entry
// slot. 0 means the parent does not exist.
func (in *Instance) parentEntryIndex(path string) uint32 {
	if path == "/" || path == "" {
		return 0
	}

	parentPath, _ := tree.SplitParent(path)
	if parentPath == "/" {
		return domain.RootIndex
	}

	parent := in.tree.Find(parentPath)
	if parent == nil {
		return 0
	}
	return parent.EntryIndex
}

func blocksNeeded(size uint64, usable uint32) uint32 {
	if size == 0 {
		return 1
	}
	return uint32((size + uint64(usable) - 1) / uint64(usable))
}

// chain walks a file's block chain from its head and returns every
// block id in order.
func (in *Instance) chain(start uint32) ([]uint32, error) {
	var blocks []uint32
	cur := start
	for cur != 0 {
		blocks = append(blocks, cur)
		buf, err := in.cont.ReadBlock(cur)
		if err != nil {
			return blocks, err
		}
		cur = binary.LittleEndian.Uint32(buf[:domain.NextPointerSize])
	}
	return blocks, nil
}

// writeChain lays data across the given blocks, threading each block's
// next pointer and zero-padding the final block's tail.
func (in *Instance) writeChain(blocks []uint32, data []byte) error {
	usable := in.cont.UsableBlockSize()
	blockSize := in.cont.Header().BlockSize

	written := 0
	for i, block := range blocks {
		buf := make([]byte, blockSize)

		var next uint32
		if i < len(blocks)-1 {
			next = blocks[i+1]
		}
		binary.LittleEndian.PutUint32(buf[:domain.NextPointerSize], next)

		remain := len(data) - written
		toWrite := int(usable)
		if remain < toWrite {
			toWrite = remain
		}
		if toWrite > 0 {
			copy(buf[domain.NextPointerSize:], data[written:written+toWrite])
			written += toWrite
		}

		if err := in.cont.WriteBlock(block, buf); err != nil {
			return err
		}
	}
	return nil
}

// FileCreate writes a new file at path with the given content. Blocks
// are allocated before the entry slot; when the tree node or the entry
// slot cannot be obtained, the blocks and node taken so far are handed
// back. Host I/O errors after that point are returned without rollback.
func (in *Instance) FileCreate(sessionID, path string, data []byte) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}

	if !validPath(path) {
		return domain.ErrInvalidPath
	}
	if in.tree.Exists(path) {
		return domain.ErrExists
	}

	parentIdx := in.parentEntryIndex(path)
	if parentIdx == 0 && path != "/" {
		return domain.ErrInvalidPath
	}

	size := uint64(len(data))
	needed := blocksNeeded(size, in.cont.UsableBlockSize())

	blocks := in.fsm.AllocateScattered(needed)
	if blocks == nil {
		return domain.ErrNoSpace
	}

	node := in.tree.Create(path, true, sess.User.Username)
	if node == nil {
		in.fsm.FreeSegments(blocks)
		return domain.ErrInvalidPath
	}

	entryIdx, err := in.cont.FindFreeEntrySlot()
	if err != nil || entryIdx == 0 {
		in.tree.Delete(path)
		in.fsm.FreeSegments(blocks)
		if err != nil {
			return err
		}
		return domain.ErrNoSpace
	}

	now := time.Now().Unix()
	node.EntryIndex = entryIdx
	node.StartBlock = blocks[0]
	node.Size = size
	node.CreatedTime = now
	node.ModifiedTime = now
	if in.cfg.RequireAuth {
		node.Permissions = 0644
	} else {
		node.Permissions = 0666
	}

	if err := in.writeChain(blocks, data); err != nil {
		return err
	}

	entry := domain.FileEntry{
		Name:         in.truncateName(extractFilename(path)),
		Type:         domain.TypeFile,
		Valid:        true,
		Permissions:  node.Permissions,
		Size:         size,
		CreatedTime:  now,
		ModifiedTime: now,
		Inode:        blocks[0],
		ParentIndex:  parentIdx,
		Owner:        node.Owner,
	}
	if err := in.cont.WriteEntry(entryIdx, &entry); err != nil {
		return err
	}
	if err := in.cont.Flush(); err != nil {
		return err
	}

	in.totalFiles++
	logger.Debug("created file %s (%d bytes, %d blocks)", path, size, len(blocks))

	return nil
}

// FileRead returns the file's content by walking its block chain until
// size bytes are delivered or the chain ends.
func (in *Instance) FileRead(sessionID, path string) ([]byte, error) {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}

	node := in.tree.Find(path)
	if node == nil || !node.IsFile {
		return nil, domain.ErrNotFound
	}

	if in.cfg.RequireAuth && node.Permissions&0444 == 0 {
		if !authorized(sess, node.Owner) {
			return nil, domain.ErrPermission
		}
	}

	if node.Size == 0 {
		return []byte{}, nil
	}

	usable := in.cont.UsableBlockSize()
	out := make([]byte, 0, node.Size)

	cur := node.StartBlock
	for cur != 0 && uint64(len(out)) < node.Size {
		buf, err := in.cont.ReadBlock(cur)
		if err != nil {
			return nil, err
		}

		toRead := node.Size - uint64(len(out))
		if toRead > uint64(usable) {
			toRead = uint64(usable)
		}
		out = append(out, buf[domain.NextPointerSize:domain.NextPointerSize+toRead]...)

		cur = binary.LittleEndian.Uint32(buf[:domain.NextPointerSize])
	}

	return out, nil
}

// FileDelete removes a file: its chain goes back to the free list, the
// entry slot is invalidated with its name cleared, and the node leaves
// the tree.
func (in *Instance) FileDelete(sessionID, path string) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}

	node := in.tree.Find(path)
	if node == nil || !node.IsFile {
		return domain.ErrNotFound
	}

	if in.cfg.RequireAuth && !authorized(sess, node.Owner) {
		return domain.ErrPermission
	}

	blocks, err := in.chain(node.StartBlock)
	if err != nil {
		return err
	}
	if len(blocks) > 0 {
		in.fsm.FreeSegments(blocks)
	}

	entry, err := in.cont.ReadEntry(node.EntryIndex)
	if err != nil {
		return err
	}
	entry.Valid = false
	entry.Name = ""
	if err := in.cont.WriteEntry(node.EntryIndex, &entry); err != nil {
		return err
	}
	if err := in.cont.Flush(); err != nil {
		return err
	}

	if !in.tree.Delete(path) {
		return domain.ErrIO
	}
	in.totalFiles--
	logger.Debug("deleted file %s (%d blocks freed)", path, len(blocks))

	return nil
}

// FileExists probes for a file at path.
func (in *Instance) FileExists(sessionID, path string) error {
	if _, err := in.resolveSession(sessionID); err != nil {
		return err
	}
	if !in.tree.IsFile(path) {
		return domain.ErrNotFound
	}
	return nil
}

// FileRename moves a file to newPath, rewriting its entry's name and
// parent reference on disk.
func (in *Instance) FileRename(sessionID, oldPath, newPath string) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}

	node := in.tree.Find(oldPath)
	if node == nil || !node.IsFile {
		return domain.ErrNotFound
	}

	if in.cfg.RequireAuth && !authorized(sess, node.Owner) {
		return domain.ErrPermission
	}

	if in.tree.Exists(newPath) {
		return domain.ErrExists
	}

	newParentIdx := in.parentEntryIndex(newPath)
	if newParentIdx == 0 && newPath != "/" {
		return domain.ErrInvalidPath
	}

	entry, err := in.cont.ReadEntry(node.EntryIndex)
	if err != nil {
		return err
	}
	entry.Name = in.truncateName(extractFilename(newPath))
	entry.ParentIndex = newParentIdx
	entry.ModifiedTime = time.Now().Unix()

	if err := in.cont.WriteEntry(node.EntryIndex, &entry); err != nil {
		return err
	}
	if err := in.cont.Flush(); err != nil {
		return err
	}

	if !in.tree.Rename(oldPath, newPath) {
		return domain.ErrInvalidPath
	}
	return nil
}

// FileEdit writes data into the file starting at byte index, growing
// the chain when the write extends past the current end. An index past
// the current size is rejected. The entry record is rewritten only when
// the file grew; a purely in-place edit leaves it untouched.
func (in *Instance) FileEdit(sessionID, path string, data []byte, index uint32) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}

	node := in.tree.Find(path)
	if node == nil || !node.IsFile {
		return domain.ErrNotFound
	}

	if in.cfg.RequireAuth && !authorized(sess, node.Owner) {
		return domain.ErrPermission
	}

	if uint64(index) > node.Size {
		return domain.ErrInvalidOperation
	}

	usable := in.cont.UsableBlockSize()
	newSize := uint64(index) + uint64(len(data))
	grew := newSize > node.Size

	if grew {
		currentBlocks := blocksNeeded(node.Size, usable)
		neededBlocks := uint32((newSize + uint64(usable) - 1) / uint64(usable))

		if neededBlocks > currentBlocks {
			additional := neededBlocks - currentBlocks

			existing, err := in.chain(node.StartBlock)
			if err != nil {
				return err
			}

			// One block at a time so a mid-expansion failure can
			// hand back exactly what was taken.
			var newBlocks []uint32
			for i := uint32(0); i < additional; i++ {
				single := in.fsm.Allocate(1)
				if single == nil {
					if len(newBlocks) > 0 {
						in.fsm.FreeSegments(newBlocks)
					}
					return domain.ErrNoSpace
				}
				newBlocks = append(newBlocks, single[0])
			}

			if len(existing) > 0 {
				if err := in.setNextPointer(existing[len(existing)-1], newBlocks[0]); err != nil {
					return err
				}
			}

			blockSize := in.cont.Header().BlockSize
			for i, block := range newBlocks {
				buf := make([]byte, blockSize)
				var next uint32
				if i < len(newBlocks)-1 {
					next = newBlocks[i+1]
				}
				binary.LittleEndian.PutUint32(buf[:domain.NextPointerSize], next)
				if err := in.cont.WriteBlock(block, buf); err != nil {
					return err
				}
			}
		}

		node.Size = newSize
	}

	// Walk to the block holding byte index.
	blockIndex := index / usable
	offsetInBlock := index % usable

	cur := node.StartBlock
	for i := uint32(0); i < blockIndex && cur != 0; i++ {
		buf, err := in.cont.ReadBlock(cur)
		if err != nil {
			return err
		}
		cur = binary.LittleEndian.Uint32(buf[:domain.NextPointerSize])
	}
	if cur == 0 {
		return domain.ErrInvalidOperation
	}

	written := 0
	for written < len(data) && cur != 0 {
		buf, err := in.cont.ReadBlock(cur)
		if err != nil {
			return err
		}

		toWrite := int(usable - offsetInBlock)
		if remain := len(data) - written; remain < toWrite {
			toWrite = remain
		}
		copy(buf[domain.NextPointerSize+offsetInBlock:], data[written:written+toWrite])
		written += toWrite
		offsetInBlock = 0

		if err := in.cont.WriteBlock(cur, buf); err != nil {
			return err
		}
		cur = binary.LittleEndian.Uint32(buf[:domain.NextPointerSize])
	}

	if grew {
		entry, err := in.cont.ReadEntry(node.EntryIndex)
		if err != nil {
			return err
		}
		entry.Size = node.Size
		entry.ModifiedTime = time.Now().Unix()
		if err := in.cont.WriteEntry(node.EntryIndex, &entry); err != nil {
			return err
		}
		if err := in.cont.Flush(); err != nil {
			return err
		}
	}

	return nil
}

func (in *Instance) setNextPointer(block, next uint32) error {
	buf, err := in.cont.ReadBlock(block)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[:domain.NextPointerSize], next)
	return in.cont.WriteBlock(block, buf)
}

// FileTruncate overwrites every content byte of the chain with the
// cycling fill pattern. Despite the name it reclaims nothing: size and
// chain length are left exactly as they were.
func (in *Instance) FileTruncate(sessionID, path string) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}

	node := in.tree.Find(path)
	if node == nil || !node.IsFile {
		return domain.ErrNotFound
	}

	if in.cfg.RequireAuth && !authorized(sess, node.Owner) {
		return domain.ErrPermission
	}

	usable := in.cont.UsableBlockSize()

	var written uint64
	cur := node.StartBlock
	for cur != 0 && written < node.Size {
		buf, err := in.cont.ReadBlock(cur)
		if err != nil {
			return err
		}

		toWrite := node.Size - written
		if toWrite > uint64(usable) {
			toWrite = uint64(usable)
		}
		for i := uint64(0); i < toWrite; i++ {
			buf[uint64(domain.NextPointerSize)+i] = truncatePattern[written%uint64(len(truncatePattern))]
			written++
		}

		if err := in.cont.WriteBlock(cur, buf); err != nil {
			return err
		}
		cur = binary.LittleEndian.Uint32(buf[:domain.NextPointerSize])
	}

	return in.cont.Flush()
}
