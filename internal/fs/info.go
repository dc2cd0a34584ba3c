package fs

import (
	"time"

	"github.com/omnifs/omnifs/internal/domain"
)

// Metadata copies out the attributes of the node at path, with the
// derived block count and on-disk footprint for files.
func (in *Instance) Metadata(sessionID, path string) (*domain.FileMetadata, error) {
	if _, err := in.resolveSession(sessionID); err != nil {
		return nil, err
	}

	node := in.tree.Find(path)
	if node == nil {
		return nil, domain.ErrNotFound
	}

	typ := domain.TypeDirectory
	if node.IsFile {
		typ = domain.TypeFile
	}

	meta := &domain.FileMetadata{
		Path: path,
		Entry: domain.FileEntry{
			Name:         node.Name,
			Type:         typ,
			Valid:        true,
			Size:         node.Size,
			Permissions:  node.Permissions,
			Inode:        node.EntryIndex,
			Owner:        node.Owner,
			CreatedTime:  node.CreatedTime,
			ModifiedTime: node.ModifiedTime,
		},
	}

	if node.IsFile && node.Size > 0 {
		usable := uint64(in.cont.UsableBlockSize())
		meta.BlocksUsed = uint32((node.Size + usable - 1) / usable)
		meta.ActualSize = uint64(meta.BlocksUsed) * in.cont.Header().BlockSize
	}

	return meta, nil
}

// SetPermissions updates a node's permission bits, owner or admin only.
func (in *Instance) SetPermissions(sessionID, path string, permissions uint32) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}

	node := in.tree.Find(path)
	if node == nil {
		return domain.ErrNotFound
	}

	if !authorized(sess, node.Owner) {
		return domain.ErrPermission
	}

	node.Permissions = permissions

	entry, err := in.cont.ReadEntry(node.EntryIndex)
	if err != nil {
		return err
	}
	entry.Permissions = permissions
	entry.ModifiedTime = time.Now().Unix()
	if err := in.cont.WriteEntry(node.EntryIndex, &entry); err != nil {
		return err
	}
	return in.cont.Flush()
}

// Stats aggregates the filesystem view: space from the free-space
// manager, object counters from the tree, plus users and live sessions.
func (in *Instance) Stats(sessionID string) (*domain.FSStats, error) {
	if _, err := in.resolveSession(sessionID); err != nil {
		return nil, err
	}

	blockSize := in.cont.Header().BlockSize

	return &domain.FSStats{
		TotalSize:        in.cont.Header().TotalSize,
		UsedSpace:        uint64(in.fsm.UsedBlocks()) * blockSize,
		FreeSpace:        uint64(in.fsm.FreeBlocks()) * blockSize,
		TotalFiles:       in.totalFiles,
		TotalDirectories: in.totalDirectories,
		TotalUsers:       uint32(len(in.users)),
		ActiveSessions:   uint32(in.registry.Count()),
		Fragmentation:    in.fsm.Fragmentation(),
	}, nil
}
