package fs

import (
	"time"

	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/logger"
)

// DirCreate makes a new directory at path. Directories occupy an entry
// slot but no blocks.
func (in *Instance) DirCreate(sessionID, path string) error {
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

	node := in.tree.Create(path, false, sess.User.Username)
	if node == nil {
		return domain.ErrInvalidPath
	}

	entryIdx, err := in.cont.FindFreeEntrySlot()
	if err != nil || entryIdx == 0 {
		in.tree.Delete(path)
		if err != nil {
			return err
		}
		return domain.ErrNoSpace
	}

	now := time.Now().Unix()
	node.EntryIndex = entryIdx
	node.Permissions = 0755
	node.CreatedTime = now
	node.ModifiedTime = now

	entry := domain.FileEntry{
		Name:         in.truncateName(extractFilename(path)),
		Type:         domain.TypeDirectory,
		Valid:        true,
		Permissions:  node.Permissions,
		CreatedTime:  now,
		ModifiedTime: now,
		Inode:        entryIdx,
		ParentIndex:  parentIdx,
		Owner:        node.Owner,
	}
	if err := in.cont.WriteEntry(entryIdx, &entry); err != nil {
		return err
	}
	if err := in.cont.Flush(); err != nil {
		return err
	}

	in.totalDirectories++
	logger.Debug("created directory %s", path)

	return nil
}

// DirList returns the children of the directory at path in insertion
// order.
func (in *Instance) DirList(sessionID, path string) ([]domain.FileEntry, error) {
	if _, err := in.resolveSession(sessionID); err != nil {
		return nil, err
	}

	if !in.tree.IsDirectory(path) {
		return nil, domain.ErrNotFound
	}

	entries := in.tree.List(path)
	if entries == nil {
		entries = []domain.FileEntry{}
	}
	return entries, nil
}

// DirDelete removes an empty directory. Root cannot be deleted and
// files are rejected as an invalid operation.
func (in *Instance) DirDelete(sessionID, path string) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}

	if path == "/" {
		return domain.ErrInvalidOperation
	}

	node := in.tree.Find(path)
	if node == nil {
		return domain.ErrNotFound
	}
	if node.IsFile {
		return domain.ErrInvalidOperation
	}
	if len(node.Children) > 0 {
		return domain.ErrNotEmpty
	}

	if !authorized(sess, node.Owner) {
		return domain.ErrPermission
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
	in.totalDirectories--
	logger.Debug("deleted directory %s", path)

	return nil
}

// DirExists probes for a directory at path.
func (in *Instance) DirExists(sessionID, path string) error {
	if _, err := in.resolveSession(sessionID); err != nil {
		return err
	}
	if !in.tree.IsDirectory(path) {
		return domain.ErrNotFound
	}
	return nil
}
