// Package fs is the facade over a mounted container: it owns the open
// handle, the in-memory tree, the free-space manager, the user index,
// and the session registry, and exposes the session-authenticated
// operation surface.
package fs

import (
	"os"

	"github.com/omnifs/omnifs/internal/config"
	"github.com/omnifs/omnifs/internal/container"
	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/freespace"
	"github.com/omnifs/omnifs/internal/logger"
	"github.com/omnifs/omnifs/internal/session"
	"github.com/omnifs/omnifs/internal/tree"
)

// Instance is one mounted container. A single instance has exactly one
// writer path per shared structure and no internal locking; concurrent
// operations against the same mount are outside the contract.
type Instance struct {
	cont     *container.Container
	cfg      *config.Config
	users    map[string]*domain.UserInfo
	tree     *tree.Tree
	fsm      *freespace.Manager
	registry *session.Registry

	totalFiles       uint32
	totalDirectories uint32
}

// Format writes a fresh container at path. Any existing content is
// destroyed.
func Format(path string, cfg *config.Config) error {
	if err := container.Format(path, cfg); err != nil {
		return err
	}
	logger.Info("formatted container %s (%d bytes, block size %d)", path, cfg.TotalSize, cfg.BlockSize)
	return nil
}

// Init mounts the container at path, creating it first when it does not
// exist, and rebuilds the in-memory state from the on-disk tables.
func Init(path string, cfg *config.Config) (*Instance, error) {
	if err := container.CheckExtension(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := container.Format(path, cfg); err != nil {
			return nil, err
		}
		logger.Info("created new container %s", path)
	}

	cont, err := container.Open(path)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		cont:             cont,
		cfg:              cfg,
		users:            make(map[string]*domain.UserInfo),
		tree:             tree.New(),
		registry:         session.NewRegistry(cfg.MaxConnections),
		totalDirectories: 1,
	}

	if err := inst.loadUsers(); err != nil {
		cont.Close()
		return nil, err
	}
	if err := inst.loadEntries(); err != nil {
		cont.Close()
		return nil, err
	}
	inst.restoreFreeSpace()

	logger.Info("mounted %s: %d files, %d directories, %d users, %d/%d blocks free",
		path, inst.totalFiles, inst.totalDirectories, len(inst.users),
		inst.fsm.FreeBlocks(), inst.fsm.TotalBlocks())

	return inst, nil
}

func (in *Instance) loadUsers() error {
	header := in.cont.Header()
	for i := uint32(0); i < header.MaxUsers; i++ {
		u, err := in.cont.ReadUser(i)
		if err != nil {
			return err
		}
		if u.Occupied() {
			user := u
			in.users[user.Username] = &user
			logger.Info("loaded user %s (%s)", user.Username, user.Role)
		}
	}
	return nil
}

// loadEntries rebuilds the tree from the flat, unordered entry table.
// Parents may appear after children in slot order, so entries are
// admitted over repeated passes: a slot is placed once its parent is
// root or already placed. Entries still unplaced when a pass makes no
// progress are unreachable and stay on disk without being exposed.
func (in *Instance) loadEntries() error {
	maxFiles := in.cont.Header().MaxFiles

	entries := make([]domain.FileEntry, maxFiles)
	valid := make([]bool, maxFiles)
	processed := make([]bool, maxFiles)

	validCount := 0
	for i := uint32(0); i < maxFiles; i++ {
		e, err := in.cont.ReadEntry(i)
		if err != nil {
			return err
		}
		entries[i] = e
		if e.Valid && e.Name != "" {
			valid[i] = true
			if i > domain.RootIndex {
				validCount++
			}
		}
	}

	processed[domain.ReservedIndex] = true
	processed[domain.RootIndex] = true

	progress := true
	totalProcessed := 2
	for progress && totalProcessed < validCount+2 {
		progress = false

		for i := uint32(2); i < maxFiles; i++ {
			if !valid[i] || processed[i] {
				continue
			}

			entry := &entries[i]
			if entry.ParentIndex >= maxFiles {
				continue
			}
			if entry.ParentIndex != domain.RootIndex && !processed[entry.ParentIndex] {
				continue
			}

			path := reconstructPath(entries, valid, i)
			if path == "" {
				continue
			}

			node := in.tree.Create(path, entry.IsFile(), entry.Owner)
			if node == nil {
				continue
			}

			node.EntryIndex = i
			node.Size = entry.Size
			node.Permissions = entry.Permissions
			node.CreatedTime = entry.CreatedTime
			node.ModifiedTime = entry.ModifiedTime

			if entry.IsFile() {
				node.StartBlock = entry.Inode
				in.totalFiles++
			} else {
				in.totalDirectories++
			}

			processed[i] = true
			totalProcessed++
			progress = true
		}
	}

	if totalProcessed < validCount+2 {
		logger.Debug("skipped %d entries unreachable from root", validCount+2-totalProcessed)
	}

	return nil
}

// reconstructPath walks parent links up to root and joins the names.
// Empty string means the chain is broken or deeper than the format
// allows.
func reconstructPath(entries []domain.FileEntry, valid []bool, index uint32) string {
	if index == domain.ReservedIndex {
		return ""
	}
	if index == domain.RootIndex {
		return "/"
	}

	var parts []string
	cur := index
	for cur != domain.ReservedIndex && cur != domain.RootIndex {
		if len(parts) >= domain.MaxPathDepth {
			return ""
		}
		if cur >= uint32(len(entries)) || !valid[cur] {
			return ""
		}
		parts = append(parts, entries[cur].Name)
		cur = entries[cur].ParentIndex
	}

	if len(parts) == 0 {
		return ""
	}

	path := ""
	for i := len(parts) - 1; i >= 0; i-- {
		path += "/" + parts[i]
	}
	return path
}

// restoreFreeSpace loads the trailing snapshot; a malformed or missing
// snapshot falls back to a fully free manager over [1, totalBlocks).
func (in *Instance) restoreFreeSpace() {
	totalBlocks := in.cont.TotalBlocks()

	data, err := in.cont.ReadSnapshot()
	if err != nil {
		logger.Warn("free-space snapshot unreadable, rebuilding: %v", err)
		in.fsm = freespace.NewManager(totalBlocks)
		return
	}

	fsm, err := freespace.Deserialize(data)
	if err != nil {
		logger.Warn("free-space snapshot malformed, rebuilding")
		in.fsm = freespace.NewManager(totalBlocks)
		return
	}
	in.fsm = fsm
}

// Shutdown re-serializes the free-space snapshot, flushes, tears down
// all sessions, and closes the container. Every other structure was
// written eagerly by the operation that changed it.
func (in *Instance) Shutdown() error {
	if err := in.cont.WriteSnapshot(in.fsm.Serialize()); err != nil {
		in.registry.ClearAll()
		in.cont.Close()
		return err
	}
	if err := in.cont.Flush(); err != nil {
		in.registry.ClearAll()
		in.cont.Close()
		return err
	}

	in.registry.ClearAll()

	if err := in.cont.Close(); err != nil {
		return err
	}
	logger.Info("container unmounted")
	return nil
}

// Registry exposes the session registry to the delivery layer.
func (in *Instance) Registry() *session.Registry {
	return in.registry
}

// Config returns the runtime configuration the mount was opened with.
func (in *Instance) Config() *config.Config {
	return in.cfg
}

func (in *Instance) resolveSession(id string) (*session.Session, error) {
	sess := in.registry.Get(id)
	if sess == nil {
		return nil, domain.ErrInvalidSession
	}
	return sess, nil
}

// authorized applies the ownership rule: the session user must own the
// node or hold the admin role.
func authorized(sess *session.Session, owner string) bool {
	return sess.User.Username == owner || sess.User.Role == domain.RoleAdmin
}
