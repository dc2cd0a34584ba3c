// Package tree holds the in-memory shadow of the entry table: an n-ary
// tree with parent back-references and insertion-ordered children. The
// disk format does not persist child ordering, so insertion order is
// what directory listings expose.
package tree

import (
	"strings"
	"time"

	"github.com/omnifs/omnifs/internal/domain"
)

// Node mirrors one valid entry slot. StartBlock is the head of the block
// chain for files and 0 for directories.
type Node struct {
	Name         string
	IsFile       bool
	EntryIndex   uint32
	StartBlock   uint32
	Size         uint64
	Permissions  uint32
	Owner        string
	CreatedTime  int64
	ModifiedTime int64

	Parent   *Node
	Children []*Node
}

// FindChild returns the direct child with the given name, or nil.
func (n *Node) FindChild(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) addChild(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

func (n *Node) removeChild(child *Node) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// FullPath rebuilds the absolute path by walking parent links to root.
func (n *Node) FullPath() string {
	if n.Parent == nil {
		return "/"
	}

	var parts []string
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}

	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// Tree is the hierarchy rooted at entry slot 1.
type Tree struct {
	root *Node
}

// New creates a tree holding only the root directory.
func New() *Tree {
	now := time.Now().Unix()
	return &Tree{root: &Node{
		Name:         "/",
		EntryIndex:   domain.RootIndex,
		Owner:        "admin",
		Permissions:  0755,
		CreatedTime:  now,
		ModifiedTime: now,
	}}
}

func (t *Tree) Root() *Node {
	return t.root
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// SplitParent splits an absolute path into its parent path and final name.
func SplitParent(path string) (parent, name string) {
	idx := strings.LastIndexByte(path, '/')
	if idx == 0 {
		return "/", path[1:]
	}
	return path[:idx], path[idx+1:]
}

// Find resolves a path to a node, descending from root by exact child
// name matches. Returns nil when any step fails.
func (t *Tree) Find(path string) *Node {
	if path == "/" || path == "" {
		return t.root
	}

	cur := t.root
	for _, part := range splitPath(path) {
		cur = cur.FindChild(part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Create inserts a new node at path. The parent must exist and be a
// directory, the name must be non-empty without a separator, and it must
// not collide with a sibling. Returns nil on any violation.
func (t *Tree) Create(path string, isFile bool, owner string) *Node {
	if path == "/" {
		return nil
	}

	parentPath, name := SplitParent(path)
	if name == "" || strings.ContainsRune(name, '/') {
		return nil
	}

	parent := t.Find(parentPath)
	if parent == nil || parent.IsFile {
		return nil
	}
	if parent.FindChild(name) != nil {
		return nil
	}

	now := time.Now().Unix()
	node := &Node{
		Name:         name,
		IsFile:       isFile,
		Owner:        owner,
		CreatedTime:  now,
		ModifiedTime: now,
		Permissions:  0755,
	}
	if isFile {
		node.Permissions = 0644
	}

	parent.addChild(node)
	parent.ModifiedTime = now

	return node
}

// Delete removes the node at path. Root cannot be deleted and directories
// must be empty.
func (t *Tree) Delete(path string) bool {
	if path == "/" {
		return false
	}

	node := t.Find(path)
	if node == nil {
		return false
	}
	if !node.IsFile && len(node.Children) > 0 {
		return false
	}
	if node.Parent == nil {
		return false
	}

	return node.Parent.removeChild(node)
}

// Rename moves the node at oldPath to newPath. The target must not exist
// and its parent must be an existing directory.
func (t *Tree) Rename(oldPath, newPath string) bool {
	node := t.Find(oldPath)
	if node == nil || oldPath == "/" {
		return false
	}

	newParentPath, newName := SplitParent(newPath)
	if newName == "" || strings.ContainsRune(newName, '/') {
		return false
	}

	newParent := t.Find(newParentPath)
	if newParent == nil || newParent.IsFile {
		return false
	}
	if newParent.FindChild(newName) != nil {
		return false
	}

	now := time.Now().Unix()
	if node.Parent != nil {
		node.Parent.removeChild(node)
		node.Parent.ModifiedTime = now
	}

	node.Name = newName
	newParent.addChild(node)
	newParent.ModifiedTime = now
	node.ModifiedTime = now

	return true
}

// List returns a snapshot of the children of the directory at path, in
// insertion order. Nil for missing paths and files.
func (t *Tree) List(path string) []domain.FileEntry {
	dir := t.Find(path)
	if dir == nil || dir.IsFile {
		return nil
	}

	entries := make([]domain.FileEntry, 0, len(dir.Children))
	for _, child := range dir.Children {
		typ := domain.TypeDirectory
		if child.IsFile {
			typ = domain.TypeFile
		}
		entries = append(entries, domain.FileEntry{
			Name:         child.Name,
			Type:         typ,
			Valid:        true,
			Size:         child.Size,
			Permissions:  child.Permissions,
			Inode:        child.EntryIndex,
			Owner:        child.Owner,
			CreatedTime:  child.CreatedTime,
			ModifiedTime: child.ModifiedTime,
		})
	}
	return entries
}

func (t *Tree) Exists(path string) bool {
	return t.Find(path) != nil
}

func (t *Tree) IsFile(path string) bool {
	node := t.Find(path)
	return node != nil && node.IsFile
}

func (t *Tree) IsDirectory(path string) bool {
	node := t.Find(path)
	return node != nil && !node.IsFile
}

// Stats counts files and directories reachable from root.
func (t *Tree) Stats() (files, dirs uint32) {
	countNodes(t.root, &files, &dirs)
	return files, dirs
}

func countNodes(node *Node, files, dirs *uint32) {
	if node.IsFile {
		*files++
		return
	}
	*dirs++
	for _, c := range node.Children {
		countNodes(c, files, dirs)
	}
}
