package tree

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/omnifs/omnifs/internal/domain"
)

func TestNewTreeHasRoot(t *testing.T) {
	tr := New()

	root := tr.Root()
	assert.Equal(t, root.Name, "/")
	assert.Equal(t, root.EntryIndex, uint32(domain.RootIndex))
	assert.Assert(t, !root.IsFile)
	assert.Equal(t, tr.Find("/"), root)
}

func TestCreateAndFind(t *testing.T) {
	tr := New()

	node := tr.Create("/docs", false, "alice")
	assert.Assert(t, node != nil)
	assert.Equal(t, node.Name, "docs")
	assert.Equal(t, node.Owner, "alice")
	assert.Equal(t, node.Permissions, uint32(0755))

	file := tr.Create("/docs/readme.txt", true, "alice")
	assert.Assert(t, file != nil)
	assert.Equal(t, file.Permissions, uint32(0644))
	assert.Equal(t, tr.Find("/docs/readme.txt"), file)
	assert.Equal(t, file.FullPath(), "/docs/readme.txt")

	assert.Assert(t, tr.Find("/docs/missing") == nil)
}

func TestCreateRejections(t *testing.T) {
	tr := New()
	tr.Create("/f.txt", true, "alice")

	assert.Assert(t, tr.Create("/", false, "alice") == nil)
	assert.Assert(t, tr.Create("/f.txt", true, "alice") == nil)
	assert.Assert(t, tr.Create("/missing/child", true, "alice") == nil)
	assert.Assert(t, tr.Create("/f.txt/child", true, "alice") == nil)
}

func TestDelete(t *testing.T) {
	tr := New()
	tr.Create("/d", false, "a")
	tr.Create("/d/f", true, "a")

	assert.Assert(t, !tr.Delete("/"))
	assert.Assert(t, !tr.Delete("/d"))
	assert.Assert(t, tr.Delete("/d/f"))
	assert.Assert(t, tr.Delete("/d"))
	assert.Assert(t, !tr.Exists("/d"))
}

func TestRenameRoundTrip(t *testing.T) {
	tr := New()
	tr.Create("/a.txt", true, "a")
	tr.Create("/sub", false, "a")

	assert.Assert(t, tr.Rename("/a.txt", "/sub/b.txt"))
	assert.Assert(t, !tr.Exists("/a.txt"))
	assert.Assert(t, tr.IsFile("/sub/b.txt"))

	assert.Assert(t, tr.Rename("/sub/b.txt", "/a.txt"))
	assert.Assert(t, tr.IsFile("/a.txt"))
	assert.Assert(t, !tr.Exists("/sub/b.txt"))
}

func TestRenameRejections(t *testing.T) {
	tr := New()
	tr.Create("/a", true, "u")
	tr.Create("/b", true, "u")

	assert.Assert(t, !tr.Rename("/missing", "/x"))
	assert.Assert(t, !tr.Rename("/a", "/b"))
	assert.Assert(t, !tr.Rename("/a", "/nodir/x"))
	assert.Assert(t, !tr.Rename("/", "/x"))
}

func TestListInsertionOrder(t *testing.T) {
	tr := New()
	tr.Create("/zebra", true, "u")
	tr.Create("/apple", true, "u")
	tr.Create("/mango", false, "u")

	entries := tr.List("/")
	assert.Equal(t, len(entries), 3)
	assert.Equal(t, entries[0].Name, "zebra")
	assert.Equal(t, entries[1].Name, "apple")
	assert.Equal(t, entries[2].Name, "mango")
	assert.Equal(t, entries[0].Type, domain.TypeFile)
	assert.Equal(t, entries[2].Type, domain.TypeDirectory)

	assert.Assert(t, tr.List("/zebra") == nil)
	assert.Assert(t, tr.List("/missing") == nil)
}

func TestStats(t *testing.T) {
	tr := New()
	tr.Create("/d1", false, "u")
	tr.Create("/d1/d2", false, "u")
	tr.Create("/d1/f", true, "u")
	tr.Create("/g", true, "u")

	files, dirs := tr.Stats()
	assert.Equal(t, files, uint32(2))
	assert.Equal(t, dirs, uint32(3))
}

func TestSplitParent(t *testing.T) {
	parent, name := SplitParent("/a.txt")
	assert.Equal(t, parent, "/")
	assert.Equal(t, name, "a.txt")

	parent, name = SplitParent("/d/sub/f")
	assert.Equal(t, parent, "/d/sub")
	assert.Equal(t, name, "f")
}
