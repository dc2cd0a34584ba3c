package fs

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/omnifs/omnifs/internal/config"
	"github.com/omnifs/omnifs/internal/domain"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.TotalSize = 2 * 1024 * 1024
	cfg.MaxFiles = 64
	cfg.MaxUsers = 8
	cfg.MaxConnections = 8
	return cfg
}

func newTestInstance(t *testing.T) (*Instance, string, *config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.omni")
	cfg := testConfig()
	assert.NilError(t, Format(path, cfg))

	inst, err := Init(path, cfg)
	assert.NilError(t, err)
	return inst, path, cfg
}

func adminLogin(t *testing.T, inst *Instance) string {
	t.Helper()
	sid, err := inst.Login("admin", "admin123")
	assert.NilError(t, err)
	return sid
}

func TestFormatThenMount(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	entries, err := inst.DirList(sid, "/")
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 0)

	st, err := inst.Stats(sid)
	assert.NilError(t, err)
	assert.Equal(t, st.TotalDirectories, uint32(1))
	assert.Equal(t, st.TotalFiles, uint32(0))
	assert.Equal(t, st.TotalUsers, uint32(1))
	assert.Equal(t, st.ActiveSessions, uint32(1))
}

func TestCreateReadSmallFile(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/hello.txt", []byte("Hi!")))

	data, err := inst.FileRead(sid, "/hello.txt")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "Hi!")

	st, err := inst.Stats(sid)
	assert.NilError(t, err)
	assert.Equal(t, st.TotalFiles, uint32(1))
}

func TestPersistenceAcrossRemount(t *testing.T) {
	inst, path, cfg := newTestInstance(t)
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.DirCreate(sid, "/docs"))
	assert.NilError(t, inst.FileCreate(sid, "/docs/hello.txt", []byte("Hi!")))
	assert.NilError(t, inst.Shutdown())

	inst, err := Init(path, cfg)
	assert.NilError(t, err)
	defer inst.Shutdown()
	sid = adminLogin(t, inst)

	data, err := inst.FileRead(sid, "/docs/hello.txt")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "Hi!")

	st, err := inst.Stats(sid)
	assert.NilError(t, err)
	assert.Equal(t, st.TotalFiles, uint32(1))
	assert.Equal(t, st.TotalDirectories, uint32(2))
}

func TestMultiBlockFile(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	payload := bytes.Repeat([]byte{0xAA}, 10000)
	assert.NilError(t, inst.FileCreate(sid, "/big.bin", payload))

	meta, err := inst.Metadata(sid, "/big.bin")
	assert.NilError(t, err)
	assert.Equal(t, meta.BlocksUsed, uint32(3))
	assert.Equal(t, meta.ActualSize, uint64(3*4096))

	data, err := inst.FileRead(sid, "/big.bin")
	assert.NilError(t, err)
	assert.DeepEqual(t, data, payload)
}

func TestPermissionDenial(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	adminSid := adminLogin(t, inst)

	assert.NilError(t, inst.UserCreate(adminSid, "bob", "pw", domain.RoleNormal))
	assert.NilError(t, inst.UserCreate(adminSid, "alice", "pw", domain.RoleNormal))

	aliceSid, err := inst.Login("alice", "pw")
	assert.NilError(t, err)
	assert.NilError(t, inst.FileCreate(aliceSid, "/a.txt", []byte("mine")))

	bobSid, err := inst.Login("bob", "pw")
	assert.NilError(t, err)
	assert.ErrorIs(t, inst.FileDelete(bobSid, "/a.txt"), domain.ErrPermission)

	assert.NilError(t, inst.FileDelete(adminSid, "/a.txt"))
}

func TestTruncatePattern(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/t", []byte("XXXXXXXXXX")))
	assert.NilError(t, inst.FileTruncate(sid, "/t"))

	data, err := inst.FileRead(sid, "/t")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "siruamrsir")

	meta, err := inst.Metadata(sid, "/t")
	assert.NilError(t, err)
	assert.Equal(t, meta.Entry.Size, uint64(10))
}

func TestDeleteRestoresFreeSpace(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	before, err := inst.Stats(sid)
	assert.NilError(t, err)

	assert.NilError(t, inst.FileCreate(sid, "/tmp.bin", bytes.Repeat([]byte{1}, 9000)))
	during, err := inst.Stats(sid)
	assert.NilError(t, err)
	assert.Assert(t, during.UsedSpace > before.UsedSpace)

	assert.NilError(t, inst.FileDelete(sid, "/tmp.bin"))
	after, err := inst.Stats(sid)
	assert.NilError(t, err)
	assert.Equal(t, after.UsedSpace, before.UsedSpace)
	assert.Equal(t, after.FreeSpace, before.FreeSpace)
}

func TestRenameRoundTrip(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/a.txt", []byte("data")))
	assert.NilError(t, inst.FileRename(sid, "/a.txt", "/b.txt"))
	assert.ErrorIs(t, inst.FileExists(sid, "/a.txt"), domain.ErrNotFound)

	assert.NilError(t, inst.FileRename(sid, "/b.txt", "/a.txt"))
	assert.NilError(t, inst.FileExists(sid, "/a.txt"))

	data, err := inst.FileRead(sid, "/a.txt")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "data")
}

func TestRenameIntoDirectoryPersists(t *testing.T) {
	inst, path, cfg := newTestInstance(t)
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.DirCreate(sid, "/d"))
	assert.NilError(t, inst.FileCreate(sid, "/f.txt", []byte("payload")))
	assert.NilError(t, inst.FileRename(sid, "/f.txt", "/d/g.txt"))
	assert.NilError(t, inst.Shutdown())

	inst, err := Init(path, cfg)
	assert.NilError(t, err)
	defer inst.Shutdown()
	sid = adminLogin(t, inst)

	data, err := inst.FileRead(sid, "/d/g.txt")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "payload")
}

func TestEditEmptyIsNoop(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/f", []byte("hello")))
	assert.NilError(t, inst.FileEdit(sid, "/f", nil, 0))

	data, err := inst.FileRead(sid, "/f")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "hello")
}

func TestEditInPlace(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/f", []byte("hello")))
	assert.NilError(t, inst.FileEdit(sid, "/f", []byte("J"), 0))

	data, err := inst.FileRead(sid, "/f")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "Jello")
}

func TestEditAppendGrowsFile(t *testing.T) {
	inst, path, cfg := newTestInstance(t)
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/f", []byte("hello")))
	assert.NilError(t, inst.FileEdit(sid, "/f", []byte(" world"), 5))

	data, err := inst.FileRead(sid, "/f")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "hello world")

	// The grown size is flushed to the entry record.
	assert.NilError(t, inst.Shutdown())
	inst, err = Init(path, cfg)
	assert.NilError(t, err)
	defer inst.Shutdown()
	sid = adminLogin(t, inst)

	data, err = inst.FileRead(sid, "/f")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "hello world")
}

func TestEditAcrossBlockBoundary(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	usable := 4096 - 4
	payload := bytes.Repeat([]byte{'x'}, usable)
	assert.NilError(t, inst.FileCreate(sid, "/f", payload))

	// Append enough to spill into a second block.
	assert.NilError(t, inst.FileEdit(sid, "/f", bytes.Repeat([]byte{'y'}, 100), uint32(usable)))

	data, err := inst.FileRead(sid, "/f")
	assert.NilError(t, err)
	assert.Equal(t, len(data), usable+100)
	assert.Equal(t, data[usable-1], byte('x'))
	assert.Equal(t, data[usable], byte('y'))
	assert.Equal(t, data[usable+99], byte('y'))
}

func TestEditIndexBeyondSize(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/f", []byte("abc")))
	assert.ErrorIs(t, inst.FileEdit(sid, "/f", []byte("x"), 4), domain.ErrInvalidOperation)
}

func TestCreateExistingPath(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/f", []byte("one")))
	assert.ErrorIs(t, inst.FileCreate(sid, "/f", []byte("two")), domain.ErrExists)
	assert.ErrorIs(t, inst.DirCreate(sid, "/f"), domain.ErrExists)
}

func TestCreateNoSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.omni")
	cfg := testConfig()
	// Metadata regions plus exactly two blocks: block 0 is reserved,
	// leaving a single allocatable block.
	cfg.TotalSize = cfg.HeaderSize +
		uint64(cfg.MaxUsers)*domain.UserInfoSize +
		uint64(cfg.MaxFiles)*domain.FileEntrySize +
		2*cfg.BlockSize
	assert.NilError(t, Format(path, cfg))

	inst, err := Init(path, cfg)
	assert.NilError(t, err)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/one", []byte("fits")))

	before, err := inst.Stats(sid)
	assert.NilError(t, err)

	assert.ErrorIs(t, inst.FileCreate(sid, "/two", []byte("no room")), domain.ErrNoSpace)
	assert.ErrorIs(t, inst.FileExists(sid, "/two"), domain.ErrNotFound)

	after, err := inst.Stats(sid)
	assert.NilError(t, err)
	assert.Equal(t, after.UsedSpace, before.UsedSpace)
	assert.Equal(t, after.TotalFiles, before.TotalFiles)
}

func TestDeleteRootRejected(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.ErrorIs(t, inst.DirDelete(sid, "/"), domain.ErrInvalidOperation)
}

func TestDeleteNonEmptyDirectory(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.DirCreate(sid, "/d"))
	assert.NilError(t, inst.FileCreate(sid, "/d/f", []byte("x")))
	assert.ErrorIs(t, inst.DirDelete(sid, "/d"), domain.ErrNotEmpty)

	assert.NilError(t, inst.FileDelete(sid, "/d/f"))
	assert.NilError(t, inst.DirDelete(sid, "/d"))
}

func TestDirDeleteOnFileRejected(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/f", nil))
	assert.ErrorIs(t, inst.DirDelete(sid, "/f"), domain.ErrInvalidOperation)
	assert.ErrorIs(t, inst.FileDelete(sid, "/nope"), domain.ErrNotFound)
}

func TestExactMaxLengthNameRoundTrips(t *testing.T) {
	inst, path, cfg := newTestInstance(t)
	sid := adminLogin(t, inst)

	name := strings.Repeat("a", 255)
	assert.NilError(t, inst.FileCreate(sid, "/"+name, []byte("content")))
	assert.NilError(t, inst.Shutdown())

	inst, err := Init(path, cfg)
	assert.NilError(t, err)
	defer inst.Shutdown()
	sid = adminLogin(t, inst)

	data, err := inst.FileRead(sid, "/"+name)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "content")
}

func TestOverlongNameTruncatedOnDisk(t *testing.T) {
	inst, path, cfg := newTestInstance(t)
	sid := adminLogin(t, inst)

	long := strings.Repeat("b", 300)
	assert.NilError(t, inst.FileCreate(sid, "/"+long, []byte("content")))
	assert.NilError(t, inst.Shutdown())

	inst, err := Init(path, cfg)
	assert.NilError(t, err)
	defer inst.Shutdown()
	sid = adminLogin(t, inst)

	entries, err := inst.DirList(sid, "/")
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Name, long[:255])

	data, err := inst.FileRead(sid, "/"+long[:255])
	assert.NilError(t, err)
	assert.Equal(t, string(data), "content")
}

// Entry slots are reused, so a child can land in a lower slot than its
// parent; mount must still place it via repeated passes.
func TestMountReparentsChildBeforeParent(t *testing.T) {
	inst, path, cfg := newTestInstance(t)
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.FileCreate(sid, "/scratch", nil))        // slot 2
	assert.NilError(t, inst.DirCreate(sid, "/p"))                    // slot 3
	assert.NilError(t, inst.FileDelete(sid, "/scratch"))             // frees slot 2
	assert.NilError(t, inst.FileCreate(sid, "/p/c", []byte("deep"))) // slot 2, parent 3
	assert.NilError(t, inst.Shutdown())

	inst, err := Init(path, cfg)
	assert.NilError(t, err)
	defer inst.Shutdown()
	sid = adminLogin(t, inst)

	data, err := inst.FileRead(sid, "/p/c")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "deep")
}

func TestReadPermissionGate(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	adminSid := adminLogin(t, inst)

	assert.NilError(t, inst.UserCreate(adminSid, "alice", "pw", domain.RoleNormal))
	assert.NilError(t, inst.UserCreate(adminSid, "bob", "pw", domain.RoleNormal))

	aliceSid, err := inst.Login("alice", "pw")
	assert.NilError(t, err)
	assert.NilError(t, inst.FileCreate(aliceSid, "/secret", []byte("s")))
	assert.NilError(t, inst.SetPermissions(aliceSid, "/secret", 0200))

	bobSid, err := inst.Login("bob", "pw")
	assert.NilError(t, err)
	_, err = inst.FileRead(bobSid, "/secret")
	assert.ErrorIs(t, err, domain.ErrPermission)

	// Owner and admin bypass the world-readable gate.
	_, err = inst.FileRead(aliceSid, "/secret")
	assert.NilError(t, err)
	_, err = inst.FileRead(adminSid, "/secret")
	assert.NilError(t, err)
}

func TestChmodAuthorization(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	adminSid := adminLogin(t, inst)

	assert.NilError(t, inst.UserCreate(adminSid, "alice", "pw", domain.RoleNormal))
	assert.NilError(t, inst.UserCreate(adminSid, "bob", "pw", domain.RoleNormal))

	aliceSid, err := inst.Login("alice", "pw")
	assert.NilError(t, err)
	assert.NilError(t, inst.FileCreate(aliceSid, "/f", []byte("x")))

	bobSid, err := inst.Login("bob", "pw")
	assert.NilError(t, err)
	assert.ErrorIs(t, inst.SetPermissions(bobSid, "/f", 0777), domain.ErrPermission)

	assert.NilError(t, inst.SetPermissions(aliceSid, "/f", 0600))
	meta, err := inst.Metadata(aliceSid, "/f")
	assert.NilError(t, err)
	assert.Equal(t, meta.Entry.Permissions, uint32(0600))
}

func TestMetadataForDirectory(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()
	sid := adminLogin(t, inst)

	assert.NilError(t, inst.DirCreate(sid, "/d"))

	meta, err := inst.Metadata(sid, "/d")
	assert.NilError(t, err)
	assert.Equal(t, meta.Entry.Type, domain.TypeDirectory)
	assert.Equal(t, meta.BlocksUsed, uint32(0))
	assert.Equal(t, meta.ActualSize, uint64(0))
}

func TestOperationsRequireSession(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	defer inst.Shutdown()

	assert.ErrorIs(t, inst.FileCreate("bogus", "/f", nil), domain.ErrInvalidSession)
	_, err := inst.DirList("", "/")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	_, err = inst.Stats("stale")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}
