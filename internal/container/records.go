package container

import (
	"bytes"
	"encoding/binary"

	"github.com/omnifs/omnifs/internal/domain"
)

// Record layouts are fixed at format definition time. Every multi-byte
// field is little-endian; the free-space snapshot (big-endian) is the
// single exception and is handled by the freespace package.
//
// Header:    magic[8] version:u32 total_size:u64 header_size:u64
//            block_size:u64 user_table_offset:u64 max_users:u32
//            max_files:u32 student_id[9] submission_date[10]
//            zero padding to header_size
// UserInfo:  username[32] password_hash[64] role:u8 active:u8 pad[6]
//            created:u64 last_login:u64 pad[8]            = 128 bytes
// FileEntry: name[256] type:u8 valid:u8 pad[2] permissions:u32
//            size:u64 created:u64 modified:u64 inode:u32
//            parent_index:u32 owner[32]                   = 328 bytes

const headerEncodedLen = 71

func leUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func beUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func putString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, s[:n])
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

func encodeHeader(buf []byte, h *domain.Header) {
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint64(buf[12:20], h.TotalSize)
	binary.LittleEndian.PutUint64(buf[20:28], h.HeaderSize)
	binary.LittleEndian.PutUint64(buf[28:36], h.BlockSize)
	binary.LittleEndian.PutUint64(buf[36:44], h.UserTableOffset)
	binary.LittleEndian.PutUint32(buf[44:48], h.MaxUsers)
	binary.LittleEndian.PutUint32(buf[48:52], h.MaxFiles)
	copy(buf[52:61], h.StudentID[:])
	copy(buf[61:71], h.SubmissionDate[:])
}

func decodeHeader(buf []byte, h *domain.Header) {
	copy(h.Magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	h.TotalSize = binary.LittleEndian.Uint64(buf[12:20])
	h.HeaderSize = binary.LittleEndian.Uint64(buf[20:28])
	h.BlockSize = binary.LittleEndian.Uint64(buf[28:36])
	h.UserTableOffset = binary.LittleEndian.Uint64(buf[36:44])
	h.MaxUsers = binary.LittleEndian.Uint32(buf[44:48])
	h.MaxFiles = binary.LittleEndian.Uint32(buf[48:52])
	copy(h.StudentID[:], buf[52:61])
	copy(h.SubmissionDate[:], buf[61:71])
}

func encodeUser(buf []byte, u *domain.UserInfo) {
	putString(buf[0:32], u.Username)
	putString(buf[32:96], u.PasswordHash)
	buf[96] = byte(u.Role)
	if u.IsActive {
		buf[97] = 1
	} else {
		buf[97] = 0
	}
	binary.LittleEndian.PutUint64(buf[104:112], uint64(u.CreatedTime))
	binary.LittleEndian.PutUint64(buf[112:120], uint64(u.LastLogin))
}

func decodeUser(buf []byte, u *domain.UserInfo) {
	u.Username = getString(buf[0:32])
	u.PasswordHash = getString(buf[32:96])
	u.Role = domain.UserRole(buf[96])
	u.IsActive = buf[97] == 1
	u.CreatedTime = int64(binary.LittleEndian.Uint64(buf[104:112]))
	u.LastLogin = int64(binary.LittleEndian.Uint64(buf[112:120]))
}

func encodeEntry(buf []byte, e *domain.FileEntry) {
	putString(buf[0:256], e.Name)
	buf[256] = byte(e.Type)
	if e.Valid {
		buf[257] = 1
	} else {
		buf[257] = 0
	}
	binary.LittleEndian.PutUint32(buf[260:264], e.Permissions)
	binary.LittleEndian.PutUint64(buf[264:272], e.Size)
	binary.LittleEndian.PutUint64(buf[272:280], uint64(e.CreatedTime))
	binary.LittleEndian.PutUint64(buf[280:288], uint64(e.ModifiedTime))
	binary.LittleEndian.PutUint32(buf[288:292], e.Inode)
	binary.LittleEndian.PutUint32(buf[292:296], e.ParentIndex)
	putString(buf[296:328], e.Owner)
}

func decodeEntry(buf []byte, e *domain.FileEntry) {
	e.Name = getString(buf[0:256])
	e.Type = domain.EntryType(buf[256])
	e.Valid = buf[257] == 1
	e.Permissions = binary.LittleEndian.Uint32(buf[260:264])
	e.Size = binary.LittleEndian.Uint64(buf[264:272])
	e.CreatedTime = int64(binary.LittleEndian.Uint64(buf[272:280]))
	e.ModifiedTime = int64(binary.LittleEndian.Uint64(buf[280:288]))
	e.Inode = binary.LittleEndian.Uint32(buf[288:292])
	e.ParentIndex = binary.LittleEndian.Uint32(buf[292:296])
	e.Owner = getString(buf[296:328])
}
