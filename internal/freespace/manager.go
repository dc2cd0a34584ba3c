// Package freespace tracks the free blocks of a container as a sorted
// list of disjoint segments and serializes that list into the trailing
// snapshot region.
package freespace

import (
	"encoding/binary"
	"sort"

	"github.com/omnifs/omnifs/internal/domain"
)

// Segment is a maximal run of consecutive free blocks.
type Segment struct {
	Start uint32
	Count uint32
}

// End returns the last block covered by the segment.
func (s Segment) End() uint32 {
	return s.Start + s.Count - 1
}

// Manager owns the free-segment list for one container. Block 0 is
// reserved and is never part of any segment.
type Manager struct {
	segments    []Segment
	totalBlocks uint32
	freeBlocks  uint32
}

// NewManager covers blocks [1, totalBlocks) as a single free segment.
func NewManager(totalBlocks uint32) *Manager {
	m := &Manager{totalBlocks: totalBlocks}
	if totalBlocks > 1 {
		m.segments = append(m.segments, Segment{Start: 1, Count: totalBlocks - 1})
		m.freeBlocks = totalBlocks - 1
	}
	return m
}

func (m *Manager) sortSegments() {
	sort.Slice(m.segments, func(i, j int) bool {
		return m.segments[i].Start < m.segments[j].Start
	})
}

func (m *Manager) mergeAdjacent() {
	if len(m.segments) <= 1 {
		return
	}
	m.sortSegments()

	merged := m.segments[:1]
	for _, cur := range m.segments[1:] {
		last := &merged[len(merged)-1]
		if last.End()+1 == cur.Start {
			last.Count += cur.Count
		} else {
			merged = append(merged, cur)
		}
	}
	m.segments = merged
}

func (m *Manager) findSegment(count uint32) int {
	for i := range m.segments {
		if m.segments[i].Count >= count {
			return i
		}
	}
	return -1
}

// Allocate returns count consecutive block ids from the first segment
// that can hold them, or nil when no segment fits even after coalescing.
// Block 0 is never returned.
func (m *Manager) Allocate(count uint32) []uint32 {
	if count == 0 || count > m.freeBlocks {
		return nil
	}

	idx := m.findSegment(count)
	if idx == -1 {
		m.mergeAdjacent()
		idx = m.findSegment(count)
		if idx == -1 {
			return nil
		}
	}

	seg := &m.segments[idx]
	blocks := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		block := seg.Start + i
		if block == 0 {
			m.FreeSegments(blocks)
			return nil
		}
		blocks = append(blocks, block)
	}

	if seg.Count == count {
		m.segments = append(m.segments[:idx], m.segments[idx+1:]...)
	} else {
		seg.Start += count
		seg.Count -= count
	}
	m.freeBlocks -= count

	return blocks
}

// AllocateScattered tries a single contiguous allocation first and falls
// back to collecting blocks one at a time. If the fallback runs dry the
// partially collected blocks are returned to the free list and nil is
// reported.
func (m *Manager) AllocateScattered(count uint32) []uint32 {
	if count == 0 {
		return nil
	}

	if blocks := m.Allocate(count); blocks != nil {
		return blocks
	}

	var blocks []uint32
	for i := uint32(0); i < count; i++ {
		single := m.Allocate(1)
		if single == nil {
			if len(blocks) > 0 {
				m.FreeSegments(blocks)
			}
			return nil
		}
		blocks = append(blocks, single[0])
	}
	return blocks
}

// Free returns a single block to the free list.
func (m *Manager) Free(block uint32) {
	if block == 0 {
		return
	}
	m.FreeSegments([]uint32{block})
}

// FreeSegments returns a set of blocks to the free list, coalescing runs
// into segments. Block 0 is silently dropped from the input.
func (m *Manager) FreeSegments(blocks []uint32) {
	if len(blocks) == 0 {
		return
	}

	sorted := make([]uint32, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if sorted[0] == 0 {
		sorted = sorted[1:]
	}
	if len(sorted) == 0 {
		return
	}

	segStart := sorted[0]
	segCount := uint32(1)
	for _, b := range sorted[1:] {
		if b == segStart+segCount {
			segCount++
		} else {
			m.segments = append(m.segments, Segment{Start: segStart, Count: segCount})
			segStart = b
			segCount = 1
		}
	}
	m.segments = append(m.segments, Segment{Start: segStart, Count: segCount})

	m.freeBlocks += uint32(len(sorted))
	m.mergeAdjacent()
}

// IsFree reports whether a block is on the free list.
func (m *Manager) IsFree(block uint32) bool {
	if block == 0 {
		return false
	}
	for _, seg := range m.segments {
		if block >= seg.Start && block <= seg.End() {
			return true
		}
	}
	return false
}

func (m *Manager) TotalBlocks() uint32 {
	return m.totalBlocks
}

func (m *Manager) FreeBlocks() uint32 {
	return m.freeBlocks
}

func (m *Manager) UsedBlocks() uint32 {
	return m.totalBlocks - m.freeBlocks
}

func (m *Manager) SegmentCount() int {
	return len(m.segments)
}

// LargestContiguous returns the size of the biggest free segment.
func (m *Manager) LargestContiguous() uint32 {
	var largest uint32
	for _, seg := range m.segments {
		if seg.Count > largest {
			largest = seg.Count
		}
	}
	return largest
}

// Fragmentation is (segments-1)/freeBlocks as a percentage; 0 when the
// free list is empty, untouched, or a single segment.
func (m *Manager) Fragmentation() float64 {
	if m.freeBlocks == 0 || m.freeBlocks == m.totalBlocks-1 {
		return 0
	}
	if len(m.segments) <= 1 {
		return 0
	}
	return float64(len(m.segments)-1) / float64(m.freeBlocks) * 100
}

// Segments returns a snapshot of the segment list.
func (m *Manager) Segments() []Segment {
	out := make([]Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// Reset restores the manager to a fully free state over [1, totalBlocks).
func (m *Manager) Reset() {
	m.segments = m.segments[:0]
	if m.totalBlocks > 1 {
		m.segments = append(m.segments, Segment{Start: 1, Count: m.totalBlocks - 1})
		m.freeBlocks = m.totalBlocks - 1
	} else {
		m.freeBlocks = 0
	}
}

// Serialize encodes the snapshot: total blocks, free blocks, segment
// count, then (start, count) pairs. All fields are big-endian; this is
// the one region of the container that is not little-endian.
func (m *Manager) Serialize() []byte {
	data := make([]byte, 12+8*len(m.segments))
	binary.BigEndian.PutUint32(data[0:4], m.totalBlocks)
	binary.BigEndian.PutUint32(data[4:8], m.freeBlocks)
	binary.BigEndian.PutUint32(data[8:12], uint32(len(m.segments)))

	off := 12
	for _, seg := range m.segments {
		binary.BigEndian.PutUint32(data[off:off+4], seg.Start)
		binary.BigEndian.PutUint32(data[off+4:off+8], seg.Count)
		off += 8
	}
	return data
}

// Deserialize rebuilds a manager from snapshot bytes. Truncated segment
// data is tolerated; a snapshot shorter than its fixed header is not.
func Deserialize(data []byte) (*Manager, error) {
	if len(data) < 12 {
		return nil, domain.ErrIO
	}

	totalBlocks := binary.BigEndian.Uint32(data[0:4])
	freeBlocks := binary.BigEndian.Uint32(data[4:8])
	segCount := binary.BigEndian.Uint32(data[8:12])

	m := &Manager{
		totalBlocks: totalBlocks,
		freeBlocks:  freeBlocks,
	}

	off := 12
	for i := uint32(0); i < segCount; i++ {
		if off+8 > len(data) {
			break
		}
		m.segments = append(m.segments, Segment{
			Start: binary.BigEndian.Uint32(data[off : off+4]),
			Count: binary.BigEndian.Uint32(data[off+4 : off+8]),
		})
		off += 8
	}

	return m, nil
}
