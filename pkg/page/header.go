package page

import (
	"bytes"
	"encoding/binary"
)

// Header page layout constants. The header page holds a count followed by a
// packed array of fixed-width (index name, root pagenum) records.
const (
	NUM_RECORDS_OFFSET int64 = 0
	NUM_RECORDS_SIZE   int64 = binary.MaxVarintLen64
	RECORDS_OFFSET     int64 = NUM_RECORDS_OFFSET + NUM_RECORDS_SIZE
	RECORD_NAME_SIZE   int64 = 32
	RECORD_ROOT_SIZE   int64 = binary.MaxVarintLen64
	RECORD_SIZE        int64 = RECORD_NAME_SIZE + RECORD_ROOT_SIZE
	MAX_HEADER_RECORDS int64 = (Pagesize - RECORDS_OFFSET) / RECORD_SIZE
)

// Header is a typed view over the reserved header page. It is only valid
// while the underlying page stays pinned.
type Header struct {
	page *Page
}

// AsHeader reinterprets the given page as the header page.
func AsHeader(page *Page) *Header {
	return &Header{page: page}
}

// GetRecordCount returns the number of records stored in the header page.
func (header *Header) GetRecordCount() int64 {
	count, _ := binary.Varint(
		header.page.GetData()[NUM_RECORDS_OFFSET : NUM_RECORDS_OFFSET+NUM_RECORDS_SIZE],
	)
	return count
}

// GetRootPageID returns the root pagenum recorded for the named index,
// reporting whether a record with that name exists.
func (header *Header) GetRootPageID(name string) (int64, bool) {
	index := header.findRecord(name)
	if index == -1 {
		return NoPage, false
	}
	return header.rootAt(index), true
}

// InsertRecord adds a new (name, root pagenum) record. Returns false if the
// name is invalid, already present, or the header page is full.
func (header *Header) InsertRecord(name string, rootPagenum int64) bool {
	if len(name) == 0 || int64(len(name)) > RECORD_NAME_SIZE {
		return false
	}
	if header.findRecord(name) != -1 {
		return false
	}
	count := header.GetRecordCount()
	if count >= MAX_HEADER_RECORDS {
		return false
	}
	header.writeRecord(count, name, rootPagenum)
	header.updateRecordCount(count + 1)
	return true
}

// UpdateRecord rewrites the root pagenum of an existing record.
// Returns false if no record with that name exists.
func (header *Header) UpdateRecord(name string, rootPagenum int64) bool {
	index := header.findRecord(name)
	if index == -1 {
		return false
	}
	rootData := make([]byte, RECORD_ROOT_SIZE)
	binary.PutVarint(rootData, rootPagenum)
	header.page.Update(rootData, recordPos(index)+RECORD_NAME_SIZE, RECORD_ROOT_SIZE)
	return true
}

// DeleteRecord removes the record with the given name, shifting later records
// down. Returns false if no record with that name exists.
func (header *Header) DeleteRecord(name string) bool {
	index := header.findRecord(name)
	if index == -1 {
		return false
	}
	count := header.GetRecordCount()
	for i := index; i < count-1; i++ {
		header.writeRecord(i, header.nameAt(i+1), header.rootAt(i+1))
	}
	header.updateRecordCount(count - 1)
	return true
}

// recordPos returns the page offset of the record at the given index.
func recordPos(index int64) int64 {
	return RECORDS_OFFSET + index*RECORD_SIZE
}

// findRecord returns the index of the record with the given name, or -1.
func (header *Header) findRecord(name string) int64 {
	count := header.GetRecordCount()
	for i := int64(0); i < count; i++ {
		if header.nameAt(i) == name {
			return i
		}
	}
	return -1
}

// nameAt returns the index name stored in the record at the given index.
func (header *Header) nameAt(index int64) string {
	startPos := recordPos(index)
	raw := header.page.GetData()[startPos : startPos+RECORD_NAME_SIZE]
	return string(bytes.TrimRight(raw, "\x00"))
}

// rootAt returns the root pagenum stored in the record at the given index.
func (header *Header) rootAt(index int64) int64 {
	startPos := recordPos(index) + RECORD_NAME_SIZE
	root, _ := binary.Varint(header.page.GetData()[startPos : startPos+RECORD_ROOT_SIZE])
	return root
}

// writeRecord serializes a record into the slot at the given index.
func (header *Header) writeRecord(index int64, name string, rootPagenum int64) {
	recordData := make([]byte, RECORD_SIZE)
	copy(recordData[:RECORD_NAME_SIZE], name)
	binary.PutVarint(recordData[RECORD_NAME_SIZE:], rootPagenum)
	header.page.Update(recordData, recordPos(index), RECORD_SIZE)
}

// updateRecordCount writes the record count to the header page.
func (header *Header) updateRecordCount(newCount int64) {
	countData := make([]byte, NUM_RECORDS_SIZE)
	binary.PutVarint(countData, newCount)
	header.page.Update(countData, NUM_RECORDS_OFFSET, NUM_RECORDS_SIZE)
}
