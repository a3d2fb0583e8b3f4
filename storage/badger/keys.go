package badger

import (
	"encoding/binary"

	"github.com/poiesic/policykb/core"
)

// Key prefixes for different data types.
// Composite keys use BigEndian integers so lexicographic order matches numeric order.
const (
	policyPrefix        = "pol:"  // pol:<policyID>
	policyTitlePrefix   = "polt:" // polt:<title> -> policyID
	chunkPrefix         = "chk:"  // chk:<policyID><index>
	chunkIDPrefix       = "chki:" // chki:<chunkID> -> <policyID><index>
	imagePrefix         = "img:"  // img:<policyID><filename>
	updatePrefix        = "upd:"  // upd:<updateID>
	updatePolicyPrefix  = "updp:" // updp:<policyID><updateID>
	chunkTermPrefix     = "ftc:"  // ftc:<term>\x00<chunkID> -> posting
	policyTermPrefix    = "ftp:"  // ftp:<term>\x00<policyID> -> posting
	runPrefix           = "run:"  // run:<baseDir>
	chunkStatsKey       = "stat:chunks"
	policyStatsKey      = "stat:policies"
	policyIDSeq         = "seq:policy"
	chunkIDSeq          = "seq:chunk"
	updateIDSeq         = "seq:update"
	termSeparator  byte = 0
)

// appendID appends an ID in BigEndian order.
func appendID(buf []byte, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

func makePolicyKey(id core.ID) []byte {
	return appendID([]byte(policyPrefix), id)
}

func makePolicyTitleKey(title string) []byte {
	return append([]byte(policyTitlePrefix), title...)
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:policyID:index
func makeChunkKey(policyID core.ID, index int) []byte {
	buf := appendID([]byte(chunkPrefix), policyID)
	return binary.BigEndian.AppendUint64(buf, uint64(index))
}

// makePartialChunkKey generates the prefix shared by every chunk of a policy.
func makePartialChunkKey(policyID core.ID) []byte {
	return appendID([]byte(chunkPrefix), policyID)
}

func makeChunkIDKey(id core.ID) []byte {
	return appendID([]byte(chunkIDPrefix), id)
}

// parseChunkLocation decodes the value of a chunk ID index entry.
func parseChunkLocation(val []byte) (core.ID, int, bool) {
	if len(val) != 16 {
		return 0, 0, false
	}
	policyID := core.ID(binary.BigEndian.Uint64(val[:8]))
	index := int(binary.BigEndian.Uint64(val[8:]))
	return policyID, index, true
}

func makeChunkLocation(policyID core.ID, index int) []byte {
	buf := appendID(make([]byte, 0, 16), policyID)
	return binary.BigEndian.AppendUint64(buf, uint64(index))
}

func makeImageKey(policyID core.ID, filename string) []byte {
	return append(makePartialImageKey(policyID), filename...)
}

func makePartialImageKey(policyID core.ID) []byte {
	return appendID([]byte(imagePrefix), policyID)
}

func makeUpdateKey(id core.ID) []byte {
	return appendID([]byte(updatePrefix), id)
}

// makeUpdatePolicyKey generates a composite key for the per-policy history index.
// Format: prefix:policyID:updateID
func makeUpdatePolicyKey(policyID, updateID core.ID) []byte {
	return appendID(makePartialUpdatePolicyKey(policyID), updateID)
}

func makePartialUpdatePolicyKey(policyID core.ID) []byte {
	return appendID([]byte(updatePolicyPrefix), policyID)
}

// makeTermKey generates a posting key for a term in one of the inverted indexes.
// Format: prefix:term\x00docID
func makeTermKey(prefix, term string, docID core.ID) []byte {
	return appendID(makePartialTermKey(prefix, term), docID)
}

func makePartialTermKey(prefix, term string) []byte {
	buf := make([]byte, 0, len(prefix)+len(term)+9)
	buf = append(buf, prefix...)
	buf = append(buf, term...)
	return append(buf, termSeparator)
}

// docIDFromTermKey extracts the document ID trailing a posting key.
func docIDFromTermKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func makeRunKey(baseDir string) []byte {
	return append([]byte(runPrefix), baseDir...)
}
