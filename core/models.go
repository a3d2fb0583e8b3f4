package core

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ContentHash returns a hex encoded BLAKE2b-256 digest of text.
func ContentHash(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ScrapeTimestampWidth is the number of digits in a scrape timestamp.
const ScrapeTimestampWidth = 20

// ScrapeTimestamp is the fixed-width version marker of a document snapshot.
// Because every valid value has exactly ScrapeTimestampWidth digits,
// lexicographic order equals chronological order.
type ScrapeTimestamp string

// IsZero reports whether the timestamp is absent.
func (t ScrapeTimestamp) IsZero() bool {
	return t == ""
}

// After reports whether t is strictly newer than other.
// An absent timestamp is older than any present one.
func (t ScrapeTimestamp) After(other ScrapeTimestamp) bool {
	return string(t) > string(other)
}

func (t ScrapeTimestamp) String() string {
	return string(t)
}

// PolicyMetadata holds the version and provenance information of a Policy.
type PolicyMetadata struct {
	ScrapeTimestamp ScrapeTimestamp // Version marker, empty when unknown
	SourceFolder    string          // Snapshot folder the content was read from
	ProcessedAt     time.Time       // When ingestion last wrote the policy
	ContentHash     string          // Digest of TextContent
	IngestionRun    string          // Run that last wrote the policy
}

// Policy is a single policy document. Title is unique across the store.
type Policy struct {
	Id              ID
	Title           string
	Description     string
	SourceURL       string
	MarkdownContent string
	TextContent     string
	Metadata        PolicyMetadata
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Images is populated by lookups that fan out to owned images.
	// It is not part of the stored record.
	Images []*Image
}

// PolicyChunk is a positional slice of a policy's text content.
type PolicyChunk struct {
	Id        ID
	PolicyId  ID
	Index     int       // 0-based position within the policy
	Content   string
	Embedding []float32 // nil when embedding failed
}

// Image is a reference to an image file shipped alongside a policy snapshot.
type Image struct {
	Id           ID
	PolicyId     ID
	Filename     string
	RelativePath string
	ContentType  string
	Size         int64
}

// ImageID returns the deterministic ID of an image owned by a policy.
func ImageID(policyID ID, filename string) ID {
	return IDFromContent(policyID.String() + "/" + filename)
}

// UpdateAction identifies the kind of change recorded in the policy history.
type UpdateAction string

const (
	UpdateActionCreate       UpdateAction = "create"
	UpdateActionUpdate       UpdateAction = "update"
	UpdateActionDelete       UpdateAction = "delete"
	UpdateActionDeleteFailed UpdateAction = "delete_failed"
)

// PolicyUpdate is an append-only history entry.
// PolicyId is kept after the policy is deleted; AdminId is nil for automated changes.
type PolicyUpdate struct {
	Id        ID
	PolicyId  *ID
	AdminId   *ID
	Action    UpdateAction
	Details   string
	CreatedAt time.Time
}

// IngestionRun records the outcome of one ingestion batch.
type IngestionRun struct {
	RunId      string
	BaseDir    string
	StartedAt  time.Time
	FinishedAt time.Time
	Created    int
	Updated    int
	Skipped    int
	Errored    int
}

// ChunkResult is a ranked chunk returned by retrieval.
type ChunkResult struct {
	Chunk       *PolicyChunk
	Score       float32
	VectorScore float32
	TextScore   float32
}

// PolicyResult is a ranked policy returned by policy search.
type PolicyResult struct {
	Policy *Policy
	Score  float32
}

// Neighbors holds the chunks surrounding a target chunk, both in ascending index order.
type Neighbors struct {
	Previous []*PolicyChunk
	Next     []*PolicyChunk
}
