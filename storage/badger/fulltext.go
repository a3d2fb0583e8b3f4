package badger

import (
	"errors"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// BM25 parameters
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Field weights of the policy index
const (
	titleWeight       = 1.0
	descriptionWeight = 0.4
	bodyWeight        = 0.2
)

// posting is the value stored for a (term, document) pair.
type posting struct {
	freq   float32 // term frequency, weighted for policies
	length float32 // document length in the same units
}

func marshalPosting(p posting) []byte {
	buf := make([]byte, raw.Float32.Size(p.freq)+raw.Float32.Size(p.length))
	n := raw.Float32.Marshal(p.freq, buf)
	raw.Float32.Marshal(p.length, buf[n:])
	return buf
}

func unmarshalPosting(data []byte) (posting, error) {
	freq, n, err := raw.Float32.Unmarshal(data)
	if err != nil {
		return posting{}, err
	}
	length, _, err := raw.Float32.Unmarshal(data[n:])
	if err != nil {
		return posting{}, err
	}
	return posting{freq: freq, length: length}, nil
}

// indexStats tracks the corpus size of one inverted index.
type indexStats struct {
	docs        uint64
	totalLength float64
}

func (s indexStats) avgLength() float64 {
	if s.docs == 0 {
		return 0
	}
	return s.totalLength / float64(s.docs)
}

func readStats(tx *badger.Txn, key string) (indexStats, error) {
	item, err := tx.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return indexStats{}, nil
	}
	if err != nil {
		return indexStats{}, err
	}
	var stats indexStats
	err = item.Value(func(val []byte) error {
		docs, n, err := varint.Uint64.Unmarshal(val)
		if err != nil {
			return err
		}
		total, _, err := raw.Float64.Unmarshal(val[n:])
		if err != nil {
			return err
		}
		stats = indexStats{docs: docs, totalLength: total}
		return nil
	})
	return stats, err
}

func writeStats(tx *badger.Txn, key string, stats indexStats) error {
	if stats.totalLength < 0 {
		stats.totalLength = 0
	}
	buf := make([]byte, varint.Uint64.Size(stats.docs)+raw.Float64.Size(stats.totalLength))
	n := varint.Uint64.Marshal(stats.docs, buf)
	raw.Float64.Marshal(stats.totalLength, buf[n:])
	return tx.Set([]byte(key), buf)
}

// weightedTerms maps a term to its frequency within one document.
type weightedTerms map[string]float32

func chunkTerms(chunk *core.PolicyChunk) (weightedTerms, float32) {
	freqs, total := core.TermFrequencies(chunk.Content)
	terms := make(weightedTerms, len(freqs))
	for term, freq := range freqs {
		terms[term] = float32(freq)
	}
	return terms, float32(total)
}

func policyTerms(policy *core.Policy) (weightedTerms, float32) {
	terms := make(weightedTerms)
	var length float32
	add := func(text string, weight float32) {
		freqs, total := core.TermFrequencies(text)
		for term, freq := range freqs {
			terms[term] += float32(freq) * weight
		}
		length += float32(total) * weight
	}
	add(policy.Title, titleWeight)
	add(policy.Description, descriptionWeight)
	add(policy.TextContent, bodyWeight)
	return terms, length
}

// addPostings indexes a document and updates the corpus statistics.
func addPostings(tx *badger.Txn, prefix, statsKey string, docID core.ID, terms weightedTerms, length float32) error {
	for term, freq := range terms {
		value := marshalPosting(posting{freq: freq, length: length})
		if err := tx.Set(makeTermKey(prefix, term, docID), value); err != nil {
			return err
		}
	}
	stats, err := readStats(tx, statsKey)
	if err != nil {
		return err
	}
	stats.docs++
	stats.totalLength += float64(length)
	return writeStats(tx, statsKey, stats)
}

// removePostings reverses addPostings for the same terms.
func removePostings(tx *badger.Txn, prefix, statsKey string, docID core.ID, terms weightedTerms, length float32) error {
	for term := range terms {
		if err := tx.Delete(makeTermKey(prefix, term, docID)); err != nil {
			return err
		}
	}
	stats, err := readStats(tx, statsKey)
	if err != nil {
		return err
	}
	if stats.docs > 0 {
		stats.docs--
	}
	stats.totalLength -= float64(length)
	return writeStats(tx, statsKey, stats)
}

// rankTerms scores every document containing all terms with BM25.
// Returns an empty map if any term matches nothing.
func rankTerms(tx *badger.Txn, prefix, statsKey string, terms []string) (map[core.ID]float64, error) {
	if len(terms) == 0 {
		return map[core.ID]float64{}, nil
	}
	stats, err := readStats(tx, statsKey)
	if err != nil {
		return nil, err
	}
	avgLength := stats.avgLength()

	var scores map[core.ID]float64
	for i, term := range terms {
		postings, err := readPostings(tx, prefix, term)
		if err != nil {
			return nil, err
		}
		if len(postings) == 0 {
			return map[core.ID]float64{}, nil
		}

		df := float64(len(postings))
		idf := math.Log(1 + (float64(stats.docs)-df+0.5)/(df+0.5))

		next := make(map[core.ID]float64, len(postings))
		for docID, p := range postings {
			prev, ok := scores[docID]
			if i > 0 && !ok {
				continue
			}
			next[docID] = prev + idf*bm25Term(float64(p.freq), float64(p.length), avgLength)
		}
		scores = next
		if len(scores) == 0 {
			break
		}
	}
	return scores, nil
}

func bm25Term(freq, length, avgLength float64) float64 {
	norm := 1.0
	if avgLength > 0 {
		norm = 1 - bm25B + bm25B*length/avgLength
	}
	return freq * (bm25K1 + 1) / (freq + bm25K1*norm)
}

// normalizeRank maps a non-negative BM25 score into [0, 1).
func normalizeRank(score float64) float32 {
	if score <= 0 {
		return 0
	}
	return float32(score / (score + 1))
}

func readPostings(tx *badger.Txn, prefix, term string) (map[core.ID]posting, error) {
	termPrefix := makePartialTermKey(prefix, term)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = termPrefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	postings := make(map[core.ID]posting)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		key := item.Key()
		if len(key) != len(termPrefix)+8 {
			continue
		}
		var p posting
		if err := item.Value(func(val []byte) error {
			var err error
			p, err = unmarshalPosting(val)
			return err
		}); err != nil {
			return nil, errors.Join(storage.ErrSerializationFailed, err)
		}
		postings[docIDFromTermKey(key)] = p
	}
	return postings, nil
}
