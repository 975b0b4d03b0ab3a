package erstore

import (
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/entityresolve/er/pkg/ererr"
)

// BleveIndex is the BM25 FullTextIndex implementation, grounded on
// Aman-CERP-amanmcp's internal/store/bm25.go pattern of an in-memory
// bleve index per run (`bleve.NewMemOnly`). Blocking strategies build one
// of these, index the serialized record text, and issue match queries to
// generate candidate pairs.
type BleveIndex struct {
	idx bleve.Index
}

type textDoc struct {
	Text string `json:"text"`
}

// NewBleveIndex builds a fresh in-memory full-text index.
func NewBleveIndex() (*BleveIndex, error) {
 mapping := bleve.NewIndexMapping()
 idx, err := bleve.NewMemOnly(mapping)
 if err != nil {
 return nil, ererr.Database("erstore.NewBleveIndex", err)
 }
 return &BleveIndex{idx: idx}, nil
}

func (b *BleveIndex) Index(id string, text string) error {
 if err := b.idx.Index(id, textDoc{Text: text}); err != nil {
 return ererr.Database("erstore.BleveIndex.Index", err)
 }
 return nil
}

func (b *BleveIndex) Delete(id string) error {
 if err := b.idx.Delete(id); err != nil {
 return ererr.Database("erstore.BleveIndex.Delete", err)
 }
 return nil
}

// Search issues a match query against the indexed text and returns hits
// ranked by bleve's BM25-derived relevance score, highest first.
func (b *BleveIndex) Search(q string, limit int) ([]TextHit, error) {
 mq := query.NewMatchQuery(q)
 mq.SetField("text")
 req := bleve.NewSearchRequestOptions(mq, limit, 0, false)

 res, err := b.idx.Search(req)
 if err != nil {
 return nil, ererr.Database("erstore.BleveIndex.Search", err)
 }

 hits := make([]TextHit, 0, len(res.Hits))
 for _, h := range res.Hits {
 hits = append(hits, TextHit{ID: h.ID, Score: h.Score})
 }
 sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
 return hits, nil
}

// Close releases the underlying index.
func (b *BleveIndex) Close() error {
 return b.idx.Close()
}
