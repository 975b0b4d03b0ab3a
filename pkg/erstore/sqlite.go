package erstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/entityresolve/er/pkg/ererr"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/valid"
)

// SQLiteEngine is the reference DocumentStore + GraphStore implementation,
// backed by modernc.org/sqlite (pure Go, no CGO) the way the prior own
// pkg/core/store_init.go picks a CGO-free driver. Documents are stored as
// one row per (collection, id) with a JSON field blob; edges are stored
// in a single graph_edges table keyed by a deterministic hash of the
// unordered endpoint pair, mirroring the prior pkg/graph/graph.go
// schema.
type SQLiteEngine struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at dsn and applies the
// engine's schema. Use ":memory:" or "file::memory:?cache=shared" for
// ephemeral/test use, matching in-memory test fixtures.
func Open(ctx context.Context, dsn string) (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ererr.Database("erstore.Open", err)
	}
	e := &SQLiteEngine{db: db}
	if err := e.migrate(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Close releases the underlying connection.
func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

func (e *SQLiteEngine) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
 collection TEXT NOT NULL,
 id TEXT NOT NULL,
 fields TEXT NOT NULL,
 embedding TEXT,
 embed_model TEXT,
 embed_dim INTEGER,
 embed_created_at TEXT,
 coarse TEXT,
 coarse_model TEXT,
 coarse_dim INTEGER,
 coarse_created_at TEXT,
 PRIMARY KEY (collection, id)
 )`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
 edge_key TEXT PRIMARY KEY,
 from_id TEXT NOT NULL,
 to_id TEXT NOT NULL,
 similarity_score REAL NOT NULL,
 field_scores TEXT,
 is_match INTEGER NOT NULL,
 algorithm TEXT,
 created_at TEXT NOT NULL,
 updated_at TEXT NOT NULL,
 update_count INTEGER NOT NULL
 )`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_from ON graph_edges(from_id)`,
 `CREATE INDEX IF NOT EXISTS idx_graph_edges_to ON graph_edges(to_id)`,
 }
 for _, s := range stmts {
 if _, err := e.db.ExecContext(ctx, s); err != nil {
 return ererr.Database("erstore.migrate", err)
 }
 }
 return nil
}

func (e *SQLiteEngine) EnsureCollection(ctx context.Context, collection string) error {
 if _, err := valid.CollectionName(collection); err != nil {
 return err
 }
 return nil
}

func (e *SQLiteEngine) Truncate(ctx context.Context, collection string) error {
 if _, err := valid.CollectionName(collection); err != nil {
 return err
 }
 _, err := e.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
 if err != nil {
 return ererr.Database("erstore.Truncate", err)
 }
 return nil
}

func (e *SQLiteEngine) Upsert(ctx context.Context, r *model.Record) error {
 _, err := e.UpsertMany(ctx, []*model.Record{r})
 return err
}

func (e *SQLiteEngine) UpsertMany(ctx context.Context, records []*model.Record) (int, error) {
 tx, err := e.db.BeginTx(ctx, nil)
 if err != nil {
 return 0, ererr.Database("erstore.UpsertMany", err)
 }
 defer tx.Rollback()

 stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, id, fields, embedding, embed_model, embed_dim, embed_created_at, coarse, coarse_model, coarse_dim, coarse_created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
		fields=excluded.fields,
		embedding=excluded.embedding,
		embed_model=excluded.embed_model,
		embed_dim=excluded.embed_dim,
		embed_created_at=excluded.embed_created_at,
		coarse=excluded.coarse,
		coarse_model=excluded.coarse_model,
		coarse_dim=excluded.coarse_dim,
		coarse_created_at=excluded.coarse_created_at
		`)
 if err != nil {
 return 0, ererr.Database("erstore.UpsertMany", err)
 }
 defer stmt.Close()

 n := 0
 for _, r := range records {
 fieldsJSON, err := json.Marshal(r.Fields)
 if err != nil {
 return n, ererr.Validation("erstore.UpsertMany", err)
 }
 embJSON, embModel, embDim, embCreated := vectorColumns(r.Embedding, r.EmbedMeta)
 coarseJSON, coarseModel, coarseDim, coarseCreated := vectorColumns(r.Coarse, r.CoarseMeta)

 if _, err := stmt.ExecContext(ctx, r.Collection, r.ID, string(fieldsJSON),
 embJSON, embModel, embDim, embCreated,
 coarseJSON, coarseModel, coarseDim, coarseCreated); err != nil {
 return n, ererr.Database("erstore.UpsertMany", err)
 }
 n++
 }
 if err := tx.Commit(); err != nil {
 return n, ererr.Database("erstore.UpsertMany", err)
 }
 return n, nil
}

func vectorColumns(vec []float32, meta *model.EmbeddingMeta) (json_, modelID, dim, createdAt sql.NullString) {
 if vec != nil {
 b, _ := json.Marshal(vec)
 json_ = sql.NullString{String: string(b), Valid: true}
 }
 if meta != nil {
 modelID = sql.NullString{String: meta.ModelID, Valid: true}
 dim = sql.NullString{String: fmt.Sprint(meta.Dim), Valid: true}
 createdAt = sql.NullString{String: meta.CreatedAt.Format(time.RFC3339Nano), Valid: true}
 }
 return
}

type docRow struct {
 id string
 fieldsJSON string
 embJSON, embModel, embCreated, embDim sql.NullString
 coarseJSON, coarseModel, coarseCreated, coarseDim sql.NullString
}

func scanRecord(collection string, row docRow) (*model.Record, error) {
 var fields map[string]any
 if err := json.Unmarshal([]byte(row.fieldsJSON), &fields); err != nil {
 return nil, ererr.Database("erstore.scanRecord", err)
 }
 r := &model.Record{ID: row.id, Collection: collection, Fields: fields}
 r.Embedding = decodeVector(row.embJSON)
 r.EmbedMeta = decodeMeta(row.embModel, row.embDim, row.embCreated)
 r.Coarse = decodeVector(row.coarseJSON)
 r.CoarseMeta = decodeMeta(row.coarseModel, row.coarseDim, row.coarseCreated)
 return r, nil
}

func decodeVector(col sql.NullString) []float32 {
 if !col.Valid {
 return nil
 }
 var vec []float32
 if err := json.Unmarshal([]byte(col.String), &vec); err != nil {
 return nil
 }
 return vec
}

func decodeMeta(modelCol, dimCol, createdCol sql.NullString) *model.EmbeddingMeta {
 if !modelCol.Valid {
 return nil
 }
 meta := &model.EmbeddingMeta{ModelID: modelCol.String}
 if dimCol.Valid {
 fmt.Sscanf(dimCol.String, "%d", &meta.Dim)
 }
 if createdCol.Valid {
 if t, err := time.Parse(time.RFC3339Nano, createdCol.String); err == nil {
 meta.CreatedAt = t
 }
 }
 return meta
}

const documentColumns = `id, fields, embedding, embed_model, embed_dim, embed_created_at, coarse, coarse_model, coarse_dim, coarse_created_at`

func scanDocRow(s rowScanner) (docRow, error) {
 var row docRow
 err := s.Scan(&row.id, &row.fieldsJSON, &row.embJSON, &row.embModel, &row.embDim, &row.embCreated,
 &row.coarseJSON, &row.coarseModel, &row.coarseDim, &row.coarseCreated)
 return row, err
}

func (e *SQLiteEngine) Get(ctx context.Context, collection, id string) (*model.Record, bool, error) {
 sqlRow := e.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
 FROM documents WHERE collection = ? AND id = ?`, collection, id)

	row, err := scanDocRow(sqlRow)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, ererr.Database("erstore.Get", err)
	}
	r, err := scanRecord(collection, row)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (e *SQLiteEngine) GetMany(ctx context.Context, collection string, ids []string) ([]*model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT `+documentColumns+`
 FROM documents WHERE collection = ? AND id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ererr.Database("erstore.GetMany", err)
	}
	defer rows.Close()

	var out []*model.Record
	for rows.Next() {
		row, err := scanDocRow(rows)
		if err != nil {
			return nil, ererr.Database("erstore.GetMany", err)
		}
		r, err := scanRecord(collection, row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *SQLiteEngine) Scan(ctx context.Context, collection string, visit func(*model.Record) bool) error {
	rows, err := e.db.QueryContext(ctx, `SELECT `+documentColumns+`
 FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return ererr.Database("erstore.Scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanDocRow(rows)
		if err != nil {
			return ererr.Database("erstore.Scan", err)
		}
		r, err := scanRecord(collection, row)
		if err != nil {
			return err
		}
		if !visit(r) {
			break
		}
	}
	return nil
}

func (e *SQLiteEngine) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
 if err != nil {
 return 0, ererr.Database("erstore.Count", err)
 }
 return n, nil
}

// edgeKey derives the deterministic, order-independent key 
// requires so re-insertion is idempotent regardless of argument order.
func edgeKey(from, to string) string {
 a, b := from, to
 if b < a {
 a, b = b, a
 }
 sum := sha256.Sum256([]byte(a + "\x00" + b))
 return hex.EncodeToString(sum[:])
}

func (e *SQLiteEngine) UpsertEdge(ctx context.Context, edge model.SimilarityEdge, forceUpdate bool) (model.SimilarityEdge, error) {
 key := edgeKey(edge.FromID, edge.ToID)
 now := edge.UpdatedAt
 if now.IsZero() {
 now = time.Now().UTC()
 }

 tx, err := e.db.BeginTx(ctx, nil)
 if err != nil {
 return model.SimilarityEdge{}, ererr.Database("erstore.UpsertEdge", err)
 }
 defer tx.Rollback()

 existing, found, err := getEdgeTx(ctx, tx, key)
 if err != nil {
 return model.SimilarityEdge{}, err
 }

 var result model.SimilarityEdge
 if !found {
 result = edge
 result.CreatedAt = now
 result.UpdatedAt = now
 result.UpdateCount = 1
 } else if forceUpdate {
 result = edge
 result.CreatedAt = existing.CreatedAt
 result.UpdatedAt = now
 result.UpdateCount = existing.UpdateCount + 1
 } else {
 result = existing
 result.SimilarityScore = (existing.SimilarityScore + edge.SimilarityScore) / 2
 result.IsMatch = existing.IsMatch || edge.IsMatch
 result.UpdatedAt = now
 result.UpdateCount = existing.UpdateCount + 1
 if edge.Algorithm != "" {
 result.Algorithm = edge.Algorithm
 }
 for k, v := range edge.FieldScores {
 if result.FieldScores == nil {
 result.FieldScores = map[string]float64{}
 }
 result.FieldScores[k] = v
 }
 }

 scoresJSON, err := json.Marshal(result.FieldScores)
 if err != nil {
 return model.SimilarityEdge{}, ererr.Validation("erstore.UpsertEdge", err)
 }
 isMatch := 0
 if result.IsMatch {
 isMatch = 1
 }

 _, err = tx.ExecContext(ctx, `
		INSERT INTO graph_edges (edge_key, from_id, to_id, similarity_score, field_scores, is_match, algorithm, created_at, updated_at, update_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(edge_key) DO UPDATE SET
		similarity_score=excluded.similarity_score,
		field_scores=excluded.field_scores,
		is_match=excluded.is_match,
		algorithm=excluded.algorithm,
		updated_at=excluded.updated_at,
		update_count=excluded.update_count
		`, key, result.FromID, result.ToID, result.SimilarityScore, string(scoresJSON), isMatch, result.Algorithm,
 result.CreatedAt.Format(time.RFC3339Nano), result.UpdatedAt.Format(time.RFC3339Nano), result.UpdateCount)
 if err != nil {
 return model.SimilarityEdge{}, ererr.Database("erstore.UpsertEdge", err)
 }
 if err := tx.Commit(); err != nil {
 return model.SimilarityEdge{}, ererr.Database("erstore.UpsertEdge", err)
 }
 return result, nil
}

func getEdgeTx(ctx context.Context, tx *sql.Tx, key string) (model.SimilarityEdge, bool, error) {
 row := tx.QueryRowContext(ctx, `
		SELECT from_id, to_id, similarity_score, field_scores, is_match, algorithm, created_at, updated_at, update_count
		FROM graph_edges WHERE edge_key = ?`, key)
 return scanEdgeRow(row)
}

type rowScanner interface {
 Scan(dest...any) error
}

func scanEdgeRow(row rowScanner) (model.SimilarityEdge, bool, error) {
 var e model.SimilarityEdge
 var scoresJSON string
 var isMatch int
 var createdAt, updatedAt string
 err := row.Scan(&e.FromID, &e.ToID, &e.SimilarityScore, &scoresJSON, &isMatch, &e.Algorithm, &createdAt, &updatedAt, &e.UpdateCount)
 if err != nil {
 if err == sql.ErrNoRows {
 return model.SimilarityEdge{}, false, nil
 }
 return model.SimilarityEdge{}, false, ererr.Database("erstore.scanEdgeRow", err)
 }
 _ = json.Unmarshal([]byte(scoresJSON), &e.FieldScores)
 e.IsMatch = isMatch != 0
 e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
 e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
 return e, true, nil
}

func (e *SQLiteEngine) GetEdge(ctx context.Context, from, to string) (model.SimilarityEdge, bool, error) {
 row := e.db.QueryRowContext(ctx, `
		SELECT from_id, to_id, similarity_score, field_scores, is_match, algorithm, created_at, updated_at, update_count
		FROM graph_edges WHERE edge_key = ?`, edgeKey(from, to))
 return scanEdgeRow(row)
}

func (e *SQLiteEngine) AllEdges(ctx context.Context, minSimilarity float64) ([]model.SimilarityEdge, error) {
 rows, err := e.db.QueryContext(ctx, `
		SELECT from_id, to_id, similarity_score, field_scores, is_match, algorithm, created_at, updated_at, update_count
		FROM graph_edges WHERE similarity_score >= ?`, minSimilarity)
 if err != nil {
 return nil, ererr.Database("erstore.AllEdges", err)
 }
 defer rows.Close()

 var out []model.SimilarityEdge
 for rows.Next() {
 edge, _, err := scanEdgeRow(rows)
 if err != nil {
 return nil, err
 }
 out = append(out, edge)
 }
 return out, nil
}

// ConnectedComponents is the server-side traversal variant of clustering
//: for every unvisited vertex, a single `WITH RECURSIVE`
// query walks graph_edges entirely inside SQLite and returns that
// vertex's whole component, so the traversal itself — not just the edge
// scan — runs as a database query rather than as Go-side adjacency
// walking. This is what distinguishes the "server-side graph traversal"
// algorithm from the bulk-fetch-then-in-process-DFS fallback
// (pkg/cluster's default path, backed by pkg/graphstore.Graph); the two
// still agree on the resulting set-of-sets for any given edge set
// (cluster_test.go cross-checks them), since both compute the same
// mathematical weakly-connected components, just via different engines.
func (e *SQLiteEngine) ConnectedComponents(ctx context.Context, minSimilarity float64) ([][]string, error) {
 ids, err := e.vertexIDs(ctx, minSimilarity)
 if err != nil {
 return nil, err
 }

 visited := make(map[string]bool, len(ids))
 var components [][]string
 for _, start := range ids {
 if visited[start] {
 continue
 }
 members, err := e.reachableFrom(ctx, start, minSimilarity)
 if err != nil {
 return nil, err
 }
 sort.Strings(members)
 for _, m := range members {
 visited[m] = true
 }
 components = append(components, members)
 }
 return components, nil
}

// vertexIDs returns every distinct vertex touched by an edge at or above
// minSimilarity, sorted, so ConnectedComponents picks component seeds in
// a deterministic order.
func (e *SQLiteEngine) vertexIDs(ctx context.Context, minSimilarity float64) ([]string, error) {
 rows, err := e.db.QueryContext(ctx, `
		SELECT id FROM (
			SELECT from_id AS id FROM graph_edges WHERE similarity_score >= ?1
			UNION
			SELECT to_id AS id FROM graph_edges WHERE similarity_score >= ?1
		) ORDER BY id`, minSimilarity)
 if err != nil {
 return nil, ererr.Database("erstore.ConnectedComponents", err)
 }
 defer rows.Close()

 var ids []string
 for rows.Next() {
 var id string
 if err := rows.Scan(&id); err != nil {
 return nil, ererr.Database("erstore.ConnectedComponents", err)
 }
 ids = append(ids, id)
 }
 return ids, rows.Err()
}

// reachableFrom returns every vertex reachable from start over edges at
// or above minSimilarity, computed by a single recursive query so SQLite
// — not Go — performs the graph walk.
func (e *SQLiteEngine) reachableFrom(ctx context.Context, start string, minSimilarity float64) ([]string, error) {
 rows, err := e.db.QueryContext(ctx, `
		WITH RECURSIVE reachable(id) AS (
			SELECT ?1
			UNION
			SELECT CASE WHEN e.from_id = r.id THEN e.to_id ELSE e.from_id END
			FROM graph_edges e
			JOIN reachable r ON (e.from_id = r.id OR e.to_id = r.id)
			WHERE e.similarity_score >= ?2
		)
		SELECT id FROM reachable`, start, minSimilarity)
 if err != nil {
 return nil, ererr.Database("erstore.ConnectedComponents", err)
 }
 defer rows.Close()

 var members []string
 for rows.Next() {
 var id string
 if err := rows.Scan(&id); err != nil {
 return nil, ererr.Database("erstore.ConnectedComponents", err)
 }
 members = append(members, id)
 }
 return members, rows.Err()
}

func (e *SQLiteEngine) DeleteByMethod(ctx context.Context, method string) (int, error) {
 res, err := e.db.ExecContext(ctx, `DELETE FROM graph_edges WHERE algorithm = ?`, method)
 if err != nil {
 return 0, ererr.Database("erstore.DeleteByMethod", err)
 }
 n, _ := res.RowsAffected()
 return int(n), nil
}

func (e *SQLiteEngine) TruncateEdges(ctx context.Context) error {
 _, err := e.db.ExecContext(ctx, `DELETE FROM graph_edges`)
 if err != nil {
 return ererr.Database("erstore.TruncateEdges", err)
 }
 return nil
}
