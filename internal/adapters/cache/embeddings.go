package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
)

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embeddings memoises an Embedder. Only texts missing from the cache are
// sent, in one batch.
type Embeddings struct {
	next  Embedder
	store *Store
	model string
}

// NewEmbeddings wraps next with a cache keyed by the given model name.
func NewEmbeddings(next Embedder, store *Store, model string) *Embeddings {
	return &Embeddings{next: next, store: store, model: model}
}

// Embed implements Embedder.
func (e *Embeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	missingAt := map[string][]int{}

	for i, t := range texts {
		if idx, seen := missingAt[t]; seen {
			missingAt[t] = append(idx, i)
			continue
		}
		v, ok, err := e.load(ctx, t)
		if err != nil {
			e.store.logger.Warn(ctx, "embedding cache read failed", logger.Error(err))
		}
		if ok {
			out[i] = v
			metrics.RecordCacheHit("embeddings")
			continue
		}
		metrics.RecordCacheMiss("embeddings")
		missing = append(missing, t)
		missingAt[t] = []int{i}
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: %d for %d texts", ErrEmbedCount, len(vectors), len(missing))
	}
	for j, t := range missing {
		for _, i := range missingAt[t] {
			out[i] = vectors[j]
		}
		if err := e.save(ctx, t, vectors[j]); err != nil {
			e.store.logger.Warn(ctx, "embedding cache write failed", logger.Error(err))
		}
	}
	return out, nil
}

func (e *Embeddings) load(ctx context.Context, text string) ([]float32, bool, error) {
	var blob []byte
	err := e.store.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE text_hash = ? AND model = ?`, hashText(text), e.model,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := decodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (e *Embeddings) save(ctx context.Context, text string, v []float32) error {
	_, err := e.store.db.ExecContext(ctx, `
	INSERT INTO embeddings (text_hash, model, vector, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(text_hash, model) DO UPDATE SET
		vector = excluded.vector,
		created_at = excluded.created_at
	`, hashText(text), e.model, encodeVector(v), e.store.now().Unix())
	return err
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptVector, len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
