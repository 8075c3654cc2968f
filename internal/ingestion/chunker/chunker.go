package chunker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-graphload/internal/domain/ingest"
	"github.com/yungbote/neurobridge-graphload/internal/platform/embedding"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("graphload/chunk"))

// ChunkID is stable for a (content id, order) pair so re-runs MERGE onto the
// same chunk nodes.
func ChunkID(contentID string, order int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(contentID+"\x00"+strconv.Itoa(order))).String()
}

type Config struct {
	Size    int
	Overlap int
	// Concurrency bounds in-flight embedding calls within one batch.
	Concurrency int
	// Dimension is the vector length the model stores; 0 accepts any length.
	Dimension int
	// MaxBatchEmbedDuration is the operator ceiling for embedding one batch.
	MaxBatchEmbedDuration time.Duration
}

func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunker: chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunker: chunk overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunker: chunk overlap %d must be less than chunk size %d", c.Overlap, c.Size)
	}
	return nil
}

// Generator splits long text fields into overlapping chunks and embeds them.
type Generator struct {
	cfg      Config
	embedder embedding.Embedder
	log      *logger.Logger
	disabled atomic.Bool
}

func New(cfg Config, e embedding.Embedder, log *logger.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if e == nil {
		e = embedding.Unavailable{}
	}
	if log == nil {
		log = logger.Nop()
	}
	g := &Generator{cfg: cfg, embedder: e, log: log.With("component", "Chunker")}
	if embedding.IsUnavailable(e) {
		g.disabled.Store(true)
	}
	return g, nil
}

// EmbeddingsEnabled reports whether the provider is still in use.
func (g *Generator) EmbeddingsEnabled() bool { return !g.disabled.Load() }

// Split cuts text into windows of Size runes advancing by Size-Overlap.
// Orders start at startOrder. Empty or whitespace-only text yields nothing.
func (g *Generator) Split(contentID, field, text string, startOrder int) []ingest.ChunkRecord {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	step := g.cfg.Size - g.cfg.Overlap
	var out []ingest.ChunkRecord
	order := startOrder
	for start := 0; start < len(runes); start += step {
		end := start + g.cfg.Size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, ingest.ChunkRecord{
			ChunkID:       ChunkID(contentID, order),
			ChunkText:     string(runes[start:end]),
			ChunkPosition: start,
			ChunkOrder:    order,
			ContentID:     contentID,
			Field:         field,
		})
		order++
		if end == len(runes) {
			break
		}
	}
	return out
}

// ChunkRecord splits every field of one record in field order, numbering
// chunks continuously across fields.
func (g *Generator) ChunkRecord(contentID string, rec ingest.SourceRecord, fields []string) []ingest.ChunkRecord {
	var out []ingest.ChunkRecord
	for _, f := range fields {
		text, ok := textValue(rec[f])
		if !ok {
			continue
		}
		out = append(out, g.Split(contentID, f, text, len(out))...)
	}
	return out
}

type Result struct {
	Chunks   []ingest.ChunkRecord
	Embedded int
	Skipped  int
}

// Generate chunks and embeds one batch. contentID maps a record to its owning
// node id; records it rejects produce no chunks.
func (g *Generator) Generate(ctx context.Context, records []ingest.SourceRecord, fields []string, contentID func(ingest.SourceRecord) (string, bool)) Result {
	var res Result
	for _, rec := range records {
		id, ok := contentID(rec)
		if !ok {
			continue
		}
		res.Chunks = append(res.Chunks, g.ChunkRecord(id, rec, fields)...)
	}
	res.Embedded, res.Skipped = g.Embed(ctx, res.Chunks)
	return res
}

// Embed fills Embedding on each chunk in place. A failed or wrong-sized
// embedding leaves that chunk without one; ErrUnavailable turns embedding off
// for the rest of the run.
func (g *Generator) Embed(ctx context.Context, chunks []ingest.ChunkRecord) (embedded, skipped int) {
	if len(chunks) == 0 {
		return 0, 0
	}
	if g.disabled.Load() {
		return 0, len(chunks)
	}

	start := time.Now()
	var ok, bad int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i := range chunks {
		i := i
		eg.Go(func() error {
			if g.disabled.Load() {
				atomic.AddInt64(&bad, 1)
				return nil
			}
			vec, err := g.embedder.Embed(egCtx, chunks[i].ChunkText)
			if err != nil {
				atomic.AddInt64(&bad, 1)
				if errors.Is(err, embedding.ErrUnavailable) {
					if g.disabled.CompareAndSwap(false, true) {
						g.log.Warn("embedding provider unavailable; continuing without embeddings", "error", err)
					}
					return nil
				}
				g.log.Warn("embedding failed", "chunk_id", chunks[i].ChunkID, "error", err)
				return nil
			}
			if g.cfg.Dimension > 0 && len(vec) != g.cfg.Dimension {
				atomic.AddInt64(&bad, 1)
				g.log.Warn("embedding dimension mismatch", "chunk_id", chunks[i].ChunkID, "want", g.cfg.Dimension, "got", len(vec))
				return nil
			}
			chunks[i].Embedding = vec
			atomic.AddInt64(&ok, 1)
			return nil
		})
	}
	_ = eg.Wait()

	if ceiling := g.cfg.MaxBatchEmbedDuration; ceiling > 0 {
		if took := time.Since(start); took > ceiling {
			g.log.Warn("batch embedding exceeded ceiling; lower the batch size",
				"took", took.String(), "ceiling", ceiling.String(), "chunks", len(chunks))
		}
	}
	return int(ok), int(bad)
}

func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(v), true
	}
}
