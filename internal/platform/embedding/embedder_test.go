package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestHash_DeterministicAndNormalized(t *testing.T) {
	h := NewHash(16)
	a, err := h.Embed(context.Background(), "Graph loaders love Neo4j")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := h.Embed(context.Background(), "graph LOADERS love neo4j!")
	if len(a) != 16 {
		t.Fatalf("dim: want=16 got=%d", len(a))
	}
	var norm float32
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("tokenization should ignore case and punctuation at %d: %v vs %v", i, a[i], b[i])
		}
		norm += a[i] * a[i]
	}
	if norm < 0.999 || norm > 1.001 {
		t.Fatalf("norm: want=1 got=%v", norm)
	}
}

func TestNew_MissingKeyDegradesToUnavailable(t *testing.T) {
	e, closeFn, err := New(context.Background(), Config{Provider: ProviderOpenAI}, nil)
	defer closeFn()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !IsUnavailable(e) {
		t.Fatalf("want Unavailable, got %T", e)
	}
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, _, err := New(context.Background(), Config{Provider: "word2vec"}, nil); err == nil {
		t.Fatalf("want error for unknown provider")
	}
}

func TestOpenAI_EmbedRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header: got=%q", got)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req embeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 3 {
			t.Errorf("dimensions: want=3 got=%d", req.Dimensions)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAI(Config{OpenAIAPIKey: "sk-test", OpenAIBaseURL: srv.URL, Dimension: 3, OpenAIMaxRetries: 2}, nil)
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != float32(0.3) {
		t.Fatalf("vec: got=%v", vec)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestOpenAI_AuthFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	e := NewOpenAI(Config{OpenAIAPIKey: "sk-bad", OpenAIBaseURL: srv.URL, OpenAIMaxRetries: 3}, nil)
	if _, err := e.Embed(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

type countingEmbedder struct {
	calls int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&c.calls, 1)
	return []float32{float32(len(text))}, nil
}
func (c *countingEmbedder) Dimension() int    { return 1 }
func (c *countingEmbedder) ModelName() string { return "counting" }

func TestWithLRU_MemoizesAndCopies(t *testing.T) {
	base := &countingEmbedder{}
	e := WithLRU(base, 8, time.Minute)

	first, _ := e.Embed(context.Background(), "abc")
	first[0] = 99
	second, _ := e.Embed(context.Background(), "abc")
	if second[0] != 3 {
		t.Fatalf("cached vector must not alias caller memory: got=%v", second)
	}
	if base.calls != 1 {
		t.Fatalf("provider calls: want=1 got=%d", base.calls)
	}
	if WithLRU(base, 0, time.Minute) != Embedder(base) {
		t.Fatalf("zero size should return next unchanged")
	}
}

func TestWithRedis_SharesEmbeddings(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis cache tests")
	}
	base := &countingEmbedder{}
	r, err := WithRedis(context.Background(), base, addr, time.Minute, nil)
	if err != nil {
		t.Fatalf("WithRedis: %v", err)
	}
	defer r.Close()

	text := "redis-cache-" + time.Now().Format(time.RFC3339Nano)
	if _, err := r.Embed(context.Background(), text); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	vec, err := r.Embed(context.Background(), text)
	if err != nil || len(vec) != 1 {
		t.Fatalf("cached Embed: vec=%v err=%v", vec, err)
	}
	if base.calls != 1 {
		t.Fatalf("provider calls: want=1 got=%d", base.calls)
	}
}
