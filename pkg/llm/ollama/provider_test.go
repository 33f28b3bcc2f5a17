package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(baseURL string) *Provider {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Second
	cfg.GenerateTimeout = 5 * time.Second
	return NewProviderWithConfig(cfg)
}

func TestEmbedSingle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req["model"])
		assert.Equal(t, "hello", req["prompt"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	got, err := p.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
}

func TestEmbed_逐个请求保持顺序(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt := req["prompt"].(string)
		prompts = append(prompts, prompt)

		// 每个文本返回不同向量便于断言顺序
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{float32(len(prompt))},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	got, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"a", "bb", "ccc"}, prompts)
	assert.Equal(t, []float32{1}, got[0])
	assert.Equal(t, []float32{2}, got[1])
	assert.Equal(t, []float32{3}, got[2])
}

func TestEmbedSingle_服务端错误(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.EmbedSingle(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, false, req["stream"])
		assert.Equal(t, "what is the capital?", req["prompt"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": "Paris is the capital.",
			"done":     true,
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	got, err := p.Generate(context.Background(), "what is the capital?", "")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", got)
}

func TestGenerateStream(t *testing.T) {
	fragments := []string{"Par", "is ", "is ", "the capital."}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, f := range fragments {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", f)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	stream, err := p.GenerateStream(context.Background(), "question", "")
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, fragment)
	}

	assert.Equal(t, fragments, got)

	// 流结束后继续 Recv 仍返回 io.EOF
	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestGenerateStream_提前关闭(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			fmt.Fprintln(w, `{"response":"x","done":false}`)
			flusher.Flush()
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	stream, err := p.GenerateStream(context.Background(), "question", "")
	require.NoError(t, err)

	_, err = stream.Recv()
	require.NoError(t, err)

	// 只读一个片段就关闭，连接应被释放
	require.NoError(t, stream.Close())

	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	assert.NoError(t, p.Ping(context.Background()))
}

func TestPing_服务不可用(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	assert.Error(t, p.Ping(context.Background()))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3.2"},
				{"name": "nomic-embed-text"},
			},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2", "nomic-embed-text"}, models)
}
