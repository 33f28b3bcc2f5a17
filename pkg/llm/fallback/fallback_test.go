package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
)

// stubEmbedder 可控的 Embedding 供应商桩。
type stubEmbedder struct {
	embedding []float32
	err       error
}

var _ llm.EmbeddingProvider = (*stubEmbedder)(nil)

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = s.embedding
	}
	return result, nil
}

func (s *stubEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.embedding, nil
}

func (s *stubEmbedder) Name() string { return "stub" }

func TestEmbedSingle_主供应商正常(t *testing.T) {
	primary := &stubEmbedder{embedding: []float32{0.1, 0.2, 0.3}}
	e := New(primary, 384)

	got, err := e.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
}

func TestEmbedSingle_降级为哈希向量(t *testing.T) {
	primary := &stubEmbedder{err: errors.New("connection refused")}
	e := New(primary, 384)

	got, err := e.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err, "降级不应向调用方返回错误")
	assert.Len(t, got, 384)

	// 同一文本必须产生同一向量
	again, err := e.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	// 不同文本产生不同向量
	other, err := e.EmbedSingle(context.Background(), "world")
	require.NoError(t, err)
	assert.NotEqual(t, got, other)
}

func TestEmbed_批量降级保持顺序(t *testing.T) {
	primary := &stubEmbedder{err: errors.New("unavailable")}
	e := New(primary, 384)

	texts := []string{"a", "b", "c"}
	got, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, text := range texts {
		assert.Equal(t, HashEmbedding(text, 384), got[i])
	}
}

func TestEmbed_空输入(t *testing.T) {
	e := New(&stubEmbedder{}, 384)

	got, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHashEmbedding(t *testing.T) {
	got := HashEmbedding("hello", 384)
	require.Len(t, got, 384)

	// MD5 摘要为 16 字节，每个值在 [0, 1] 区间
	for i := 0; i < 16; i++ {
		assert.GreaterOrEqual(t, got[i], float32(0))
		assert.LessOrEqual(t, got[i], float32(1))
	}

	// 其余维度补零
	for i := 16; i < 384; i++ {
		assert.Zero(t, got[i])
	}
}

func TestName(t *testing.T) {
	e := New(&stubEmbedder{}, 384)
	assert.Equal(t, "stub+fallback", e.Name())
}
