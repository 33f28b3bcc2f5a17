package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_文件不存在(t *testing.T) {
	p := NewPDF()
	_, err := p.Extract(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}

func TestExtract_非PDF文件(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-pdf.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a pdf"), 0o644))

	p := NewPDF()
	_, err := p.Extract(context.Background(), path)
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}

func TestExtract_上下文已取消(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPDF()
	_, err := p.Extract(ctx, "whatever.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractionError(t *testing.T) {
	inner := errors.New("boom")
	err := &ExtractionError{Path: "a.pdf", Reason: "解析失败", Err: inner}

	assert.Contains(t, err.Error(), "a.pdf")
	assert.Contains(t, err.Error(), "解析失败")
	assert.ErrorIs(t, err, inner)

	noWrap := &ExtractionError{Path: "b.pdf", Reason: "空文档"}
	assert.Contains(t, noWrap.Error(), "空文档")
	assert.Nil(t, noWrap.Unwrap())
}

func TestIsExtractionError(t *testing.T) {
	assert.True(t, IsExtractionError(&ExtractionError{Path: "x"}))
	assert.False(t, IsExtractionError(errors.New("other")))
	assert.False(t, IsExtractionError(nil))
}
