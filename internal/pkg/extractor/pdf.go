package extractor

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF 基于 ledongthuc/pdf 的 PDF 文本提取器。
type PDF struct{}

var _ Extractor = (*PDF)(nil)

// NewPDF 创建 PDF 提取器。
func NewPDF() *PDF {
	return &PDF{}
}

// Extract 提取 PDF 的全部文本。
// 空文档或纯空白文档返回 ExtractionError。
func (p *PDF) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "无法打开文件", Err: err}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "无法读取文件信息", Err: err}
	}

	// 读取全部内容到内存，避免文件句柄问题
	data, err := io.ReadAll(file)
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "读取文件失败", Err: err}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), stat.Size())
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "解析 PDF 失败", Err: err}
	}

	pageCount := reader.NumPage()
	var content strings.Builder

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// 跳过无法解析的页面
			continue
		}

		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(strings.TrimSpace(text))
	}

	result := content.String()
	if strings.TrimSpace(result) == "" {
		return "", &ExtractionError{Path: path, Reason: "文档不包含可提取的文本"}
	}

	return result, nil
}
