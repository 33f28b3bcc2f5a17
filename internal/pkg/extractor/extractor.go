// Package extractor 提供文档文本提取。
package extractor

import (
	"context"
	"fmt"
)

// Extractor 从文档文件中提取纯文本。
type Extractor interface {
	// Extract 提取文件的全部文本内容。
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractionError 表示文档无法提取出可用文本。
// 摄取流程收到此错误时不会写入任何索引条目。
type ExtractionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("提取 %s 失败: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("提取 %s 失败: %s", e.Path, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsExtractionError 判断错误是否为提取错误。
func IsExtractionError(err error) bool {
	_, ok := err.(*ExtractionError)
	return ok
}
