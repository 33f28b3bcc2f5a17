package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/llm"
)

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// SystemPrompt 提示词模板，包含 {{context}} 和 {{question}} 占位符。
	SystemPrompt string
}

// Generator 负责答案生成。
type Generator struct {
	chatProvider llm.ChatProvider
	config       *GeneratorConfig
}

// NewGenerator 创建生成器实例。
func NewGenerator(chatProvider llm.ChatProvider, config *GeneratorConfig) *Generator {
	return &Generator{
		chatProvider: chatProvider,
		config:       config,
	}
}

// BuildPrompt 将检索结果拼装进提示词模板。
// 检索为空时 {{context}} 替换为空串，仍交由模型作答。
func (g *Generator) BuildPrompt(question string, results []*model.SearchResult) string {
	var contextBuilder strings.Builder
	for i, result := range results {
		if i > 0 {
			contextBuilder.WriteString("\n\n")
		}
		contextBuilder.WriteString(result.Content)
	}

	prompt := strings.ReplaceAll(g.config.SystemPrompt, "{{context}}", contextBuilder.String())
	return strings.ReplaceAll(prompt, "{{question}}", question)
}

// GenerateAnswer 根据检索结果生成答案。
func (g *Generator) GenerateAnswer(ctx context.Context, question string, results []*model.SearchResult) (string, error) {
	if ctx.Err() != nil {
		return "", fmt.Errorf("context cancelled before generation: %w", ctx.Err())
	}

	prompt := g.BuildPrompt(question, results)

	answer, err := g.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		logger.Errorw("答案生成失败", "error", err.Error())
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	logger.Infow("答案生成完成", "answer_length", len(answer), "context_chunks", len(results))
	return answer, nil
}

// GenerateAnswerStream 以流式方式生成答案。
// 调用方必须消费到 io.EOF 或调用 Close 释放底层连接。
func (g *Generator) GenerateAnswerStream(ctx context.Context, question string, results []*model.SearchResult) (llm.StreamReader, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled before generation: %w", ctx.Err())
	}

	prompt := g.BuildPrompt(question, results)

	stream, err := g.chatProvider.GenerateStream(ctx, prompt, "")
	if err != nil {
		logger.Errorw("流式生成启动失败", "error", err.Error())
		return nil, fmt.Errorf("failed to start generation stream: %w", err)
	}
	return stream, nil
}
