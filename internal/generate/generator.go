package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Input is everything a generation run works from.
type Input struct {
	UserInput            string
	FrameworkID          string
	ClarificationAnswers map[string]string
	AttachmentContent    string
}

// Generator turns a raw user request into an optimized prompt. The
// production implementation talks to an LLM provider; LocalGenerator
// covers development and tests without one.
type Generator interface {
	Generate(ctx context.Context, in Input) (string, error)
}

// LocalGenerator produces a deterministic structured prompt from the
// input alone. Useful wherever a network-backed generator is not
// available or not wanted.
type LocalGenerator struct{}

func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{}
}

var _ Generator = (*LocalGenerator)(nil)

func (g *LocalGenerator) Generate(_ context.Context, in Input) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# 优化后的提示词（%s）\n\n", in.FrameworkID)
	b.WriteString("## 原始需求\n\n")
	b.WriteString(in.UserInput)
	b.WriteString("\n")

	if len(in.ClarificationAnswers) > 0 {
		b.WriteString("\n## 补充信息\n\n")
		keys := make([]string, 0, len(in.ClarificationAnswers))
		for k := range in.ClarificationAnswers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, in.ClarificationAnswers[k])
		}
	}

	if in.AttachmentContent != "" {
		b.WriteString("\n## 参考附件\n\n")
		b.WriteString(in.AttachmentContent)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n## 要求\n\n请严格按照 %s 框架的结构完成任务，输出使用 Markdown 格式。\n", in.FrameworkID)
	return b.String(), nil
}
