package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/promptforge/promptforge/internal/quota"
	"github.com/promptforge/promptforge/internal/versions"
)

// Params drives one generation run. RequestID identifies the logical
// request across client retries: retried calls reuse the id so the
// ledger can bound how many attempts one request may consume.
type Params struct {
	UserID               string
	Tier                 quota.Tier
	TzOffsetMin          int
	RequestID            string
	Input                string
	FrameworkID          string
	ClarificationAnswers map[string]string
	AttachmentContent    string
}

// Result is a successful run: the generated prompt plus the history
// snapshot it was recorded under.
type Result struct {
	Output        string
	FrameworkUsed string
	VersionID     string
	VersionNumber string
}

// Service orchestrates a generation: reserve a quota unit, run the
// generator, record the result in version history, then commit. Any
// failure after the reservation rolls the unit back so a failed run
// costs the user nothing.
type Service struct {
	ledger   *quota.Ledger
	versions *versions.Service
	gen      Generator
}

func NewService(ledger *quota.Ledger, vs *versions.Service, gen Generator) *Service {
	return &Service{ledger: ledger, versions: vs, gen: gen}
}

const topicRunes = 20

// topicFromInput derives the history topic from the raw input: its
// first 20 characters, with an ellipsis when truncated.
func topicFromInput(input string) string {
	r := []rune(input)
	if len(r) <= topicRunes {
		return input
	}
	return string(r[:topicRunes]) + "..."
}

// Generate runs the full flow. Denials are reported through the
// Denial value and are not errors; the error return covers generator
// and storage failures.
func (s *Service) Generate(ctx context.Context, p Params) (*Result, quota.Denial, error) {
	res, denial, err := s.ledger.Reserve(ctx, p.UserID, p.Tier, p.TzOffsetMin, p.RequestID)
	if err != nil {
		return nil, quota.DenialNone, fmt.Errorf("reserving quota: %w", err)
	}
	if denial != quota.DenialNone {
		return nil, denial, nil
	}

	output, err := s.gen.Generate(ctx, Input{
		UserInput:            p.Input,
		FrameworkID:          p.FrameworkID,
		ClarificationAnswers: p.ClarificationAnswers,
		AttachmentContent:    p.AttachmentContent,
	})
	if err != nil {
		s.refund(ctx, res, p.UserID)
		return nil, quota.DenialNone, fmt.Errorf("generating prompt: %w", err)
	}

	topic := topicFromInput(p.Input)
	number, err := s.versions.NextVersionNumber(ctx, p.UserID, topic)
	if err != nil {
		// Numbering is best effort; a scan failure must not waste the
		// generated output.
		slog.Warn("generate: version numbering failed, using default", "user_id", p.UserID, "error", err)
		number = "1.0"
	}

	v, err := s.versions.Save(ctx, versions.SaveParams{
		UserID:        p.UserID,
		Content:       output,
		Type:          versions.TypeOptimize,
		VersionNumber: number,
		Description:   "初始生成版本",
		Topic:         topic,
		FrameworkID:   p.FrameworkID,
		FrameworkName: p.FrameworkID,
		OriginalInput: p.Input,
	})
	if err != nil {
		s.refund(ctx, res, p.UserID)
		return nil, quota.DenialNone, fmt.Errorf("recording generated version: %w", err)
	}

	res.Commit()
	slog.Info("generate: completed", "user_id", p.UserID, "framework", p.FrameworkID, "version_id", v.ID)
	return &Result{
		Output:        output,
		FrameworkUsed: p.FrameworkID,
		VersionID:     v.ID,
		VersionNumber: v.VersionNumber,
	}, quota.DenialNone, nil
}

func (s *Service) refund(ctx context.Context, res *quota.Reservation, userID string) {
	if err := res.Rollback(ctx); err != nil {
		slog.Error("generate: quota rollback failed", "user_id", userID, "error", err)
	}
}
