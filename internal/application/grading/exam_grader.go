package grading

import (
	"context"
	"errors"
	"fmt"

	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/gemini"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXAM GRADER
// Exam answers are short and graded against a concrete question, so a
// single pinned model is used instead of the fallback chain.
// ══════════════════════════════════════════════════════════════════════════════

const examGradingSystemPrompt = `Sen universitet imtihon tekshiruvchisisan. Talabaning javobini savolga
nisbatan baholaysan: 0 dan 100 gacha baho va o'zbek tilida qisqa izoh.
Javobni faqat quyidagi JSON ko'rinishida qaytar:
{"grade": <0-100>, "feedback": "<izoh>"}`

// PinnedGenerator targets one specific model.
type PinnedGenerator interface {
	GenerateWithModel(ctx context.Context, model string, params gemini.GenerateParams) (string, error)
}

// ExamGrader grades exam answers with a pinned model.
type ExamGrader struct {
	generator PinnedGenerator
	model     string
	log       *logger.Logger
}

// NewExamGrader creates an ExamGrader.
func NewExamGrader(generator PinnedGenerator, model string, log *logger.Logger) *ExamGrader {
	if log == nil {
		log = logger.Default()
	}
	return &ExamGrader{generator: generator, model: model, log: log}
}

// Grade evaluates one exam answer. Like the essay grader it degrades to
// the zero-grade fallback when the model is unavailable.
func (g *ExamGrader) Grade(ctx context.Context, question, answer string) (*GradeResult, error) {
	prompt := fmt.Sprintf("Savol: %s\n\nTalabaning javobi:\n%s", question, answer)

	raw, err := g.generator.GenerateWithModel(ctx, g.model, gemini.GenerateParams{
		SystemPrompt: examGradingSystemPrompt,
		Prompt:       prompt,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		g.log.Error("exam grading unavailable", logger.F("model", g.model), logger.Err(err))
		return &GradeResult{Grade: 0, Feedback: gradingUnavailableNotice, Available: false}, nil
	}

	result, err := parseGradeAnswer(raw)
	if err != nil {
		g.log.Error("exam grading answer unparseable", logger.F("model", g.model), logger.Err(err))
		return &GradeResult{Grade: 0, Feedback: gradingUnavailableNotice, Available: false}, nil
	}

	return result, nil
}
