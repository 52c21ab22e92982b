// Package grading implements AI-assisted grading of essays and exam
// answers via the Gemini API.
package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/gemini"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESSAY GRADER
// Essays are graded on a 0-100 scale with written feedback. The model
// answers with a JSON object; when the whole model chain is down the
// submission still lands with grade 0 and a localized notice so the
// student is never blocked on the AI.
// ══════════════════════════════════════════════════════════════════════════════

// gradingUnavailableNotice is stored as feedback when no model answered.
const gradingUnavailableNotice = "AI baholash hozircha mavjud emas. Ishingiz saqlandi, keyinroq qayta baholanadi."

const essayGradingSystemPrompt = `Sen universitet o'qituvchisining yordamchisisan. Talabaning essesini tekshirib,
0 dan 100 gacha baho qo'yasan va o'zbek tilida qisqa izoh yozasan.
Baholashda mavzuga moslik, fikr izchilligi, dalillar va til savodxonligini hisobga ol.
Javobni faqat quyidagi JSON ko'rinishida qaytar:
{"grade": <0-100>, "feedback": "<izoh>"}`

// TextGenerator is the slice of the Gemini client the graders need.
type TextGenerator interface {
	Generate(ctx context.Context, params gemini.GenerateParams) (string, error)
}

// GradeResult is the parsed model verdict.
type GradeResult struct {
	Grade    int    `json:"grade"`
	Feedback string `json:"feedback"`

	// Available is false when the model chain was down and the fallback
	// grade was used.
	Available bool `json:"-"`
}

// EssayGrader grades essay submissions.
type EssayGrader struct {
	generator TextGenerator
	log       *logger.Logger
}

// NewEssayGrader creates an EssayGrader.
func NewEssayGrader(generator TextGenerator, log *logger.Logger) *EssayGrader {
	if log == nil {
		log = logger.Default()
	}
	return &EssayGrader{generator: generator, log: log}
}

// Grade asks the model to grade the submission content against the topic.
// It never returns an error for model unavailability: the zero-grade
// fallback keeps the submission flow moving.
func (g *EssayGrader) Grade(ctx context.Context, topic *education.EssayTopic, content string) (*GradeResult, error) {
	prompt := buildEssayPrompt(topic, content)

	answer, err := g.generator.Generate(ctx, gemini.GenerateParams{
		SystemPrompt: essayGradingSystemPrompt,
		Prompt:       prompt,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		g.log.Error("essay grading unavailable",
			logger.TopicTitle(topic.Title), logger.Err(err))
		return &GradeResult{
			Grade:     0,
			Feedback:  gradingUnavailableNotice,
			Available: false,
		}, nil
	}

	result, err := parseGradeAnswer(answer)
	if err != nil {
		g.log.Error("essay grading answer unparseable",
			logger.TopicTitle(topic.Title), logger.Err(err))
		return &GradeResult{
			Grade:     0,
			Feedback:  gradingUnavailableNotice,
			Available: false,
		}, nil
	}

	return result, nil
}

// buildEssayPrompt assembles the grading request.
func buildEssayPrompt(topic *education.EssayTopic, content string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mavzu: %s\n", topic.Title)
	if topic.Description != "" {
		fmt.Fprintf(&sb, "Mavzu tavsifi: %s\n", topic.Description)
	}
	sb.WriteString("\nTalabaning essesi:\n")
	sb.WriteString(content)
	return sb.String()
}

// parseGradeAnswer tolerates fences and prose around the JSON object
// and clamps the grade into the 0-100 range.
func parseGradeAnswer(answer string) (*GradeResult, error) {
	var result GradeResult
	if err := gemini.ExtractJSON(answer, &result); err != nil {
		return nil, err
	}

	if result.Grade < 0 {
		result.Grade = 0
	}
	if result.Grade > 100 {
		result.Grade = 100
	}
	result.Available = true

	return &result, nil
}
