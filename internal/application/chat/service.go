// Package chat implements the AI study assistants of the portal. Three
// agents share one Gemini fallback chain but differ in system prompt
// and in how much of the student's own records they see.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/gemini"
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
	"github.com/hemis-hub/hemis-student-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGENTS
// ══════════════════════════════════════════════════════════════════════════════

// Agent selects the assistant persona.
type Agent string

const (
	// AgentRecords answers questions about the student's own records:
	// grades, attendance, deadlines.
	AgentRecords Agent = "records"

	// AgentStudy helps with course material and exam preparation.
	AgentStudy Agent = "study"

	// AgentGeneral is the catch-all university assistant.
	AgentGeneral Agent = "general"
)

// IsValid reports whether the agent name is known.
func (a Agent) IsValid() bool {
	switch a {
	case AgentRecords, AgentStudy, AgentGeneral:
		return true
	default:
		return false
	}
}

// ErrUnknownAgent is returned for an unrecognized agent name.
var ErrUnknownAgent = fmt.Errorf("unknown chat agent")

const (
	recordsSystemPrompt = `Sen talabaning shaxsiy akademik yordamchisisan. Quyida uning haqiqiy
o'quv ma'lumotlari berilgan. Savollarga faqat shu ma'lumotlarga tayanib,
o'zbek tilida qisqa va aniq javob ber. Ma'lumotlarda yo'q narsani o'ylab topma.`

	studySystemPrompt = `Sen universitet talabalariga fanlarni o'zlashtirishda yordam beradigan
o'qituvchisan. Tushunchalarni sodda tilda, misollar bilan tushuntir.
Javobni o'zbek tilida ber, agar talaba boshqa tilda so'rasa, o'sha tilda javob ber.`

	generalSystemPrompt = `Sen universitet talabalari uchun umumiy yordamchisan. O'qish, universitet
hayoti va tashkiliy savollarga o'zbek tilida do'stona javob ber.`
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// TextGenerator is the slice of the Gemini client the service needs.
type TextGenerator interface {
	Generate(ctx context.Context, params gemini.GenerateParams) (string, error)
}

// Service routes questions to the right agent.
type Service struct {
	generator TextGenerator
	education education.Repository
	log       *logger.Logger
}

// NewService creates a chat Service.
func NewService(generator TextGenerator, educationRepo education.Repository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{generator: generator, education: educationRepo, log: log}
}

// Ask sends the question to the chosen agent. The records agent gets
// the student's current records inlined into the prompt; the other two
// see only the profile header.
func (s *Service) Ask(ctx context.Context, u *user.User, agent Agent, question string) (string, error) {
	if !agent.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAgent, agent)
	}

	systemPrompt, err := s.buildSystemPrompt(ctx, u, agent)
	if err != nil {
		return "", err
	}

	answer, err := s.generator.Generate(ctx, gemini.GenerateParams{
		SystemPrompt: systemPrompt,
		Prompt:       question,
	})
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}

	s.log.Info("chat answered",
		logger.UserID(u.ID),
		logger.F("agent", string(agent)),
		logger.F("question_len", len(question)),
	)

	return answer, nil
}

func (s *Service) buildSystemPrompt(ctx context.Context, u *user.User, agent Agent) (string, error) {
	switch agent {
	case AgentRecords:
		recordsCtx, err := s.buildRecordsContext(ctx, u)
		if err != nil {
			return "", err
		}
		return recordsSystemPrompt + "\n\n" + recordsCtx, nil
	case AgentStudy:
		return studySystemPrompt + "\n\n" + profileHeader(u), nil
	default:
		return generalSystemPrompt + "\n\n" + profileHeader(u), nil
	}
}

// profileHeader is the short student card shared by all agents.
func profileHeader(u *user.User) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Talaba: %s", u.FullName)
	if u.GroupName != "" {
		fmt.Fprintf(&sb, ", guruh %s", u.GroupName)
	}
	if u.Specialty != "" {
		fmt.Fprintf(&sb, ", yo'nalish: %s", u.Specialty)
	}
	return sb.String()
}

// buildRecordsContext inlines the student's live records for the
// records agent: absence totals, tasks with deadlines, recent grades.
func (s *Service) buildRecordsContext(ctx context.Context, u *user.User) (string, error) {
	semester, err := s.education.GetCurrentSemester(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve current semester: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(profileHeader(u))
	fmt.Fprintf(&sb, "\nJoriy semestr: %s\n", semester.Name)

	absences, err := s.education.AbsenceBySubject(ctx, u.ID, semester.ID)
	if err != nil {
		return "", fmt.Errorf("load absences: %w", err)
	}
	if len(absences) > 0 {
		sb.WriteString("\nDavomat (qoldirilgan soatlar):\n")
		for _, a := range absences {
			fmt.Fprintf(&sb, "- %s: %d soat", a.SubjectName, a.Hours)
			if a.ExcusedHours > 0 {
				fmt.Fprintf(&sb, " (%d soati sababli)", a.ExcusedHours)
			}
			sb.WriteString("\n")
		}
	}

	tasks, err := s.education.TasksForUser(ctx, u.ID, semester.ID)
	if err != nil {
		return "", fmt.Errorf("load tasks: %w", err)
	}
	if len(tasks) > 0 {
		sb.WriteString("\nTopshiriqlar:\n")
		for _, t := range tasks {
			fmt.Fprintf(&sb, "- %s (%s)", t.Name, t.SubjectName)
			if t.HasDeadline {
				fmt.Fprintf(&sb, ", muddati %s", timeutil.FormatTashkent(t.Deadline, timeutil.FormatDateTime))
			}
			if t.MaxGrade > 0 {
				fmt.Fprintf(&sb, ", baho %.0f/%.0f", t.Grade, t.MaxGrade)
			}
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}
