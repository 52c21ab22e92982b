package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemis-hub/hemis-student-hub/internal/domain/education"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/gemini"
)

type fakeGenerator struct {
	answer     string
	err        error
	lastParams gemini.GenerateParams
}

func (f *fakeGenerator) Generate(_ context.Context, params gemini.GenerateParams) (string, error) {
	f.lastParams = params
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeEducation struct {
	education.Repository

	semester education.Semester
	absences []*education.SubjectAbsence
	tasks    []*education.Task
}

func (f *fakeEducation) GetCurrentSemester(_ context.Context) (*education.Semester, error) {
	s := f.semester
	return &s, nil
}

func (f *fakeEducation) AbsenceBySubject(_ context.Context, _ string, _ int64) ([]*education.SubjectAbsence, error) {
	return f.absences, nil
}

func (f *fakeEducation) TasksForUser(_ context.Context, _ string, _ int64) ([]*education.Task, error) {
	return f.tasks, nil
}

func testStudent() *user.User {
	return &user.User{
		ID:        "u-1",
		FullName:  "Aliyev Vali",
		GroupName: "KI-21-03",
		Specialty: "Kompyuter injiniringi",
	}
}

func newTestService(gen *fakeGenerator) *Service {
	repo := &fakeEducation{
		semester: education.Semester{ID: 7, Code: "12", Name: "6-semestr", Current: true},
		absences: []*education.SubjectAbsence{
			{SubjectID: 1, SubjectName: "Matematika", Hours: 6, ExcusedHours: 2},
		},
		tasks: []*education.Task{
			{
				Name:        "Yakuniy insho",
				SubjectName: "Falsafa",
				Deadline:    time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC),
				HasDeadline: true,
				Grade:       0,
				MaxGrade:    50,
			},
		},
	}
	return NewService(gen, repo, nil)
}

func TestService_RecordsAgentSeesAcademicContext(t *testing.T) {
	gen := &fakeGenerator{answer: "Matematikadan 6 soat qoldirgansiz."}
	svc := newTestService(gen)

	answer, err := svc.Ask(context.Background(), testStudent(), AgentRecords, "Davomatim qanday?")
	require.NoError(t, err)
	assert.Equal(t, "Matematikadan 6 soat qoldirgansiz.", answer)

	assert.Contains(t, gen.lastParams.SystemPrompt, "Aliyev Vali")
	assert.Contains(t, gen.lastParams.SystemPrompt, "Matematika: 6 soat")
	assert.Contains(t, gen.lastParams.SystemPrompt, "2 soati sababli")
	assert.Contains(t, gen.lastParams.SystemPrompt, "Yakuniy insho")
	assert.Equal(t, "Davomatim qanday?", gen.lastParams.Prompt)
}

func TestService_StudyAgentGetsOnlyProfile(t *testing.T) {
	gen := &fakeGenerator{answer: "Integral - bu..."}
	svc := newTestService(gen)

	_, err := svc.Ask(context.Background(), testStudent(), AgentStudy, "Integral nima?")
	require.NoError(t, err)

	assert.Contains(t, gen.lastParams.SystemPrompt, "Aliyev Vali")
	assert.NotContains(t, gen.lastParams.SystemPrompt, "Matematika: 6 soat")
}

func TestService_GeneralAgent(t *testing.T) {
	gen := &fakeGenerator{answer: "Dekanatga murojaat qiling."}
	svc := newTestService(gen)

	answer, err := svc.Ask(context.Background(), testStudent(), AgentGeneral, "Spravka qanday olinadi?")
	require.NoError(t, err)
	assert.Equal(t, "Dekanatga murojaat qiling.", answer)
}

func TestService_UnknownAgentRejected(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(gen)

	_, err := svc.Ask(context.Background(), testStudent(), Agent("oracle"), "savol")
	require.ErrorIs(t, err, ErrUnknownAgent)
	assert.Empty(t, gen.lastParams.Prompt)
}

func TestService_GeneratorFailureSurfaces(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("all models failed")}
	svc := newTestService(gen)

	_, err := svc.Ask(context.Background(), testStudent(), AgentGeneral, "savol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat generation failed")
}
