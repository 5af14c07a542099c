package tutor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/skillprobe/internal/diagnosis"
	"github.com/abhisek/skillprobe/internal/llm"
)

func TestPersonaFor(t *testing.T) {
	tests := []struct {
		level int
		want  Persona
	}{
		{0, PersonaCoach},
		{1, PersonaCoach},
		{2, PersonaCoach},
		{3, PersonaProfessor},
		{4, PersonaProfessor},
		{5, PersonaColleague},
		{9, PersonaColleague},
	}
	for _, tt := range tests {
		if got := PersonaFor(tt.level); got != tt.want {
			t.Errorf("PersonaFor(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParsePersona(t *testing.T) {
	if p, err := ParsePersona("professor"); err != nil || p != PersonaProfessor {
		t.Errorf("ParsePersona(professor) = %q, %v", p, err)
	}
	if _, err := ParsePersona("drill-sergeant"); err == nil {
		t.Error("expected error for unknown persona")
	}
}

func TestTeach_UsesPersonaForLevel(t *testing.T) {
	tests := []struct {
		level  int
		system string
		label  string
	}{
		{2, coachPrompt, "(struggling)"},
		{4, professorPrompt, "(solid understanding)"},
		{5, colleaguePrompt, "(advanced)"},
	}

	for _, tt := range tests {
		mock := llm.NewMockProvider(llm.MockText("Nice! What happens when x is zero?"))
		tut := New(mock, DefaultConfig())

		reply, err := tut.Teach(context.Background(), TeachInput{
			Topic: "Functions",
			Level: tt.level,
			Reply: "f(x) = 1/x is defined everywhere",
		})
		if err != nil {
			t.Fatalf("level %d: Teach failed: %v", tt.level, err)
		}
		if reply != "Nice! What happens when x is zero?" {
			t.Errorf("level %d: reply = %q", tt.level, reply)
		}

		req := mock.Calls()[0]
		if req.System != tt.system {
			t.Errorf("level %d: wrong persona prompt", tt.level)
		}
		if !strings.Contains(req.Messages[0].Content, tt.label) {
			t.Errorf("level %d: prompt missing %q:\n%s", tt.level, tt.label, req.Messages[0].Content)
		}
	}
}

func TestTeach_RendersContext(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText("Let's try a picture."))
	tut := New(mock, DefaultConfig())

	_, err := tut.Teach(context.Background(), TeachInput{
		Topic:          "Fractions",
		Level:          1,
		Misconceptions: []string{"adds denominators", "bigger denominator means bigger fraction"},
		History: []diagnosis.Message{
			{Role: diagnosis.RoleTutor, Content: "Which is bigger: 1/3 or 1/4?"},
			{Role: diagnosis.RoleStudent, Content: "1/4"},
		},
		Reply: "because 4 is bigger",
	})
	if err != nil {
		t.Fatalf("Teach failed: %v", err)
	}

	msg := mock.Calls()[0].Messages[0].Content
	for _, want := range []string{
		"Topic: Fractions",
		"Student level: 1/5",
		"Misconceptions: adds denominators, bigger denominator means bigger fraction",
		"student: 1/4",
		`Student said: "because 4 is bigger"`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("prompt missing %q:\n%s", want, msg)
		}
	}
}

func TestTeach_NoMisconceptions(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText("ok"))
	if _, err := New(mock, DefaultConfig()).Teach(context.Background(), TeachInput{Topic: "t", Level: 3, Reply: "r"}); err != nil {
		t.Fatalf("Teach failed: %v", err)
	}
	if msg := mock.Calls()[0].Messages[0].Content; !strings.Contains(msg, "Misconceptions: none identified") {
		t.Errorf("prompt missing placeholder:\n%s", msg)
	}
}

func TestTeach_Errors(t *testing.T) {
	empty := New(llm.NewMockProvider(llm.MockText("")), DefaultConfig())
	if _, err := empty.Teach(context.Background(), TeachInput{Level: 3}); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("expected ErrEmptyReply, got %v", err)
	}

	down := New(llm.NewMockProvider(), DefaultConfig())
	_, err := down.Teach(context.Background(), TeachInput{Level: 5})
	var unavail *llm.ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}
