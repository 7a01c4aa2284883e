package lessons

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// LessonPlan is an ordered sequence of steps on a topic. Version changes
// whenever the plan's content changes, letting long-running work detect that
// the plan it was started against has been replaced.
type LessonPlan struct {
	ID      uuid.UUID
	Topic   string
	Version uuid.UUID

	Steps []LessonStep
}

type LessonStep struct {
	Index int
	Title string

	// Narration maps a BCP 47 language tag to the step's narration text.
	Narration map[string]string
	// ExplorationNarration is optional, longer narration used when the
	// learner opts into free exploration of the step's visual.
	ExplorationNarration map[string]string

	// VisualQuery is the search phrase used to find an illustration for the
	// step. Visual stays nil until enrichment resolves it.
	VisualQuery string
	Visual      *VisualReference
	FocusPoint  *FocusPoint

	// ModelID names a 3D model to show instead of a flat visual, when the
	// catalog has one for the step.
	ModelID string
}

// VisualReference points at a resolved illustration for a step.
type VisualReference struct {
	URL        string
	SourceName string
	Width      int
	Height     int
}

// FocusPoint frames the interesting region of a step's visual, in
// coordinates relative to the visual's size.
type FocusPoint struct {
	X    float64
	Y    float64
	Zoom float64
}

// FollowUp is a learner question asked during a lesson and its answer.
type FollowUp struct {
	Question string
	Answer   string
}

// NarrationIn returns the step's narration for a language, falling back to
// the base language (en for en-US) and then to English.
func (s *LessonStep) NarrationIn(language string) string {
	return narrationIn(s.Narration, language)
}

func (s *LessonStep) ExplorationNarrationIn(language string) string {
	return narrationIn(s.ExplorationNarration, language)
}

func narrationIn(narration map[string]string, language string) string {
	if len(narration) == 0 {
		return ""
	}

	if text, ok := narration[language]; ok {
		return text
	}
	if base, _, found := strings.Cut(language, "-"); found {
		if text, ok := narration[base]; ok {
			return text
		}
	}
	if text, ok := narration["en"]; ok {
		return text
	}

	for _, text := range narration {
		return text
	}
	return ""
}

// Snapshot returns a deep copy of the plan, safe to hand to background work
// while the original keeps being enriched.
func (p *LessonPlan) Snapshot() LessonPlan {
	if p == nil {
		return LessonPlan{}
	}

	snapshot := LessonPlan{}
	_ = copier.CopyWithOption(&snapshot, p, copier.Option{DeepCopy: true})
	return snapshot
}

// Step returns the step at the given index, or false when the index is out
// of the plan's range.
func (p *LessonPlan) Step(index int) (LessonStep, bool) {
	if p == nil || index < 0 || index >= len(p.Steps) {
		return LessonStep{}, false
	}
	return p.Steps[index], true
}

// FollowUpAnswer is the generator's response to a learner question asked
// mid-lesson.
type FollowUpAnswer struct {
	// Text is the spoken answer.
	Text string
	// TargetStepIndex points at the step the answer refers to, so the
	// caller can jump there. -1 when the answer has no single step.
	TargetStepIndex int
	// OffTopic marks questions unrelated to the active lesson.
	OffTopic bool
	// NewTopicQuery suggests a topic for a fresh lesson when the question
	// is off topic. Empty otherwise.
	NewTopicQuery string
}

// Generator produces lesson plans and answers follow-up questions about
// them.
type Generator interface {
	GeneratePlan(ctx context.Context, topic string, opts ...GenerateOption) (*LessonPlan, error)
	AnswerFollowUp(ctx context.Context, plan *LessonPlan, question string, history []FollowUp) (*FollowUpAnswer, error)
}

type GenerateOptions struct {
	// Languages lists the narration languages the plan should carry.
	// Defaults to English only.
	Languages []string
	// StepCount caps how many steps the plan should have. Zero lets the
	// generator decide.
	StepCount int
}

type GenerateOption func(*GenerateOptions)

func WithLanguages(languages ...string) GenerateOption {
	return func(o *GenerateOptions) { o.Languages = languages }
}

func WithStepCount(count int) GenerateOption {
	return func(o *GenerateOptions) { o.StepCount = count }
}

// GenerationError carries the topic a plan generation failed for, so
// callers can surface it without holding on to the original request.
type GenerationError struct {
	Topic string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate lesson plan for %q: %v", e.Topic, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
