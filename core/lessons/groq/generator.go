package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/luminaedu/lumina-core/core/lessons"
	"github.com/luminaedu/lumina-core/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	url          = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.3-70b-versatile"
)

// Generator produces lesson plans through Groq's chat completion API using
// JSON-schema constrained output.
type Generator struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

type GeneratorOption func(*Generator)

func WithModel(model string) GeneratorOption {
	return func(g *Generator) { g.model = model }
}

func NewGenerator(opts ...GeneratorOption) (*Generator, error) {
	apiKey, ok := os.LookupEnv("GROQ_API_KEY")
	if !ok {
		return nil, fmt.Errorf("groq api key not found")
	}

	generator := &Generator{
		apiKey: apiKey,
		model:  defaultModel,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(generator)
	}

	return generator, nil
}

type generatedPlan struct {
	Steps []generatedStep `json:"steps" jsonschema_description:"Ordered lesson steps, each narrating one idea"`
}

type generatedStep struct {
	Title       string            `json:"title"`
	Narration   map[string]string `json:"narration" jsonschema_description:"Narration text keyed by BCP 47 language tag"`
	Exploration map[string]string `json:"exploration,omitempty" jsonschema_description:"Optional longer narration for free exploration, keyed by language tag"`
	VisualQuery string            `json:"visual_query" jsonschema_description:"Image search phrase illustrating the step"`
	Focus       *generatedFocus   `json:"focus,omitempty" jsonschema_description:"Optional region of the visual to frame while narrating"`
}

type generatedFocus struct {
	X    float64 `json:"x" jsonschema_description:"Horizontal center of interest, 0 to 1"`
	Y    float64 `json:"y" jsonschema_description:"Vertical center of interest, 0 to 1"`
	Zoom float64 `json:"zoom" jsonschema_description:"Zoom factor toward the focus, 1 means none"`
}

const planSystemPrompt = "You are a lesson author. Break the topic into short, self-contained steps a narrator can read aloud. Keep each narration under 80 words and give every step a concrete visual search phrase."

func (g *Generator) GeneratePlan(ctx context.Context, topic string, opts ...lessons.GenerateOption) (*lessons.LessonPlan, error) {
	ctx, span := tracer.Start(ctx, "generate lesson plan")
	defer span.End()

	options := lessons.GenerateOptions{Languages: []string{"en"}}
	for _, opt := range opts {
		opt(&options)
	}

	prompt := fmt.Sprintf("Write a lesson about: %s. Provide narration in these languages: %s.",
		topic, strings.Join(options.Languages, ", "))
	if options.StepCount > 0 {
		prompt += fmt.Sprintf(" Use at most %d steps.", options.StepCount)
	}

	span.SetAttributes(
		attribute.String("request.model", g.model),
		attribute.String("request.topic", topic),
	)

	messages := []message{
		{Role: messageRoleSystem, Content: planSystemPrompt},
		{Role: messageRoleUser, Content: prompt},
	}

	var generated generatedPlan
	if err := g.promptJSONSchema(ctx, "lesson_plan", messages, &generated); err != nil {
		return nil, &lessons.GenerationError{Topic: topic, Err: err}
	}
	if len(generated.Steps) == 0 {
		return nil, &lessons.GenerationError{Topic: topic, Err: fmt.Errorf("generator returned no steps")}
	}

	plan := &lessons.LessonPlan{
		ID:      uuid.New(),
		Topic:   topic,
		Version: uuid.New(),
	}
	for i, step := range generated.Steps {
		var focus *lessons.FocusPoint
		if step.Focus != nil {
			focus = utils.Ptr(lessons.FocusPoint{X: step.Focus.X, Y: step.Focus.Y, Zoom: step.Focus.Zoom})
		}
		plan.Steps = append(plan.Steps, lessons.LessonStep{
			Index:                i,
			Title:                step.Title,
			Narration:            step.Narration,
			ExplorationNarration: step.Exploration,
			VisualQuery:          step.VisualQuery,
			FocusPoint:           focus,
		})
	}

	return plan, nil
}

const followUpSystemPrompt = "You are a patient tutor answering a learner's question in the middle of a lesson. Answer in a few spoken sentences, grounded in the lesson content. Point at the step the answer belongs to, or mark the question off topic and suggest a topic for a fresh lesson."

type generatedFollowUp struct {
	Answer          string `json:"answer" jsonschema_description:"Spoken answer to the learner's question"`
	TargetStepIndex int    `json:"target_step_index" jsonschema_description:"Zero-based index of the lesson step the answer refers to, or -1 when none applies"`
	OffTopic        bool   `json:"off_topic" jsonschema_description:"True when the question is unrelated to the lesson"`
	NewTopicQuery   string `json:"new_topic_query,omitempty" jsonschema_description:"When off topic, a topic phrase a fresh lesson could be generated from"`
}

func (g *Generator) AnswerFollowUp(ctx context.Context, plan *lessons.LessonPlan, question string, history []lessons.FollowUp) (*lessons.FollowUpAnswer, error) {
	ctx, span := tracer.Start(ctx, "answer follow-up")
	defer span.End()

	messages := []message{{Role: messageRoleSystem, Content: followUpSystemPrompt}}
	if plan != nil {
		var outline strings.Builder
		fmt.Fprintf(&outline, "Lesson topic: %s\n", plan.Topic)
		for _, step := range plan.Steps {
			fmt.Fprintf(&outline, "Step %d: %s: %s\n", step.Index, step.Title, step.NarrationIn("en"))
		}
		messages = append(messages, message{Role: messageRoleSystem, Content: outline.String()})
	}
	for _, followUp := range history {
		messages = append(messages,
			message{Role: messageRoleUser, Content: followUp.Question},
			message{Role: messageRoleAssistant, Content: followUp.Answer},
		)
	}
	messages = append(messages, message{Role: messageRoleUser, Content: question})

	var generated generatedFollowUp
	if err := g.promptJSONSchema(ctx, "follow_up", messages, &generated); err != nil {
		return nil, err
	}

	answer := &lessons.FollowUpAnswer{
		Text:            generated.Answer,
		TargetStepIndex: generated.TargetStepIndex,
		OffTopic:        generated.OffTopic,
		NewTopicQuery:   generated.NewTopicQuery,
	}
	if plan == nil || answer.TargetStepIndex >= len(plan.Steps) {
		answer.TargetStepIndex = -1
	}
	return answer, nil
}

func (g *Generator) promptJSONSchema(ctx context.Context, name string, messages []message, output any) error {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(output)

	reqBody := struct {
		Model          string    `json:"model"`
		Messages       []message `json:"messages"`
		ResponseFormat any       `json:"response_format,omitempty"`
	}{
		Model:    g.model,
		Messages: messages,
		ResponseFormat: struct {
			Type       string `json:"type"`
			JSONSchema any    `json:"json_schema,omitempty"`
		}{
			Type: "json_schema",
			JSONSchema: struct {
				Name   string            `json:"name"`
				Schema jsonschema.Schema `json:"schema"`
				Strict bool              `json:"strict"`
			}{Name: name, Schema: *schema, Strict: true},
		},
	}

	responseBody, err := g.post(ctx, reqBody)
	if err != nil {
		return err
	}
	if len(responseBody.Choices) == 0 {
		return fmt.Errorf("groq returned no choices")
	}

	content := responseBody.Choices[0].Message.Content
	if split := strings.Split(content, "```"); len(split) > 1 {
		content = split[1]
	}
	if err := json.Unmarshal([]byte(content), output); err != nil {
		return fmt.Errorf("error unmarshalling response: %w", err)
	}

	return nil
}

func (g *Generator) post(ctx context.Context, reqBody any) (*chatResponseBody, error) {
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, errorBody)
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var responseBody chatResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		return nil, fmt.Errorf("error unmarshalling response body: %w", err)
	}

	return &responseBody, nil
}
