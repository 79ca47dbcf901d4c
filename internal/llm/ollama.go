package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"mira/internal/config"
	"mira/internal/errors"
	"mira/internal/logging"
	"mira/internal/model"
)

var _ Client = (*OllamaClient)(nil)

// OllamaClient runs extraction against a local Ollama server's chat endpoint.
type OllamaClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
	location   *time.Location
	logger     logging.Logger
}

// NewOllamaClient builds a client from the LLM section of the config.
func NewOllamaClient(cfg config.LLMConfig, loc *time.Location, logger logging.Logger) *OllamaClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultLLMBaseURL
	}
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultLLMTimeoutSeconds) * time.Second
	}
	if loc == nil {
		loc = time.Local
	}

	return &OllamaClient{
		model:      cfg.Model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		location:   loc,
		logger:     logging.OrNop(logger),
	}
}

func (c *OllamaClient) Model() string { return c.model }

const extractSystemPrompt = `You extract actionable tasks from student email. ` +
	`Respond with a JSON array only. Each element: {"title": string, ` +
	`"category": one of assignment|quiz|email_reply|application|leetcode|project|admin, ` +
	`"due_at_local": ISO-8601 or omitted, "estimated_minutes": int, ` +
	`"min_daily_minutes": int, "priority": 1-5, "stress_weight": 0.0-1.0}. ` +
	`Return [] when the message contains no actionable work.`

// ExtractTasks asks the model for task candidates and gates the reply through
// the extraction schema. Schema violations drop the whole batch.
func (c *OllamaClient) ExtractTasks(ctx context.Context, card model.UpdateCard) ([]model.Task, error) {
	prompt := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", card.Sender, card.Subject, card.BodyText)
	content, err := c.chat(ctx, extractSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var candidates []taskCandidate
	if err := unmarshalRepaired(content, &candidates); err != nil {
		c.logger.Warn("extraction reply unparseable, dropping: %v", err)
		return nil, nil
	}

	tasks := make([]model.Task, 0, len(candidates))
	for _, cand := range candidates {
		task, err := validateCandidate(cand, c.location)
		if err != nil {
			c.logger.Warn("extraction schema violation, dropping batch: %v", err)
			return nil, nil
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

const intentSystemPrompt = `You translate schedule-edit requests into JSON. ` +
	`Respond with one object only: {"intent": one of create_block|move_block|` +
	`resize_block|delete_block|mark_done|lock_sleep|regenerate_plan, ` +
	`"fuzzy_title": string, "start_local": ISO-8601 or omitted, ` +
	`"end_local": ISO-8601 or omitted, "sleep_window": "HH:MM-HH:MM" or omitted, ` +
	`"requires_confirmation": bool, "ambiguity_reason": string or omitted}.`

type intentReply struct {
	Intent               string `json:"intent"`
	FuzzyTitle           string `json:"fuzzy_title"`
	StartLocal           string `json:"start_local"`
	EndLocal             string `json:"end_local"`
	SleepWindow          string `json:"sleep_window"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	AmbiguityReason      string `json:"ambiguity_reason"`
}

// ParseEditIntent turns free text into a structured edit. Unrecognized
// intents come back flagged for confirmation rather than failing.
func (c *OllamaClient) ParseEditIntent(ctx context.Context, text string, now time.Time) (model.EditOperation, error) {
	prompt := fmt.Sprintf("Current local time: %s\nRequest: %s", now.Format(time.RFC3339), text)
	content, err := c.chat(ctx, intentSystemPrompt, prompt)
	if err != nil {
		return model.EditOperation{}, err
	}

	var reply intentReply
	if err := unmarshalRepaired(content, &reply); err != nil {
		return model.EditOperation{}, &errors.SchemaViolationError{Detail: "edit_intent", Err: err}
	}

	edit := model.EditOperation{
		Intent:               model.EditIntent(reply.Intent),
		FuzzyTitle:           strings.TrimSpace(reply.FuzzyTitle),
		SleepWindow:          strings.TrimSpace(reply.SleepWindow),
		RequiresConfirmation: reply.RequiresConfirmation,
		AmbiguityReason:      strings.TrimSpace(reply.AmbiguityReason),
	}
	if reply.StartLocal != "" {
		if t, err := parseLocalTime(reply.StartLocal, c.location); err == nil {
			edit.StartLocal = &t
		}
	}
	if reply.EndLocal != "" {
		if t, err := parseLocalTime(reply.EndLocal, c.location); err == nil {
			edit.EndLocal = &t
		}
	}

	switch edit.Intent {
	case model.IntentCreateBlock, model.IntentMoveBlock, model.IntentResizeBlock,
		model.IntentDeleteBlock, model.IntentMarkDone, model.IntentLockSleep,
		model.IntentRegeneratePlan:
	default:
		edit.Intent = model.IntentRegeneratePlan
		edit.RequiresConfirmation = true
		edit.AmbiguityReason = fmt.Sprintf("unrecognized intent %q", reply.Intent)
	}
	return edit, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

func (c *OllamaClient) chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Transient(fmt.Errorf("ollama request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", errors.Transient(fmt.Errorf("ollama request failed: %s", strings.TrimSpace(string(raw))))
	}

	var reply chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("ollama error: %s", reply.Error)
	}
	return reply.Message.Content, nil
}

// unmarshalRepaired parses model output as JSON, running it through jsonrepair
// when the first attempt fails. Local models routinely emit trailing commas
// and unquoted keys.
func unmarshalRepaired(content string, out any) error {
	content = strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(content), out); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return fmt.Errorf("repair model output: %w", err)
	}
	return json.Unmarshal([]byte(repaired), out)
}
