// Package intent classifies inbound chat messages into research
// requests and conversational replies. The classifier is stateless:
// each call carries its own history slice, so one instance serves all
// sessions concurrently.
package intent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/strataplan/orchestrator/internal/llm"
	"github.com/strataplan/orchestrator/internal/metrics"
)

// historyWindow bounds how many trailing conversation turns reach the
// classification prompt.
const historyWindow = 3

const fallbackResponse = "I can help you research companies. Could you tell me which company you're interested in, or ask for suggestions?"

const classifyPromptTemplate = `You are a helpful, conversational AI Research Assistant.
Your goal is to help users research companies and generate strategic account plans.

Analyze the user's message and the conversation history.

SCENARIOS:
1. **Research Request**: User wants to research a specific company.
   - Action: Extract 'company' and 'goals'. Set 'wants_research' to true.

2. **Confused/Exploratory User**: User asks for suggestions (e.g., "suggest tech companies", "I don't know what to research").
   - Action: You MUST provide helpful suggestions. List 3-4 relevant companies they might be interested in.
   - Set 'wants_research' to false.
   - Set 'response' to your helpful suggestion message.

3. **Clarification Needed**: User is vague but implies a specific company (e.g., "the big search company").
   - Action: Ask a clarifying question.
   - Set 'wants_research' to false.
   - Set 'response' to your clarifying question.

4. **Off-Topic/Chit-Chat**: User says "hello", "how are you", or asks unrelated questions.
   - Action: Be polite but gently guide them back to company research.
   - Set 'wants_research' to false.
   - Set 'response' to a polite reply redirecting to research.

Previous conversation:
%s

User message: %s

Respond in JSON format:
{
    "wants_research": true/false,
    "company": "company name or null",
    "goals": "specific goals or general overview",
    "response": "Your conversational response here (for scenarios 2, 3, 4)"
}`

// Turn is one prior conversation exchange.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Decision is the classification outcome for one message. Company may
// be empty or the "unknown" placeholder when no usable company was
// identified; callers must check UsableCompany before starting a run.
type Decision struct {
	WantsResearch bool   `json:"wants_research"`
	Company       string `json:"company"`
	Goals         string `json:"goals"`
	Response      string `json:"response"`
}

// UsableCompany reports whether the decision names a company a run can
// actually be started for.
func (d Decision) UsableCompany() bool {
	return d.Company != "" && !strings.EqualFold(d.Company, "unknown")
}

// Classifier turns free-form chat messages into routing decisions.
type Classifier struct {
	llm    llm.Client
	logger *zap.Logger
}

func NewClassifier(llmClient llm.Client, logger *zap.Logger) *Classifier {
	return &Classifier{llm: llmClient, logger: logger}
}

// Classify analyzes one message against its trailing history. Any
// generation or parse failure degrades to the fixed fallback decision;
// Classify never returns an error.
func (c *Classifier) Classify(ctx context.Context, message string, history []Turn) Decision {
	prompt := fmt.Sprintf(classifyPromptTemplate, flattenHistory(history), message)

	response, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		metrics.CapabilityFailures.WithLabelValues("llm", "intent").Inc()
		c.logger.Warn("Intent classification failed, using fallback", zap.Error(err))
		return fallbackDecision()
	}

	var raw struct {
		WantsResearch bool    `json:"wants_research"`
		Company       *string `json:"company"`
		Goals         string  `json:"goals"`
		Response      string  `json:"response"`
	}
	if err := llm.UnmarshalLoose(response, &raw); err != nil {
		metrics.ParseFailures.WithLabelValues("intent").Inc()
		c.logger.Warn("Intent output unparseable, using fallback", zap.Error(err))
		return fallbackDecision()
	}

	d := Decision{
		WantsResearch: raw.WantsResearch,
		Goals:         raw.Goals,
		Response:      raw.Response,
	}
	if raw.Company != nil {
		d.Company = strings.TrimSpace(*raw.Company)
	}
	return d
}

func fallbackDecision() Decision {
	return Decision{Response: fallbackResponse}
}

// flattenHistory renders the last turns as "role: content" lines, the
// shape the prompt expects.
func flattenHistory(history []Turn) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(lines, "\n")
}
