package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// BuildPrompt asks for a rewritten title and description in a fixed
// TITLE:/DESCRIPTION: shape, keeping the source language.
func BuildPrompt(title, description string) string {
	return fmt.Sprintf(`You rewrite Shopify product content.

Rewrite the title and description below so they are:
- short, clear and appealing, but natural
- faithful to the original features and uses (invent nothing)
- free of filler and generic phrasing

Output exactly two lines and nothing else:
TITLE: <rewritten title>
DESCRIPTION: <rewritten description>

No markdown, no code fences, no extra symbols. Keep the language of the
input (Vietnamese input gets Vietnamese output).

PRODUCT:
TITLE: %s
DESCRIPTION: %s
`, title, description)
}

// Rewrite sends the prompt to Bedrock Claude and parses the two-line
// answer.
func Rewrite(ctx context.Context, c BedrockClient, modelID, title, description string) (*Suggestion, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("missing bedrock model id")
	}

	payload := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        700,
		"temperature":       0.4,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": BuildPrompt(title, description)},
				},
			},
		},
	}

	body, _ := json.Marshal(payload)

	out, err := c.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock InvokeModel: %w", err)
	}

	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(out.Body, &raw); err != nil {
		return nil, fmt.Errorf("bedrock response unmarshal: %w", err)
	}

	var text string
	for _, block := range raw.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	s := ParseSuggestion(text)
	if s.Title == "" && s.Description == "" {
		return nil, fmt.Errorf("model returned no TITLE/DESCRIPTION lines")
	}
	return s, nil
}

var (
	titleRe = regexp.MustCompile(`(?i)TITLE:\s*(.+)`)
	descRe  = regexp.MustCompile(`(?is)DESCRIPTION:\s*(.+)`)
)

// ParseSuggestion extracts the TITLE:/DESCRIPTION: pair; the description
// runs to the end of the text so multi-line answers survive.
func ParseSuggestion(text string) *Suggestion {
	text = strings.TrimSpace(text)
	s := &Suggestion{}
	if m := titleRe.FindStringSubmatch(text); m != nil {
		title := m[1]
		// TITLE's capture is greedy across the rest of the line only.
		if i := strings.IndexAny(title, "\r\n"); i >= 0 {
			title = title[:i]
		}
		s.Title = strings.TrimSpace(title)
	}
	if m := descRe.FindStringSubmatch(text); m != nil {
		s.Description = strings.TrimSpace(m[1])
	}
	// The TITLE line match above can swallow "DESCRIPTION:" when the model
	// answers on one line; strip it back out.
	if i := strings.Index(strings.ToUpper(s.Title), "DESCRIPTION:"); i >= 0 {
		s.Title = strings.TrimSpace(s.Title[:i])
	}
	return s
}
