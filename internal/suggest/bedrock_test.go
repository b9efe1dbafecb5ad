package suggest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantT    string
		wantD    string
	}{
		{
			"two lines",
			"TITLE: Ceramic Mug\nDESCRIPTION: Hand-thrown stoneware mug, 350ml.",
			"Ceramic Mug",
			"Hand-thrown stoneware mug, 350ml.",
		},
		{
			"surrounding whitespace",
			"\n  TITLE:  Linen Shirt  \nDESCRIPTION:  Breathable summer shirt.  \n",
			"Linen Shirt",
			"Breathable summer shirt.",
		},
		{
			"multi-line description",
			"TITLE: Desk Lamp\nDESCRIPTION: Warm LED light.\nAdjustable arm.",
			"Desk Lamp",
			"Warm LED light.\nAdjustable arm.",
		},
		{
			"single-line answer",
			"TITLE: Candle DESCRIPTION: Soy wax, 40h burn.",
			"Candle",
			"Soy wax, 40h burn.",
		},
		{
			"lowercase labels",
			"title: Socks\ndescription: Merino wool.",
			"Socks",
			"Merino wool.",
		},
		{
			"no labels at all",
			"Here is a nicer product text.",
			"",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseSuggestion(tt.text)
			assert.Equal(t, tt.wantT, s.Title)
			assert.Equal(t, tt.wantD, s.Description)
		})
	}
}

func TestBuildPrompt_CarriesInput(t *testing.T) {
	p := BuildPrompt("Áo thun nam", "Chất liệu cotton thoáng mát")
	assert.Contains(t, p, "Áo thun nam")
	assert.Contains(t, p, "Chất liệu cotton thoáng mát")
	assert.Contains(t, p, "TITLE:")
	assert.Contains(t, p, "DESCRIPTION:")
}

type fakeBedrock struct {
	body []byte
	err  error

	gotModelID string
	gotBody    []byte
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if params.ModelId != nil {
		f.gotModelID = *params.ModelId
	}
	f.gotBody = params.Body
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func claudeAnswer(t *testing.T, text string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	})
	require.NoError(t, err)
	return b
}

func TestRewrite(t *testing.T) {
	fb := &fakeBedrock{body: claudeAnswer(t, "TITLE: Better Mug\nDESCRIPTION: Nicer words.")}

	s, err := Rewrite(context.Background(), fb, "anthropic.claude-3-haiku", "Mug", "A mug.")
	require.NoError(t, err)
	assert.Equal(t, "Better Mug", s.Title)
	assert.Equal(t, "Nicer words.", s.Description)
	assert.Equal(t, "anthropic.claude-3-haiku", fb.gotModelID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(fb.gotBody, &payload))
	assert.Equal(t, "bedrock-2023-05-31", payload["anthropic_version"])
}

func TestRewrite_MissingModelID(t *testing.T) {
	_, err := Rewrite(context.Background(), &fakeBedrock{}, "  ", "Mug", "A mug.")
	assert.Error(t, err)
}

func TestRewrite_UnparseableAnswer(t *testing.T) {
	fb := &fakeBedrock{body: claudeAnswer(t, "I cannot help with that.")}
	_, err := Rewrite(context.Background(), fb, "model", "Mug", "A mug.")
	assert.Error(t, err)
}

func TestRewrite_InvokeFailure(t *testing.T) {
	fb := &fakeBedrock{err: assert.AnError}
	_, err := Rewrite(context.Background(), fb, "model", "Mug", "A mug.")
	assert.ErrorIs(t, err, assert.AnError)
}
