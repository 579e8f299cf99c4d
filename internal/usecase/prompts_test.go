package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
)

func TestNewPromptsResolvesLanguageName(t *testing.T) {
	t.Parallel()

	p, err := NewPrompts("zh-Hans")
	require.NoError(t, err)
	assert.Equal(t, "Simplified Chinese", p.Language())

	p, err = NewPrompts("ja")
	require.NoError(t, err)
	assert.Equal(t, "Japanese", p.Language())

	_, err = NewPrompts("not a tag!")
	assert.Error(t, err)
}

func TestMessagesCarryBatchAsJSONArray(t *testing.T) {
	t.Parallel()

	p, err := NewPrompts("zh-Hans")
	require.NoError(t, err)

	for _, kind := range []PromptKind{PromptTitle, PromptSummary, PromptComments} {
		msgs, err := p.Messages(kind, []string{"a \"quoted\" title", "second"})
		require.NoError(t, err, kind.String())
		require.Len(t, msgs, 2)
		assert.Equal(t, domain.RoleSystem, msgs[0].Role)
		assert.Contains(t, msgs[0].Content, "Simplified Chinese")
		assert.Contains(t, msgs[0].Content, "same length and order")

		var decoded []string
		require.NoError(t, json.Unmarshal([]byte(msgs[1].Content), &decoded))
		assert.Equal(t, []string{"a \"quoted\" title", "second"}, decoded)
	}

	_, err = p.Messages(PromptKind(9), []string{"x"})
	assert.Error(t, err)
	assert.Equal(t, "prompt(9)", PromptKind(9).String())
}
