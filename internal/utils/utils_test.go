package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("email", 16)

	require.True(t, strings.HasPrefix(id, "email_"))
	assert.Len(t, strings.TrimPrefix(id, "email_"), 16)
	assert.NotEqual(t, id, GenerateNanoIDWithPrefix("email", 16))
}

func TestNormalizeEmailSubject(t *testing.T) {
	assert.Equal(t, "Quarterly report", NormalizeEmailSubject("Re: Quarterly report"))
	assert.Equal(t, "Quarterly report", NormalizeEmailSubject("RE: FWD: Quarterly report"))
	assert.Equal(t, "Quarterly report", NormalizeEmailSubject("Fw[2]:  Quarterly report"))
	assert.Equal(t, "Quarterly report", NormalizeEmailSubject("  Quarterly report  "))
	assert.Equal(t, "", NormalizeEmailSubject("Re:"))
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeMessageID("<abc@example.com>"))
	assert.Equal(t, "abc@example.com", NormalizeMessageID(" abc@example.com "))
	assert.Equal(t, "", NormalizeMessageID(""))
}

func TestGenerateMessageID(t *testing.T) {
	id := GenerateMessageID("example.com", "")

	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@example.com>"))
	assert.NotEqual(t, id, GenerateMessageID("example.com", ""))
}

func TestGenerateMessageIDWithMetadata(t *testing.T) {
	id := GenerateMessageID("example.com", "thread-7")

	local := strings.TrimSuffix(strings.TrimPrefix(id, "<"), "@example.com>")
	parts := strings.Split(local, ".")
	assert.Len(t, parts, 3)
}

func TestAddressHelpers(t *testing.T) {
	assert.Equal(t, "a@x.com,b@x.com", JoinAddresses([]string{"a@x.com", "b@x.com"}))
	assert.True(t, ContainsString("b", []string{"a", "b"}))
	assert.False(t, ContainsString("z", []string{"a", "b"}))
}
