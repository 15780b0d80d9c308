package models

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkeep/mailkeep/internal/enum"
)

func TestSetFlagReportsChange(t *testing.T) {
	email := &Email{}

	assert.True(t, email.SetFlag(enum.FlagSeen, true))
	assert.True(t, email.HasFlag(enum.FlagSeen))

	// Same state again is a no-op.
	assert.False(t, email.SetFlag(enum.FlagSeen, true))

	assert.True(t, email.SetFlag(enum.FlagSeen, false))
	assert.False(t, email.HasFlag(enum.FlagSeen))
	assert.False(t, email.SetFlag(enum.FlagSeen, false))
}

func TestSetFlagKeepsOtherFlags(t *testing.T) {
	email := &Email{Flags: pq.StringArray{enum.FlagSeen.String(), enum.FlagFlagged.String()}}

	email.SetFlag(enum.FlagSeen, false)

	assert.False(t, email.HasFlag(enum.FlagSeen))
	assert.True(t, email.HasFlag(enum.FlagFlagged))
}

func TestAllRecipients(t *testing.T) {
	email := &Email{
		ToAddresses:  pq.StringArray{"to@example.com"},
		CcAddresses:  pq.StringArray{"cc@example.com"},
		BccAddresses: pq.StringArray{"bcc@example.com"},
	}

	assert.Equal(t, []string{"to@example.com", "cc@example.com", "bcc@example.com"}, email.AllRecipients())
}

func TestHasRichContent(t *testing.T) {
	assert.False(t, (&Email{BodyText: "plain"}).HasRichContent())
	assert.True(t, (&Email{BodyHTML: "<p>hi</p>"}).HasRichContent())
}

func TestBuildHeaders(t *testing.T) {
	email := &Email{
		MessageID:   "<id@example.com>",
		Subject:     "Hello",
		FromName:    "Alice",
		FromAddress: "alice@example.com",
		ToAddresses: pq.StringArray{"bob@example.com", "carol@example.com"},
		CcAddresses: pq.StringArray{"dave@example.com"},
		InReplyTo:   "parent@example.com",
	}

	headers := email.BuildHeaders()

	assert.Equal(t, `"Alice" <alice@example.com>`, headers["From"])
	assert.Equal(t, "bob@example.com,carol@example.com", headers["To"])
	assert.Equal(t, "dave@example.com", headers["Cc"])
	assert.Equal(t, "<parent@example.com>", headers["In-Reply-To"])
	assert.Equal(t, "<id@example.com>", headers["Message-ID"])
	assert.Equal(t, "1.0", headers["MIME-Version"])
	require.NotEmpty(t, headers["Date"])
	assert.NotContains(t, headers, "Reply-To")
}

func TestBuildHeadersOmitsEmptyCc(t *testing.T) {
	email := &Email{
		FromAddress: "alice@example.com",
		ToAddresses: pq.StringArray{"bob@example.com"},
	}

	headers := email.BuildHeaders()

	assert.Equal(t, "alice@example.com", headers["From"])
	assert.NotContains(t, headers, "Cc")
	assert.NotContains(t, headers, "In-Reply-To")
}
