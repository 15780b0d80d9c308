package imap

import (
	"bytes"
	"io"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	goimap "github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/utils"
)

// headerFromMessage builds a cache record from an envelope-only fetch. The
// body is left empty until FetchBody fills it on demand.
func (s *IMAPClient) headerFromMessage(directory string, msg *goimap.Message) *models.Email {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	envelope := msg.Envelope

	email := models.Email{
		Directory: directory,
		ImapUID:   msg.Uid,
		Direction: enum.EmailInbound,
		Status:    enum.EmailStatusReceived,
		Subject:   envelope.Subject,
		MessageID: utils.NormalizeMessageID(envelope.MessageId),
		InReplyTo: utils.NormalizeMessageID(envelope.InReplyTo),
	}
	if s.profile != nil {
		email.ProfileID = s.profile.ID
	}

	if !envelope.Date.IsZero() {
		sentTime := envelope.Date
		email.SentAt = &sentTime
		email.ReceivedAt = &sentTime
	}

	if len(envelope.From) > 0 {
		sender := envelope.From[0]
		email.FromName = sender.PersonalName
		syntaxValidation := mailvalidate.ValidateEmailSyntax(sender.Address())
		if syntaxValidation.IsValid {
			email.FromAddress = syntaxValidation.CleanEmail
		} else {
			email.FromAddress = sender.Address()
		}
	}
	if len(envelope.ReplyTo) > 0 {
		email.ReplyTo = envelope.ReplyTo[0].Address()
	}

	email.ToAddresses = convertAddressesToStringArray(envelope.To)
	email.CcAddresses = convertAddressesToStringArray(envelope.Cc)
	email.BccAddresses = convertAddressesToStringArray(envelope.Bcc)

	email.Flags = flagsToStringArray(msg.Flags)

	return &email
}

func convertAddressesToStringArray(addresses []*goimap.Address) pq.StringArray {
	if len(addresses) == 0 {
		return pq.StringArray{}
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr.MailboxName != "" && addr.HostName != "" {
			emailAddr := addr.Address()
			validation := mailvalidate.ValidateEmailSyntax(emailAddr)
			if validation.IsValid {
				result = append(result, validation.CleanEmail)
			} else {
				result = append(result, emailAddr)
			}
		}
	}

	return pq.StringArray(result)
}

// flagsToStringArray keeps only the flags the cache tracks; server-specific
// keywords pass through untouched so they survive a round trip.
func flagsToStringArray(flags []string) pq.StringArray {
	result := make([]string, 0, len(flags))
	for _, f := range flags {
		if flag, ok := flagFromImap(f); ok {
			result = append(result, flag.String())
		}
	}
	return pq.StringArray(result)
}

func flagFromImap(raw string) (enum.EmailFlag, bool) {
	switch raw {
	case goimap.SeenFlag:
		return enum.FlagSeen, true
	case goimap.FlaggedFlag:
		return enum.FlagFlagged, true
	case goimap.AnsweredFlag:
		return enum.FlagAnswered, true
	case goimap.DeletedFlag:
		return enum.FlagDeleted, true
	case goimap.DraftFlag:
		return enum.FlagDraft, true
	}
	return "", false
}

func imapFlag(flag enum.EmailFlag) string {
	switch flag {
	case enum.FlagSeen:
		return goimap.SeenFlag
	case enum.FlagFlagged:
		return goimap.FlaggedFlag
	case enum.FlagAnswered:
		return goimap.AnsweredFlag
	case enum.FlagDeleted:
		return goimap.DeletedFlag
	case enum.FlagDraft:
		return goimap.DraftFlag
	}
	return "\\" + string(flag)
}

// parseBody reads the full RFC 5322 message and fills the body columns.
func parseBody(email *models.Email, literal goimap.Literal) error {
	if literal == nil {
		return errors.New("no body section in fetch response")
	}

	data, err := io.ReadAll(literal)
	if err != nil {
		return errors.Wrap(err, "error reading message body")
	}

	emailParser, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "error parsing message body")
	}

	headers := make(map[string]interface{})
	for _, key := range emailParser.GetHeaderKeys() {
		values := emailParser.GetHeaderValues(key)
		if len(values) > 0 {
			headers[key] = strings.Join(values, ", ")
		}
	}
	email.RawHeaders = models.JSONMap(headers)

	email.BodyText = emailParser.Text
	email.BodyHTML = emailParser.HTML
	email.BodyCached = true
	return nil
}
