package enum

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

type EmailDirection string

const (
	EmailInbound  EmailDirection = "inbound"
	EmailOutbound EmailDirection = "outbound"
)

func (t EmailDirection) String() string {
	return string(t)
}

type EmailStatus string

const (
	EmailStatusReceived EmailStatus = "received"
	EmailStatusQueued   EmailStatus = "queued"
	EmailStatusSent     EmailStatus = "sent"
	EmailStatusFailed   EmailStatus = "failed"
)

func (t EmailStatus) String() string {
	return string(t)
}

// EmailFlag is an IMAP system flag as cached locally. Values match the
// IMAP flag names without the leading backslash.
type EmailFlag string

const (
	FlagSeen     EmailFlag = "Seen"
	FlagFlagged  EmailFlag = "Flagged"
	FlagAnswered EmailFlag = "Answered"
	FlagDeleted  EmailFlag = "Deleted"
	FlagDraft    EmailFlag = "Draft"
)

func (t EmailFlag) String() string {
	return string(t)
}
