package mailkeep_errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConnection, KindOf(Connection(errors.New("dial tcp: refused"))))
	assert.Equal(t, KindAuthentication, KindOf(Authentication(errors.New("LOGIN failed"))))
	assert.Equal(t, KindNotFound, KindOf(NotFound(ErrEmailNotFound)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("syncing INBOX: %w", Connection(errors.New("connection reset")))

	assert.True(t, IsKind(err, KindConnection))
	assert.Equal(t, KindConnection, KindOf(err))
}

func TestUnwrapReachesSentinel(t *testing.T) {
	err := NotFound(fmt.Errorf("profile prof_1: %w", ErrProfileNotFound))

	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.NotErrorIs(t, err, ErrDirectoryNotFound)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Connection(errors.New("broken pipe"))))
	assert.True(t, IsRetryable(Storage(errors.New("disk full"))))
	assert.False(t, IsRetryable(Authentication(errors.New("bad password"))))
	assert.False(t, IsRetryable(Protocol(errors.New("BAD command"))))
	assert.False(t, IsRetryable(NotFound(ErrEmailNotFound)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestRejectedCarriesRecipients(t *testing.T) {
	err := Rejected(errors.New("550 mailbox unavailable"), []string{"a@example.com", "b@example.com"})

	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindRejected, classified.Kind())
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, classified.RejectedRecipients)
	assert.Contains(t, err.Error(), "550 mailbox unavailable")
}

func TestIsConnectionMessage(t *testing.T) {
	assert.True(t, IsConnectionMessage(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsConnectionMessage(errors.New("unexpected EOF")))
	assert.True(t, IsConnectionMessage(errors.New("dial tcp: connection refused")))
	assert.True(t, IsConnectionMessage(errors.New("lookup imap.example.com: no such host")))
	assert.False(t, IsConnectionMessage(errors.New("NO [ALERT] invalid credentials")))
	assert.False(t, IsConnectionMessage(nil))
}

func TestIsAuthMessage(t *testing.T) {
	assert.True(t, IsAuthMessage(errors.New("NO [AUTHENTICATIONFAILED] Authentication failed")))
	assert.True(t, IsAuthMessage(errors.New("535 5.7.8 Username and Password not accepted")))
	assert.True(t, IsAuthMessage(errors.New("LOGIN failed")))
	assert.False(t, IsAuthMessage(errors.New("connection reset")))
	assert.False(t, IsAuthMessage(nil))
}

func TestClassifyProtocolErr(t *testing.T) {
	assert.Nil(t, ClassifyProtocolErr(nil))
	assert.Equal(t, KindConnection, ClassifyProtocolErr(errors.New("write: broken pipe")).Kind())
	assert.Equal(t, KindAuthentication, ClassifyProtocolErr(errors.New("invalid credentials")).Kind())
	assert.Equal(t, KindProtocol, ClassifyProtocolErr(errors.New("BAD parse error")).Kind())
}

func TestClassifyProtocolErrKeepsExistingKind(t *testing.T) {
	original := NotFound(ErrEmailNotFound)

	classified := ClassifyProtocolErr(fmt.Errorf("fetch uid 9: %w", original))

	assert.Equal(t, KindNotFound, classified.Kind())
}
