package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
)

// IMAPClient is one live session against a profile's IMAP server. Folder
// selection is session state: every operation that names a directory goes
// through ensureSelected, and changing directory always costs a SELECT round
// trip because UID validity may have changed.
type IMAPClient struct {
	connectTimeout time.Duration
	commandTimeout time.Duration
	fetchBatchSize uint32
	log            logger.Logger

	client   *client.Client
	profile  *models.Profile
	selected string
}

type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	FetchBatchSize uint32
}

func NewIMAPClient(opts Options, log logger.Logger) interfaces.IMAPClient {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = time.Minute
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.FetchBatchSize == 0 {
		opts.FetchBatchSize = 200
	}
	return &IMAPClient{
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
		fetchBatchSize: opts.FetchBatchSize,
		log:            log,
	}
}

func (s *IMAPClient) Connect(ctx context.Context, profile *models.Profile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.Connect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profile.ID)

	serverAddr := fmt.Sprintf("%s:%d", profile.ImapServer, profile.ImapPort)

	dialer := &net.Dialer{
		Timeout:   s.connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	if profile.ImapSecurity == enum.EmailSecurityTLS {
		tlsConfig := &tls.Config{
			ServerName: profile.ImapServer,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
		if err == nil && profile.ImapSecurity == enum.EmailSecurityStartTLS {
			err = c.StartTLS(&tls.Config{ServerName: profile.ImapServer})
		}
	}
	if err != nil {
		err = errors.Wrap(err, "connection error")
		tracing.TraceErr(span, err)
		return mailkeep_errors.Connection(err)
	}

	c.Timeout = s.commandTimeout
	caps, err := c.Capability()
	if err != nil {
		_ = c.Logout()
		err = errors.Wrap(err, "capability error")
		tracing.TraceErr(span, err)
		return mailkeep_errors.ClassifyProtocolErr(err)
	}
	s.log.Debugf("[%s] server capabilities: %v", profile.ID, caps)

	if err := c.Login(profile.ImapUsername, profile.ImapPassword); err != nil {
		_ = c.Logout()
		err = errors.Wrap(err, "login error")
		tracing.TraceErr(span, err)
		if mailkeep_errors.IsConnectionMessage(err) {
			return mailkeep_errors.Connection(err)
		}
		return mailkeep_errors.Authentication(err)
	}

	c.Timeout = 0
	s.client = c
	s.profile = profile
	s.selected = ""

	s.log.Infof("[%s] connected to %s", profile.ID, serverAddr)
	return nil
}

func (s *IMAPClient) Close() error {
	if s.client == nil {
		return nil
	}
	s.client.Timeout = 5 * time.Second
	err := s.client.Logout()
	s.client = nil
	s.profile = nil
	s.selected = ""
	return err
}

func (s *IMAPClient) ListDirectories(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.ListDirectories")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	mailboxes := make(chan *goimap.MailboxInfo, 20)
	done := make(chan error, 1)

	s.client.Timeout = s.commandTimeout
	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		// \Noselect folders exist only as hierarchy nodes
		if hasAttr(m.Attributes, goimap.NoSelectAttr) {
			continue
		}
		names = append(names, m.Name)
	}
	s.client.Timeout = 0

	if err := <-done; err != nil {
		err = errors.Wrap(err, "error listing folders")
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}

	sort.Strings(names)
	return names, nil
}

func (s *IMAPClient) SelectDirectory(ctx context.Context, directory string) (*interfaces.DirectoryStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.SelectDirectory")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDirectory(span, directory)

	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	s.client.Timeout = s.commandTimeout
	mbox, err := s.client.Select(directory, false)
	s.client.Timeout = 0
	if err != nil {
		s.selected = ""
		err = errors.Wrapf(err, "error selecting folder %s", directory)
		tracing.TraceErr(span, err)
		if mailkeep_errors.IsConnectionMessage(err) {
			return nil, mailkeep_errors.Connection(err)
		}
		return nil, mailkeep_errors.NotFound(err)
	}
	s.selected = directory

	status := &interfaces.DirectoryStatus{
		Name:        directory,
		UIDValidity: mbox.UidValidity,
		UIDNext:     mbox.UidNext,
		Messages:    mbox.Messages,
	}

	// The SELECT response carries the first-unseen sequence number, not a
	// count; a UID SEARCH gives the real number of unseen messages.
	unseen, err := s.searchUnseen()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}
	status.Unseen = unseen

	return status, nil
}

func (s *IMAPClient) searchUnseen() (uint32, error) {
	criteria := goimap.NewSearchCriteria()
	criteria.WithoutFlags = []string{goimap.SeenFlag}

	s.client.Timeout = s.commandTimeout
	uids, err := s.client.UidSearch(criteria)
	s.client.Timeout = 0
	if err != nil {
		return 0, errors.Wrap(err, "error counting unseen messages")
	}
	return uint32(len(uids)), nil
}

func (s *IMAPClient) ensureConnected() error {
	if s.client == nil {
		return mailkeep_errors.Connection(mailkeep_errors.ErrSessionClosed)
	}
	return nil
}

func (s *IMAPClient) ensureSelected(directory string) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}
	if s.selected == directory {
		return nil
	}
	s.client.Timeout = s.commandTimeout
	_, err := s.client.Select(directory, false)
	s.client.Timeout = 0
	if err != nil {
		s.selected = ""
		err = errors.Wrapf(err, "error selecting folder %s", directory)
		if mailkeep_errors.IsConnectionMessage(err) {
			return mailkeep_errors.Connection(err)
		}
		return mailkeep_errors.NotFound(err)
	}
	s.selected = directory
	return nil
}

func hasAttr(attrs []string, attr string) bool {
	for _, a := range attrs {
		if a == attr {
			return true
		}
	}
	return false
}
