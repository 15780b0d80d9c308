package imap

import (
	"context"

	goimap "github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
)

func (s *IMAPClient) FetchHeaders(ctx context.Context, directory string, uidAfter uint32) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.FetchHeaders")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDirectory(span, directory)
	span.LogFields(tracingLog.Uint32("uid_after", uidAfter))

	if err := s.ensureSelected(directory); err != nil {
		return nil, err
	}

	// Find the UIDs first; servers return sparse, non-contiguous UID sets and
	// a plain range fetch over-counts badly after expunges.
	criteria := goimap.NewSearchCriteria()
	uidRange := new(goimap.SeqSet)
	uidRange.AddRange(uidAfter+1, 0)
	criteria.Uid = uidRange

	s.client.Timeout = s.commandTimeout
	uids, err := s.client.UidSearch(criteria)
	s.client.Timeout = 0
	if err != nil {
		err = errors.Wrap(err, "error searching for new messages")
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	var headers []*models.Email
	for start := 0; start < len(uids); start += int(s.fetchBatchSize) {
		end := start + int(s.fetchBatchSize)
		if end > len(uids) {
			end = len(uids)
		}
		batch, err := s.fetchHeaderBatch(ctx, directory, uids[start:end])
		if err != nil {
			tracing.TraceErr(span, err)
			return headers, err
		}
		headers = append(headers, batch...)
	}

	span.LogFields(tracingLog.Int("fetched", len(headers)))
	return headers, nil
}

func (s *IMAPClient) fetchHeaderBatch(ctx context.Context, directory string, uids []uint32) ([]*models.Email, error) {
	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	items := []goimap.FetchItem{
		goimap.FetchEnvelope,
		goimap.FetchFlags,
		goimap.FetchUid,
	}

	messages := make(chan *goimap.Message, 10)
	done := make(chan error, 1)

	s.client.Timeout = 2 * s.commandTimeout
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var headers []*models.Email
	for msg := range messages {
		header := s.headerFromMessage(directory, msg)
		if header != nil {
			headers = append(headers, header)
		}
	}
	s.client.Timeout = 0

	// The server may have returned fewer messages than requested; that is
	// not an error, the caller reconciles against what arrived.
	if err := <-done; err != nil {
		return headers, mailkeep_errors.ClassifyProtocolErr(errors.Wrap(err, "error fetching headers"))
	}
	return headers, nil
}

func (s *IMAPClient) FetchBody(ctx context.Context, directory string, uid uint32) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.FetchBody")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDirectory(span, directory)
	span.LogFields(tracingLog.Uint32("uid", uid))

	if err := s.ensureSelected(directory); err != nil {
		return nil, err
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{
		goimap.FetchEnvelope,
		goimap.FetchFlags,
		goimap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *goimap.Message, 1)
	done := make(chan error, 1)

	s.client.Timeout = 2 * s.commandTimeout
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var fetched *goimap.Message
	for msg := range messages {
		fetched = msg
	}
	s.client.Timeout = 0

	if err := <-done; err != nil {
		err = errors.Wrap(err, "error fetching body")
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}

	// An empty fetch result means the UID vanished since the last refresh:
	// the message moved or was deleted. Not fatal, the caller refreshes.
	if fetched == nil {
		return nil, mailkeep_errors.NotFound(errors.Errorf("uid %d no longer in %s", uid, directory))
	}

	email := s.headerFromMessage(directory, fetched)
	if email == nil {
		return nil, mailkeep_errors.Protocol(errors.Errorf("unparseable message for uid %d", uid))
	}

	if err := parseBody(email, fetched.GetBody(section)); err != nil {
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.Protocol(err)
	}
	return email, nil
}

func (s *IMAPClient) Search(ctx context.Context, directory string, term string) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.Search")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDirectory(span, directory)

	if err := s.ensureSelected(directory); err != nil {
		return nil, err
	}

	criteria := goimap.NewSearchCriteria()
	criteria.Text = []string{term}

	s.client.Timeout = s.commandTimeout
	uids, err := s.client.UidSearch(criteria)
	s.client.Timeout = 0
	if err != nil {
		err = errors.Wrap(err, "error searching folder")
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}
	return uids, nil
}

func (s *IMAPClient) SetFlag(ctx context.Context, directory string, uid uint32, flag enum.EmailFlag, value bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.SetFlag")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDirectory(span, directory)
	span.LogFields(tracingLog.Uint32("uid", uid), tracingLog.String("flag", flag.String()), tracingLog.Bool("value", value))

	if err := s.ensureSelected(directory); err != nil {
		return err
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)

	op := goimap.FlagsOp(goimap.AddFlags)
	if !value {
		op = goimap.RemoveFlags
	}
	// SILENT suppresses the untagged FETCH response; the store itself is
	// idempotent server-side, repeating it with the same value is a no-op.
	item := goimap.FormatFlagsOp(op, true)
	flags := []interface{}{imapFlag(flag)}

	s.client.Timeout = s.commandTimeout
	err := s.client.UidStore(seqSet, item, flags, nil)
	s.client.Timeout = 0
	if err != nil {
		err = errors.Wrapf(err, "error storing flag %s", flag)
		tracing.TraceErr(span, err)
		return mailkeep_errors.ClassifyProtocolErr(err)
	}
	return nil
}

// DeleteMarked marks the given UIDs \Deleted and expunges the folder. It
// returns the subset the server actually removed, verified by a follow-up
// UID SEARCH, so the caller never drops cache rows the server still holds.
func (s *IMAPClient) DeleteMarked(ctx context.Context, directory string, uids []uint32) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.DeleteMarked")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDirectory(span, directory)
	span.LogFields(tracingLog.Int("requested", len(uids)))

	if len(uids) == 0 {
		return nil, nil
	}
	if err := s.ensureSelected(directory); err != nil {
		return nil, err
	}

	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	flags := []interface{}{goimap.DeletedFlag}

	s.client.Timeout = s.commandTimeout
	err := s.client.UidStore(seqSet, item, flags, nil)
	s.client.Timeout = 0
	if err != nil {
		err = errors.Wrap(err, "error marking messages deleted")
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}

	s.client.Timeout = s.commandTimeout
	err = s.client.Expunge(nil)
	s.client.Timeout = 0
	if err != nil {
		err = errors.Wrap(err, "error expunging folder")
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}

	// Verify what actually went away.
	criteria := goimap.NewSearchCriteria()
	criteria.Uid = seqSet

	s.client.Timeout = s.commandTimeout
	remaining, err := s.client.UidSearch(criteria)
	s.client.Timeout = 0
	if err != nil {
		err = errors.Wrap(err, "error verifying expunge")
		tracing.TraceErr(span, err)
		return nil, mailkeep_errors.ClassifyProtocolErr(err)
	}

	stillThere := make(map[uint32]bool, len(remaining))
	for _, uid := range remaining {
		stillThere[uid] = true
	}

	var removed []uint32
	for _, uid := range uids {
		if !stillThere[uid] {
			removed = append(removed, uid)
		}
	}
	span.LogFields(tracingLog.Int("removed", len(removed)))
	return removed, nil
}
