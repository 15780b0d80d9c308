package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/internal/utils"
)

type SMTPClient struct {
	log logger.Logger
}

func NewSMTPClient(log logger.Logger) interfaces.SMTPClient {
	return &SMTPClient{log: log}
}

// Send submits the email through the profile's SMTP server. It only touches
// the passed model (message id, direction, timestamps); persisting status is
// the caller's job so a storage failure never masks the send result.
func (s *SMTPClient) Send(ctx context.Context, profile *models.Profile, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProfile(span, profile.ID)

	err := s.validateEmail(ctx, profile, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	recipients, messageBuffer, err := s.prepareMessage(ctx, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err = s.sendToServer(ctx, profile, email.FromAddress, recipients, messageBuffer)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// validateEmail performs basic validation and fills the fields a queued
// message may still be missing.
func (s *SMTPClient) validateEmail(ctx context.Context, profile *models.Profile, email *models.Email) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPClient.validateEmail")
	defer span.Finish()

	if email == nil {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "email cannot be nil")
		tracing.TraceErr(span, err)
		return err
	}

	email.Direction = enum.EmailOutbound

	if email.FromAddress == "" {
		email.FromAddress = profile.EmailAddress
	}
	validation := mailvalidate.ValidateEmailSyntax(email.FromAddress)
	if !validation.IsValid {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "from address is not valid")
		tracing.TraceErr(span, err)
		return err
	}
	email.FromAddress = validation.CleanEmail

	if len(email.ToAddresses) == 0 {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "at least one recipient is required")
		tracing.TraceErr(span, err)
		return err
	}
	for _, recipient := range email.AllRecipients() {
		if !mailvalidate.ValidateEmailSyntax(recipient).IsValid {
			err := errors.Wrapf(mailkeep_errors.ErrInvalidInput, "recipient address %s is not valid", recipient)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if email.BodyText == "" && email.BodyHTML == "" {
		err := errors.Wrap(mailkeep_errors.ErrInvalidInput, "email must have either text or HTML content")
		tracing.TraceErr(span, err)
		return err
	}

	if email.MessageID == "" {
		email.MessageID = utils.GenerateMessageID(validation.Domain, "")
	}

	return nil
}

// prepareMessage builds the email message in proper MIME format.
func (s *SMTPClient) prepareMessage(ctx context.Context, email *models.Email) ([]string, *bytes.Buffer, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.prepareMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	buffer := bytes.NewBuffer(nil)

	headers := email.BuildHeaders()
	tracing.LogObjectAsJson(span, "headers", headers)

	rawHeaders := make(models.JSONMap)
	for k, v := range headers {
		rawHeaders[k] = v
	}
	email.RawHeaders = rawHeaders

	var err error
	if email.HasRichContent() {
		err = s.buildMultipartMessage(ctx, email, headers, buffer)
	} else {
		err = s.buildPlainTextMessage(email, headers, buffer)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}

	return email.AllRecipients(), buffer, nil
}

// buildMultipartMessage creates a multipart/alternative message carrying both
// the text and HTML renditions.
func (s *SMTPClient) buildMultipartMessage(ctx context.Context, email *models.Email, headers map[string]string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.buildMultipartMessage")
	defer span.Finish()

	writer := multipart.NewWriter(buffer)
	boundary := writer.Boundary()

	headers["Content-Type"] = "multipart/alternative; boundary=" + boundary

	writeHeaders(headers, buffer)

	if email.BodyText != "" {
		if err := s.addTextPart(ctx, writer, email.BodyText); err != nil {
			return err
		}
	}

	if email.BodyHTML != "" {
		if err := s.addHtmlPart(ctx, writer, email.BodyHTML); err != nil {
			return err
		}
	}

	return writer.Close()
}

// buildPlainTextMessage creates a simple text-only email.
func (s *SMTPClient) buildPlainTextMessage(email *models.Email, headers map[string]string, buffer *bytes.Buffer) error {
	headers["Content-Type"] = "text/plain; charset=UTF-8"

	writeHeaders(headers, buffer)

	_, err := buffer.WriteString(email.BodyText)
	return err
}

// writeHeaders writes email headers to the buffer
func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

// addTextPart adds a plain text part to a multipart message
func (s *SMTPClient) addTextPart(ctx context.Context, writer *multipart.Writer, content string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPClient.addTextPart")
	defer span.Finish()

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		err = fmt.Errorf("failed to create text part: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = textPart.Write([]byte(content))
	if err != nil {
		err = fmt.Errorf("failed to write text content: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// addHtmlPart adds an HTML part to a multipart message
func (s *SMTPClient) addHtmlPart(ctx context.Context, writer *multipart.Writer, content string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPClient.addHtmlPart")
	defer span.Finish()

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		err = fmt.Errorf("failed to create HTML part: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = htmlPart.Write([]byte(content))
	if err != nil {
		err = fmt.Errorf("failed to write HTML content: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// sendToServer sends the prepared email to the SMTP server
func (s *SMTPClient) sendToServer(ctx context.Context, profile *models.Profile, from string, recipients []string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.sendToServer")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_server", profile.SmtpServer)
	span.LogKV("smtp_port", profile.SmtpPort)

	addr := fmt.Sprintf("%s:%d", profile.SmtpServer, profile.SmtpPort)
	auth := smtp.PlainAuth("", profile.SmtpUsername, profile.SmtpPassword, profile.SmtpServer)

	conn, err := s.dial(ctx, profile, addr)
	if err != nil {
		tracing.TraceErr(span, err)
		return mailkeep_errors.Connection(err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, profile.SmtpServer)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return mailkeep_errors.Connection(err)
	}
	defer client.Close()

	if profile.SmtpSecurity == enum.EmailSecurityStartTLS {
		tlsConfig := &tls.Config{ServerName: profile.SmtpServer}
		if err = client.StartTLS(tlsConfig); err != nil {
			err = fmt.Errorf("failed to start TLS: %w", err)
			tracing.TraceErr(span, err)
			return mailkeep_errors.Connection(err)
		}
	}

	if err = client.Auth(auth); err != nil {
		err = fmt.Errorf("SMTP authentication failed: %w", err)
		tracing.TraceErr(span, err)
		return mailkeep_errors.Authentication(err)
	}

	if err = client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return mailkeep_errors.ClassifyProtocolErr(err)
	}

	// Keep going through the recipient list so the caller learns every
	// address the server turned down, not just the first.
	var rejected []string
	var rcptErr error
	accepted := 0
	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			rejected = append(rejected, recipient)
			rcptErr = err
			continue
		}
		accepted++
	}
	if len(rejected) > 0 {
		err = errors.Wrapf(rcptErr, "server rejected %d of %d recipients", len(rejected), len(recipients))
		tracing.TraceErr(span, err)
		return mailkeep_errors.Rejected(err, rejected)
	}
	if accepted == 0 {
		err = errors.New("no recipients accepted")
		tracing.TraceErr(span, err)
		return mailkeep_errors.Rejected(err, recipients)
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return mailkeep_errors.ClassifyProtocolErr(err)
	}

	_, err = dataWriter.Write(buffer.Bytes())
	if err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return mailkeep_errors.Connection(err)
	}

	err = dataWriter.Close()
	if err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return mailkeep_errors.ClassifyProtocolErr(err)
	}

	if err = client.Quit(); err != nil {
		// The message is already accepted at this point; a failed QUIT is
		// worth a log line, nothing more.
		s.log.Warnf("smtp quit failed for %s: %v", profile.EmailAddress, err)
	}
	return nil
}

func (s *SMTPClient) dial(ctx context.Context, profile *models.Profile, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	if profile.SmtpSecurity == enum.EmailSecurityTLS {
		tlsConfig := &tls.Config{ServerName: profile.SmtpServer}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		return conn, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	return conn, nil
}
