package mocks

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/internal/models"
)

// FakeSMTPClient records submitted messages instead of delivering them.
type FakeSMTPClient struct {
	mu   sync.Mutex
	Sent []*models.Email

	// Err fails every send while set.
	Err error
	// RejectAddresses simulates per-recipient refusal.
	RejectAddresses []string
}

func NewFakeSMTPClient() *FakeSMTPClient {
	return &FakeSMTPClient{}
}

func (c *FakeSMTPClient) Send(ctx context.Context, profile *models.Profile, email *models.Email) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}

	if len(c.RejectAddresses) > 0 {
		reject := make(map[string]bool, len(c.RejectAddresses))
		for _, addr := range c.RejectAddresses {
			reject[addr] = true
		}
		var rejected []string
		for _, recipient := range email.AllRecipients() {
			if reject[recipient] {
				rejected = append(rejected, recipient)
			}
		}
		if len(rejected) > 0 {
			return mailkeep_errors.Rejected(errors.Errorf("server rejected %d recipients", len(rejected)), rejected)
		}
	}

	if email.MessageID == "" {
		email.MessageID = "generated-" + profile.ID
	}
	copied := *email
	c.Sent = append(c.Sent, &copied)
	return nil
}

func (c *FakeSMTPClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}
