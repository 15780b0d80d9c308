package interfaces

import (
	"context"

	"github.com/mailkeep/mailkeep/internal/models"
)

// SMTPClient submits outbound mail for a single profile. On an envelope or
// recipient refusal the returned error is rejected-classified and carries
// per-recipient detail when the server provided it; absent that detail the
// whole send is reported failed with no partial-success assumption.
type SMTPClient interface {
	Send(ctx context.Context, profile *models.Profile, email *models.Email) error
}

// SMTPClientFactory builds a submission client; injected so tests can supply
// fakes.
type SMTPClientFactory func() SMTPClient
