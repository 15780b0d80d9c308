// Package mocks holds in-memory test doubles for the repository and wire
// interfaces. They mirror the semantics of the real implementations closely
// enough for service-level tests to run without postgres or a mail server.
package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
	"github.com/mailkeep/mailkeep/internal/utils"
)

type InMemoryProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
}

func NewInMemoryProfileRepository() *InMemoryProfileRepository {
	return &InMemoryProfileRepository{profiles: make(map[string]*models.Profile)}
}

func (r *InMemoryProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.EmailAddress == profile.EmailAddress {
			return mailkeep_errors.ErrProfileAlreadyExists
		}
	}
	if profile.ID == "" {
		profile.ID = utils.GenerateNanoIDWithPrefix("prof", 16)
	}
	profile.CreatedAt = utils.Now()
	copied := *profile
	r.profiles[profile.ID] = &copied
	return nil
}

func (r *InMemoryProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[profile.ID]; !ok {
		return mailkeep_errors.ErrProfileNotFound
	}
	copied := *profile
	r.profiles[profile.ID] = &copied
	return nil
}

func (r *InMemoryProfileRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; !ok {
		return mailkeep_errors.ErrProfileNotFound
	}
	delete(r.profiles, id)
	return nil
}

func (r *InMemoryProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *InMemoryProfileRepository) GetByEmailAddress(ctx context.Context, emailAddress string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.EmailAddress == emailAddress {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *InMemoryProfileRepository) List(ctx context.Context) ([]*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryProfileRepository) UpdateConnectionStatus(ctx context.Context, id string, status enum.ConnectionStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return mailkeep_errors.ErrProfileNotFound
	}
	p.ConnectionStatus = status
	p.ErrorMessage = errorMessage
	if status == enum.ConnectionActive {
		p.LastSynced = utils.NowPtr()
	}
	return nil
}

type InMemoryDirectoryRepository struct {
	mu          sync.Mutex
	directories map[string]*models.Directory
	emails      *InMemoryEmailRepository
}

// NewInMemoryDirectoryRepository takes the email repository so
// ReplaceForProfile can cascade the way the real implementation does.
func NewInMemoryDirectoryRepository(emails *InMemoryEmailRepository) *InMemoryDirectoryRepository {
	return &InMemoryDirectoryRepository{
		directories: make(map[string]*models.Directory),
		emails:      emails,
	}
}

func dirKey(profileID, name string) string {
	return profileID + "\x00" + name
}

func (r *InMemoryDirectoryRepository) Save(ctx context.Context, directory *models.Directory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if directory.ID == "" {
		directory.ID = utils.GenerateNanoIDWithPrefix("dir", 16)
	}
	copied := *directory
	r.directories[dirKey(directory.ProfileID, directory.Name)] = &copied
	return nil
}

func (r *InMemoryDirectoryRepository) GetByName(ctx context.Context, profileID, name string) (*models.Directory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.directories[dirKey(profileID, name)]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (r *InMemoryDirectoryRepository) ListByProfile(ctx context.Context, profileID string) ([]*models.Directory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Directory
	for _, d := range r.directories {
		if d.ProfileID == profileID {
			copied := *d
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryDirectoryRepository) ReplaceForProfile(ctx context.Context, profileID string, directories []*models.Directory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	remote := make(map[string]*models.Directory, len(directories))
	for _, d := range directories {
		remote[d.Name] = d
	}

	for key, existing := range r.directories {
		if existing.ProfileID != profileID {
			continue
		}
		incoming, stillExists := remote[existing.Name]
		if !stillExists || (existing.UIDValidity != 0 && incoming.UIDValidity != existing.UIDValidity) {
			delete(r.directories, key)
			r.emails.deleteByDirectoryLocked(profileID, existing.Name)
		}
	}

	for _, incoming := range directories {
		key := dirKey(profileID, incoming.Name)
		if existing, ok := r.directories[key]; ok {
			existing.UIDValidity = incoming.UIDValidity
			existing.TotalCount = incoming.TotalCount
			existing.UnreadCount = incoming.UnreadCount
			existing.LastRefresh = incoming.LastRefresh
			continue
		}
		copied := *incoming
		copied.ID = utils.GenerateNanoIDWithPrefix("dir", 16)
		copied.ProfileID = profileID
		copied.Stale = true
		r.directories[key] = &copied
	}
	return nil
}

func (r *InMemoryDirectoryRepository) MarkStale(ctx context.Context, profileID, name string, stale bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.directories[dirKey(profileID, name)]
	if !ok {
		return nil
	}
	d.Stale = stale
	return nil
}

func (r *InMemoryDirectoryRepository) DeleteByProfile(ctx context.Context, profileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, d := range r.directories {
		if d.ProfileID == profileID {
			delete(r.directories, key)
		}
	}
	return nil
}

type InMemoryEmailRepository struct {
	mu     sync.Mutex
	emails map[string]*models.Email
}

func NewInMemoryEmailRepository() *InMemoryEmailRepository {
	return &InMemoryEmailRepository{emails: make(map[string]*models.Email)}
}

func (r *InMemoryEmailRepository) UpsertHeader(ctx context.Context, email *models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if email.MessageID != "" {
		for _, existing := range r.emails {
			if existing.ProfileID == email.ProfileID && existing.MessageID == email.MessageID {
				r.applyHeader(existing, email)
				email.ID = existing.ID
				return nil
			}
		}
	}
	for _, existing := range r.emails {
		if existing.ProfileID == email.ProfileID && existing.Directory == email.Directory && existing.ImapUID == email.ImapUID {
			r.applyHeader(existing, email)
			email.ID = existing.ID
			return nil
		}
	}

	if email.ID == "" {
		email.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	email.CreatedAt = utils.Now()
	copied := *email
	r.emails[email.ID] = &copied
	return nil
}

func (r *InMemoryEmailRepository) applyHeader(existing, incoming *models.Email) {
	existing.Directory = incoming.Directory
	existing.ImapUID = incoming.ImapUID
	existing.MessageID = incoming.MessageID
	existing.Subject = incoming.Subject
	existing.FromAddress = incoming.FromAddress
	existing.FromName = incoming.FromName
	existing.ToAddresses = incoming.ToAddresses
	existing.CcAddresses = incoming.CcAddresses
	existing.SentAt = incoming.SentAt
	existing.ReceivedAt = incoming.ReceivedAt
	existing.Flags = incoming.Flags
	existing.Direction = incoming.Direction
	existing.Status = incoming.Status
}

func (r *InMemoryEmailRepository) Update(ctx context.Context, email *models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *email
	r.emails[email.ID] = &copied
	return nil
}

func (r *InMemoryEmailRepository) GetByUID(ctx context.Context, profileID, directory string, uid uint32) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.emails {
		if e.ProfileID == profileID && e.Directory == directory && e.ImapUID == uid {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *InMemoryEmailRepository) GetByMessageID(ctx context.Context, profileID, messageID string) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messageID = utils.NormalizeMessageID(messageID)
	for _, e := range r.emails {
		if e.ProfileID == profileID && e.MessageID == messageID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *InMemoryEmailRepository) ListByDirectory(ctx context.Context, profileID, directory string) ([]*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Email
	for _, e := range r.emails {
		if e.ProfileID == profileID && e.Directory == directory {
			copied := *e
			out = append(out, &copied)
		}
	}
	sortByTimestampDesc(out)
	return out, nil
}

func (r *InMemoryEmailRepository) SearchLocal(ctx context.Context, profileID, directory, term string) ([]*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	term = strings.ToLower(term)
	var out []*models.Email
	for _, e := range r.emails {
		if e.ProfileID != profileID {
			continue
		}
		if directory != "" && e.Directory != directory {
			continue
		}
		if strings.Contains(strings.ToLower(e.Subject), term) ||
			strings.Contains(strings.ToLower(e.FromAddress), term) ||
			strings.Contains(strings.ToLower(e.FromName), term) ||
			strings.Contains(strings.ToLower(e.BodyText), term) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sortByTimestampDesc(out)
	return out, nil
}

func (r *InMemoryEmailRepository) Delete(ctx context.Context, profileID, directory string, uid uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.emails {
		if e.ProfileID == profileID && e.Directory == directory && e.ImapUID == uid {
			delete(r.emails, id)
		}
	}
	return nil
}

func (r *InMemoryEmailRepository) DeleteByDirectory(ctx context.Context, profileID, directory string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteByDirectoryLocked(profileID, directory)
	return nil
}

func (r *InMemoryEmailRepository) deleteByDirectoryLocked(profileID, directory string) {
	for id, e := range r.emails {
		if e.ProfileID == profileID && e.Directory == directory {
			delete(r.emails, id)
		}
	}
}

func (r *InMemoryEmailRepository) DeleteByProfile(ctx context.Context, profileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.emails {
		if e.ProfileID == profileID {
			delete(r.emails, id)
		}
	}
	return nil
}

func (r *InMemoryEmailRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.emails)
}

func sortByTimestampDesc(emails []*models.Email) {
	sort.Slice(emails, func(i, j int) bool {
		return emailTimestamp(emails[i]).After(emailTimestamp(emails[j]))
	})
}

func emailTimestamp(e *models.Email) time.Time {
	if e.ReceivedAt != nil {
		return *e.ReceivedAt
	}
	if e.SentAt != nil {
		return *e.SentAt
	}
	return e.CreatedAt
}

type InMemoryPendingOperationRepository struct {
	mu  sync.Mutex
	ops map[string]*models.PendingOperation
}

func NewInMemoryPendingOperationRepository() *InMemoryPendingOperationRepository {
	return &InMemoryPendingOperationRepository{ops: make(map[string]*models.PendingOperation)}
}

func (r *InMemoryPendingOperationRepository) Save(ctx context.Context, op *models.PendingOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.ops {
		if existing.ProfileID == op.ProfileID && existing.Directory == op.Directory &&
			existing.ImapUID == op.ImapUID && existing.Kind == op.Kind && existing.Flag == op.Flag {
			op.ID = existing.ID
			return nil
		}
	}
	if op.ID == "" {
		op.ID = utils.GenerateNanoIDWithPrefix("pend", 16)
	}
	op.CreatedAt = utils.Now()
	copied := *op
	r.ops[op.ID] = &copied
	return nil
}

func (r *InMemoryPendingOperationRepository) ListByProfile(ctx context.Context, profileID string) ([]*models.PendingOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PendingOperation
	for _, op := range r.ops {
		if op.ProfileID == profileID {
			copied := *op
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryPendingOperationRepository) ListByDirectory(ctx context.Context, profileID, directory string) ([]*models.PendingOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PendingOperation
	for _, op := range r.ops {
		if op.ProfileID == profileID && op.Directory == directory {
			copied := *op
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryPendingOperationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, id)
	return nil
}

func (r *InMemoryPendingOperationRepository) RecordAttempt(ctx context.Context, id string, attemptErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return nil
	}
	op.Attempts++
	op.LastError = attemptErr
	return nil
}

func (r *InMemoryPendingOperationRepository) DeleteByProfile(ctx context.Context, profileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, op := range r.ops {
		if op.ProfileID == profileID {
			delete(r.ops, id)
		}
	}
	return nil
}

func (r *InMemoryPendingOperationRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

type InMemoryContactRepository struct {
	mu       sync.Mutex
	contacts map[string]*models.Contact
}

func NewInMemoryContactRepository() *InMemoryContactRepository {
	return &InMemoryContactRepository{contacts: make(map[string]*models.Contact)}
}

func (r *InMemoryContactRepository) Create(ctx context.Context, contact *models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.EmailAddress == contact.EmailAddress {
			return mailkeep_errors.ErrContactAlreadyExists
		}
	}
	if contact.ID == "" {
		contact.ID = utils.GenerateNanoIDWithPrefix("cont", 16)
	}
	copied := *contact
	r.contacts[contact.ID] = &copied
	return nil
}

func (r *InMemoryContactRepository) Update(ctx context.Context, contact *models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contacts[contact.ID]; !ok {
		return mailkeep_errors.ErrContactNotFound
	}
	copied := *contact
	r.contacts[contact.ID] = &copied
	return nil
}

func (r *InMemoryContactRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contacts[id]; !ok {
		return mailkeep_errors.ErrContactNotFound
	}
	delete(r.contacts, id)
	return nil
}

func (r *InMemoryContactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *InMemoryContactRepository) List(ctx context.Context) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (r *InMemoryContactRepository) Search(ctx context.Context, term string) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	term = strings.ToLower(term)
	var out []*models.Contact
	for _, c := range r.contacts {
		if strings.Contains(strings.ToLower(c.DisplayName), term) ||
			strings.Contains(strings.ToLower(c.EmailAddress), term) {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

type InMemorySettingRepository struct {
	mu       sync.Mutex
	settings map[string]string
}

func NewInMemorySettingRepository() *InMemorySettingRepository {
	return &InMemorySettingRepository{settings: make(map[string]string)}
}

func (r *InMemorySettingRepository) GetAll(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.settings))
	for k, v := range r.settings {
		out[k] = v
	}
	return out, nil
}

func (r *InMemorySettingRepository) SaveAll(ctx context.Context, settings map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range settings {
		r.settings[k] = v
	}
	return nil
}

func (r *InMemorySettingRepository) Get(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings[key], nil
}

func (r *InMemorySettingRepository) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}
