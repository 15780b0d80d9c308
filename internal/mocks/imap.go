package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	mailkeep_errors "github.com/mailkeep/mailkeep/errors"
	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/enum"
	"github.com/mailkeep/mailkeep/internal/models"
)

// FakeMessage is one message held by the fake server.
type FakeMessage struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Body      string
	Flags     map[enum.EmailFlag]bool
}

// FakeFolder is one folder on the fake server.
type FakeFolder struct {
	UIDValidity uint32
	NextUID     uint32
	Messages    map[uint32]*FakeMessage
}

// FakeIMAPServer models the remote state that fake clients operate on.
// Tests mutate it directly to simulate server-side changes, and set the
// error fields to simulate outages.
type FakeIMAPServer struct {
	mu      sync.Mutex
	Folders map[string]*FakeFolder

	// ConnectErr fails every Connect attempt while set.
	ConnectErr error
	// OpErr fails the named operation once, then clears.
	OpErr map[string]error
	// RefuseExpunge lists UIDs the server keeps despite a delete request.
	RefuseExpunge map[uint32]bool

	Connects int
}

func NewFakeIMAPServer() *FakeIMAPServer {
	return &FakeIMAPServer{
		Folders:       make(map[string]*FakeFolder),
		OpErr:         make(map[string]error),
		RefuseExpunge: make(map[uint32]bool),
	}
}

func (srv *FakeIMAPServer) AddFolder(name string, uidValidity uint32) *FakeFolder {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	folder := &FakeFolder{
		UIDValidity: uidValidity,
		NextUID:     1,
		Messages:    make(map[uint32]*FakeMessage),
	}
	srv.Folders[name] = folder
	return folder
}

func (srv *FakeIMAPServer) AddMessage(folderName string, msg *FakeMessage) *FakeMessage {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	folder := srv.Folders[folderName]
	if msg.UID == 0 {
		msg.UID = folder.NextUID
	}
	if folder.NextUID <= msg.UID {
		folder.NextUID = msg.UID + 1
	}
	if msg.Flags == nil {
		msg.Flags = make(map[enum.EmailFlag]bool)
	}
	folder.Messages[msg.UID] = msg
	return msg
}

func (srv *FakeIMAPServer) RemoveMessage(folderName string, uid uint32) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if folder, ok := srv.Folders[folderName]; ok {
		delete(folder.Messages, uid)
	}
}

// Message returns a snapshot of the stored message. The live record keeps
// being mutated by the session goroutine, so callers get a copy.
func (srv *FakeIMAPServer) Message(folderName string, uid uint32) *FakeMessage {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	folder, ok := srv.Folders[folderName]
	if !ok {
		return nil
	}
	msg, ok := folder.Messages[uid]
	if !ok {
		return nil
	}
	copied := *msg
	copied.Flags = make(map[enum.EmailFlag]bool, len(msg.Flags))
	for flag, set := range msg.Flags {
		copied.Flags[flag] = set
	}
	return &copied
}

// HasFlag reads one flag under the server lock.
func (srv *FakeIMAPServer) HasFlag(folderName string, uid uint32, flag enum.EmailFlag) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	folder, ok := srv.Folders[folderName]
	if !ok {
		return false
	}
	msg, ok := folder.Messages[uid]
	if !ok {
		return false
	}
	return msg.Flags[flag]
}

func (srv *FakeIMAPServer) SetConnectErr(err error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.ConnectErr = err
}

func (srv *FakeIMAPServer) FailOnce(op string, err error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.OpErr[op] = err
}

func (srv *FakeIMAPServer) takeOpErr(op string) error {
	err, ok := srv.OpErr[op]
	if ok {
		delete(srv.OpErr, op)
	}
	return err
}

// FakeIMAPClient implements the wire interface against a FakeIMAPServer.
type FakeIMAPClient struct {
	server    *FakeIMAPServer
	connected bool
}

func NewFakeIMAPClient(server *FakeIMAPServer) interfaces.IMAPClient {
	return &FakeIMAPClient{server: server}
}

// Factory returns an IMAPClientFactory bound to the server.
func (srv *FakeIMAPServer) Factory() interfaces.IMAPClientFactory {
	return func() interfaces.IMAPClient {
		return NewFakeIMAPClient(srv)
	}
}

func (c *FakeIMAPClient) Connect(ctx context.Context, profile *models.Profile) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.Connects++
	if c.server.ConnectErr != nil {
		return c.server.ConnectErr
	}
	c.connected = true
	return nil
}

func (c *FakeIMAPClient) Close() error {
	c.connected = false
	return nil
}

func (c *FakeIMAPClient) ensure() error {
	if !c.connected {
		return mailkeep_errors.Connection(mailkeep_errors.ErrSessionClosed)
	}
	return nil
}

func (c *FakeIMAPClient) ListDirectories(ctx context.Context) ([]string, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.takeOpErr("ListDirectories"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.server.Folders))
	for name := range c.server.Folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *FakeIMAPClient) SelectDirectory(ctx context.Context, directory string) (*interfaces.DirectoryStatus, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.takeOpErr("SelectDirectory"); err != nil {
		return nil, err
	}
	folder, ok := c.server.Folders[directory]
	if !ok {
		return nil, mailkeep_errors.NotFound(errors.Errorf("no folder %s", directory))
	}
	unseen := uint32(0)
	for _, msg := range folder.Messages {
		if !msg.Flags[enum.FlagSeen] {
			unseen++
		}
	}
	return &interfaces.DirectoryStatus{
		Name:        directory,
		UIDValidity: folder.UIDValidity,
		UIDNext:     folder.NextUID,
		Messages:    uint32(len(folder.Messages)),
		Unseen:      unseen,
	}, nil
}

func (c *FakeIMAPClient) FetchHeaders(ctx context.Context, directory string, uidAfter uint32) ([]*models.Email, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.takeOpErr("FetchHeaders"); err != nil {
		return nil, err
	}
	folder, ok := c.server.Folders[directory]
	if !ok {
		return nil, mailkeep_errors.NotFound(errors.Errorf("no folder %s", directory))
	}
	var out []*models.Email
	for uid, msg := range folder.Messages {
		if uid <= uidAfter {
			continue
		}
		out = append(out, headerModel(directory, msg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImapUID < out[j].ImapUID })
	return out, nil
}

func (c *FakeIMAPClient) FetchBody(ctx context.Context, directory string, uid uint32) (*models.Email, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.takeOpErr("FetchBody"); err != nil {
		return nil, err
	}
	folder, ok := c.server.Folders[directory]
	if !ok {
		return nil, mailkeep_errors.NotFound(errors.Errorf("no folder %s", directory))
	}
	msg, ok := folder.Messages[uid]
	if !ok {
		return nil, mailkeep_errors.NotFound(errors.Errorf("uid %d no longer in %s", uid, directory))
	}
	email := headerModel(directory, msg)
	email.BodyText = msg.Body
	email.BodyCached = true
	return email, nil
}

func (c *FakeIMAPClient) Search(ctx context.Context, directory, term string) ([]uint32, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.takeOpErr("Search"); err != nil {
		return nil, err
	}
	folder, ok := c.server.Folders[directory]
	if !ok {
		return nil, mailkeep_errors.NotFound(errors.Errorf("no folder %s", directory))
	}
	term = strings.ToLower(term)
	var uids []uint32
	for uid, msg := range folder.Messages {
		if strings.Contains(strings.ToLower(msg.Subject), term) ||
			strings.Contains(strings.ToLower(msg.Body), term) {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (c *FakeIMAPClient) SetFlag(ctx context.Context, directory string, uid uint32, flag enum.EmailFlag, value bool) error {
	if err := c.ensure(); err != nil {
		return err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.takeOpErr("SetFlag"); err != nil {
		return err
	}
	folder, ok := c.server.Folders[directory]
	if !ok {
		return mailkeep_errors.NotFound(errors.Errorf("no folder %s", directory))
	}
	msg, ok := folder.Messages[uid]
	if !ok {
		return mailkeep_errors.NotFound(errors.Errorf("uid %d no longer in %s", uid, directory))
	}
	msg.Flags[flag] = value
	return nil
}

func (c *FakeIMAPClient) DeleteMarked(ctx context.Context, directory string, uids []uint32) ([]uint32, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.takeOpErr("DeleteMarked"); err != nil {
		return nil, err
	}
	folder, ok := c.server.Folders[directory]
	if !ok {
		return nil, mailkeep_errors.NotFound(errors.Errorf("no folder %s", directory))
	}
	var removed []uint32
	for _, uid := range uids {
		if c.server.RefuseExpunge[uid] {
			continue
		}
		if _, ok := folder.Messages[uid]; !ok {
			// Already gone counts as removed.
			removed = append(removed, uid)
			continue
		}
		delete(folder.Messages, uid)
		removed = append(removed, uid)
	}
	return removed, nil
}

func headerModel(directory string, msg *FakeMessage) *models.Email {
	email := &models.Email{
		Directory:   directory,
		ImapUID:     msg.UID,
		MessageID:   msg.MessageID,
		Subject:     msg.Subject,
		FromAddress: msg.From,
		Direction:   enum.EmailInbound,
		Status:      enum.EmailStatusReceived,
	}
	for flag, set := range msg.Flags {
		if set {
			email.Flags = append(email.Flags, flag.String())
		}
	}
	sort.Strings(email.Flags)
	return email
}
