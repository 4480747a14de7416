// Package mailbox is the read-only IMAP collaborator of the filtering
// pipeline: it searches for candidate messages and hands each one over
// as an already-parsed MIME tree. It never mutates the remote mailbox;
// every session selects the mailbox read-only and fetches with peek.
package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/tmori/mailsift/internal/model"
)

// Client wraps go-imap v2 for connecting to and querying the mailbox.
// Each exported operation opens its own session so the client itself
// carries no connection state.
type Client struct {
	host     string
	port     string
	username string
	password string
	mailbox  string
	tls      bool
	logger   zerolog.Logger
}

// NewClient creates a client from the IMAP configuration.
func NewClient(cfg model.IMAPConfig, password string, logger zerolog.Logger) *Client {
	return &Client{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: password,
		mailbox:  cfg.Mailbox,
		tls:      cfg.TLS,
		logger:   logger,
	}
}

// SearchOptions narrow which messages a run considers.
type SearchOptions struct {
	// All searches every message instead of only unseen ones.
	All bool

	// Since restricts the search to messages received on or after the
	// given date. Zero means no date restriction.
	Since time.Time

	// Limit caps the number of returned UIDs, newest first. Zero means
	// no cap.
	Limit int
}

// connect establishes a connection, authenticates, and selects the
// mailbox read-only. The caller must call Logout on the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", c.username, err)
	}

	if _, err := client.Select(c.mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", c.mailbox, err)
	}

	return client, nil
}

// Check verifies connectivity: connect, authenticate, select read-only,
// disconnect. No message data is touched.
func (c *Client) Check(ctx context.Context) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	c.logger.Info().
		Str("host", c.host).
		Str("mailbox", c.mailbox).
		Msg("IMAP connection ok")
	return nil
}

// SearchUIDs returns the UIDs matching the options, newest first.
// The default criterion is unseen messages only.
func (c *Client) SearchUIDs(ctx context.Context, opts SearchOptions) ([]uint32, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	criteria := &imap.SearchCriteria{}
	if !opts.All {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	all := searchData.AllUIDs()

	// Newest first, then apply the cap.
	uids := make([]uint32, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		uids = append(uids, uint32(all[i]))
	}
	if opts.Limit > 0 && len(uids) > opts.Limit {
		uids = uids[:opts.Limit]
	}

	return uids, nil
}

// FetchMessage fetches the full message for the given UID and parses it
// into a part tree. The fetch peeks, so the remote seen state is
// untouched.
func (c *Client) FetchMessage(ctx context.Context, uid uint32) (*model.ParsedMessage, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body section", uid)
	}

	parsed, err := ParseMessage(uid, raw)
	if err != nil {
		return nil, err
	}

	mergeEnvelope(parsed, buf)

	if err := fetchCmd.Close(); err != nil {
		return parsed, fmt.Errorf("closing fetch: %w", err)
	}
	return parsed, nil
}

// mergeEnvelope fills envelope fields from the IMAP ENVELOPE response
// where the parsed headers came up empty.
func mergeEnvelope(parsed *model.ParsedMessage, buf *imapclient.FetchMessageBuffer) {
	env := buf.Envelope
	if env == nil {
		return
	}

	if parsed.Envelope.Subject == "" {
		parsed.Envelope.Subject = env.Subject
	}
	if parsed.Envelope.MessageID == "" {
		parsed.Envelope.MessageID = env.MessageID
	}
	if parsed.Envelope.Date.IsZero() {
		parsed.Envelope.Date = env.Date
	}
	if parsed.Envelope.From == "" && len(env.From) > 0 {
		from := env.From[0]
		if from.Name != "" {
			parsed.Envelope.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
		} else {
			parsed.Envelope.From = from.Addr()
		}
	}
}
