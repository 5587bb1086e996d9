package ingest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPSource reads UNSEEN messages from one mailbox folder and flags them
// \Seen on MarkSeen.
type IMAPSource struct {
	client *imapclient.Client
	acc    Account
}

// DialIMAP connects, logs in and selects the configured folder.
func DialIMAP(ctx context.Context, acc Account) (*IMAPSource, error) {
	if err := acc.validate(); err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: acc.dialTimeout()}
	var (
		conn net.Conn
		err  error
	)
	if acc.TLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: acc.Host, MinVersion: tls.VersionTLS12}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", acc.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", acc.addr())
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}

	client := imapclient.New(conn, nil)
	if err := client.Login(acc.Username, acc.Password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap auth: %w", err)
	}
	mailbox := acc.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}
	return &IMAPSource{client: client, acc: acc}, nil
}

// FetchUnseen returns unread messages in UID order without setting \Seen.
func (s *IMAPSource) FetchUnseen(ctx context.Context) ([]RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if s.acc.BatchLimit > 0 && len(uids) > s.acc.BatchLimit {
		uids = uids[:s.acc.BatchLimit]
	}

	section := &imap.FetchItemBodySection{Peek: true}
	buffers, err := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	messages := make([]RawMessage, 0, len(buffers))
	for _, buf := range buffers {
		body := buf.FindBodySection(section)
		if body == nil {
			continue
		}
		uid := strconv.FormatUint(uint64(buf.UID), 10)
		received := buf.InternalDate
		if received.IsZero() {
			received = time.Now()
		}
		messages = append(messages, RawMessage{
			UID:        uid,
			RemoteID:   buildRemoteID(s.acc, uid),
			Data:       body,
			ReceivedAt: received,
		})
	}
	return messages, nil
}

// MarkSeen sets \Seen on the message.
func (s *IMAPSource) MarkSeen(_ context.Context, uid string) error {
	n, err := strconv.ParseUint(uid, 10, 32)
	if err != nil {
		return fmt.Errorf("imap uid %q: %w", uid, err)
	}
	err = s.client.Store(imap.UIDSetNum(imap.UID(n)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("imap store seen: %w", err)
	}
	return nil
}

// Close logs out and drops the connection.
func (s *IMAPSource) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		s.client.Close()
		return fmt.Errorf("imap logout: %w", err)
	}
	return s.client.Close()
}
