package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/knadh/go-pop3"
)

type pop3Connection interface {
	Auth(user, password string) error
	Uidl(msgID int) ([]pop3.MessageID, error)
	List(msgID int) ([]pop3.MessageID, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Dele(msgID ...int) error
	Quit() error
}

// POP3Source reads the maildrop. POP3 has no seen flag, so MarkSeen deletes
// the message; deletions take effect when the session is closed.
type POP3Source struct {
	conn pop3Connection
	acc  Account
	ids  map[string]int
	now  func() time.Time
}

// DialPOP3 connects and authenticates.
func DialPOP3(ctx context.Context, acc Account) (*POP3Source, error) {
	if err := acc.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := pop3.New(pop3.Opt{
		Host:        acc.Host,
		Port:        acc.Port,
		TLSEnabled:  acc.TLS,
		DialTimeout: acc.dialTimeout(),
	})
	conn, err := client.NewConn()
	if err != nil {
		return nil, fmt.Errorf("pop3 connect: %w", err)
	}
	return newPOP3Source(conn, acc)
}

func newPOP3Source(conn pop3Connection, acc Account) (*POP3Source, error) {
	if err := conn.Auth(acc.Username, acc.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("pop3 auth: %w", err)
	}
	return &POP3Source{conn: conn, acc: acc, ids: map[string]int{}, now: time.Now}, nil
}

// FetchUnseen retrieves every message still on the server.
func (s *POP3Source) FetchUnseen(ctx context.Context) ([]RawMessage, error) {
	entries, err := s.conn.Uidl(0)
	if err != nil {
		// servers without UIDL: fall back to message numbers
		entries, err = s.conn.List(0)
		if err != nil {
			return nil, fmt.Errorf("pop3 list: %w", err)
		}
		for i := range entries {
			entries[i].UID = strconv.Itoa(entries[i].ID)
		}
	}
	if s.acc.BatchLimit > 0 && len(entries) > s.acc.BatchLimit {
		entries = entries[:s.acc.BatchLimit]
	}

	messages := make([]RawMessage, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		raw, err := s.conn.RetrRaw(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("pop3 retr %d: %w", entry.ID, err)
		}
		s.ids[entry.UID] = entry.ID
		messages = append(messages, RawMessage{
			UID:        entry.UID,
			RemoteID:   buildRemoteID(s.acc, entry.UID),
			Data:       raw.Bytes(),
			ReceivedAt: s.now(),
		})
	}
	return messages, nil
}

// MarkSeen flags the message for deletion.
func (s *POP3Source) MarkSeen(_ context.Context, uid string) error {
	id, ok := s.ids[uid]
	if !ok {
		return fmt.Errorf("pop3: unknown uid %q", uid)
	}
	if err := s.conn.Dele(id); err != nil {
		return fmt.Errorf("pop3 dele %d: %w", id, err)
	}
	return nil
}

// Close ends the session, committing deletions.
func (s *POP3Source) Close() error {
	if err := s.conn.Quit(); err != nil {
		return fmt.Errorf("pop3 quit: %w", err)
	}
	return nil
}
