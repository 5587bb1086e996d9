package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// RawMessage is an unread message as delivered by the mailbox.
type RawMessage struct {
	UID        string
	RemoteID   string
	Data       []byte
	ReceivedAt time.Time
}

// Source is one connected mailbox session. Messages are only marked seen
// after the caller has handled them.
type Source interface {
	FetchUnseen(ctx context.Context) ([]RawMessage, error)
	MarkSeen(ctx context.Context, uid string) error
	Close() error
}

// Dialer opens a new mailbox session per poll cycle.
type Dialer func(ctx context.Context) (Source, error)

// Account holds the mailbox coordinates.
type Account struct {
	Protocol    string
	Host        string
	Port        int
	Username    string
	Password    string
	Mailbox     string
	TLS         bool
	BatchLimit  int
	DialTimeout time.Duration
}

const (
	ProtocolIMAP = "imap"
	ProtocolPOP3 = "pop3"

	defaultDialTimeout = 30 * time.Second
)

var errAccountIncomplete = errors.New("mailbox account requires host, username and password")

// AccountFromConfig maps ingest settings onto an Account.
func AccountFromConfig(cfg config.IngestConfig) Account {
	return Account{
		Protocol:    cfg.Protocol,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Mailbox:     cfg.Mailbox,
		TLS:         cfg.TLS,
		BatchLimit:  cfg.BatchLimit,
		DialTimeout: defaultDialTimeout,
	}
}

func (a Account) validate() error {
	if strings.TrimSpace(a.Host) == "" || a.Username == "" || a.Password == "" {
		return errAccountIncomplete
	}
	return nil
}

func (a Account) addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Account) dialTimeout() time.Duration {
	if a.DialTimeout <= 0 {
		return defaultDialTimeout
	}
	return a.DialTimeout
}

// NewDialer picks the session implementation for the account protocol.
func NewDialer(acc Account) (Dialer, error) {
	if err := acc.validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(acc.Protocol) {
	case ProtocolIMAP, "":
		return func(ctx context.Context) (Source, error) { return DialIMAP(ctx, acc) }, nil
	case ProtocolPOP3:
		return func(ctx context.Context) (Source, error) { return DialPOP3(ctx, acc) }, nil
	default:
		return nil, fmt.Errorf("unsupported ingest protocol %q", acc.Protocol)
	}
}

// buildRemoteID identifies a message that carries no Message-ID header.
func buildRemoteID(acc Account, uid string) string {
	if acc.Username == "" {
		return acc.Host + ":" + uid
	}
	return acc.Username + "@" + acc.Host + ":" + uid
}
