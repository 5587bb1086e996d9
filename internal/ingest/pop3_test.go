package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/knadh/go-pop3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePOP3Conn struct {
	uidl      []pop3.MessageID
	raw       map[int][]byte
	deleted   []int
	quitCalls int

	authErr error
	uidlErr error
	retrErr map[int]error
}

func (f *fakePOP3Conn) Auth(_, _ string) error { return f.authErr }

func (f *fakePOP3Conn) Quit() error {
	f.quitCalls++
	return nil
}

func (f *fakePOP3Conn) Uidl(int) ([]pop3.MessageID, error) {
	if f.uidlErr != nil {
		return nil, f.uidlErr
	}
	return append([]pop3.MessageID(nil), f.uidl...), nil
}

func (f *fakePOP3Conn) List(int) ([]pop3.MessageID, error) {
	out := make([]pop3.MessageID, len(f.uidl))
	for i, m := range f.uidl {
		out[i] = pop3.MessageID{ID: m.ID, Size: m.Size}
	}
	return out, nil
}

func (f *fakePOP3Conn) RetrRaw(id int) (*bytes.Buffer, error) {
	if err, ok := f.retrErr[id]; ok {
		return nil, err
	}
	payload, ok := f.raw[id]
	if !ok {
		return nil, fmt.Errorf("unknown message %d", id)
	}
	return bytes.NewBuffer(payload), nil
}

func (f *fakePOP3Conn) Dele(ids ...int) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

var testPOP3Account = Account{Protocol: ProtocolPOP3, Host: "mail.example", Port: 995, Username: "support", Password: "secret"}

func TestPOP3FetchAndMarkSeen(t *testing.T) {
	conn := &fakePOP3Conn{
		uidl: []pop3.MessageID{{ID: 1, UID: "uid-1"}, {ID: 2, UID: "uid-2"}},
		raw:  map[int][]byte{1: []byte("first"), 2: []byte("second")},
	}
	source, err := newPOP3Source(conn, testPOP3Account)
	require.NoError(t, err)

	messages, err := source.FetchUnseen(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "uid-1", messages[0].UID)
	assert.Equal(t, "support@mail.example:uid-1", messages[0].RemoteID)
	assert.Equal(t, []byte("second"), messages[1].Data)

	require.NoError(t, source.MarkSeen(context.Background(), "uid-2"))
	assert.Equal(t, []int{2}, conn.deleted)
	require.Error(t, source.MarkSeen(context.Background(), "uid-9"))

	require.NoError(t, source.Close())
	assert.Equal(t, 1, conn.quitCalls)
}

func TestPOP3FallsBackToListWithoutUIDL(t *testing.T) {
	conn := &fakePOP3Conn{
		uidl:    []pop3.MessageID{{ID: 3, UID: "ignored"}},
		raw:     map[int][]byte{3: []byte("body")},
		uidlErr: errors.New("UIDL not supported"),
	}
	source, err := newPOP3Source(conn, testPOP3Account)
	require.NoError(t, err)

	messages, err := source.FetchUnseen(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "3", messages[0].UID)
}

func TestPOP3BatchLimitAndErrors(t *testing.T) {
	conn := &fakePOP3Conn{
		uidl: []pop3.MessageID{{ID: 1, UID: "a"}, {ID: 2, UID: "b"}, {ID: 3, UID: "c"}},
		raw:  map[int][]byte{1: []byte("1"), 2: []byte("2"), 3: []byte("3")},
	}
	acc := testPOP3Account
	acc.BatchLimit = 2
	source, err := newPOP3Source(conn, acc)
	require.NoError(t, err)
	messages, err := source.FetchUnseen(context.Background())
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	failing := &fakePOP3Conn{
		uidl:    []pop3.MessageID{{ID: 1, UID: "a"}},
		retrErr: map[int]error{1: errors.New("-ERR no such message")},
	}
	source, err = newPOP3Source(failing, testPOP3Account)
	require.NoError(t, err)
	_, err = source.FetchUnseen(context.Background())
	require.ErrorContains(t, err, "pop3 retr")

	_, err = newPOP3Source(&fakePOP3Conn{authErr: errors.New("bad creds")}, testPOP3Account)
	require.ErrorContains(t, err, "pop3 auth")
}
