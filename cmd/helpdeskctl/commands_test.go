package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/bootstrap"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/ingest"
)

type oneShotSource struct {
	messages []ingest.RawMessage
	seen     []string
}

func (s *oneShotSource) FetchUnseen(context.Context) ([]ingest.RawMessage, error) {
	out := s.messages
	s.messages = nil
	return out, nil
}

func (s *oneShotSource) MarkSeen(_ context.Context, uid string) error {
	s.seen = append(s.seen, uid)
	return nil
}

func (s *oneShotSource) Close() error { return nil }

func newMemoryRuntime(t *testing.T) *bootstrap.Runtime {
	t.Helper()
	cfg := &config.Config{
		Auth:         config.AuthConfig{JWTSecret: "cli-test", AccessTokenTTLMinutes: 60, BcryptCost: 4},
		Redis:        config.RedisConfig{Enabled: false},
		Notification: config.NotificationConfig{QueueSize: 16},
		Assignment:   config.AssignmentConfig{ProtectedAccounts: []string{"root@helpdesk.local"}},
	}
	rt, err := bootstrap.New(context.Background(), cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	return rt
}

func execute(t *testing.T, env environment, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(env)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func memoryEnv(rt *bootstrap.Runtime) environment {
	return environment{
		open:    func(context.Context) (*bootstrap.Runtime, error) { return rt, nil },
		migrate: func(context.Context) (int, error) { return 0, errors.New("no database") },
	}
}

func TestStaffCommands(t *testing.T) {
	rt := newMemoryRuntime(t)
	env := memoryEnv(rt)

	out, err := execute(t, env, "staff", "add", "--email", "Bob@Helpdesk.local", "--name", "Bob", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "created bob@helpdesk.local (staff)")

	_, err = execute(t, env, "staff", "add", "--email", "alice@helpdesk.local", "--name", "Alice", "--password", "password123")
	require.NoError(t, err)
	_, err = execute(t, env, "staff", "add", "--email", "root@helpdesk.local", "--name", "Root", "--password", "password123", "--role", "admin")
	require.NoError(t, err)

	out, err = execute(t, env, "staff", "assignable")
	require.NoError(t, err)
	assert.Equal(t, "alice@helpdesk.local\nbob@helpdesk.local\n", out)

	out, err = execute(t, env, "staff", "deactivate", "alice@helpdesk.local")
	require.NoError(t, err)
	assert.Equal(t, "deactivated alice@helpdesk.local\n", out)

	out, err = execute(t, env, "staff", "assignable")
	require.NoError(t, err)
	assert.Equal(t, "bob@helpdesk.local\n", out)

	_, err = execute(t, env, "staff", "deactivate", "root@helpdesk.local")
	require.Error(t, err)

	out, err = execute(t, env, "staff", "reactivate", "Alice@helpdesk.local")
	require.NoError(t, err)
	assert.Equal(t, "reactivated alice@helpdesk.local\n", out)

	out, err = execute(t, env, "staff", "assignable")
	require.NoError(t, err)
	assert.Equal(t, "alice@helpdesk.local\nbob@helpdesk.local\n", out)

	_, err = execute(t, env, "staff", "reactivate", "ghost@helpdesk.local")
	require.Error(t, err)

	_, err = execute(t, env, "staff", "add", "--email", "bob@helpdesk.local", "--name", "Bob again", "--password", "password123")
	require.Error(t, err)

	_, err = execute(t, env, "staff", "add", "--name", "No Email", "--password", "password123")
	require.Error(t, err)
}

func TestFetchCommand(t *testing.T) {
	rt := newMemoryRuntime(t)
	env := memoryEnv(rt)

	_, err := execute(t, env, "fetch")
	require.ErrorContains(t, err, "not configured")

	_, err = execute(t, env, "staff", "add", "--email", "alice@helpdesk.local", "--name", "Alice", "--password", "password123")
	require.NoError(t, err)

	raw := strings.ReplaceAll("From: user@example.com\nSubject: VPN down\nMessage-ID: <vpn-1@example.com>\n\nCannot connect to the VPN.\n", "\n", "\r\n")
	source := &oneShotSource{messages: []ingest.RawMessage{{UID: "41", RemoteID: "support@mail:41", Data: []byte(raw)}}}
	rt.Poller = ingest.NewPoller(ingest.PollerDependencies{
		Dialer:   func(context.Context) (ingest.Source, error) { return source, nil },
		Assigner: rt.Assignment,
	})

	out, err := execute(t, env, "fetch")
	require.NoError(t, err)
	assert.Equal(t, "fetched=1 assigned=1 duplicates=0 deferred=0 skipped=0\n", out)
	assert.Equal(t, []string{"41"}, source.seen)

	out, err = execute(t, env, "staff", "assignable")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMigrateReportsErrors(t *testing.T) {
	_, err := execute(t, memoryEnv(nil), "migrate")
	require.ErrorContains(t, err, "no database")

	applied := environment{migrate: func(context.Context) (int, error) { return 2, nil }}
	out, err := execute(t, applied, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "applied 2 migration(s)\n", out)
}
