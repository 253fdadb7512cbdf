package crdb_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/virtual-waiting-room/internal/adapters/crdb"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startCockroach(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = crdbContainer.Terminate(ctx) })

	host, err := crdbContainer.Host(ctx)
	require.NoError(t, err)
	port, err := crdbContainer.MappedPort(ctx, "26257")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, "postgresql://root@"+host+":"+port.Port()+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool, observability.NewNopLogger())
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func TestNewOutboxRecord(t *testing.T) {
	e := domain.NewEnteredEvent(domain.QueueToken{ID: "t1", UserID: "u1", EventID: "concert", Seq: 3, CreatedAt: time.Now()})

	rec, err := crdb.NewOutboxRecord(e)
	require.NoError(t, err)
	assert.Equal(t, "queue", rec.AggregateType)
	assert.Equal(t, "t1", rec.AggregateID)
	assert.Equal(t, domain.EventQueueEntered, rec.EventType)
	assert.Equal(t, e.ID.String(), rec.DedupeKey)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Payload, &body))
	assert.Equal(t, "queue.entered", body["type"])
	assert.Equal(t, "concert", body["event_id"])
	assert.Equal(t, float64(3), body["data"].(map[string]interface{})["seq"])
}

func TestRepository_OutboxRelay(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()

	first := domain.NewEnteredEvent(domain.QueueToken{ID: "t1", UserID: "u1", EventID: "concert", CreatedAt: time.Now()})
	second := domain.NewAdmittedEvent(domain.ExchangeToken{ID: "x1", QueueToken: "t1", UserID: "u1", EventID: "concert", AdmittedAt: time.Now()})
	require.NoError(t, repo.Emit(ctx, first))
	require.NoError(t, repo.Emit(ctx, second))
	// replays of the same event are ignored
	require.NoError(t, repo.Emit(ctx, first))

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	var keys []string
	n, err := repo.PublishPending(ctx, 10, func(_ context.Context, rec crdb.OutboxRecord) error {
		keys = append(keys, rec.EventType)
		if rec.EventType == domain.EventTokenAdmitted {
			return errors.New("broker unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{domain.EventQueueEntered, domain.EventTokenAdmitted}, keys)

	n, err = repo.PublishPending(ctx, 10, func(context.Context, crdb.OutboxRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err = repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}
