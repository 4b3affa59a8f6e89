package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/svcpanel/internal/history"
)

func TestNewRejectsBadTableName(t *testing.T) {
	if _, err := New("127.0.0.1:9000", "history; DROP TABLE x"); err == nil {
		t.Fatalf("expected invalid table name error")
	}
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickhouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").WithPort("8123/tcp").
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}
	defer func() {
		if err := clickhouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	host, err := clickhouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := clickhouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	sink, err := New(host+":"+port.Port(), "")
	if err != nil {
		t.Fatalf("Failed to create ClickHouse sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	now := time.Now().UTC().Truncate(time.Millisecond)
	events := []history.Event{
		{ID: "1", Action: "stop:ssh", Succeeded: true, Message: "ssh stopped", OccurredAt: now, Duration: 12 * time.Millisecond},
		{ID: "2", Action: "restart-all", Succeeded: true, Message: "all services restarted", OccurredAt: now.Add(time.Second), Duration: time.Second},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send event %s: %v", e.ID, err)
		}
	}

	got, err := sink.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[1].Duration != 12*time.Millisecond {
		t.Errorf("duration mismatch: %v", got[1].Duration)
	}
}
