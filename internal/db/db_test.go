// Package db provides integration tests for SurrealDB audit log operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jfellner/veritest-go/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func insertRecord(t *testing.T, jobID, testID string, status string, key *string, ts time.Time) {
	t.Helper()
	err := testDB.InsertAuditRecord(context.Background(), models.AuditRecord{
		JobID:       jobID,
		TestID:      testID,
		ExternalKey: key,
		Status:      status,
		RawRequest:  `{"issueUpdates":[]}`,
		RawResponse: `{"issues":[]}`,
		Timestamp:   ts,
	})
	if err != nil {
		t.Fatalf("InsertAuditRecord failed: %v", err)
	}
}

func TestInsertAndQueryAuditRecords(t *testing.T) {
	ctx := context.Background()
	defer func() { _ = testDB.WipeData(ctx) }()

	base := time.Now().UTC().Truncate(time.Second)
	key := "HQA-101"
	insertRecord(t, "job-order", "TC-2", models.StatusSuccess, &key, base.Add(2*time.Second))
	insertRecord(t, "job-order", "TC-1", models.StatusSuccess, &key, base)
	insertRecord(t, "job-order", "TC-3", models.StatusFailure, nil, base.Add(4*time.Second))
	insertRecord(t, "job-other", "TC-9", models.StatusSuccess, &key, base)

	records, err := testDB.QueryAuditRecordsByJob(ctx, "job-order")
	if err != nil {
		t.Fatalf("QueryAuditRecordsByJob failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records for job-order, got %d", len(records))
	}

	// Ordered by timestamp ascending, not insertion order.
	if records[0].TestID != "TC-1" || records[1].TestID != "TC-2" || records[2].TestID != "TC-3" {
		t.Errorf("Records out of timestamp order: %s, %s, %s",
			records[0].TestID, records[1].TestID, records[2].TestID)
	}

	if records[0].ExternalKey == nil || *records[0].ExternalKey != "HQA-101" {
		t.Errorf("Expected external key HQA-101, got %v", records[0].ExternalKey)
	}
	if records[2].ExternalKey != nil {
		t.Errorf("Failure record should have nil external key, got %v", records[2].ExternalKey)
	}
	if records[0].RawRequest == "" || records[0].RawResponse == "" {
		t.Error("Raw traffic should survive the round trip")
	}
}

func TestQueryAuditRecordsUnknownJob(t *testing.T) {
	ctx := context.Background()

	records, err := testDB.QueryAuditRecordsByJob(ctx, "no-such-job")
	if err == nil {
		t.Fatal("Expected error for job with no records")
	}
	if !errors.Is(err, ErrNoAuditTrail) {
		t.Errorf("Expected ErrNoAuditTrail, got %v", err)
	}
	if records != nil {
		t.Errorf("Expected nil records, got %v", records)
	}
}

func TestCountAuditRecords(t *testing.T) {
	ctx := context.Background()
	defer func() { _ = testDB.WipeData(ctx) }()

	now := time.Now().UTC()
	insertRecord(t, "job-count", "TC-1", models.StatusSuccess, nil, now)
	insertRecord(t, "job-count", "TC-2", models.StatusFailure, nil, now.Add(time.Second))

	count, err := testDB.CountAuditRecords(ctx, "job-count")
	if err != nil {
		t.Fatalf("CountAuditRecords failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	// Unknown job counts as zero, not an error.
	count, err = testDB.CountAuditRecords(ctx, "no-such-job")
	if err != nil {
		t.Fatalf("CountAuditRecords for unknown job failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected count 0, got %d", count)
	}
}

func TestSchemaRejectsInvalidStatus(t *testing.T) {
	ctx := context.Background()

	err := testDB.InsertAuditRecord(ctx, models.AuditRecord{
		JobID:     "job-bad",
		TestID:    "TC-1",
		Status:    "PENDING",
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		t.Error("Schema should reject a status outside SUCCESS/FAILURE")
		_ = testDB.WipeData(ctx)
	}
}
