package store

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"pbxbridge/internal/domain"
)

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("creating mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	return NewPostgres(mock), mock
}

func TestGetAgent(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, name, COALESCE\(extension, ''\), COALESCE\(site_id, ''\) FROM agents WHERE id = \$1`).
		WithArgs("agent-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "extension", "site_id"}).
			AddRow("agent-1", "Alice", "1001", "site-1"))

	a, err := st.GetAgent(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Extension != "1001" || a.SiteID != "site-1" {
		t.Errorf("unexpected agent: %+v", a)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, name, COALESCE\(extension, ''\), COALESCE\(site_id, ''\) FROM agents WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "extension", "site_id"}))

	_, err := st.GetAgent(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestListAgents(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, name, COALESCE\(extension, ''\), COALESCE\(site_id, ''\) FROM agents WHERE extension IS NOT NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "extension", "site_id"}).
			AddRow("agent-1", "Alice", "1001", "site-1").
			AddRow("agent-2", "Bob", "1002", "site-1"))

	agents, err := st.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[1].Extension != "1002" {
		t.Errorf("unexpected agent: %+v", agents[1])
	}
}

func TestGetPbxConfig(t *testing.T) {
	st, mock := newMockStore(t)

	updated := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT site_id, ip_address, api_user, api_password, COALESCE\(detected_api_version, 0\), updated_at`).
		WithArgs("site-1").
		WillReturnRows(pgxmock.NewRows([]string{"site_id", "ip_address", "api_user", "api_password", "detected_api_version", "updated_at"}).
			AddRow("site-1", "10.1.0.254", "apiuser", "apipass", 2, updated))

	cfg, err := st.GetPbxConfig(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config, got nil")
	}
	if cfg.APIVersion != domain.APIVersionV2 {
		t.Errorf("expected v2, got %v", cfg.APIVersion)
	}
	if cfg.IPAddress != "10.1.0.254" {
		t.Errorf("unexpected ip: %s", cfg.IPAddress)
	}
}

func TestGetPbxConfigMissingReturnsNil(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT site_id, ip_address, api_user, api_password, COALESCE\(detected_api_version, 0\), updated_at`).
		WithArgs("site-x").
		WillReturnRows(pgxmock.NewRows([]string{"site_id", "ip_address", "api_user", "api_password", "detected_api_version", "updated_at"}))

	cfg, err := st.GetPbxConfig(context.Background(), "site-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestSaveDetectedVersion(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE pbx_configs SET detected_api_version = \$1, updated_at = NOW\(\) WHERE site_id = \$2`).
		WithArgs(2, "site-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := st.SaveDetectedVersion(context.Background(), "site-1", domain.APIVersionV2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
