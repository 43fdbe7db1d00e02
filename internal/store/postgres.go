package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pbxbridge/internal/domain"
)

// querier is the minimal pgx surface used by the store. pgxpool.Pool
// satisfies it, as does pgxmock in tests.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres reads agent/site configuration from the admin application's
// database and writes back detected PBX API versions.
type Postgres struct {
	db querier
}

func NewPostgres(db querier) *Postgres {
	return &Postgres{db: db}
}

// NewPool opens a pgx pool against the admin database.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func (p *Postgres) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	var a domain.Agent
	err := p.db.QueryRow(ctx,
		`SELECT id, name, COALESCE(extension, ''), COALESCE(site_id, '') FROM agents WHERE id = $1`,
		agentID,
	).Scan(&a.ID, &a.Name, &a.Extension, &a.SiteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent %s: %w", agentID, err)
	}
	return &a, nil
}

func (p *Postgres) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, name, COALESCE(extension, ''), COALESCE(site_id, '') FROM agents WHERE extension IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("querying agent roster: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Extension, &a.SiteID); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (p *Postgres) GetPbxConfig(ctx context.Context, siteID string) (*domain.PbxConfig, error) {
	var c domain.PbxConfig
	var version int
	err := p.db.QueryRow(ctx,
		`SELECT site_id, ip_address, api_user, api_password, COALESCE(detected_api_version, 0), updated_at
		 FROM pbx_configs WHERE site_id = $1`,
		siteID,
	).Scan(&c.SiteID, &c.IPAddress, &c.APIUser, &c.APIPassword, &version, &c.UpdatedAt)
	c.APIVersion = domain.APIVersion(version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying pbx config for site %s: %w", siteID, err)
	}
	return &c, nil
}

func (p *Postgres) SaveDetectedVersion(ctx context.Context, siteID string, version domain.APIVersion) error {
	_, err := p.db.Exec(ctx,
		`UPDATE pbx_configs SET detected_api_version = $1, updated_at = NOW() WHERE site_id = $2`,
		int(version), siteID,
	)
	if err != nil {
		return fmt.Errorf("saving detected api version for site %s: %w", siteID, err)
	}
	return nil
}
