// Package directory is the entitlement store: which agents exist, which
// ones each user has hired, and a per-user usage ledger. Backed by SQLite.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"teamforge/internal/domain"
)

// Store implements domain.AgentDirectory backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// UsageRecord is one provider call's token consumption attributed to a
// user and agent.
type UsageRecord struct {
	UserID    string
	AgentID   string
	SessionID string
	Usage     domain.Usage
	Cost      float64
}

// New opens (or creates) the directory database at dbPath and runs
// migrations. Use ":memory:" for tests.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("directory pragma: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate directory db: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// AddAgent registers an agent in the catalog. Existing rows are updated in
// place so catalog refreshes are idempotent.
func (s *Store) AddAgent(ctx context.Context, ag domain.AgentDescriptor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, role, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			provider = excluded.provider,
			model = excluded.model
	`, ag.ID, ag.Name, ag.Role, ag.Provider, ag.Model, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("add agent %q: %w", ag.ID, err)
	}
	return nil
}

// Agent fetches one catalog entry.
func (s *Store) Agent(ctx context.Context, agentID string) (domain.AgentDescriptor, error) {
	var ag domain.AgentDescriptor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, provider, model FROM agents WHERE id = ?
	`, agentID).Scan(&ag.ID, &ag.Name, &ag.Role, &ag.Provider, &ag.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return ag, domain.NewDomainError("Store.Agent", domain.ErrAgentNotFound, agentID)
	}
	if err != nil {
		return ag, fmt.Errorf("load agent %q: %w", agentID, err)
	}
	return ag, nil
}

// Hire grants the user access to an agent. Hiring the same agent twice is
// a no-op.
func (s *Store) Hire(ctx context.Context, userID, agentID string) error {
	if _, err := s.Agent(ctx, agentID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hires (user_id, agent_id, hired_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, agent_id) DO NOTHING
	`, userID, agentID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("hire agent %q for %q: %w", agentID, userID, err)
	}
	s.logger.Info("agent hired", "user_id", userID, "agent_id", agentID)
	return nil
}

// Release revokes the user's access to an agent.
func (s *Store) Release(ctx context.Context, userID, agentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM hires WHERE user_id = ? AND agent_id = ?
	`, userID, agentID)
	if err != nil {
		return fmt.Errorf("release agent %q for %q: %w", agentID, userID, err)
	}
	return nil
}

// ListAccessibleAgents implements domain.AgentDirectory.
func (s *Store) ListAccessibleAgents(ctx context.Context, userID string) ([]domain.AgentDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.role, a.provider, a.model
		FROM agents a JOIN hires h ON h.agent_id = a.id
		WHERE h.user_id = ?
		ORDER BY h.hired_at, a.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents for %q: %w", userID, err)
	}
	defer rows.Close()

	var agents []domain.AgentDescriptor
	for rows.Next() {
		var ag domain.AgentDescriptor
		if err := rows.Scan(&ag.ID, &ag.Name, &ag.Role, &ag.Provider, &ag.Model); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, ag)
	}
	return agents, rows.Err()
}

// Catalog returns every agent in the catalog, hired or not. Upsell offers
// draw candidates from here.
func (s *Store) Catalog(ctx context.Context) ([]domain.AgentDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, provider, model FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var agents []domain.AgentDescriptor
	for rows.Next() {
		var ag domain.AgentDescriptor
		if err := rows.Scan(&ag.ID, &ag.Name, &ag.Role, &ag.Provider, &ag.Model); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		agents = append(agents, ag)
	}
	return agents, rows.Err()
}

// RecordUsage appends one provider call's token usage to the ledger.
func (s *Store) RecordUsage(ctx context.Context, rec UsageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_log (user_id, agent_id, session_id, prompt_tokens, completion_tokens, total_tokens, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.UserID, rec.AgentID, rec.SessionID,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Usage.TotalTokens,
		rec.Cost, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record usage for %q: %w", rec.UserID, err)
	}
	return nil
}

// UsageTotals sums the ledger for one user.
func (s *Store) UsageTotals(ctx context.Context, userID string) (domain.Usage, float64, error) {
	var usage domain.Usage
	var cost float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(cost), 0)
		FROM usage_log WHERE user_id = ?
	`, userID).Scan(&usage.PromptTokens, &usage.CompletionTokens, &usage.TotalTokens, &cost)
	if err != nil {
		return usage, 0, fmt.Errorf("usage totals for %q: %w", userID, err)
	}
	return usage, cost, nil
}
