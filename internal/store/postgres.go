package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/instabids/bidcard-cli/internal/db"
	"github.com/instabids/bidcard-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Per-card mutual exclusion
// comes from SELECT ... FOR UPDATE row locks, so concurrent field writes and
// conversions on the same card serialize at the database.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"get_card":           selectCardSQL + ` WHERE id = $1`,
	"get_card_locked":    selectCardSQL + ` WHERE id = $1 FOR UPDATE`,
	"update_card":        `UPDATE bid_cards SET user_id = $1, status = $2, fields = $3, completion = $4, updated_at = $5 WHERE id = $6`,
	"get_official":       selectOfficialSQL + ` WHERE id = $1`,
	"official_for_draft": selectOfficialSQL + ` WHERE draft_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bid_cards (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	session_id      TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'draft',
	fields          JSONB NOT NULL DEFAULT '{}',
	completion      INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS official_bid_cards (
	id            TEXT PRIMARY KEY,
	bid_number    TEXT NOT NULL,
	project_type  TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	zip_code      TEXT NOT NULL DEFAULT '',
	urgency_level TEXT NOT NULL DEFAULT '',
	document      JSONB NOT NULL,
	draft_id      TEXT NOT NULL UNIQUE REFERENCES bid_cards(id),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bid_cards_conversation ON bid_cards(conversation_id);
CREATE INDEX IF NOT EXISTS idx_bid_cards_status ON bid_cards(status);
CREATE INDEX IF NOT EXISTS idx_bid_cards_conversation_created ON bid_cards(conversation_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_official_bid_cards_draft ON official_bid_cards(draft_id);
CREATE INDEX IF NOT EXISTS idx_official_bid_cards_zip ON official_bid_cards(zip_code);
`

const selectCardSQL = `SELECT id, conversation_id, session_id, user_id, status, fields, completion, created_at, updated_at FROM bid_cards`
const selectOfficialSQL = `SELECT id, bid_number, project_type, title, description, zip_code, urgency_level, document, created_at FROM official_bid_cards`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) CreateCard(ctx context.Context, card *model.PotentialBidCard) error {
	fieldsJSON, err := json.Marshal(card.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO bid_cards (id, conversation_id, session_id, user_id, status, fields, completion, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		card.ID, card.ConversationID, card.SessionID, card.UserID,
		string(card.Status), fieldsJSON, card.CompletionPercentage,
		card.CreatedAt, card.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert bid card")
}

func (s *PostgresStore) GetCard(ctx context.Context, id string) (*model.PotentialBidCard, error) {
	return scanPgCard(s.pool.QueryRow(ctx, selectCardSQL+` WHERE id = $1`, id), id)
}

func (s *PostgresStore) LatestCardForConversation(ctx context.Context, conversationID string) (*model.PotentialBidCard, error) {
	return scanPgCard(s.pool.QueryRow(ctx,
		selectCardSQL+` WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		conversationID), conversationID)
}

func (s *PostgresStore) UpdateCard(ctx context.Context, id string, mutate func(*model.PotentialBidCard) error) (*model.PotentialBidCard, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin update")
	}
	defer tx.Rollback(ctx)

	card, err := scanPgCard(tx.QueryRow(ctx, selectCardSQL+` WHERE id = $1 FOR UPDATE`, id), id)
	if err != nil {
		return nil, err
	}

	if err := mutate(card); err != nil {
		return nil, err
	}

	if err := writePgCard(ctx, tx, card); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit update")
	}
	return card, nil
}

func (s *PostgresStore) ConvertCard(ctx context.Context, id string, build func(*model.PotentialBidCard) (*model.OfficialBidCard, error)) (*model.OfficialBidCard, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: begin convert")
	}
	defer tx.Rollback(ctx)

	card, err := scanPgCard(tx.QueryRow(ctx, selectCardSQL+` WHERE id = $1 FOR UPDATE`, id), id)
	if err != nil {
		return nil, false, err
	}

	if card.Converted() {
		official, err := scanPgOfficial(tx.QueryRow(ctx, selectOfficialSQL+` WHERE draft_id = $1`, id), id)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, eris.Wrap(err, "postgres: commit convert")
		}
		return official, false, nil
	}

	official, err := build(card)
	if err != nil {
		return nil, false, err
	}

	docJSON, err := json.Marshal(official.Document)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: marshal bid document")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO official_bid_cards (id, bid_number, project_type, title, description, zip_code, urgency_level, document, draft_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		official.ID, official.BidNumber, official.ProjectType, official.Title,
		official.Description, official.ZipCode, official.UrgencyLevel,
		docJSON, id, official.CreatedAt,
	); err != nil {
		return nil, false, eris.Wrap(err, "postgres: insert official bid card")
	}
	if err := writePgCard(ctx, tx, card); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, eris.Wrap(err, "postgres: commit convert")
	}
	return official, true, nil
}

func (s *PostgresStore) GetOfficialCard(ctx context.Context, id string) (*model.OfficialBidCard, error) {
	return scanPgOfficial(s.pool.QueryRow(ctx, selectOfficialSQL+` WHERE id = $1`, id), id)
}

func (s *PostgresStore) OfficialCardForDraft(ctx context.Context, draftID string) (*model.OfficialBidCard, error) {
	return scanPgOfficial(s.pool.QueryRow(ctx, selectOfficialSQL+` WHERE draft_id = $1`, draftID), draftID)
}

// helpers

func writePgCard(ctx context.Context, tx pgx.Tx, card *model.PotentialBidCard) error {
	fieldsJSON, err := json.Marshal(card.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	card.UpdatedAt = time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE bid_cards SET user_id = $1, status = $2, fields = $3, completion = $4, updated_at = $5 WHERE id = $6`,
		card.UserID, string(card.Status), fieldsJSON, card.CompletionPercentage, card.UpdatedAt, card.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update bid card %s", card.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrCardNotFound, "postgres: update bid card %s", card.ID)
	}
	return nil
}

func scanPgCard(row pgx.Row, id string) (*model.PotentialBidCard, error) {
	var c model.PotentialBidCard
	var fieldsJSON []byte

	err := row.Scan(&c.ID, &c.ConversationID, &c.SessionID, &c.UserID,
		&c.Status, &fieldsJSON, &c.CompletionPercentage, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrCardNotFound, "postgres: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan bid card")
	}
	if err := json.Unmarshal(fieldsJSON, &c.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fields")
	}
	if c.Fields == nil {
		c.Fields = make(map[string]model.FieldEntry)
	}
	return &c, nil
}

func scanPgOfficial(row pgx.Row, id string) (*model.OfficialBidCard, error) {
	var o model.OfficialBidCard
	var docJSON []byte

	err := row.Scan(&o.ID, &o.BidNumber, &o.ProjectType, &o.Title,
		&o.Description, &o.ZipCode, &o.UrgencyLevel, &docJSON, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrOfficialNotFound, "postgres: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan official bid card")
	}
	if err := json.Unmarshal(docJSON, &o.Document); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal bid document")
	}
	return &o, nil
}
