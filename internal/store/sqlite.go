package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/instabids/bidcard-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Mutations are
// serialized behind a process-wide mutex: sqlite has a single writer anyway,
// and holding the lock across the read-modify-write transaction avoids
// SQLITE_BUSY lock upgrades mid-update.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bid_cards (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	session_id      TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'draft',
	fields          TEXT NOT NULL DEFAULT '{}',
	completion      INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS official_bid_cards (
	id            TEXT PRIMARY KEY,
	bid_number    TEXT NOT NULL,
	project_type  TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	zip_code      TEXT NOT NULL DEFAULT '',
	urgency_level TEXT NOT NULL DEFAULT '',
	document      TEXT NOT NULL,
	draft_id      TEXT NOT NULL UNIQUE REFERENCES bid_cards(id),
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bid_cards_conversation ON bid_cards(conversation_id);
CREATE INDEX IF NOT EXISTS idx_bid_cards_status ON bid_cards(status);
CREATE INDEX IF NOT EXISTS idx_official_bid_cards_draft ON official_bid_cards(draft_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCard(ctx context.Context, card *model.PotentialBidCard) error {
	fieldsJSON, err := json.Marshal(card.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bid_cards (id, conversation_id, session_id, user_id, status, fields, completion, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.ConversationID, card.SessionID, card.UserID,
		string(card.Status), string(fieldsJSON), card.CompletionPercentage,
		card.CreatedAt, card.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert bid card")
}

func (s *SQLiteStore) GetCard(ctx context.Context, id string) (*model.PotentialBidCard, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, session_id, user_id, status, fields, completion, created_at, updated_at
		 FROM bid_cards WHERE id = ?`, id)
	return scanCard(row, id)
}

func (s *SQLiteStore) LatestCardForConversation(ctx context.Context, conversationID string) (*model.PotentialBidCard, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, session_id, user_id, status, fields, completion, created_at, updated_at
		 FROM bid_cards WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, conversationID)
	return scanCard(row, conversationID)
}

func (s *SQLiteStore) UpdateCard(ctx context.Context, id string, mutate func(*model.PotentialBidCard) error) (*model.PotentialBidCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin update")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, conversation_id, session_id, user_id, status, fields, completion, created_at, updated_at
		 FROM bid_cards WHERE id = ?`, id)
	card, err := scanCard(row, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(card); err != nil {
		return nil, err
	}

	if err := writeCard(ctx, tx, card); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit update")
	}
	return card, nil
}

func (s *SQLiteStore) ConvertCard(ctx context.Context, id string, build func(*model.PotentialBidCard) (*model.OfficialBidCard, error)) (*model.OfficialBidCard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: begin convert")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, conversation_id, session_id, user_id, status, fields, completion, created_at, updated_at
		 FROM bid_cards WHERE id = ?`, id)
	card, err := scanCard(row, id)
	if err != nil {
		return nil, false, err
	}

	if card.Converted() {
		official, err := scanOfficial(tx.QueryRowContext(ctx,
			officialSelectSQLite+` WHERE draft_id = ?`, id), id)
		if err != nil {
			return nil, false, err
		}
		return official, false, nil
	}

	official, err := build(card)
	if err != nil {
		return nil, false, err
	}

	docJSON, err := json.Marshal(official.Document)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: marshal bid document")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO official_bid_cards (id, bid_number, project_type, title, description, zip_code, urgency_level, document, draft_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		official.ID, official.BidNumber, official.ProjectType, official.Title,
		official.Description, official.ZipCode, official.UrgencyLevel,
		string(docJSON), id, official.CreatedAt,
	); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: insert official bid card")
	}
	if err := writeCard(ctx, tx, card); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: commit convert")
	}
	return official, true, nil
}

const officialSelectSQLite = `SELECT id, bid_number, project_type, title, description, zip_code, urgency_level, document, created_at
	 FROM official_bid_cards`

func (s *SQLiteStore) GetOfficialCard(ctx context.Context, id string) (*model.OfficialBidCard, error) {
	return scanOfficial(s.db.QueryRowContext(ctx, officialSelectSQLite+` WHERE id = ?`, id), id)
}

func (s *SQLiteStore) OfficialCardForDraft(ctx context.Context, draftID string) (*model.OfficialBidCard, error) {
	return scanOfficial(s.db.QueryRowContext(ctx, officialSelectSQLite+` WHERE draft_id = ?`, draftID), draftID)
}

// helpers

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeCard(ctx context.Context, ex execer, card *model.PotentialBidCard) error {
	fieldsJSON, err := json.Marshal(card.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	card.UpdatedAt = time.Now().UTC()
	res, err := ex.ExecContext(ctx,
		`UPDATE bid_cards SET user_id = ?, status = ?, fields = ?, completion = ?, updated_at = ? WHERE id = ?`,
		card.UserID, string(card.Status), string(fieldsJSON), card.CompletionPercentage, card.UpdatedAt, card.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update bid card %s", card.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrCardNotFound, "sqlite: update bid card %s", card.ID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCard(row scannable, id string) (*model.PotentialBidCard, error) {
	var c model.PotentialBidCard
	var fieldsJSON string

	err := row.Scan(&c.ID, &c.ConversationID, &c.SessionID, &c.UserID,
		&c.Status, &fieldsJSON, &c.CompletionPercentage, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrCardNotFound, "sqlite: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan bid card")
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &c.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	if c.Fields == nil {
		c.Fields = make(map[string]model.FieldEntry)
	}
	return &c, nil
}

func scanOfficial(row scannable, id string) (*model.OfficialBidCard, error) {
	var o model.OfficialBidCard
	var docJSON string

	err := row.Scan(&o.ID, &o.BidNumber, &o.ProjectType, &o.Title,
		&o.Description, &o.ZipCode, &o.UrgencyLevel, &docJSON, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrOfficialNotFound, "sqlite: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan official bid card")
	}
	if err := json.Unmarshal([]byte(docJSON), &o.Document); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal bid document")
	}
	return &o, nil
}
