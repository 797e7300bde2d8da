package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/domain"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when an entry is not on a cell's chain.
var ErrNotFound = errors.New("not found")

// Action types recorded on a chain.
const (
	ActionCreate     = "create"
	ActionCreateLink = "create_link"
)

// Store holds the source chains of every cell in the conductor. Each cell
// only ever sees its own entries, actions, and links.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers, which keeps per-cell sequence
	// numbers gapless.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// action is the hashed form of a chain record.
type action struct {
	Type      string             `json:"type"`
	Author    domain.AgentPubKey `json:"author"`
	Seq       uint64             `json:"seq"`
	Prev      domain.ActionHash  `json:"prev"`
	Entry     domain.EntryHash   `json:"entry"`
	Tag       string             `json:"tag,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

func (s *Store) appendAction(ctx context.Context, tx *sql.Tx, call domain.CallContext, actionType string, eh domain.EntryHash, tag string) (domain.ActionHash, uint64, time.Time, error) {
	cell := call.Cell.String()

	var (
		seq  uint64
		prev domain.ActionHash
	)
	var prevStr sql.NullString
	err := tx.QueryRowContext(ctx,
		"SELECT seq, hash FROM actions WHERE cell = ? ORDER BY seq DESC LIMIT 1",
		cell,
	).Scan(&seq, &prevStr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.ActionHash{}, 0, time.Time{}, fmt.Errorf("read chain head: %w", err)
	}
	if prevStr.Valid {
		if err := prev.UnmarshalText([]byte(prevStr.String)); err != nil {
			return domain.ActionHash{}, 0, time.Time{}, fmt.Errorf("read chain head: %w", err)
		}
	}
	seq++

	now := s.now()
	ah, err := domain.HashAction(action{
		Type:      actionType,
		Author:    call.Provenance,
		Seq:       seq,
		Prev:      prev,
		Entry:     eh,
		Tag:       tag,
		Timestamp: now.UnixMicro(),
	})
	if err != nil {
		return domain.ActionHash{}, 0, time.Time{}, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO actions (cell, seq, hash, action_type, author, entry_hash, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		cell, seq, ah.String(), actionType, call.Provenance.String(), eh.String(), now,
	)
	if err != nil {
		return domain.ActionHash{}, 0, time.Time{}, fmt.Errorf("insert action: %w", err)
	}
	return ah, seq, now, nil
}

// CreateEntry writes v to the calling cell's chain and returns its content
// address and the action that created it. Writing identical content twice
// records two actions for one entry.
func (s *Store) CreateEntry(ctx context.Context, call domain.CallContext, entryType string, v any) (domain.EntryHash, domain.ActionHash, error) {
	eh, body, err := domain.HashEntry(v)
	if err != nil {
		return domain.EntryHash{}, domain.ActionHash{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.EntryHash{}, domain.ActionHash{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO entries (cell, hash, entry_type, body) VALUES (?, ?, ?, ?)",
		call.Cell.String(), eh.String(), entryType, body,
	)
	if err != nil {
		return domain.EntryHash{}, domain.ActionHash{}, fmt.Errorf("insert entry: %w", err)
	}

	ah, _, _, err := s.appendAction(ctx, tx, call, ActionCreate, eh, "")
	if err != nil {
		return domain.EntryHash{}, domain.ActionHash{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.EntryHash{}, domain.ActionHash{}, fmt.Errorf("commit: %w", err)
	}
	return eh, ah, nil
}

// GetEntry decodes the entry at eh into out and returns the action that
// first created it.
func (s *Store) GetEntry(ctx context.Context, cell domain.CellID, eh domain.EntryHash, out any) (domain.ActionHash, error) {
	var (
		body  []byte
		ahStr string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT e.body, a.hash
		FROM entries e
		JOIN actions a ON a.cell = e.cell AND a.entry_hash = e.hash AND a.action_type = ?
		WHERE e.cell = ? AND e.hash = ?
		ORDER BY a.seq
		LIMIT 1
	`, ActionCreate, cell.String(), eh.String()).Scan(&body, &ahStr)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ActionHash{}, fmt.Errorf("get entry %s: %w", eh, ErrNotFound)
	}
	if err != nil {
		return domain.ActionHash{}, fmt.Errorf("get entry: %w", err)
	}

	var ah domain.ActionHash
	if err := ah.UnmarshalText([]byte(ahStr)); err != nil {
		return domain.ActionHash{}, fmt.Errorf("get entry: %w", err)
	}
	if err := codec.Unmarshal(body, out); err != nil {
		return domain.ActionHash{}, fmt.Errorf("decode entry %s: %w", eh, err)
	}
	return ah, nil
}

// Anchor returns the hash of the anchor entry for (anchorType, text),
// creating the entry on first use.
func (s *Store) Anchor(ctx context.Context, call domain.CallContext, anchorType, text string) (domain.EntryHash, error) {
	anchor := domain.AnchorEntry{Type: anchorType, Text: text}
	eh, body, err := domain.HashEntry(anchor)
	if err != nil {
		return domain.EntryHash{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.EntryHash{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO entries (cell, hash, entry_type, body) VALUES (?, ?, ?, ?)",
		call.Cell.String(), eh.String(), "anchor", body,
	)
	if err != nil {
		return domain.EntryHash{}, fmt.Errorf("insert anchor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eh, nil
	}

	if _, _, _, err := s.appendAction(ctx, tx, call, ActionCreate, eh, ""); err != nil {
		return domain.EntryHash{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.EntryHash{}, fmt.Errorf("commit: %w", err)
	}
	return eh, nil
}

// CreateLink links base to target under tag.
func (s *Store) CreateLink(ctx context.Context, call domain.CallContext, base, target domain.EntryHash, tag string) (domain.ActionHash, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionHash{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ah, seq, now, err := s.appendAction(ctx, tx, call, ActionCreateLink, target, tag)
	if err != nil {
		return domain.ActionHash{}, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO links (id, cell, base, target, tag, action_hash, seq, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		uuid.New().String(), call.Cell.String(), base.String(), target.String(), tag, ah.String(), seq, now,
	)
	if err != nil {
		return domain.ActionHash{}, fmt.Errorf("insert link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ActionHash{}, fmt.Errorf("commit: %w", err)
	}
	return ah, nil
}

// GetLinks returns the links from base under tag, ordered by target hash.
// Callers must not rely on creation order; use domain.LatestLink for that.
func (s *Store) GetLinks(ctx context.Context, cell domain.CellID, base domain.EntryHash, tag string) ([]domain.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target, action_hash, seq, created_at
		FROM links
		WHERE cell = ? AND base = ? AND tag = ?
		ORDER BY target, seq
	`, cell.String(), base.String(), tag)
	if err != nil {
		return nil, fmt.Errorf("get links: %w", err)
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		l := domain.Link{Base: base, Tag: tag}
		var target, ah string
		if err := rows.Scan(&l.ID, &target, &ah, &l.Seq, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		if err := l.Target.UnmarshalText([]byte(target)); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		if err := l.Action.UnmarshalText([]byte(ah)); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get links: %w", err)
	}

	return links, nil
}

// ChainLength returns the number of actions on a cell's chain.
func (s *Store) ChainLength(ctx context.Context, cell domain.CellID) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM actions WHERE cell = ?",
		cell.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("chain length: %w", err)
	}
	return n, nil
}
