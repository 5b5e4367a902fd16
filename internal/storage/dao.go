package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	"github.com/jackc/pgx/v5"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// GetEventsByFilter retrieves cached events matching a nostr filter.
func (db *DB) GetEventsByFilter(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error) {
	query, args := buildFilterQuery(filter)

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db.log.Debug("Executing cache query",
		zap.String("query", query),
		zap.Int("arg_count", len(args)))

	rows, err := db.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]nostr.Event, 0, constants.DefaultQueryPrealloc)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			db.log.Warn("Row scan failed", zap.Error(err))
			continue
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// GetEventByID retrieves a single cached event, nil when absent.
func (db *DB) GetEventByID(ctx context.Context, id string) (*nostr.Event, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT id, pubkey, kind, created_at, content, tags, sig FROM events WHERE id = $1`, id)

	evt, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return &evt, nil
}

// GetProfileByPubkey retrieves the newest cached metadata event for a
// pubkey, nil when absent.
func (db *DB) GetProfileByPubkey(ctx context.Context, pubkey string) (*nostr.Event, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT id, pubkey, kind, created_at, content, tags, sig FROM events
		 WHERE pubkey = $1 AND kind = $2
		 ORDER BY created_at DESC LIMIT 1`,
		pubkey, constants.KindProfileMetadata)

	evt, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &evt, nil
}

// UpsertEvent stores one event. Events are immutable, so conflicts on id are
// ignored.
func (db *DB) UpsertEvent(ctx context.Context, evt nostr.Event) error {
	tags, err := json.Marshal(evt.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO events (id, pubkey, kind, created_at, content, tags, sig)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		evt.ID, evt.PubKey, evt.Kind, evt.CreatedAt.Time().Unix(),
		evt.Content, tags, evt.Sig)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

// UpsertEventsBatch stores many events in chunked pgx batches.
func (db *DB) UpsertEventsBatch(ctx context.Context, events []nostr.Event) error {
	if len(events) == 0 {
		return nil
	}

	for i := 0; i < len(events); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := db.upsertChunk(ctx, events[i:end]); err != nil {
			return fmt.Errorf("batch upsert failed: %w", err)
		}
	}
	return nil
}

func (db *DB) upsertChunk(ctx context.Context, events []nostr.Event) error {
	batch := &pgx.Batch{}
	for _, evt := range events {
		tags, err := json.Marshal(evt.Tags)
		if err != nil {
			db.log.Warn("Skipping event with unencodable tags",
				zap.String("id", evt.ID), zap.Error(err))
			continue
		}
		batch.Queue(
			`INSERT INTO events (id, pubkey, kind, created_at, content, tags, sig)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			evt.ID, evt.PubKey, evt.Kind, evt.CreatedAt.Time().Unix(),
			evt.Content, tags, evt.Sig)
	}
	return db.Pool.SendBatch(ctx, batch).Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (nostr.Event, error) {
	var evt nostr.Event
	var createdAt int64
	var rawTags []byte

	if err := row.Scan(&evt.ID, &evt.PubKey, &evt.Kind, &createdAt, &evt.Content, &rawTags, &evt.Sig); err != nil {
		return nostr.Event{}, err
	}
	evt.CreatedAt = nostr.Timestamp(createdAt)
	if len(rawTags) > 0 {
		if err := json.Unmarshal(rawTags, &evt.Tags); err != nil {
			evt.Tags = nostr.Tags{}
		}
	}
	return evt, nil
}
