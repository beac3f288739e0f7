// Package store defines the persistence interface for potential and official
// bid cards, with Postgres, SQLite, and in-memory implementations. The draft
// record is the unit of mutual exclusion: every backend serializes mutations
// per card id so completion recomputation never interleaves mid-write.
package store

import (
	"context"
	"errors"

	"github.com/instabids/bidcard-cli/internal/model"
)

// Sentinel errors shared by all backends. Backends wrap them with context;
// callers branch with errors.Is.
var (
	ErrCardNotFound     = errors.New("bid card not found")
	ErrOfficialNotFound = errors.New("official bid card not found")
	ErrCardConverted    = errors.New("bid card already converted")
)

// Store is the persistence interface for the bid card lifecycle.
//
// UpdateCard and ConvertCard run their callback inside the per-card critical
// section (a row lock or equivalent), so read-modify-write cycles are atomic
// relative to concurrent writers on the same card.
type Store interface {
	// CreateCard persists a new draft.
	CreateCard(ctx context.Context, card *model.PotentialBidCard) error

	// GetCard returns a snapshot of the draft, or ErrCardNotFound.
	GetCard(ctx context.Context, id string) (*model.PotentialBidCard, error)

	// LatestCardForConversation returns the most recently created draft for a
	// conversation id, or ErrCardNotFound. Conversation ids are advisory
	// correlation, not a uniqueness constraint.
	LatestCardForConversation(ctx context.Context, conversationID string) (*model.PotentialBidCard, error)

	// UpdateCard loads the card under lock, applies mutate, and persists the
	// result. An error from mutate aborts the update. Returns the updated
	// snapshot.
	UpdateCard(ctx context.Context, id string, mutate func(*model.PotentialBidCard) error) (*model.PotentialBidCard, error)

	// ConvertCard promotes a draft at most once. If the card is already
	// converted it returns the previously created official record and
	// created=false without invoking build. Otherwise build receives the
	// locked card, may mutate it (assign user, flip status), and returns the
	// official record to persist atomically with the card update.
	ConvertCard(ctx context.Context, id string, build func(*model.PotentialBidCard) (*model.OfficialBidCard, error)) (official *model.OfficialBidCard, created bool, err error)

	// GetOfficialCard returns an official record by id, or ErrOfficialNotFound.
	GetOfficialCard(ctx context.Context, id string) (*model.OfficialBidCard, error)

	// OfficialCardForDraft returns the official record created from the given
	// draft, or ErrOfficialNotFound.
	OfficialCardForDraft(ctx context.Context, draftID string) (*model.OfficialBidCard, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
