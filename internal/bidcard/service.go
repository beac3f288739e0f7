// Package bidcard implements the draft bid card lifecycle: progressive field
// construction across a conversation, completion scoring, and the one-way
// promotion of a ready draft into an immutable official bid card.
package bidcard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/instabids/bidcard-cli/internal/compose"
	"github.com/instabids/bidcard-cli/internal/model"
	"github.com/instabids/bidcard-cli/internal/scorer"
	"github.com/instabids/bidcard-cli/internal/store"
)

// Service orchestrates create/update/status/convert operations on potential
// bid cards. All mutations run inside the store's per-card critical section,
// so completion recomputation always sees a consistent snapshot.
type Service struct {
	store    store.Store
	schema   *model.Schema
	notifier *DiscoveryNotifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSchema overrides the default field schema.
func WithSchema(s *model.Schema) Option {
	return func(svc *Service) { svc.schema = s }
}

// WithNotifier attaches a discovery notifier fired after each conversion.
func WithNotifier(n *DiscoveryNotifier) Option {
	return func(svc *Service) { svc.notifier = n }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// NewService creates a lifecycle service over the given store.
func NewService(st store.Store, opts ...Option) *Service {
	svc := &Service{
		store:  st,
		schema: model.DefaultSchema(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Schema returns the field schema the service validates against.
func (s *Service) Schema() *model.Schema {
	return s.schema
}

// CreateRequest holds the inputs for creating a draft. UserID is optional:
// anonymous drafts are allowed and claim a user at conversion time.
type CreateRequest struct {
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
}

// Create makes a new draft bid card for a conversation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.PotentialBidCard, error) {
	if req.ConversationID == "" {
		return nil, &PreconditionError{Code: CodeInvalidValue, Message: "conversation_id is required"}
	}

	now := s.now()
	card := &model.PotentialBidCard{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		Status:         model.CardStatusDraft,
		Fields:         make(map[string]model.FieldEntry),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Title != "" {
		card.Fields["title"] = model.FieldEntry{
			Value:      req.Title,
			Source:     model.SourceUserEdit,
			Confidence: 1.0,
			UpdatedAt:  now,
		}
	}
	s.rescore(card)

	if err := s.store.CreateCard(ctx, card); err != nil {
		return nil, eris.Wrap(err, "create bid card")
	}

	zap.L().Info("bid card created",
		zap.String("bid_card_id", card.ID),
		zap.String("conversation_id", card.ConversationID),
	)
	return card, nil
}

// WriteResult reports the draft state after a field write.
type WriteResult struct {
	Status               model.CardStatus `json:"status"`
	CompletionPercentage int              `json:"completion_percentage"`
}

// WriteField writes a single field value with provenance. Unknown field
// names are rejected: the caller named the field explicitly, so silence
// would hide a typo. Confidence defaults to 1.0 for direct user edits.
func (s *Service) WriteField(ctx context.Context, cardID, name string, value any, source model.FieldSource, confidence float64) (*WriteResult, error) {
	spec := s.schema.ByKey(name)
	if spec == nil {
		return nil, &PreconditionError{Code: CodeUnknownField, Message: "unknown field: " + name}
	}
	if source == "" {
		source = model.SourceUserEdit
	}
	if source == model.SourceUserEdit && confidence == 0 {
		confidence = 1.0
	}

	normalized, err := spec.Normalize(value)
	if err != nil {
		return nil, &PreconditionError{Code: CodeInvalidValue, Message: err.Error()}
	}

	card, err := s.store.UpdateCard(ctx, cardID, func(card *model.PotentialBidCard) error {
		if card.Converted() {
			return eris.Wrapf(store.ErrCardConverted, "write field %s", name)
		}
		card.Fields[name] = model.FieldEntry{
			Value:      normalized,
			Source:     source,
			Confidence: confidence,
			UpdatedAt:  s.now(),
		}
		s.rescore(card)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &WriteResult{Status: card.Status, CompletionPercentage: card.CompletionPercentage}, nil
}

// WriteMany bulk-merges extracted field values into a draft. Unknown keys
// and empty values are skipped rather than failing the batch, so eager
// callers can pass raw extraction output. Returns the count of fields
// actually applied. Re-applying the same payload is idempotent.
func (s *Service) WriteMany(ctx context.Context, cardID string, values map[string]any, source model.FieldSource) (int, error) {
	if source == "" {
		source = model.SourceBulkMerge
	}

	applied := 0
	_, err := s.store.UpdateCard(ctx, cardID, func(card *model.PotentialBidCard) error {
		if card.Converted() {
			return eris.Wrap(store.ErrCardConverted, "bulk merge")
		}
		applied = 0
		now := s.now()
		for name, value := range values {
			spec := s.schema.ByKey(name)
			if spec == nil {
				continue
			}
			normalized, err := spec.Normalize(value)
			if err != nil || model.IsEmpty(normalized) {
				continue
			}
			card.Fields[name] = model.FieldEntry{
				Value:      normalized,
				Source:     source,
				Confidence: 1.0,
				UpdatedAt:  now,
			}
			applied++
		}
		s.rescore(card)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// StatusResult is the full draft snapshot plus derived completion state.
type StatusResult struct {
	Card          *model.PotentialBidCard `json:"bid_card"`
	MissingFields []string                `json:"missing_fields"`
}

// Status returns the draft's status, completion, missing required fields,
// and full field snapshot.
func (s *Service) Status(ctx context.Context, cardID string) (*StatusResult, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	res := scorer.Score(s.schema, card.Fields)
	return &StatusResult{Card: card, MissingFields: res.MissingRequired}, nil
}

// Lookup returns the most recent draft for a conversation id.
func (s *Service) Lookup(ctx context.Context, conversationID string) (*model.PotentialBidCard, error) {
	return s.store.LatestCardForConversation(ctx, conversationID)
}

// Official returns an official bid card by id.
func (s *Service) Official(ctx context.Context, id string) (*model.OfficialBidCard, error) {
	return s.store.GetOfficialCard(ctx, id)
}

// ConvertResult is the outcome of a conversion call.
type ConvertResult struct {
	Official         *model.OfficialBidCard `json:"official_bid_card"`
	AlreadyConverted bool                   `json:"already_converted"`
	DiscoveryQueued  bool                   `json:"discovery_queued"`
}

// Convert promotes a ready draft into an official bid card. Preconditions
// are checked in order inside the per-card critical section: the draft
// exists, is not already converted (idempotent short-circuit returning the
// prior record, even for anonymous retries), the caller is authenticated and
// matches or claims the draft's user, and all required fields are present.
// The first failing condition determines the error. On success a discovery
// event is emitted fire-and-forget.
func (s *Service) Convert(ctx context.Context, cardID, userID string) (*ConvertResult, error) {
	official, created, err := s.store.ConvertCard(ctx, cardID, func(card *model.PotentialBidCard) (*model.OfficialBidCard, error) {
		if userID == "" {
			return nil, &PreconditionError{Code: CodeUnauthenticated, Message: "conversion requires an authenticated user"}
		}
		if card.UserID != "" && card.UserID != userID {
			return nil, &PreconditionError{Code: CodeUserMismatch, Message: "bid card belongs to another user"}
		}
		if missing := scorer.Score(s.schema, card.Fields).MissingRequired; len(missing) > 0 {
			return nil, &PreconditionError{
				Code:          CodeMissingFields,
				Message:       "bid card is not ready for conversion",
				MissingFields: missing,
			}
		}

		card.UserID = userID
		official, err := compose.Compose(s.schema, card, userID, s.now())
		if err != nil {
			return nil, err
		}
		card.Status = model.CardStatusConverted
		return official, nil
	})
	if err != nil {
		return nil, err
	}

	result := &ConvertResult{Official: official, AlreadyConverted: !created}
	if created {
		zap.L().Info("bid card converted",
			zap.String("bid_card_id", cardID),
			zap.String("official_bid_card_id", official.ID),
			zap.String("bid_number", official.BidNumber),
		)
		if s.notifier != nil {
			result.DiscoveryQueued = true
			go s.notifier.NotifyAsync(official)
		}
	}
	return result, nil
}

// rescore recomputes completion and re-evaluates the draft/ready transition
// from the full post-write snapshot. Converted cards are never re-scored.
func (s *Service) rescore(card *model.PotentialBidCard) {
	res := scorer.Score(s.schema, card.Fields)
	card.CompletionPercentage = res.Percentage
	if card.Converted() {
		return
	}
	if len(res.MissingRequired) == 0 {
		card.Status = model.CardStatusReady
	} else {
		card.Status = model.CardStatusDraft
	}
}
