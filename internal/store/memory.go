package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/instabids/bidcard-cli/internal/model"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
// A per-card mutex gives the same single-writer-per-key discipline as the
// row locks in the SQL backends.
//
// Lock order: a card mutex may be held while taking s.mu (ConvertCard
// registers the official record that way), so s.mu must never be held while
// acquiring a card mutex.
type MemoryStore struct {
	mu        sync.RWMutex
	cards     map[string]*memCard
	officials map[string]*model.OfficialBidCard // by official id
	byDraft   map[string]string                 // draft id -> official id
	order     []string                          // card ids in creation order
}

type memCard struct {
	mu   sync.Mutex
	card *model.PotentialBidCard
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		cards:     make(map[string]*memCard),
		officials: make(map[string]*model.OfficialBidCard),
		byDraft:   make(map[string]string),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func (s *MemoryStore) CreateCard(ctx context.Context, card *model.PotentialBidCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[card.ID]; ok {
		return eris.Errorf("memory: card already exists: %s", card.ID)
	}
	s.cards[card.ID] = &memCard{card: card.Clone()}
	s.order = append(s.order, card.ID)
	return nil
}

func (s *MemoryStore) GetCard(ctx context.Context, id string) (*model.PotentialBidCard, error) {
	s.mu.RLock()
	mc, ok := s.cards[id]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrCardNotFound, "memory: get card %s", id)
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.card.Clone(), nil
}

func (s *MemoryStore) LatestCardForConversation(ctx context.Context, conversationID string) (*model.PotentialBidCard, error) {
	// Snapshot the card list first; inspecting a card needs its mutex, which
	// must never be acquired under s.mu.
	s.mu.RLock()
	candidates := make([]*memCard, len(s.order))
	for i, id := range s.order {
		candidates[i] = s.cards[id]
	}
	s.mu.RUnlock()

	for i := len(candidates) - 1; i >= 0; i-- {
		mc := candidates[i]
		mc.mu.Lock()
		var snap *model.PotentialBidCard
		if mc.card.ConversationID == conversationID {
			snap = mc.card.Clone()
		}
		mc.mu.Unlock()
		if snap != nil {
			return snap, nil
		}
	}
	return nil, eris.Wrapf(ErrCardNotFound, "memory: no card for conversation %s", conversationID)
}

func (s *MemoryStore) UpdateCard(ctx context.Context, id string, mutate func(*model.PotentialBidCard) error) (*model.PotentialBidCard, error) {
	s.mu.RLock()
	mc, ok := s.cards[id]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrCardNotFound, "memory: update card %s", id)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	working := mc.card.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	mc.card = working
	return working.Clone(), nil
}

func (s *MemoryStore) ConvertCard(ctx context.Context, id string, build func(*model.PotentialBidCard) (*model.OfficialBidCard, error)) (*model.OfficialBidCard, bool, error) {
	s.mu.RLock()
	mc, ok := s.cards[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, eris.Wrapf(ErrCardNotFound, "memory: convert card %s", id)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.card.Converted() {
		s.mu.RLock()
		officialID, ok := s.byDraft[id]
		official := s.officials[officialID]
		s.mu.RUnlock()
		if !ok || official == nil {
			return nil, false, eris.Wrapf(ErrOfficialNotFound, "memory: converted card %s has no official record", id)
		}
		return official.Clone(), false, nil
	}

	working := mc.card.Clone()
	official, err := build(working)
	if err != nil {
		return nil, false, err
	}

	mc.card = working
	s.mu.Lock()
	s.officials[official.ID] = official.Clone()
	s.byDraft[id] = official.ID
	s.mu.Unlock()
	return official, true, nil
}

func (s *MemoryStore) GetOfficialCard(ctx context.Context, id string) (*model.OfficialBidCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	official, ok := s.officials[id]
	if !ok {
		return nil, eris.Wrapf(ErrOfficialNotFound, "memory: get official card %s", id)
	}
	return official.Clone(), nil
}

func (s *MemoryStore) OfficialCardForDraft(ctx context.Context, draftID string) (*model.OfficialBidCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	officialID, ok := s.byDraft[draftID]
	if !ok {
		return nil, eris.Wrapf(ErrOfficialNotFound, "memory: no official card for draft %s", draftID)
	}
	return s.officials[officialID].Clone(), nil
}
