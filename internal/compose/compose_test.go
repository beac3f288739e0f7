package compose

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instabids/bidcard-cli/internal/model"
)

func testCard() *model.PotentialBidCard {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	return &model.PotentialBidCard{
		ID:             "draft-1",
		ConversationID: "c1",
		UserID:         "user-1",
		Status:         model.CardStatusReady,
		Fields: map[string]model.FieldEntry{
			"project_type":  {Value: "bathroom_remodel", Source: model.SourceAIExtraction, Confidence: 0.92, UpdatedAt: now},
			"description":   {Value: "full gut renovation", Source: model.SourceUserEdit, Confidence: 1.0, UpdatedAt: now},
			"zip_code":      {Value: "10001", Source: model.SourceAIExtraction, Confidence: 0.88, UpdatedAt: now},
			"email_address": {Value: "a@b.com", Source: model.SourceUserEdit, Confidence: 1.0, UpdatedAt: now},
			"urgency_level": {Value: "week", Source: model.SourceBulkMerge, Confidence: 1.0, UpdatedAt: now},
			"budget_min":    {Value: float64(30000), Source: model.SourceBulkMerge, Confidence: 1.0, UpdatedAt: now},
			"phone_number":  {Value: "212-555-0101", Source: model.SourceUserEdit, Confidence: 1.0, UpdatedAt: now},
			"photo_urls":    {Value: []string{"http://x/1.jpg"}, Source: model.SourceUserEdit, Confidence: 1.0, UpdatedAt: now},
		},
	}
}

func TestComposeCoreColumns(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 4, 5, 0, time.UTC)
	official, err := Compose(model.DefaultSchema(), testCard(), "user-1", now)
	require.NoError(t, err)

	assert.NotEmpty(t, official.ID)
	assert.Equal(t, "bathroom_remodel", official.ProjectType)
	assert.Equal(t, "full gut renovation", official.Description)
	assert.Equal(t, "10001", official.ZipCode)
	assert.Equal(t, "week", official.UrgencyLevel)
	assert.Equal(t, "Bathroom Remodel Project", official.Title)

	assert.Equal(t, "draft-1", official.Document.Conversion.SourceBidCardID)
	assert.Equal(t, "user-1", official.Document.Conversion.ConvertedBy)
	assert.Equal(t, now, official.Document.Conversion.ConvertedAt)
}

func TestComposeSections(t *testing.T) {
	official, err := Compose(model.DefaultSchema(), testCard(), "user-1", time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, float64(30000), official.Document.BudgetDetails["budget_min"])
	assert.Equal(t, "212-555-0101", official.Document.ContactInformation["phone_number"])
	assert.Equal(t, "a@b.com", official.Document.ContactInformation["email_address"])
	assert.Equal(t, []string{"http://x/1.jpg"}, official.Document.Media["photo_urls"])
}

func TestComposeLossless(t *testing.T) {
	schema := model.DefaultSchema()
	card := testCard()

	official, err := Compose(schema, card, "user-1", time.Now().UTC())
	require.NoError(t, err)

	// Union of composed outputs must cover every key in the snapshot
	// exactly once.
	for key := range card.Fields {
		spec := schema.ByKey(key)
		require.NotNil(t, spec)

		inSections := 0
		for _, sec := range []model.Section{
			model.SectionRequirements, model.SectionLocation, model.SectionContact,
			model.SectionTimeline, model.SectionBudget, model.SectionRelationships,
			model.SectionMedia,
		} {
			if _, ok := official.Document.SectionByName(sec)[key]; ok {
				inSections++
			}
		}

		if spec.Section == model.SectionCore {
			assert.Zero(t, inSections, "core field %s leaked into a section", key)
		} else {
			assert.Equal(t, 1, inSections, "field %s must land in exactly one section", key)
		}
	}
}

func TestComposeUnknownFieldFails(t *testing.T) {
	card := testCard()
	card.Fields["mystery"] = model.FieldEntry{Value: "x"}

	_, err := Compose(model.DefaultSchema(), card, "user-1", time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestComposeAIAnalysis(t *testing.T) {
	official, err := Compose(model.DefaultSchema(), testCard(), "user-1", time.Now().UTC())
	require.NoError(t, err)

	ai := official.Document.AIAnalysis
	assert.Equal(t, 2, ai.ExtractedCount)
	assert.Contains(t, ai.ExtractedFields, "project_type")
	assert.Contains(t, ai.ExtractedFields, "zip_code")
	assert.NotContains(t, ai.ExtractedFields, "description")
	assert.InDelta(t, 0.90, ai.AverageConfidence, 0.001)
}

func TestComposeExplicitTitleWins(t *testing.T) {
	card := testCard()
	card.Fields["title"] = model.FieldEntry{Value: "Master Bath Redo", Source: model.SourceUserEdit, Confidence: 1.0}

	official, err := Compose(model.DefaultSchema(), card, "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "Master Bath Redo", official.Title)
}

func TestTitleFromProjectType(t *testing.T) {
	assert.Equal(t, "Bathroom Remodel Project", TitleFromProjectType("bathroom_remodel"))
	assert.Equal(t, "Roofing Project", TitleFromProjectType("roofing"))
	assert.Equal(t, "Home Improvement Project", TitleFromProjectType(""))
}

func TestNewBidNumberFormat(t *testing.T) {
	ts := time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)
	n := NewBidNumber(ts)
	assert.Regexp(t, regexp.MustCompile(`^BC-20260831-[0-9A-F]{6}$`), n)

	// Suffixes are random, collisions on consecutive calls should not happen.
	assert.NotEqual(t, n, NewBidNumber(ts))
}
