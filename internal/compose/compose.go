// Package compose maps a flat bid card field snapshot into the official
// record shape: a small set of core columns plus a categorized bid document.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/instabids/bidcard-cli/internal/model"
)

// Compose builds the official bid card for a draft. Every key present in the
// draft's field map lands in exactly one core column or one document
// section; an unknown key in the snapshot is a data corruption signal and
// fails the conversion rather than dropping the value silently.
func Compose(schema *model.Schema, card *model.PotentialBidCard, convertedBy string, now time.Time) (*model.OfficialBidCard, error) {
	official := &model.OfficialBidCard{
		ID:        uuid.New().String(),
		BidNumber: NewBidNumber(now),
		CreatedAt: now,
		Document: model.BidDocument{
			ProjectRequirements:  model.DocumentSection{},
			LocationDetails:      model.DocumentSection{},
			ContactInformation:   model.DocumentSection{},
			TimelinePreferences:  model.DocumentSection{},
			BudgetDetails:        model.DocumentSection{},
			ProjectRelationships: model.DocumentSection{},
			Media:                model.DocumentSection{},
			AIAnalysis: model.AIAnalysis{
				ExtractedFields: map[string]model.ExtractedField{},
			},
			Conversion: model.ConversionMetadata{
				SourceBidCardID: card.ID,
				ConvertedBy:     convertedBy,
				ConvertedAt:     now,
			},
		},
	}

	for key, entry := range card.Fields {
		spec := schema.ByKey(key)
		if spec == nil {
			return nil, eris.Errorf("compose: unknown field %q in snapshot for card %s", key, card.ID)
		}
		if spec.Section == model.SectionCore {
			applyCoreColumn(official, key, entry.Value)
		} else {
			sec := official.Document.SectionByName(spec.Section)
			if sec == nil {
				return nil, eris.Errorf("compose: field %q maps to unknown section %q", key, spec.Section)
			}
			sec[key] = entry.Value
		}
		if entry.Source == model.SourceAIExtraction {
			official.Document.AIAnalysis.ExtractedFields[key] = model.ExtractedField{
				Confidence:  entry.Confidence,
				ExtractedAt: entry.UpdatedAt,
			}
		}
	}

	ai := &official.Document.AIAnalysis
	ai.ExtractedCount = len(ai.ExtractedFields)
	if ai.ExtractedCount > 0 {
		var sum float64
		for _, f := range ai.ExtractedFields {
			sum += f.Confidence
		}
		ai.AverageConfidence = sum / float64(ai.ExtractedCount)
	}

	if official.Title == "" {
		official.Title = TitleFromProjectType(official.ProjectType)
	}

	return official, nil
}

func applyCoreColumn(official *model.OfficialBidCard, key string, value any) {
	s, _ := value.(string)
	switch key {
	case "project_type":
		official.ProjectType = s
	case "title":
		official.Title = s
	case "description":
		official.Description = s
	case "zip_code":
		official.ZipCode = s
	case "urgency_level":
		official.UrgencyLevel = s
	}
}

// TitleFromProjectType derives a human-readable title from a snake_case
// project type, e.g. "bathroom_remodel" -> "Bathroom Remodel Project".
func TitleFromProjectType(projectType string) string {
	if projectType == "" {
		return "Home Improvement Project"
	}
	words := strings.Split(projectType, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + " Project"
}

// NewBidNumber generates the human-readable identifier stamped on the
// official record, e.g. "BC-20260831-7F3A2C".
func NewBidNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("BC-%s-%s", t.UTC().Format("20060102"), suffix)
}
