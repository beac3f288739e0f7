package model

import "time"

// Document section names. Every schema field maps to exactly one of these or
// to a core column, so composition is lossless by construction.
type Section string

const (
	SectionCore          Section = "core" // first-class columns on the official record
	SectionRequirements  Section = "project_requirements"
	SectionLocation      Section = "location_details"
	SectionContact       Section = "contact_information"
	SectionTimeline      Section = "timeline_preferences"
	SectionBudget        Section = "budget_details"
	SectionRelationships Section = "project_relationships"
	SectionMedia         Section = "media"
)

// DocumentSection holds the field values routed to one category of the
// composed bid document, keyed by field name.
type DocumentSection map[string]any

// ExtractedField records the confidence of a machine-extracted field at
// conversion time.
type ExtractedField struct {
	Confidence  float64   `json:"confidence"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// AIAnalysis summarizes which fields were machine-inferred, derived from
// FieldEntry provenance.
type AIAnalysis struct {
	ExtractedFields   map[string]ExtractedField `json:"extracted_fields"`
	ExtractedCount    int                       `json:"extracted_count"`
	AverageConfidence float64                   `json:"average_confidence"`
}

// ConversionMetadata links the official record back to its source draft.
type ConversionMetadata struct {
	SourceBidCardID string    `json:"source_bid_card_id"`
	ConvertedBy     string    `json:"converted_by"`
	ConvertedAt     time.Time `json:"converted_at"`
}

// BidDocument is the categorized structured document stored as a single
// blob on the official record.
type BidDocument struct {
	ProjectRequirements  DocumentSection    `json:"project_requirements"`
	LocationDetails      DocumentSection    `json:"location_details"`
	ContactInformation   DocumentSection    `json:"contact_information"`
	TimelinePreferences  DocumentSection    `json:"timeline_preferences"`
	BudgetDetails        DocumentSection    `json:"budget_details"`
	ProjectRelationships DocumentSection    `json:"project_relationships"`
	Media                DocumentSection    `json:"media"`
	AIAnalysis           AIAnalysis         `json:"ai_analysis"`
	Conversion           ConversionMetadata `json:"conversion_metadata"`
}

// SectionByName returns the document section for a section tag, or nil for
// SectionCore and unknown tags.
func (d *BidDocument) SectionByName(s Section) DocumentSection {
	switch s {
	case SectionRequirements:
		return d.ProjectRequirements
	case SectionLocation:
		return d.LocationDetails
	case SectionContact:
		return d.ContactInformation
	case SectionTimeline:
		return d.TimelinePreferences
	case SectionBudget:
		return d.BudgetDetails
	case SectionRelationships:
		return d.ProjectRelationships
	case SectionMedia:
		return d.Media
	default:
		return nil
	}
}

func cloneSection(s DocumentSection) DocumentSection {
	if s == nil {
		return nil
	}
	cp := make(DocumentSection, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// Clone returns a deep copy of the document. Section maps are copied; the
// values inside them are treated as immutable, same as FieldEntry values.
func (d *BidDocument) Clone() BidDocument {
	cp := *d
	cp.ProjectRequirements = cloneSection(d.ProjectRequirements)
	cp.LocationDetails = cloneSection(d.LocationDetails)
	cp.ContactInformation = cloneSection(d.ContactInformation)
	cp.TimelinePreferences = cloneSection(d.TimelinePreferences)
	cp.BudgetDetails = cloneSection(d.BudgetDetails)
	cp.ProjectRelationships = cloneSection(d.ProjectRelationships)
	cp.Media = cloneSection(d.Media)
	if d.AIAnalysis.ExtractedFields != nil {
		cp.AIAnalysis.ExtractedFields = make(map[string]ExtractedField, len(d.AIAnalysis.ExtractedFields))
		for k, v := range d.AIAnalysis.ExtractedFields {
			cp.AIAnalysis.ExtractedFields[k] = v
		}
	}
	return cp
}

// OfficialBidCard is the immutable record created exactly once per draft at
// conversion. Core attributes are first-class columns for fast filtering;
// everything else lives in the bid document.
type OfficialBidCard struct {
	ID           string      `json:"id"`
	BidNumber    string      `json:"bid_number"`
	ProjectType  string      `json:"project_type"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	ZipCode      string      `json:"zip_code"`
	UrgencyLevel string      `json:"urgency_level"`
	Document     BidDocument `json:"bid_document"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Clone returns a deep copy of the official record.
func (o *OfficialBidCard) Clone() *OfficialBidCard {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Document = o.Document.Clone()
	return &cp
}
