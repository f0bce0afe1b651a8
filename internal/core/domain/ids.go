package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDs are UUIDv7 strings: time-ordered, so lexical order follows creation order.
type (
	CampaignID       string
	TaskID           string
	EnrichmentTaskID string
	BotID            string
)

// PlaceID is the provider's identifier for a place (e.g. a Google place id).
type PlaceID string

func newSortableID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		return uuid.New().String()
	}
	return id.String()
}

func parseSortableID(kind, s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %s %q: %v", ErrInvalidID, kind, s, err)
	}
	return id.String(), nil
}

func NewCampaignID() CampaignID             { return CampaignID(newSortableID()) }
func NewTaskID() TaskID                     { return TaskID(newSortableID()) }
func NewEnrichmentTaskID() EnrichmentTaskID { return EnrichmentTaskID(newSortableID()) }
func NewBotID() BotID                       { return BotID(newSortableID()) }

func ParseCampaignID(s string) (CampaignID, error) {
	v, err := parseSortableID("campaign id", s)
	return CampaignID(v), err
}

func ParseTaskID(s string) (TaskID, error) {
	v, err := parseSortableID("task id", s)
	return TaskID(v), err
}

func ParseEnrichmentTaskID(s string) (EnrichmentTaskID, error) {
	v, err := parseSortableID("enrichment task id", s)
	return EnrichmentTaskID(v), err
}

func ParseBotID(s string) (BotID, error) {
	v, err := parseSortableID("bot id", s)
	return BotID(v), err
}

// NewPlaceID validates an external place identifier.
func NewPlaceID(s string) (PlaceID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: place id must be a non-empty string", ErrInvalidID)
	}
	return PlaceID(s), nil
}
