package domain

import (
	"fmt"
	"time"
)

// SourceType identifies the external origin a knowledge source pulls from
type SourceType string

const (
	SourceTypeOneDrive SourceType = "onedrive"
	SourceTypeS3       SourceType = "s3"
)

// SourceStatus represents the lifecycle state of a knowledge source
type SourceStatus string

const (
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusReady      SourceStatus = "ready"
	SourceStatusError      SourceStatus = "error"
)

// KnowledgeSource is a named, owned collection of ingested documents from
// one external origin. (Name, CreatedBy) is unique.
type KnowledgeSource struct {
	ID          string
	Name        string
	Description string
	SourceType  SourceType
	SourceURL   string
	CreatedBy   string // owning user's email
	Status      SourceStatus
	Error       string // set only when Status is error
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewKnowledgeSource creates a KnowledgeSource in the processing state.
func NewKnowledgeSource(id, name, description string, sourceType SourceType, sourceURL, createdBy string, now time.Time) *KnowledgeSource {
	return &KnowledgeSource{
		ID:          id,
		Name:        name,
		Description: description,
		SourceType:  sourceType,
		SourceURL:   sourceURL,
		CreatedBy:   createdBy,
		Status:      SourceStatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ValidateKnowledgeSource validates a KnowledgeSource instance
func ValidateKnowledgeSource(s *KnowledgeSource) error {
	if s == nil {
		return fmt.Errorf("knowledge source cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("knowledge source ID: %w", ErrMissingRequiredField)
	}

	if s.Name == "" {
		return fmt.Errorf("knowledge source Name: %w", ErrMissingRequiredField)
	}

	if s.Description == "" {
		return fmt.Errorf("knowledge source Description: %w", ErrMissingRequiredField)
	}

	if s.SourceURL == "" {
		return fmt.Errorf("knowledge source SourceURL: %w", ErrMissingRequiredField)
	}

	if s.CreatedBy == "" {
		return fmt.Errorf("knowledge source CreatedBy: %w", ErrMissingRequiredField)
	}

	if !isValidSourceType(s.SourceType) {
		return fmt.Errorf("knowledge source SourceType %q: %w", s.SourceType, ErrInvalidSourceType)
	}

	if !isValidSourceStatus(s.Status) {
		return fmt.Errorf("knowledge source Status %q: %w", s.Status, ErrInvalidSourceStatus)
	}

	return nil
}

// isValidSourceType checks if a SourceType is valid
func isValidSourceType(t SourceType) bool {
	switch t {
	case SourceTypeOneDrive, SourceTypeS3:
		return true
	}
	return false
}

// isValidSourceStatus checks if a SourceStatus is valid
func isValidSourceStatus(s SourceStatus) bool {
	switch s {
	case SourceStatusProcessing, SourceStatusReady, SourceStatusError:
		return true
	}
	return false
}
