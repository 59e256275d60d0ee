package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateThread signals a unique constraint hit on (thread_id, integration).
var ErrDuplicateThread = errors.New("thread already exists for this integration")

// Database interfaces for repository pattern

// QuestionFilter narrows question lookups to a guru type and, optionally,
// a binge and a set of eligible sources.
type QuestionFilter struct {
	GuruTypeID uint
	BingeID    *uuid.UUID
	Sources    []Source
}

type QuestionRepository interface {
	Create(question *Question) error
	Update(question *Question) error
	GetByID(id uint) (*Question, error)
	// GetBySlug returns nil without error when no question matches.
	GetBySlug(slug string, filter QuestionFilter) (*Question, error)
	// GetByText matches on exact question or user_question text.
	GetByText(text string, filter QuestionFilter) (*Question, error)
	LastInBinge(bingeID uuid.UUID) (*Question, error)
	ListByBinge(bingeID uuid.UUID, guruTypeID uint) ([]Question, error)
	// ListRecentRoots returns the newest binge-less questions for a guru
	// type, used as default suggestions.
	ListRecentRoots(guruTypeID uint, limit int) ([]Question, error)
}

// BingeListOptions covers the binge history listing (pagination + search).
type BingeListOptions struct {
	OwnerID     *uint
	SearchQuery string
	PageNum     int
	PageSize    int
}

type BingeRepository interface {
	Create(binge *Binge) error
	Update(binge *Binge) error
	GetByID(id uuid.UUID) (*Binge, error)
	Delete(id uuid.UUID) error
	// List excludes bot-originated binges and orders by last_used descending.
	// The second return reports whether more pages exist.
	List(opts BingeListOptions) ([]Binge, bool, error)
}

type ThreadRepository interface {
	// Create fails with ErrDuplicateThread when (thread_id, integration)
	// already exists.
	Create(thread *Thread) error
	Get(threadID string, integrationID uint) (*Thread, error)
}

type IntegrationRepository interface {
	Create(integration *Integration) error
	Update(integration *Integration) error
	Delete(id uint) error
	GetByID(id uint) (*Integration, error)
	GetByExternalID(t IntegrationType, externalID string) (*Integration, error)
	GetByGuruType(guruTypeID uint, t IntegrationType) (*Integration, error)
	ListByGuruType(guruTypeID uint) ([]Integration, error)
}

type GuruTypeRepository interface {
	GetByID(id uint) (*GuruType, error)
	GetBySlug(slug string, onlyActive bool) (*GuruType, error)
	IsMaintainer(guruTypeID uint, userID uint) (bool, error)
}

type APIKeyRepository interface {
	Create(key *APIKey) error
	GetByKey(key string) (*APIKey, error)
	ListByUser(userID uint, integration bool) ([]APIKey, error)
	CountByUser(userID uint, integration bool) (int64, error)
	DeleteByKey(key string, userID uint) error
}

type DataSourceRepository interface {
	// LatestUpdate returns the most recent data source update time for a
	// guru type, or the zero time when none exist.
	LatestUpdate(guruTypeID uint) (time.Time, error)
}

type UserRepository interface {
	GetByEmail(email string) (*User, error)
}
