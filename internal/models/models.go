package models

// GORM models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Question source values
type Source string

const (
	SourceUser            Source = "USER"
	SourceRawQuestion     Source = "RAW_QUESTION"
	SourceSummaryQuestion Source = "SUMMARY_QUESTION"
	SourceReddit          Source = "REDDIT"
	SourceDiscord         Source = "DISCORD"
	SourceSlack           Source = "SLACK"
	SourceGithub          Source = "GITHUB"
	SourceAPI             Source = "API"
	SourceWidget          Source = "WIDGET"
	SourceWidgetQuestion  Source = "WIDGET_QUESTION"
	SourceJira            Source = "JIRA"
	SourceZendesk         Source = "ZENDESK"
	SourceConfluence      Source = "CONFLUENCE"
)

// Integration vendor types
type IntegrationType string

const (
	IntegrationSlack      IntegrationType = "SLACK"
	IntegrationDiscord    IntegrationType = "DISCORD"
	IntegrationGithub     IntegrationType = "GITHUB"
	IntegrationJira       IntegrationType = "JIRA"
	IntegrationZendesk    IntegrationType = "ZENDESK"
	IntegrationConfluence IntegrationType = "CONFLUENCE"
)

func ValidIntegrationType(t string) bool {
	switch IntegrationType(t) {
	case IntegrationSlack, IntegrationDiscord, IntegrationGithub,
		IntegrationJira, IntegrationZendesk, IntegrationConfluence:
		return true
	}
	return false
}

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents an account. Binge owners and guru maintainers are users.
type User struct {
	BaseModel
	Email   string `json:"email" gorm:"unique;not null"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin" gorm:"default:false"`
}

// GuruType is a named knowledge base the system answers questions about.
type GuruType struct {
	BaseModel
	Slug        string `json:"slug" gorm:"unique;not null"`
	Name        string `json:"name" gorm:"not null"`
	Active      bool   `json:"active" gorm:"default:true"`
	Maintainers []User `json:"-" gorm:"many2many:guru_type_maintainers"`
}

// DataSource tracks indexed source content for a guru type. Only the
// update timestamp matters here: it drives question dirtiness checks.
type DataSource struct {
	BaseModel
	GuruTypeID uint   `json:"guru_type_id" gorm:"not null;index"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Status     string `json:"status" gorm:"default:'ready'"`
}

// APIKey authenticates API and integration callers.
type APIKey struct {
	BaseModel
	Key         string `json:"key" gorm:"unique;not null"`
	Name        string `json:"name"`
	UserID      uint   `json:"user_id" gorm:"not null;index"`
	Integration bool   `json:"integration" gorm:"default:false"`
}

// Question is a single Q/A turn. Questions with a nil BingeID are root
// candidates; within a binge they form a tree via ParentID.
type Question struct {
	BaseModel
	Slug              string     `json:"slug" gorm:"not null;index"`
	Question          string     `json:"question" gorm:"not null"`
	UserQuestion      string     `json:"user_question"`
	Content           string     `json:"content"`
	Description       string     `json:"description"`
	TrustScore        int        `json:"trust_score"`
	References        References `json:"references" gorm:"type:jsonb"`
	Source            Source     `json:"source" gorm:"not null;default:'USER'"`
	GuruTypeID        uint       `json:"guru_type_id" gorm:"not null;index"`
	ParentID          *uint      `json:"parent_id"`
	BingeID           *uuid.UUID `json:"binge_id" gorm:"type:uuid;index"`
	CtxRelevances     JSONMap    `json:"processed_ctx_relevances" gorm:"type:jsonb"`
	FollowUpQuestions StringList `json:"follow_up_questions" gorm:"type:jsonb"`
	CompletionTokens  int        `json:"completion_tokens"`
	PromptTokens      int        `json:"prompt_tokens"`

	// Associations
	Parent   *Question `json:"-" gorm:"foreignKey:ParentID"`
	GuruType GuruType  `json:"-" gorm:"foreignKey:GuruTypeID"`
}

// Binge is a conversation session grouping a tree of Questions. The root
// question backlink is set after the fact for bot-originated binges.
type Binge struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	GuruTypeID     uint      `json:"guru_type_id" gorm:"not null;index"`
	RootQuestionID *uint     `json:"root_question_id"`
	OwnerID        *uint     `json:"owner_id" gorm:"index"`
	LastUsed       time.Time `json:"last_used" gorm:"not null;index"`
	CreatedAt      time.Time `json:"created_at"`

	// Associations
	RootQuestion *Question `json:"-" gorm:"foreignKey:RootQuestionID"`
	Owner        *User     `json:"-" gorm:"foreignKey:OwnerID"`
}

// Thread maps a vendor-native conversation id to exactly one Binge,
// scoped to one Integration.
type Thread struct {
	BaseModel
	ThreadID      string    `json:"thread_id" gorm:"not null;uniqueIndex:idx_thread_integration"`
	IntegrationID uint      `json:"integration_id" gorm:"not null;uniqueIndex:idx_thread_integration"`
	BingeID       uuid.UUID `json:"binge_id" gorm:"type:uuid;not null"`

	// Associations
	Binge Binge `json:"-" gorm:"foreignKey:BingeID"`
}

// Integration is a vendor connection for one guru type.
type Integration struct {
	BaseModel
	Type          IntegrationType `json:"type" gorm:"not null;uniqueIndex:idx_integration_external"`
	ExternalID    string          `json:"external_id" gorm:"not null;uniqueIndex:idx_integration_external"`
	WorkspaceName string          `json:"workspace_name"`
	AccessToken   string          `json:"-"`
	RefreshToken  string          `json:"-"`
	BotName       string          `json:"bot_name"`
	Channels      Channels        `json:"channels" gorm:"type:jsonb"`
	APIKeyID      *uint           `json:"api_key_id"`
	GuruTypeID    uint            `json:"guru_type_id" gorm:"not null;index"`

	// Associations
	APIKey   *APIKey  `json:"-" gorm:"foreignKey:APIKeyID"`
	GuruType GuruType `json:"-" gorm:"foreignKey:GuruTypeID"`
}

// TableName methods for custom table names
func (User) TableName() string        { return "users" }
func (GuruType) TableName() string    { return "guru_types" }
func (DataSource) TableName() string  { return "data_sources" }
func (APIKey) TableName() string      { return "api_keys" }
func (Question) TableName() string    { return "questions" }
func (Binge) TableName() string       { return "binges" }
func (Thread) TableName() string      { return "threads" }
func (Integration) TableName() string { return "integrations" }

// ChannelByID returns the channel entry with the given id, if present.
func (i *Integration) ChannelByID(id string) (Channel, bool) {
	for _, c := range i.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

// ChannelByName returns the channel entry with the given name (GitHub
// repositories are matched by name, not id).
func (i *Integration) ChannelByName(name string) (Channel, bool) {
	for _, c := range i.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return Channel{}, false
}

// Model validation methods
func (q *Question) Validate() error {
	if q.Question == "" {
		return fmt.Errorf("question text is required")
	}
	if q.Slug == "" {
		return fmt.Errorf("question slug is required")
	}
	if q.ParentID != nil && q.BingeID == nil {
		return fmt.Errorf("follow-up questions must belong to a binge")
	}
	return nil
}

func (i *Integration) Validate() error {
	if !ValidIntegrationType(string(i.Type)) {
		return fmt.Errorf("invalid integration type: %s", i.Type)
	}
	if i.ExternalID == "" {
		return fmt.Errorf("external ID is required")
	}
	return nil
}

// GORM hooks
func (q *Question) BeforeCreate(tx *gorm.DB) error {
	return q.Validate()
}

func (i *Integration) BeforeCreate(tx *gorm.DB) error {
	return i.Validate()
}

func (i *Integration) BeforeUpdate(tx *gorm.DB) error {
	return i.Validate()
}

func (b *Binge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.LastUsed.IsZero() {
		b.LastUsed = time.Now().UTC()
	}
	return nil
}
