package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Service-level error values. Handlers map these onto HTTP statuses.
var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrBingeExpired  = errors.New("binge is expired")
	ErrNotFound      = errors.New("not found")
)

// GraphService owns the Binge/Question/Thread graph: session creation,
// question lookup with authorization, and answer-staleness rules.
type GraphService struct {
	questions   models.QuestionRepository
	binges      models.BingeRepository
	threads     models.ThreadRepository
	guruTypes   models.GuruTypeRepository
	dataSources models.DataSourceRepository
	cfg         *config.Config
	logger      *logrus.Logger
}

func NewGraphService(
	questions models.QuestionRepository,
	binges models.BingeRepository,
	threads models.ThreadRepository,
	guruTypes models.GuruTypeRepository,
	dataSources models.DataSourceRepository,
	cfg *config.Config,
	logger *logrus.Logger,
) *GraphService {
	return &GraphService{
		questions:   questions,
		binges:      binges,
		threads:     threads,
		guruTypes:   guruTypes,
		dataSources: dataSources,
		cfg:         cfg,
		logger:      logger,
	}
}

// CreateBinge inserts a new binge. When rootQuestion is given it is
// linked both ways: the binge records its root and the question gets the
// binge backlink.
func (s *GraphService) CreateBinge(guruTypeID uint, ownerID *uint, rootQuestion *models.Question) (*models.Binge, error) {
	binge := &models.Binge{
		GuruTypeID: guruTypeID,
		OwnerID:    ownerID,
		LastUsed:   time.Now().UTC(),
	}
	if rootQuestion != nil {
		binge.RootQuestionID = &rootQuestion.ID
	}
	if err := s.binges.Create(binge); err != nil {
		return nil, fmt.Errorf("failed to create binge: %w", err)
	}

	if rootQuestion != nil {
		rootQuestion.BingeID = &binge.ID
		if err := s.questions.Update(rootQuestion); err != nil {
			return nil, fmt.Errorf("failed to link root question: %w", err)
		}
	}
	return binge, nil
}

// GetOrCreateThreadBinge maps a vendor thread onto a binge, creating a
// fresh rootless binge on first sight. Two racing first arrivals are
// resolved by the unique (thread_id, integration) constraint: the loser
// deletes its orphan binge and adopts the winner's row.
func (s *GraphService) GetOrCreateThreadBinge(threadID string, integration *models.Integration) (*models.Thread, *models.Binge, error) {
	thread, err := s.threads.Get(threadID, integration.ID)
	if err != nil {
		return nil, nil, err
	}
	if thread != nil {
		binge, err := s.binges.GetByID(thread.BingeID)
		if err != nil {
			return nil, nil, err
		}
		return thread, binge, nil
	}

	binge, err := s.CreateBinge(integration.GuruTypeID, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	thread = &models.Thread{
		ThreadID:      threadID,
		IntegrationID: integration.ID,
		BingeID:       binge.ID,
	}
	err = s.threads.Create(thread)
	if err == nil {
		return thread, binge, nil
	}
	if !errors.Is(err, models.ErrDuplicateThread) {
		return nil, nil, err
	}

	// Lost the race. Drop the binge we made and take the winner's.
	if delErr := s.binges.Delete(binge.ID); delErr != nil {
		s.logger.WithError(delErr).WithField("binge_id", binge.ID).Warn("Failed to delete orphan binge")
	}
	thread, err = s.threads.Get(threadID, integration.ID)
	if err != nil {
		return nil, nil, err
	}
	if thread == nil {
		return nil, nil, fmt.Errorf("thread vanished after duplicate create for %s", threadID)
	}
	binge, err = s.binges.GetByID(thread.BingeID)
	if err != nil {
		return nil, nil, err
	}
	return thread, binge, nil
}

// SearchOptions gate which question sources are eligible and whether the
// binge owner check runs.
type SearchOptions struct {
	AllowMaintainerAccess bool
	OnlyWidget            bool
	WillCheckBingeAuth    bool
	IncludeAPI            bool
}

func (o SearchOptions) sources() []models.Source {
	if o.OnlyWidget {
		return []models.Source{models.SourceWidget, models.SourceWidgetQuestion}
	}
	sources := []models.Source{
		models.SourceUser,
		models.SourceSlack,
		models.SourceDiscord,
		models.SourceGithub,
		models.SourceJira,
		models.SourceZendesk,
		models.SourceConfluence,
	}
	if o.IncludeAPI {
		sources = append(sources, models.SourceAPI)
	}
	return sources
}

// SearchQuestion looks a question up by slug first, question text
// second, scoped to the guru type and binge. A miss returns nil, not an
// error; a failed binge auth check returns ErrNotAuthorized.
func (s *GraphService) SearchQuestion(user *models.User, guruType *models.GuruType, bingeID *uuid.UUID, slug, questionText string, opts SearchOptions) (*models.Question, error) {
	if opts.WillCheckBingeAuth && bingeID != nil {
		binge, err := s.binges.GetByID(*bingeID)
		if err != nil {
			return nil, err
		}
		ok, err := s.CheckBingeAuth(binge, user)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotAuthorized
		}
	}

	filter := models.QuestionFilter{
		GuruTypeID: guruType.ID,
		BingeID:    bingeID,
		Sources:    opts.sources(),
	}

	if slug != "" {
		question, err := s.questions.GetBySlug(slug, filter)
		if err != nil || question != nil {
			return question, err
		}
	}
	if questionText != "" {
		return s.questions.GetByText(questionText, filter)
	}
	return nil, nil
}

// CheckBingeAuth allows access when the binge is anonymous, owned by the
// user, or the user is an admin or a maintainer of the binge's guru type.
func (s *GraphService) CheckBingeAuth(binge *models.Binge, user *models.User) (bool, error) {
	if binge.OwnerID == nil {
		return true, nil
	}
	if user == nil {
		return false, nil
	}
	if *binge.OwnerID == user.ID {
		return true, nil
	}
	if user.IsAdmin {
		return true, nil
	}
	return s.guruTypes.IsMaintainer(binge.GuruTypeID, user.ID)
}

// IsQuestionDirty reports whether the guru's data sources changed after
// the question's answer was generated, invalidating cached reuse.
func (s *GraphService) IsQuestionDirty(question *models.Question) (bool, error) {
	latest, err := s.dataSources.LatestUpdate(question.GuruTypeID)
	if err != nil {
		return false, err
	}
	if latest.IsZero() {
		return false, nil
	}
	return latest.After(question.UpdatedAt), nil
}

// BingeOutdated reports whether the binge's follow-up window has passed.
// Selfhosted deployments never expire binges.
func (s *GraphService) BingeOutdated(binge *models.Binge) bool {
	if s.cfg.SelfHosted() {
		return false
	}
	limit := time.Duration(s.cfg.Binge.FollowUpTimeLimitSeconds) * time.Second
	return time.Since(binge.LastUsed) > limit
}

// ValidateBingeFollowUp checks a follow-up attempt: right guru, caller
// authorized, window still open.
func (s *GraphService) ValidateBingeFollowUp(binge *models.Binge, user *models.User, guruType *models.GuruType) error {
	if binge.GuruTypeID != guruType.ID {
		return ErrNotFound
	}
	ok, err := s.CheckBingeAuth(binge, user)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if s.BingeOutdated(binge) {
		return ErrBingeExpired
	}
	return nil
}

// LastQuestion returns the most recent question in a binge, the natural
// parent for a follow-up turn. Nil when the binge is still empty.
func (s *GraphService) LastQuestion(bingeID uuid.UUID) (*models.Question, error) {
	return s.questions.LastInBinge(bingeID)
}

// SetRootQuestion backfills the binge's root question link. Bot binges
// are created rootless; the first answered question becomes the root.
func (s *GraphService) SetRootQuestion(binge *models.Binge, question *models.Question) error {
	if binge.RootQuestionID != nil {
		return nil
	}
	binge.RootQuestionID = &question.ID
	return s.binges.Update(binge)
}

// TouchBinge bumps last_used, keeping the follow-up window open.
func (s *GraphService) TouchBinge(binge *models.Binge) error {
	binge.LastUsed = time.Now().UTC()
	return s.binges.Update(binge)
}
