package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gurubase/gurubase-go/internal/models"
	"gorm.io/gorm"
)

// QuestionRepositoryImpl implements QuestionRepository
type QuestionRepositoryImpl struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) models.QuestionRepository {
	return &QuestionRepositoryImpl{db: db}
}

func (r *QuestionRepositoryImpl) Create(question *models.Question) error {
	return r.db.Create(question).Error
}

func (r *QuestionRepositoryImpl) Update(question *models.Question) error {
	return r.db.Save(question).Error
}

func (r *QuestionRepositoryImpl) GetByID(id uint) (*models.Question, error) {
	var question models.Question
	err := r.db.Preload("Parent").First(&question, id).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *QuestionRepositoryImpl) scoped(filter models.QuestionFilter) *gorm.DB {
	query := r.db.Where("guru_type_id = ?", filter.GuruTypeID)
	if filter.BingeID != nil {
		query = query.Where("binge_id = ?", *filter.BingeID)
	} else {
		query = query.Where("binge_id IS NULL")
	}
	if len(filter.Sources) > 0 {
		query = query.Where("source IN ?", filter.Sources)
	}
	return query
}

func (r *QuestionRepositoryImpl) GetBySlug(slug string, filter models.QuestionFilter) (*models.Question, error) {
	var question models.Question
	err := r.scoped(filter).
		Where("slug = ?", slug).
		Preload("Parent").
		First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *QuestionRepositoryImpl) GetByText(text string, filter models.QuestionFilter) (*models.Question, error) {
	var question models.Question
	err := r.scoped(filter).
		Where("question = ? OR user_question = ?", text, text).
		Preload("Parent").
		First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *QuestionRepositoryImpl) LastInBinge(bingeID uuid.UUID) (*models.Question, error) {
	var question models.Question
	err := r.db.Where("binge_id = ?", bingeID).
		Order("updated_at DESC").
		First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *QuestionRepositoryImpl) ListByBinge(bingeID uuid.UUID, guruTypeID uint) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.Where("binge_id = ? AND guru_type_id = ?", bingeID, guruTypeID).
		Order("created_at").
		Find(&questions).Error
	return questions, err
}

func (r *QuestionRepositoryImpl) ListRecentRoots(guruTypeID uint, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.Where("guru_type_id = ? AND binge_id IS NULL", guruTypeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&questions).Error
	return questions, err
}

// BingeRepositoryImpl implements BingeRepository
type BingeRepositoryImpl struct {
	db *gorm.DB
}

func NewBingeRepository(db *gorm.DB) models.BingeRepository {
	return &BingeRepositoryImpl{db: db}
}

func (r *BingeRepositoryImpl) Create(binge *models.Binge) error {
	return r.db.Create(binge).Error
}

func (r *BingeRepositoryImpl) Update(binge *models.Binge) error {
	return r.db.Save(binge).Error
}

func (r *BingeRepositoryImpl) GetByID(id uuid.UUID) (*models.Binge, error) {
	var binge models.Binge
	err := r.db.Preload("RootQuestion").First(&binge, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &binge, nil
}

func (r *BingeRepositoryImpl) Delete(id uuid.UUID) error {
	return r.db.Delete(&models.Binge{}, "id = ?", id).Error
}

func (r *BingeRepositoryImpl) List(opts models.BingeListOptions) ([]models.Binge, bool, error) {
	botSources := []models.Source{models.SourceDiscord, models.SourceSlack, models.SourceGithub}

	query := r.db.Model(&models.Binge{}).
		Joins("LEFT JOIN questions ON questions.id = binges.root_question_id").
		Where("questions.source IS NULL OR questions.source NOT IN ?", botSources)

	if opts.OwnerID != nil {
		query = query.Where("binges.owner_id = ?", *opts.OwnerID)
	}

	if search := strings.TrimSpace(opts.SearchQuery); search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"questions.question ILIKE ? OR questions.user_question ILIKE ? OR questions.slug ILIKE ?",
			pattern, pattern, pattern,
		)
	}

	offset := opts.PageSize * (opts.PageNum - 1)

	var binges []models.Binge
	// Fetch one extra row to detect whether more pages exist.
	err := query.Order("binges.last_used DESC").
		Offset(offset).
		Limit(opts.PageSize + 1).
		Preload("RootQuestion").
		Find(&binges).Error
	if err != nil {
		return nil, false, err
	}

	hasMore := len(binges) > opts.PageSize
	if hasMore {
		binges = binges[:opts.PageSize]
	}
	return binges, hasMore, nil
}

// ThreadRepositoryImpl implements ThreadRepository
type ThreadRepositoryImpl struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) models.ThreadRepository {
	return &ThreadRepositoryImpl{db: db}
}

func (r *ThreadRepositoryImpl) Create(thread *models.Thread) error {
	err := r.db.Create(thread).Error
	if err != nil && isUniqueViolation(err) {
		return models.ErrDuplicateThread
	}
	return err
}

func (r *ThreadRepositoryImpl) Get(threadID string, integrationID uint) (*models.Thread, error) {
	var thread models.Thread
	err := r.db.Where("thread_id = ? AND integration_id = ?", threadID, integrationID).
		Preload("Binge").
		First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx surfaces SQLSTATE 23505 in the error message
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")
}

// IntegrationRepositoryImpl implements IntegrationRepository
type IntegrationRepositoryImpl struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) models.IntegrationRepository {
	return &IntegrationRepositoryImpl{db: db}
}

func (r *IntegrationRepositoryImpl) Create(integration *models.Integration) error {
	return r.db.Create(integration).Error
}

func (r *IntegrationRepositoryImpl) Update(integration *models.Integration) error {
	return r.db.Save(integration).Error
}

func (r *IntegrationRepositoryImpl) Delete(id uint) error {
	return r.db.Delete(&models.Integration{}, id).Error
}

func (r *IntegrationRepositoryImpl) GetByID(id uint) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.Preload("APIKey").Preload("GuruType").First(&integration, id).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *IntegrationRepositoryImpl) GetByExternalID(t models.IntegrationType, externalID string) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.Where("type = ? AND external_id = ?", t, externalID).
		Preload("APIKey").
		Preload("GuruType").
		First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *IntegrationRepositoryImpl) GetByGuruType(guruTypeID uint, t models.IntegrationType) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.Where("guru_type_id = ? AND type = ?", guruTypeID, t).
		Preload("APIKey").
		Preload("GuruType").
		First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *IntegrationRepositoryImpl) ListByGuruType(guruTypeID uint) ([]models.Integration, error) {
	var integrations []models.Integration
	err := r.db.Where("guru_type_id = ?", guruTypeID).
		Order("type").
		Find(&integrations).Error
	return integrations, err
}

// GuruTypeRepositoryImpl implements GuruTypeRepository
type GuruTypeRepositoryImpl struct {
	db *gorm.DB
}

func NewGuruTypeRepository(db *gorm.DB) models.GuruTypeRepository {
	return &GuruTypeRepositoryImpl{db: db}
}

func (r *GuruTypeRepositoryImpl) GetByID(id uint) (*models.GuruType, error) {
	var guruType models.GuruType
	if err := r.db.First(&guruType, id).Error; err != nil {
		return nil, err
	}
	return &guruType, nil
}

func (r *GuruTypeRepositoryImpl) GetBySlug(slug string, onlyActive bool) (*models.GuruType, error) {
	var guruType models.GuruType
	query := r.db.Where("slug = ?", slug)
	if onlyActive {
		query = query.Where("active = ?", true)
	}
	err := query.First(&guruType).Error
	if err != nil {
		return nil, err
	}
	return &guruType, nil
}

func (r *GuruTypeRepositoryImpl) IsMaintainer(guruTypeID uint, userID uint) (bool, error) {
	var count int64
	err := r.db.Table("guru_type_maintainers").
		Where("guru_type_id = ? AND user_id = ?", guruTypeID, userID).
		Count(&count).Error
	return count > 0, err
}

// APIKeyRepositoryImpl implements APIKeyRepository
type APIKeyRepositoryImpl struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) models.APIKeyRepository {
	return &APIKeyRepositoryImpl{db: db}
}

func (r *APIKeyRepositoryImpl) Create(key *models.APIKey) error {
	return r.db.Create(key).Error
}

func (r *APIKeyRepositoryImpl) GetByKey(key string) (*models.APIKey, error) {
	var apiKey models.APIKey
	err := r.db.Where("key = ?", key).First(&apiKey).Error
	if err != nil {
		return nil, err
	}
	return &apiKey, nil
}

func (r *APIKeyRepositoryImpl) ListByUser(userID uint, integration bool) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.Where("user_id = ? AND integration = ?", userID, integration).
		Order("created_at DESC").
		Find(&keys).Error
	return keys, err
}

func (r *APIKeyRepositoryImpl) CountByUser(userID uint, integration bool) (int64, error) {
	var count int64
	err := r.db.Model(&models.APIKey{}).
		Where("user_id = ? AND integration = ?", userID, integration).
		Count(&count).Error
	return count, err
}

func (r *APIKeyRepositoryImpl) DeleteByKey(key string, userID uint) error {
	result := r.db.Where("key = ? AND user_id = ? AND integration = ?", key, userID, false).
		Delete(&models.APIKey{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DataSourceRepositoryImpl implements DataSourceRepository
type DataSourceRepositoryImpl struct {
	db *gorm.DB
}

func NewDataSourceRepository(db *gorm.DB) models.DataSourceRepository {
	return &DataSourceRepositoryImpl{db: db}
}

func (r *DataSourceRepositoryImpl) LatestUpdate(guruTypeID uint) (time.Time, error) {
	var latest *time.Time
	err := r.db.Model(&models.DataSource{}).
		Where("guru_type_id = ?", guruTypeID).
		Select("MAX(updated_at)").
		Scan(&latest).Error
	if err != nil || latest == nil {
		return time.Time{}, err
	}
	return *latest, nil
}

// UserRepositoryImpl implements UserRepository
type UserRepositoryImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) models.UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (r *UserRepositoryImpl) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Question    models.QuestionRepository
	Binge       models.BingeRepository
	Thread      models.ThreadRepository
	Integration models.IntegrationRepository
	GuruType    models.GuruTypeRepository
	APIKey      models.APIKeyRepository
	DataSource  models.DataSourceRepository
	User        models.UserRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Question:    NewQuestionRepository(db),
		Binge:       NewBingeRepository(db),
		Thread:      NewThreadRepository(db),
		Integration: NewIntegrationRepository(db),
		GuruType:    NewGuruTypeRepository(db),
		APIKey:      NewAPIKeyRepository(db),
		DataSource:  NewDataSourceRepository(db),
		User:        NewUserRepository(db),
	}
}
