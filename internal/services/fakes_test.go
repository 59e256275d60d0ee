package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// In-memory repository fakes. They enforce the same invariants the
// postgres implementations rely on (unique thread pair, scoped lookups).

type fakeQuestionRepo struct {
	mu        sync.Mutex
	questions []*models.Question
	nextID    uint
}

func (f *fakeQuestionRepo) Create(q *models.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	q.ID = f.nextID
	q.CreatedAt = time.Now()
	q.UpdatedAt = time.Now()
	copied := *q
	f.questions = append(f.questions, &copied)
	return nil
}

func (f *fakeQuestionRepo) Update(q *models.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.questions {
		if existing.ID == q.ID {
			copied := *q
			copied.UpdatedAt = time.Now()
			f.questions[i] = &copied
			return nil
		}
	}
	return nil
}

func (f *fakeQuestionRepo) GetByID(id uint) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questions {
		if q.ID == id {
			copied := *q
			return &copied, nil
		}
	}
	return nil, nil
}

func matchesFilter(q *models.Question, filter models.QuestionFilter) bool {
	if q.GuruTypeID != filter.GuruTypeID {
		return false
	}
	if filter.BingeID == nil {
		if q.BingeID != nil {
			return false
		}
	} else if q.BingeID == nil || *q.BingeID != *filter.BingeID {
		return false
	}
	if len(filter.Sources) > 0 {
		found := false
		for _, s := range filter.Sources {
			if q.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *fakeQuestionRepo) GetBySlug(slug string, filter models.QuestionFilter) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questions {
		if q.Slug == slug && matchesFilter(q, filter) {
			copied := *q
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeQuestionRepo) GetByText(text string, filter models.QuestionFilter) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questions {
		if (strings.EqualFold(q.Question, text) || strings.EqualFold(q.UserQuestion, text)) && matchesFilter(q, filter) {
			copied := *q
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeQuestionRepo) LastInBinge(bingeID uuid.UUID) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *models.Question
	for _, q := range f.questions {
		if q.BingeID != nil && *q.BingeID == bingeID {
			if last == nil || q.ID > last.ID {
				last = q
			}
		}
	}
	if last == nil {
		return nil, nil
	}
	copied := *last
	return &copied, nil
}

func (f *fakeQuestionRepo) ListRecentRoots(guruTypeID uint, limit int) ([]models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Question
	for i := len(f.questions) - 1; i >= 0 && len(out) < limit; i-- {
		q := f.questions[i]
		if q.GuruTypeID == guruTypeID && q.BingeID == nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeQuestionRepo) ListByBinge(bingeID uuid.UUID, guruTypeID uint) ([]models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Question
	for _, q := range f.questions {
		if q.BingeID != nil && *q.BingeID == bingeID && q.GuruTypeID == guruTypeID {
			out = append(out, *q)
		}
	}
	return out, nil
}

type fakeBingeRepo struct {
	mu     sync.Mutex
	binges map[uuid.UUID]*models.Binge
}

func newFakeBingeRepo() *fakeBingeRepo {
	return &fakeBingeRepo{binges: map[uuid.UUID]*models.Binge{}}
}

func (f *fakeBingeRepo) Create(b *models.Binge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.LastUsed.IsZero() {
		b.LastUsed = time.Now().UTC()
	}
	copied := *b
	f.binges[b.ID] = &copied
	return nil
}

func (f *fakeBingeRepo) Update(b *models.Binge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *b
	f.binges[b.ID] = &copied
	return nil
}

func (f *fakeBingeRepo) GetByID(id uuid.UUID) (*models.Binge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.binges[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBingeRepo) Delete(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.binges, id)
	return nil
}

func (f *fakeBingeRepo) List(opts models.BingeListOptions) ([]models.Binge, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Binge
	for _, b := range f.binges {
		if opts.OwnerID != nil {
			if b.OwnerID == nil || *b.OwnerID != *opts.OwnerID {
				continue
			}
		}
		out = append(out, *b)
	}
	return out, false, nil
}

func (f *fakeBingeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.binges)
}

type threadKey struct {
	threadID      string
	integrationID uint
}

type fakeThreadRepo struct {
	mu      sync.Mutex
	threads map[threadKey]*models.Thread
	nextID  uint
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{threads: map[threadKey]*models.Thread{}}
}

func (f *fakeThreadRepo) Create(t *models.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := threadKey{t.ThreadID, t.IntegrationID}
	if _, exists := f.threads[key]; exists {
		return models.ErrDuplicateThread
	}
	f.nextID++
	t.ID = f.nextID
	copied := *t
	f.threads[key] = &copied
	return nil
}

func (f *fakeThreadRepo) Get(threadID string, integrationID uint) (*models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadKey{threadID, integrationID}]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

type fakeGuruTypeRepo struct {
	gurus       map[string]*models.GuruType
	maintainers map[uint][]uint // guru type id -> user ids
}

func newFakeGuruTypeRepo() *fakeGuruTypeRepo {
	return &fakeGuruTypeRepo{gurus: map[string]*models.GuruType{}, maintainers: map[uint][]uint{}}
}

func (f *fakeGuruTypeRepo) GetByID(id uint) (*models.GuruType, error) {
	for _, g := range f.gurus {
		if g.ID == id {
			copied := *g
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeGuruTypeRepo) GetBySlug(slug string, onlyActive bool) (*models.GuruType, error) {
	g, ok := f.gurus[slug]
	if !ok || (onlyActive && !g.Active) {
		return nil, ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (f *fakeGuruTypeRepo) IsMaintainer(guruTypeID, userID uint) (bool, error) {
	for _, id := range f.maintainers[guruTypeID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type fakeDataSourceRepo struct {
	latest map[uint]time.Time
}

func (f *fakeDataSourceRepo) LatestUpdate(guruTypeID uint) (time.Time, error) {
	return f.latest[guruTypeID], nil
}

// fakeGenerator scripts the answer pipeline.
type fakeGenerator struct {
	summary     *answers.Summary
	chunks      []string
	meta        *answers.Metadata
	genErr      error
	generateErr error
	generations int
}

func (f *fakeGenerator) Summarize(ctx context.Context, req answers.SummaryRequest) (*answers.Summary, error) {
	if f.summary != nil {
		return f.summary, nil
	}
	return &answers.Summary{
		Question:      req.Question,
		QuestionSlug:  "q-" + strings.ToLower(strings.ReplaceAll(req.Question, " ", "-")),
		ValidQuestion: true,
	}, nil
}

func (f *fakeGenerator) Generate(ctx context.Context, req answers.GenerationRequest) (*answers.Generation, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	f.generations++
	return answers.NewStaticGeneration(f.chunks, f.meta, f.genErr), nil
}

func (f *fakeGenerator) Ping(ctx context.Context) error { return nil }

// test harness

type graphFixture struct {
	questions   *fakeQuestionRepo
	binges      *fakeBingeRepo
	threads     *fakeThreadRepo
	guruTypes   *fakeGuruTypeRepo
	dataSources *fakeDataSourceRepo
	cfg         *config.Config
	graph       *GraphService
}

func newGraphFixture() *graphFixture {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{}
	cfg.Env = "cloud"
	cfg.Binge.FollowUpTimeLimitSeconds = 1800
	cfg.Binge.HistoryPageSize = 20

	f := &graphFixture{
		questions:   &fakeQuestionRepo{},
		binges:      newFakeBingeRepo(),
		threads:     newFakeThreadRepo(),
		guruTypes:   newFakeGuruTypeRepo(),
		dataSources: &fakeDataSourceRepo{latest: map[uint]time.Time{}},
		cfg:         cfg,
	}
	f.graph = NewGraphService(f.questions, f.binges, f.threads, f.guruTypes, f.dataSources, cfg, logger)
	return f
}

func (f *graphFixture) askService(gen answers.Generator) *AskService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewAskService(f.graph, f.questions, gen, f.cfg, logger)
}
