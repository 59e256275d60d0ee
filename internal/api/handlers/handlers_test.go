package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/integrations"
	"github.com/gurubase/gurubase-go/internal/middleware"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/repository"
	"github.com/gurubase/gurubase-go/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Minimal repository fakes for the handler layer. Only the methods a
// test exercises are populated; the rest return zero values.

type stubQuestionRepo struct {
	bySlug map[string]*models.Question
	roots  []models.Question
}

func (s *stubQuestionRepo) Create(q *models.Question) error { return nil }
func (s *stubQuestionRepo) Update(q *models.Question) error { return nil }

func (s *stubQuestionRepo) GetByID(id uint) (*models.Question, error) {
	for _, q := range s.bySlug {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, nil
}

func (s *stubQuestionRepo) GetBySlug(slug string, filter models.QuestionFilter) (*models.Question, error) {
	return s.bySlug[slug], nil
}

func (s *stubQuestionRepo) GetByText(text string, filter models.QuestionFilter) (*models.Question, error) {
	return nil, nil
}

func (s *stubQuestionRepo) LastInBinge(bingeID uuid.UUID) (*models.Question, error) {
	return nil, nil
}

func (s *stubQuestionRepo) ListByBinge(bingeID uuid.UUID, guruTypeID uint) ([]models.Question, error) {
	return nil, nil
}

func (s *stubQuestionRepo) ListRecentRoots(guruTypeID uint, limit int) ([]models.Question, error) {
	return s.roots, nil
}

type stubBingeRepo struct {
	binges  []models.Binge
	hasMore bool
}

func (s *stubBingeRepo) Create(b *models.Binge) error { return nil }
func (s *stubBingeRepo) Update(b *models.Binge) error { return nil }
func (s *stubBingeRepo) GetByID(id uuid.UUID) (*models.Binge, error) {
	for i := range s.binges {
		if s.binges[i].ID == id {
			return &s.binges[i], nil
		}
	}
	return nil, services.ErrNotFound
}
func (s *stubBingeRepo) Delete(id uuid.UUID) error { return nil }
func (s *stubBingeRepo) List(opts models.BingeListOptions) ([]models.Binge, bool, error) {
	return s.binges, s.hasMore, nil
}

type stubGuruRepo struct {
	bySlug map[string]*models.GuruType
}

func (s *stubGuruRepo) GetByID(id uint) (*models.GuruType, error) {
	for _, g := range s.bySlug {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, services.ErrNotFound
}

func (s *stubGuruRepo) GetBySlug(slug string, onlyActive bool) (*models.GuruType, error) {
	g, ok := s.bySlug[slug]
	if !ok {
		return nil, services.ErrNotFound
	}
	return g, nil
}

func (s *stubGuruRepo) IsMaintainer(guruTypeID, userID uint) (bool, error) { return false, nil }

type stubDataSourceRepo struct {
	latest time.Time
}

func (s *stubDataSourceRepo) LatestUpdate(guruTypeID uint) (time.Time, error) {
	return s.latest, nil
}

type stubAPIKeyRepo struct {
	count int64
	keys  []models.APIKey
}

func (s *stubAPIKeyRepo) Create(key *models.APIKey) error { s.count++; return nil }
func (s *stubAPIKeyRepo) GetByKey(key string) (*models.APIKey, error) {
	for i := range s.keys {
		if s.keys[i].Key == key {
			return &s.keys[i], nil
		}
	}
	return nil, nil
}
func (s *stubAPIKeyRepo) ListByUser(userID uint, integration bool) ([]models.APIKey, error) {
	return s.keys, nil
}
func (s *stubAPIKeyRepo) CountByUser(userID uint, integration bool) (int64, error) {
	return s.count, nil
}
func (s *stubAPIKeyRepo) DeleteByKey(key string, userID uint) error { return nil }

type stubUserRepo struct {
	byEmail map[string]*models.User
}

func (s *stubUserRepo) GetByEmail(email string) (*models.User, error) {
	return s.byEmail[email], nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Env = "cloud"
	cfg.Binge.FollowUpTimeLimitSeconds = 1800
	cfg.Binge.HistoryPageSize = 20
	return cfg
}

func newRepoManager(questions *stubQuestionRepo, binges *stubBingeRepo, gurus *stubGuruRepo, keys *stubAPIKeyRepo, users *stubUserRepo) *repository.RepositoryManager {
	if questions == nil {
		questions = &stubQuestionRepo{bySlug: map[string]*models.Question{}}
	}
	if binges == nil {
		binges = &stubBingeRepo{}
	}
	if gurus == nil {
		gurus = &stubGuruRepo{bySlug: map[string]*models.GuruType{}}
	}
	if keys == nil {
		keys = &stubAPIKeyRepo{}
	}
	if users == nil {
		users = &stubUserRepo{byEmail: map[string]*models.User{}}
	}
	return &repository.RepositoryManager{
		Question:   questions,
		Binge:      binges,
		GuruType:   gurus,
		APIKey:     keys,
		User:       users,
		DataSource: &stubDataSourceRepo{},
	}
}

func newGraph(rm *repository.RepositoryManager, cfg *config.Config) *services.GraphService {
	return services.NewGraphService(rm.Question, rm.Binge, rm.Thread, rm.GuruType, rm.DataSource, cfg, testLogger())
}

func TestListIssuesRejectsNonJiraVendors(t *testing.T) {
	rm := newRepoManager(nil, nil, nil, nil, nil)
	registry := integrations.NewRegistry(testConfig(), testLogger())
	h := NewIntegrationHandler(registry, rm, nil, testLogger())

	router := gin.New()
	router.POST("/integrations/:type/:guruType/issues/", h.HandleListIssues)

	for _, vendor := range []string{"SLACK", "CONFLUENCE"} {
		body := bytes.NewBufferString(`{"jql": "project = OPS"}`)
		req := httptest.NewRequest(http.MethodPost, "/integrations/"+vendor+"/acme/issues/", body)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, vendor)
	}
}

func TestMergeChannels(t *testing.T) {
	stored := models.Channels{
		{ID: "C1", Name: "general", Allowed: true},
		{ID: "C2", Name: "random", Allowed: false, Mode: models.ChannelModeManual},
		{ID: "GONE", Name: "archived", Allowed: true},
	}
	remote := models.Channels{
		{ID: "C1", Name: "general-renamed", Mode: models.ChannelModeAuto},
		{ID: "C2", Name: "random"},
		{ID: "C3", Name: "new-channel"},
	}

	merged := mergeChannels(remote, stored)
	require.Len(t, merged, 3)

	assert.Equal(t, "general-renamed", merged[0].Name)
	assert.True(t, merged[0].Allowed)
	assert.Equal(t, models.ChannelModeAuto, merged[0].Mode)

	assert.False(t, merged[1].Allowed)
	assert.Equal(t, models.ChannelModeManual, merged[1].Mode)

	// New channels start with policy defaults.
	assert.False(t, merged[2].Allowed)
}

func TestQuestionDetail(t *testing.T) {
	guru := &models.GuruType{BaseModel: models.BaseModel{ID: 1}, Slug: "kubernetes", Name: "Kubernetes", Active: true}
	question := &models.Question{
		BaseModel:  models.BaseModel{ID: 10, UpdatedAt: time.Now()},
		Slug:       "pod-crashloop",
		Question:   "Why is my pod crashlooping?",
		Content:    "Because...",
		GuruTypeID: 1,
		Source:     models.SourceUser,
	}
	rm := newRepoManager(
		&stubQuestionRepo{bySlug: map[string]*models.Question{"pod-crashloop": question}},
		nil,
		&stubGuruRepo{bySlug: map[string]*models.GuruType{"kubernetes": guru}},
		nil, nil,
	)
	cfg := testConfig()
	h := NewQuestionHandler(newGraph(rm, cfg), rm, testLogger())

	router := gin.New()
	router.GET("/g/:guruType/question/:slug", h.HandleQuestionDetail)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/g/kubernetes/question/pod-crashloop", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Question questionResponse `json:"question"`
		Dirty    bool             `json:"dirty"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pod-crashloop", body.Question.Slug)
	assert.False(t, body.Dirty)
}

func TestQuestionDetailUnknownGuru(t *testing.T) {
	rm := newRepoManager(nil, nil, nil, nil, nil)
	cfg := testConfig()
	h := NewQuestionHandler(newGraph(rm, cfg), rm, testLogger())

	router := gin.New()
	router.GET("/g/:guruType/question/:slug", h.HandleQuestionDetail)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/g/nope/question/anything", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBingeHistoryGrouping(t *testing.T) {
	now := time.Now().UTC()
	user := &models.User{BaseModel: models.BaseModel{ID: 5}, Email: "dev@example.com"}
	owner := user.ID
	binges := []models.Binge{
		{ID: uuid.New(), GuruTypeID: 1, OwnerID: &owner, LastUsed: now.Add(-time.Hour)},
		{ID: uuid.New(), GuruTypeID: 1, OwnerID: &owner, LastUsed: now.AddDate(0, 0, -3)},
		{ID: uuid.New(), GuruTypeID: 1, OwnerID: &owner, LastUsed: now.AddDate(0, 0, -30)},
	}
	rm := newRepoManager(nil, &stubBingeRepo{binges: binges, hasMore: true}, nil, nil,
		&stubUserRepo{byEmail: map[string]*models.User{"dev@example.com": user}})
	cfg := testConfig()
	h := NewBingeHandler(newGraph(rm, cfg), rm, cfg, testLogger())

	router := gin.New()
	router.Use(middleware.UserAuth(rm.User, false))
	router.GET("/binge-history/", h.HandleBingeHistory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/binge-history/", nil)
	req.Header.Set("X-User-Email", "dev@example.com")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Today    []bingeHistoryItem `json:"today"`
		LastWeek []bingeHistoryItem `json:"last_week"`
		Older    []bingeHistoryItem `json:"older"`
		HasMore  bool               `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Today, 1)
	assert.Len(t, body.LastWeek, 1)
	assert.Len(t, body.Older, 1)
	assert.True(t, body.HasMore)
}

func TestBingeHistoryRequiresUser(t *testing.T) {
	rm := newRepoManager(nil, nil, nil, nil, nil)
	cfg := testConfig()
	h := NewBingeHandler(newGraph(rm, cfg), rm, cfg, testLogger())

	router := gin.New()
	router.Use(middleware.UserAuth(rm.User, false))
	router.GET("/binge-history/", h.HandleBingeHistory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/binge-history/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAPIKeyLimit(t *testing.T) {
	user := &models.User{BaseModel: models.BaseModel{ID: 5}, Email: "dev@example.com"}
	rm := newRepoManager(nil, nil, nil, &stubAPIKeyRepo{count: 5},
		&stubUserRepo{byEmail: map[string]*models.User{"dev@example.com": user}})
	h := NewAPIKeyHandler(rm, testLogger())

	router := gin.New()
	router.Use(middleware.UserAuth(rm.User, false))
	router.POST("/api-keys/", h.HandleCreate)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api-keys/", bytes.NewBufferString(`{"name":"ci"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Email", "dev@example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAPIKeyHasPrefix(t *testing.T) {
	user := &models.User{BaseModel: models.BaseModel{ID: 5}, Email: "dev@example.com"}
	keys := &stubAPIKeyRepo{}
	rm := newRepoManager(nil, nil, nil, keys,
		&stubUserRepo{byEmail: map[string]*models.User{"dev@example.com": user}})
	h := NewAPIKeyHandler(rm, testLogger())

	router := gin.New()
	router.Use(middleware.UserAuth(rm.User, false))
	router.POST("/api-keys/", h.HandleCreate)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api-keys/", bytes.NewBufferString(`{"name":"ci"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Email", "dev@example.com")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Data models.APIKey `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Data.Key, "gb-")
	assert.Equal(t, uint(5), body.Data.UserID)
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	keys := &stubAPIKeyRepo{keys: []models.APIKey{
		{Key: "gb-valid", UserID: 5},
		{Key: "gb-bot", UserID: 5, Integration: true},
	}}

	router := gin.New()
	router.Use(middleware.APIKeyAuth(keys))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		key    string
		status int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"unknown key", "gb-nope", http.StatusUnauthorized},
		{"integration key", "gb-bot", http.StatusForbidden},
		{"valid key", "gb-valid", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.key != "" {
				req.Header.Set("X-API-KEY", tc.key)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
