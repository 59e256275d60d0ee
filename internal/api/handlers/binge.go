package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/middleware"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/repository"
	"github.com/gurubase/gurubase-go/internal/services"
	"github.com/gurubase/gurubase-go/pkg/utils"
	"github.com/sirupsen/logrus"
)

// BingeHandler serves session creation, history and the follow-up graph.
type BingeHandler struct {
	graph       *services.GraphService
	repoManager *repository.RepositoryManager
	cfg         *config.Config
	logger      *logrus.Logger
}

func NewBingeHandler(graph *services.GraphService, repoManager *repository.RepositoryManager, cfg *config.Config, logger *logrus.Logger) *BingeHandler {
	return &BingeHandler{
		graph:       graph,
		repoManager: repoManager,
		cfg:         cfg,
		logger:      logger,
	}
}

type createBingeRequest struct {
	RootSlug string `json:"root_slug" binding:"required"`
}

// HandleCreateBinge starts a session around an existing root question.
func (h *BingeHandler) HandleCreateBinge(c *gin.Context) {
	var req createBingeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.MsgResponse(c, http.StatusBadRequest, "root_slug is required.")
		return
	}

	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}
	user := middleware.CurrentUser(c)

	root, err := h.graph.SearchQuestion(user, guruType, nil, req.RootSlug, "", services.SearchOptions{})
	if err != nil {
		h.logger.WithError(err).Error("Root question lookup failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}
	if root == nil {
		utils.MsgResponse(c, http.StatusNotFound, "Question not found.")
		return
	}

	var ownerID *uint
	if user != nil {
		ownerID = &user.ID
	}
	binge, err := h.graph.CreateBinge(guruType.ID, ownerID, root)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create binge")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": binge.ID.String()})
}

// HandleWidgetCreateBinge starts an anonymous widget session. Widget
// sessions never carry an owner.
func (h *BingeHandler) HandleWidgetCreateBinge(c *gin.Context) {
	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}

	binge, err := h.graph.CreateBinge(guruType.ID, nil, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create widget binge")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": binge.ID.String()})
}

type bingeHistoryItem struct {
	ID       string    `json:"id"`
	GuruType uint      `json:"guru_type_id"`
	RootSlug string    `json:"root_slug,omitempty"`
	Title    string    `json:"title,omitempty"`
	LastUsed time.Time `json:"last_used"`
}

// HandleBingeHistory lists the caller's sessions grouped by recency.
func (h *BingeHandler) HandleBingeHistory(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		utils.MsgResponse(c, http.StatusUnauthorized, "Authentication required.")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	binges, hasMore, err := h.repoManager.Binge.List(models.BingeListOptions{
		OwnerID:     &user.ID,
		SearchQuery: c.Query("search"),
		PageNum:     page,
		PageSize:    h.cfg.Binge.HistoryPageSize,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to list binges")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	now := time.Now().UTC()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := startOfToday.AddDate(0, 0, -7)

	today := []bingeHistoryItem{}
	lastWeek := []bingeHistoryItem{}
	older := []bingeHistoryItem{}
	for _, b := range binges {
		item := h.historyItem(b)
		switch {
		case !b.LastUsed.Before(startOfToday):
			today = append(today, item)
		case !b.LastUsed.Before(weekAgo):
			lastWeek = append(lastWeek, item)
		default:
			older = append(older, item)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"today":     today,
		"last_week": lastWeek,
		"older":     older,
		"has_more":  hasMore,
		"page":      page,
	})
}

func (h *BingeHandler) historyItem(b models.Binge) bingeHistoryItem {
	item := bingeHistoryItem{
		ID:       b.ID.String(),
		GuruType: b.GuruTypeID,
		LastUsed: b.LastUsed,
	}
	if b.RootQuestionID != nil {
		root, err := h.repoManager.Question.GetByID(*b.RootQuestionID)
		if err == nil && root != nil {
			item.RootSlug = root.Slug
			item.Title = root.Question
		}
	}
	return item
}

type graphNode struct {
	ID       uint   `json:"id"`
	Slug     string `json:"slug"`
	Question string `json:"question"`
	ParentID *uint  `json:"parent_id"`
}

// HandleBingeGraph returns the question tree of a session plus whether
// the follow-up window is still open.
func (h *BingeHandler) HandleBingeGraph(c *gin.Context) {
	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}

	bingeID, err := uuid.Parse(c.Param("bingeID"))
	if err != nil {
		utils.MsgResponse(c, http.StatusBadRequest, "Invalid binge id.")
		return
	}
	binge, err := h.repoManager.Binge.GetByID(bingeID)
	if err != nil {
		utils.MsgResponse(c, http.StatusNotFound, "Session not found.")
		return
	}
	if binge.GuruTypeID != guruType.ID {
		utils.MsgResponse(c, http.StatusNotFound, "Session not found.")
		return
	}

	user := middleware.CurrentUser(c)
	allowed, err := h.graph.CheckBingeAuth(binge, user)
	if err != nil {
		h.logger.WithError(err).Error("Binge auth check failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}
	if !allowed {
		utils.MsgResponse(c, http.StatusUnauthorized, "You are not authorized for this session.")
		return
	}

	questions, err := h.repoManager.Question.ListByBinge(bingeID, guruType.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list binge questions")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	nodes := make([]graphNode, 0, len(questions))
	for _, q := range questions {
		nodes = append(nodes, graphNode{
			ID:       q.ID,
			Slug:     q.Slug,
			Question: q.Question,
			ParentID: q.ParentID,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"nodes":          nodes,
		"binge_outdated": h.graph.BingeOutdated(binge),
	})
}

func (h *BingeHandler) lookupGuruType(c *gin.Context) (*models.GuruType, bool) {
	guruType, err := h.repoManager.GuruType.GetBySlug(c.Param("guruType"), true)
	if err != nil || guruType == nil {
		utils.MsgResponse(c, http.StatusNotFound, "Guru type is invalid.")
		return nil, false
	}
	return guruType, true
}
