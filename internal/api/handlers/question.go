package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gurubase/gurubase-go/internal/middleware"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/repository"
	"github.com/gurubase/gurubase-go/internal/services"
	"github.com/gurubase/gurubase-go/pkg/utils"
	"github.com/sirupsen/logrus"
)

// QuestionHandler serves stored question pages.
type QuestionHandler struct {
	graph       *services.GraphService
	repoManager *repository.RepositoryManager
	logger      *logrus.Logger
}

func NewQuestionHandler(graph *services.GraphService, repoManager *repository.RepositoryManager, logger *logrus.Logger) *QuestionHandler {
	return &QuestionHandler{
		graph:       graph,
		repoManager: repoManager,
		logger:      logger,
	}
}

// HandleQuestionDetail serves GET /:guruType/question/:slug. The dirty
// flag tells the frontend a regeneration would give a fresher answer.
func (h *QuestionHandler) HandleQuestionDetail(c *gin.Context) {
	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}
	user := middleware.CurrentUser(c)

	question, err := h.graph.SearchQuestion(user, guruType, nil, c.Param("slug"), "", services.SearchOptions{
		AllowMaintainerAccess: true,
	})
	if err != nil {
		h.logger.WithError(err).Error("Question lookup failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}
	if question == nil {
		utils.MsgResponse(c, http.StatusNotFound, "Question not found.")
		return
	}

	dirty, err := h.graph.IsQuestionDirty(question)
	if err != nil {
		h.logger.WithError(err).Warn("Dirtiness check failed")
		dirty = false
	}

	resp := newQuestionResponse(question)
	c.JSON(http.StatusOK, gin.H{
		"question": resp,
		"dirty":    dirty,
	})
}

// HandleDefaultQuestions returns recent root questions shown as starting
// points on an empty guru page.
func (h *QuestionHandler) HandleDefaultQuestions(c *gin.Context) {
	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}

	questions, err := h.repoManager.Question.ListRecentRoots(guruType.ID, 10)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list default questions")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	items := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		items = append(items, gin.H{
			"slug":        q.Slug,
			"question":    q.Question,
			"description": q.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"questions": items})
}

func (h *QuestionHandler) lookupGuruType(c *gin.Context) (*models.GuruType, bool) {
	guruType, err := h.repoManager.GuruType.GetBySlug(c.Param("guruType"), true)
	if err != nil || guruType == nil {
		utils.MsgResponse(c, http.StatusNotFound, "Guru type is invalid.")
		return nil, false
	}
	return guruType, true
}
