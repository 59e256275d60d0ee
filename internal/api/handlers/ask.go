package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/middleware"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/repository"
	"github.com/gurubase/gurubase-go/internal/services"
	"github.com/gurubase/gurubase-go/pkg/utils"
	"github.com/sirupsen/logrus"
)

// AskHandler serves the answer endpoints for the API, UI and widget
// surfaces. All three funnel into services.AskService.
type AskHandler struct {
	ask         *services.AskService
	graph       *services.GraphService
	generator   answers.Generator
	repoManager *repository.RepositoryManager
	cfg         *config.Config
	logger      *logrus.Logger
}

func NewAskHandler(
	ask *services.AskService,
	graph *services.GraphService,
	generator answers.Generator,
	repoManager *repository.RepositoryManager,
	cfg *config.Config,
	logger *logrus.Logger,
) *AskHandler {
	return &AskHandler{
		ask:         ask,
		graph:       graph,
		generator:   generator,
		repoManager: repoManager,
		cfg:         cfg,
		logger:      logger,
	}
}

type answerRequest struct {
	Question      string `json:"question" binding:"required"`
	Stream        bool   `json:"stream"`
	SessionID     string `json:"session_id"`
	FetchExisting bool   `json:"fetch_existing"`
	ShortAnswer   bool   `json:"short_answer"`
}

type summaryRequest struct {
	Question string `json:"question" binding:"required"`
	BingeID  string `json:"binge_id"`
}

// questionResponse is the answer body shared by API and UI surfaces.
type questionResponse struct {
	Slug        string            `json:"slug"`
	Question    string            `json:"question"`
	Content     string            `json:"content"`
	Description string            `json:"description"`
	TrustScore  int               `json:"trust_score"`
	References  models.References `json:"references"`
	SessionID   string            `json:"session_id,omitempty"`
	DateCreated string            `json:"date_created"`
}

func newQuestionResponse(q *models.Question) questionResponse {
	resp := questionResponse{
		Slug:        q.Slug,
		Question:    q.Question,
		Content:     q.Content,
		Description: q.Description,
		TrustScore:  q.TrustScore,
		References:  q.References,
		DateCreated: q.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if q.BingeID != nil {
		resp.SessionID = q.BingeID.String()
	}
	return resp
}

// HandleAPIAnswer serves POST /api/v1/:guruType/answer/. Requires an API
// key. session_id continues an existing binge; without one a fresh binge
// is created around the answered question so follow-ups can reference it.
func (h *AskHandler) HandleAPIAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.MsgResponse(c, http.StatusBadRequest, "Question is required.")
		return
	}

	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}
	user := middleware.CurrentUser(c)

	var binge *models.Binge
	var parent *models.Question
	if req.SessionID != "" {
		bingeID, err := uuid.Parse(req.SessionID)
		if err != nil {
			utils.MsgResponse(c, http.StatusBadRequest, "Invalid session_id.")
			return
		}
		b, err := h.repoManager.Binge.GetByID(bingeID)
		if err != nil {
			utils.MsgResponse(c, http.StatusNotFound, "Session not found.")
			return
		}
		if err := h.graph.ValidateBingeFollowUp(b, user, guruType); err != nil {
			h.respondBingeError(c, err)
			return
		}
		binge = b
		parent, err = h.graph.LastQuestion(binge.ID)
		if err != nil {
			h.logger.WithError(err).Error("Failed to load binge parent question")
			utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
			return
		}
	}

	result, err := h.ask.Ask(c.Request.Context(), services.AskRequest{
		Question:      req.Question,
		GuruType:      guruType,
		Binge:         binge,
		Parent:        parent,
		FetchExisting: req.FetchExisting,
		ShortAnswer:   req.ShortAnswer,
		Source:        models.SourceAPI,
		User:          user,
	})
	if err != nil {
		h.logger.WithError(err).Error("Ask failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	h.respond(c, result, binge, user, req.Stream)
}

// HandleWidgetAsk serves the embeddable widget. Widget questions are
// scoped to their own sources and always stream.
func (h *AskHandler) HandleWidgetAsk(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.MsgResponse(c, http.StatusBadRequest, "Question is required.")
		return
	}

	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}

	var binge *models.Binge
	var parent *models.Question
	if req.SessionID != "" {
		bingeID, err := uuid.Parse(req.SessionID)
		if err != nil {
			utils.MsgResponse(c, http.StatusBadRequest, "Invalid session_id.")
			return
		}
		b, err := h.repoManager.Binge.GetByID(bingeID)
		if err != nil {
			utils.MsgResponse(c, http.StatusNotFound, "Session not found.")
			return
		}
		binge = b
		parent, err = h.graph.LastQuestion(binge.ID)
		if err != nil {
			h.logger.WithError(err).Error("Failed to load binge parent question")
			utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
			return
		}
	}

	result, err := h.ask.Ask(c.Request.Context(), services.AskRequest{
		Question:      req.Question,
		GuruType:      guruType,
		Binge:         binge,
		Parent:        parent,
		FetchExisting: req.FetchExisting,
		Source:        models.SourceWidget,
	})
	if err != nil {
		h.logger.WithError(err).Error("Widget ask failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	h.respond(c, result, binge, nil, true)
}

// HandleSummary serves the first half of the UI's two-phase ask: it
// returns the normalized question, slug and description without starting
// a generation.
func (h *AskHandler) HandleSummary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.MsgResponse(c, http.StatusBadRequest, "Question is required.")
		return
	}

	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}

	sumReq := answers.SummaryRequest{
		Question: req.Question,
		GuruType: guruType.Slug,
	}
	if req.BingeID != "" {
		sumReq.BingeID = req.BingeID
	}

	summary, err := h.generator.Summarize(c.Request.Context(), sumReq)
	if err != nil {
		h.logger.WithError(err).Error("Summary failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}
	if !summary.ValidQuestion {
		utils.MsgResponse(c, http.StatusUnprocessableEntity, "This question is not related to this guru.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"question":      summary.Question,
		"question_slug": summary.QuestionSlug,
		"description":   summary.Description,
	})
}

// HandleUIAnswer serves the second half of the UI ask. It always streams.
func (h *AskHandler) HandleUIAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.MsgResponse(c, http.StatusBadRequest, "Question is required.")
		return
	}

	guruType, ok := h.lookupGuruType(c)
	if !ok {
		return
	}
	user := middleware.CurrentUser(c)

	var binge *models.Binge
	var parent *models.Question
	if req.SessionID != "" {
		bingeID, err := uuid.Parse(req.SessionID)
		if err != nil {
			utils.MsgResponse(c, http.StatusBadRequest, "Invalid session_id.")
			return
		}
		b, err := h.repoManager.Binge.GetByID(bingeID)
		if err != nil {
			utils.MsgResponse(c, http.StatusNotFound, "Session not found.")
			return
		}
		if err := h.graph.ValidateBingeFollowUp(b, user, guruType); err != nil {
			h.respondBingeError(c, err)
			return
		}
		binge = b
		parent, err = h.graph.LastQuestion(binge.ID)
		if err != nil {
			h.logger.WithError(err).Error("Failed to load binge parent question")
			utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
			return
		}
	}

	result, err := h.ask.Ask(c.Request.Context(), services.AskRequest{
		Question:      req.Question,
		GuruType:      guruType,
		Binge:         binge,
		Parent:        parent,
		FetchExisting: req.FetchExisting,
		Source:        models.SourceUser,
		User:          user,
	})
	if err != nil {
		h.logger.WithError(err).Error("Ask failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	h.respond(c, result, binge, user, true)
}

// respond writes an AskResult to the client. Streaming responses send
// plain text chunks and persist the question after the flush; non-stream
// responses drain first and return the full question body.
func (h *AskHandler) respond(c *gin.Context, result *services.AskResult, binge *models.Binge, user *models.User, stream bool) {
	switch {
	case result.ErrorMsg != "":
		utils.MsgResponse(c, http.StatusUnprocessableEntity, result.ErrorMsg)
	case result.Existing != nil:
		c.JSON(http.StatusOK, newQuestionResponse(result.Existing))
	case stream:
		h.streamAnswer(c, result.Stream, binge, user)
	default:
		for {
			if _, ok := result.Stream.Next(); !ok {
				break
			}
		}
		question, err := result.Stream.Finalize(c.Request.Context())
		if err != nil {
			h.logger.WithError(err).Error("Failed to finalize answer")
			utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
			return
		}
		h.attachBinge(c, question, binge, user)
		c.JSON(http.StatusOK, newQuestionResponse(question))
	}
}

func (h *AskHandler) streamAnswer(c *gin.Context, stream *services.AnswerStream, binge *models.Binge, user *models.User) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		if _, err := c.Writer.Write([]byte(chunk)); err != nil {
			// Client went away; finish the generation so it still persists.
			for {
				if _, ok := stream.Next(); !ok {
					break
				}
			}
			break
		}
		if canFlush {
			flusher.Flush()
		}
	}

	question, err := stream.Finalize(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to finalize streamed answer")
		return
	}
	h.attachBinge(c, question, binge, user)
}

// attachBinge gives a root question its own binge so the caller can ask
// follow-ups, and backfills the root link on pre-existing binges.
func (h *AskHandler) attachBinge(c *gin.Context, question *models.Question, binge *models.Binge, user *models.User) {
	if binge != nil {
		if err := h.graph.SetRootQuestion(binge, question); err != nil {
			h.logger.WithError(err).Warn("Failed to set binge root question")
		}
		return
	}

	var ownerID *uint
	if user != nil {
		ownerID = &user.ID
	}
	if _, err := h.graph.CreateBinge(question.GuruTypeID, ownerID, question); err != nil {
		h.logger.WithError(err).Error("Failed to create binge for root question")
	}
}

func (h *AskHandler) lookupGuruType(c *gin.Context) (*models.GuruType, bool) {
	slug := strings.TrimSpace(c.Param("guruType"))
	guruType, err := h.repoManager.GuruType.GetBySlug(slug, true)
	if err != nil || guruType == nil {
		utils.MsgResponse(c, http.StatusNotFound, "Guru type is invalid.")
		return nil, false
	}
	return guruType, true
}

func (h *AskHandler) respondBingeError(c *gin.Context, err error) {
	switch err {
	case services.ErrNotAuthorized:
		utils.MsgResponse(c, http.StatusUnauthorized, "You are not authorized for this session.")
	case services.ErrBingeExpired:
		utils.MsgResponse(c, http.StatusGone, "This session has expired. Start a new one.")
	case services.ErrNotFound:
		utils.MsgResponse(c, http.StatusNotFound, "Session not found.")
	default:
		h.logger.WithError(err).Error("Binge validation failed")
		utils.MsgResponse(c, http.StatusInternalServerError, "Something went wrong.")
	}
}
