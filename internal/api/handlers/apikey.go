package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gurubase/gurubase-go/internal/middleware"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/repository"
	"github.com/gurubase/gurubase-go/pkg/utils"
	"github.com/sirupsen/logrus"
)

// maxAPIKeysPerUser bounds how many live keys one user can hold.
const maxAPIKeysPerUser = 5

// APIKeyHandler manages a user's API keys.
type APIKeyHandler struct {
	repoManager *repository.RepositoryManager
	logger      *logrus.Logger
}

func NewAPIKeyHandler(repoManager *repository.RepositoryManager, logger *logrus.Logger) *APIKeyHandler {
	return &APIKeyHandler{repoManager: repoManager, logger: logger}
}

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

// HandleCreate mints a new key. The raw key is only returned here.
func (h *APIKeyHandler) HandleCreate(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	count, err := h.repoManager.APIKey.CountByUser(user.ID, false)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count API keys")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create API key", err)
		return
	}
	if count >= maxAPIKeysPerUser {
		utils.ErrorResponse(c, http.StatusBadRequest, "API key limit reached", nil)
		return
	}

	key := &models.APIKey{
		Key:    utils.GenerateAPIKey(),
		Name:   req.Name,
		UserID: user.ID,
	}
	if err := h.repoManager.APIKey.Create(key); err != nil {
		h.logger.WithError(err).Error("Failed to create API key")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create API key", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "API key created", key)
}

// HandleList returns the caller's keys.
func (h *APIKeyHandler) HandleList(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	keys, err := h.repoManager.APIKey.ListByUser(user.ID, false)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list API keys")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list API keys", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "API keys retrieved", keys)
}

// HandleDelete removes one of the caller's keys.
func (h *APIKeyHandler) HandleDelete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	key := c.Param("key")
	if err := h.repoManager.APIKey.DeleteByKey(key, user.ID); err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "API key not found", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "API key deleted", nil)
}
