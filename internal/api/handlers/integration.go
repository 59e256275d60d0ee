package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gurubase/gurubase-go/internal/database"
	"github.com/gurubase/gurubase-go/internal/integrations"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/repository"
	"github.com/gurubase/gurubase-go/pkg/utils"
	"github.com/sirupsen/logrus"
)

// IntegrationHandler manages vendor connections for a guru type.
type IntegrationHandler struct {
	registry    *integrations.Registry
	repoManager *repository.RepositoryManager
	cache       *database.Cache
	logger      *logrus.Logger
}

func NewIntegrationHandler(registry *integrations.Registry, repoManager *repository.RepositoryManager, cache *database.Cache, logger *logrus.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		registry:    registry,
		repoManager: repoManager,
		cache:       cache,
		logger:      logger,
	}
}

type createIntegrationRequest struct {
	Code    string `json:"code" binding:"required"`
	BotName string `json:"bot_name"`
}

// HandleCreate exchanges the vendor code (OAuth code, installation id or
// JSON credentials depending on the vendor) and persists the connection.
func (h *IntegrationHandler) HandleCreate(c *gin.Context) {
	integrationType, ok := h.integrationType(c)
	if !ok {
		return
	}

	var req createIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "code is required", err)
		return
	}

	guruType, err := h.repoManager.GuruType.GetBySlug(c.Param("guruType"), true)
	if err != nil || guruType == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Guru type is invalid", nil)
		return
	}

	strategy, err := h.registry.Strategy(integrationType, nil)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown integration type", err)
		return
	}

	ctx := c.Request.Context()
	tr, err := strategy.ExchangeToken(ctx, req.Code)
	if err != nil {
		h.logger.WithError(err).WithField("type", integrationType).Error("Token exchange failed")
		utils.ErrorResponse(c, http.StatusBadGateway, "Token exchange failed", err)
		return
	}

	externalID, err := strategy.GetExternalID(tr)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadGateway, "Could not determine workspace identity", err)
		return
	}
	workspaceName, err := strategy.GetWorkspaceName(ctx, tr)
	if err != nil {
		h.logger.WithError(err).Warn("Could not resolve workspace name")
		workspaceName = ""
	}

	if existing, err := h.repoManager.Integration.GetByExternalID(integrationType, externalID); err == nil && existing != nil {
		utils.ErrorResponse(c, http.StatusConflict, "This workspace is already connected", nil)
		return
	}

	integration := &models.Integration{
		Type:          integrationType,
		ExternalID:    externalID,
		WorkspaceName: workspaceName,
		AccessToken:   tr.AccessToken,
		RefreshToken:  tr.RefreshToken,
		BotName:       req.BotName,
		GuruTypeID:    guruType.ID,
	}
	if err := h.repoManager.Integration.Create(integration); err != nil {
		h.logger.WithError(err).Error("Failed to persist integration")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to save integration", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Integration created", integration)
}

// HandleGet returns the integration of one vendor for a guru type.
func (h *IntegrationHandler) HandleGet(c *gin.Context) {
	integration, ok := h.lookupIntegration(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Integration retrieved", integration)
}

// HandleDelete disconnects a vendor. The remote token is revoked first;
// a failed revoke is logged but does not keep the row alive.
func (h *IntegrationHandler) HandleDelete(c *gin.Context) {
	integration, ok := h.lookupIntegration(c)
	if !ok {
		return
	}

	strategy, err := h.registry.Strategy(integration.Type, integration)
	if err == nil {
		if err := strategy.RevokeAccessToken(c.Request.Context()); err != nil {
			h.logger.WithError(err).WithField("type", integration.Type).Warn("Remote token revoke failed")
		}
	}

	if err := h.repoManager.Integration.Delete(integration.ID); err != nil {
		h.logger.WithError(err).Error("Failed to delete integration")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to delete integration", err)
		return
	}
	if h.cache != nil {
		if err := h.cache.InvalidateIntegration(c.Request.Context(), integration.Type, integration.ExternalID); err != nil {
			h.logger.WithError(err).Warn("Failed to invalidate integration cache")
		}
	}
	utils.SuccessResponse(c, http.StatusOK, "Integration deleted", nil)
}

// HandleListChannels lists the vendor's current channels merged with the
// stored policy, so freshly created channels show up with policy defaults
// while existing decisions survive the refresh. The merged list is
// persisted.
func (h *IntegrationHandler) HandleListChannels(c *gin.Context) {
	integration, ok := h.lookupIntegration(c)
	if !ok {
		return
	}

	strategy, err := h.registry.Strategy(integration.Type, integration)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown integration type", err)
		return
	}

	remote, err := strategy.ListChannels(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Channel listing failed")
		utils.ErrorResponse(c, http.StatusBadGateway, "Could not list channels", err)
		return
	}

	merged := mergeChannels(remote, integration.Channels)
	integration.Channels = merged
	if err := h.repoManager.Integration.Update(integration); err != nil {
		h.logger.WithError(err).Warn("Failed to persist merged channels")
	}

	utils.SuccessResponse(c, http.StatusOK, "Channels retrieved", merged)
}

// mergeChannels carries Allowed/Mode decisions from stored onto the
// fresh vendor listing. Channels that disappeared remotely are dropped.
func mergeChannels(remote, stored models.Channels) models.Channels {
	decisions := make(map[string]models.Channel, len(stored))
	for _, ch := range stored {
		decisions[ch.ID] = ch
	}
	merged := make(models.Channels, 0, len(remote))
	for _, ch := range remote {
		if prev, ok := decisions[ch.ID]; ok {
			ch.Allowed = prev.Allowed
			if prev.Mode != "" {
				ch.Mode = prev.Mode
			}
		}
		merged = append(merged, ch)
	}
	return merged
}

type saveChannelsRequest struct {
	Channels models.Channels `json:"channels" binding:"required"`
}

// HandleSaveChannels persists channel policy decisions.
func (h *IntegrationHandler) HandleSaveChannels(c *gin.Context) {
	integration, ok := h.lookupIntegration(c)
	if !ok {
		return
	}

	var req saveChannelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "channels are required", err)
		return
	}

	for _, ch := range req.Channels {
		if ch.Mode != "" && ch.Mode != models.ChannelModeAuto && ch.Mode != models.ChannelModeManual {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel mode", nil)
			return
		}
	}

	integration.Channels = req.Channels
	if err := h.repoManager.Integration.Update(integration); err != nil {
		h.logger.WithError(err).Error("Failed to save channels")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to save channels", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Channels saved", integration.Channels)
}

type testMessageRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

// HandleSendTestMessage posts a probe message into a channel so the
// maintainer can verify permissions before allowing it.
func (h *IntegrationHandler) HandleSendTestMessage(c *gin.Context) {
	integration, ok := h.lookupIntegration(c)
	if !ok {
		return
	}

	var req testMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "channel_id is required", err)
		return
	}

	strategy, err := h.registry.Strategy(integration.Type, integration)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown integration type", err)
		return
	}

	if !strategy.SendTestMessage(c.Request.Context(), req.ChannelID) {
		utils.ErrorResponse(c, http.StatusBadGateway, "Test message failed", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Test message sent", nil)
}

type jiraIssuesRequest struct {
	JQL string `json:"jql" binding:"required"`
}

// HandleListIssues runs a JQL search against the connected Jira site so
// maintainers can preview which issues a data source selection covers.
func (h *IntegrationHandler) HandleListIssues(c *gin.Context) {
	integrationType, ok := h.integrationType(c)
	if !ok {
		return
	}
	if integrationType != models.IntegrationJira {
		utils.ErrorResponse(c, http.StatusBadRequest, "Issue listing is only available for Jira", nil)
		return
	}

	integration, ok := h.lookupIntegration(c)
	if !ok {
		return
	}

	var req jiraIssuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "jql is required", err)
		return
	}

	strategy, err := h.registry.Strategy(integration.Type, integration)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown integration type", err)
		return
	}
	jira := strategy.(*integrations.AtlassianStrategy)

	keys, err := jira.SearchIssues(c.Request.Context(), req.JQL)
	if err != nil {
		h.logger.WithError(err).Error("Jira issue search failed")
		utils.ErrorResponse(c, http.StatusBadGateway, "Issue search failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Issues retrieved", keys)
}

// HandleList returns every integration connected to a guru type.
func (h *IntegrationHandler) HandleList(c *gin.Context) {
	guruType, err := h.repoManager.GuruType.GetBySlug(c.Param("guruType"), true)
	if err != nil || guruType == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Guru type is invalid", nil)
		return
	}

	list, err := h.repoManager.Integration.ListByGuruType(guruType.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list integrations")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list integrations", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Integrations retrieved", list)
}

func (h *IntegrationHandler) integrationType(c *gin.Context) (models.IntegrationType, bool) {
	raw := c.Param("type")
	if !models.ValidIntegrationType(raw) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown integration type", nil)
		return "", false
	}
	return models.IntegrationType(raw), true
}

func (h *IntegrationHandler) lookupIntegration(c *gin.Context) (*models.Integration, bool) {
	integrationType, ok := h.integrationType(c)
	if !ok {
		return nil, false
	}
	guruType, err := h.repoManager.GuruType.GetBySlug(c.Param("guruType"), true)
	if err != nil || guruType == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Guru type is invalid", nil)
		return nil, false
	}

	integration, err := h.repoManager.Integration.GetByGuruType(guruType.ID, integrationType)
	if err != nil || integration == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Integration not found", nil)
		return nil, false
	}
	return integration, true
}
