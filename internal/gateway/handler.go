package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"connectivity/internal/auth"
	"connectivity/internal/logger"
	"connectivity/pkg/errors"
	"connectivity/pkg/models"
)

type API interface {
	EnqueueAffiliation(ctx context.Context, req AffiliationRequest) (*EnqueueResponse, error)
	EnqueueDocument(ctx context.Context, req DocumentRequest) (*EnqueueResponse, error)
	GetOutcome(ctx context.Context, requestID string) (*models.Outcome, error)
	CheckEligibility(ctx context.Context, citizenID int64) (*EligibilityResponse, error)
	Revoke(ctx context.Context, credentialID string, claims *auth.Claims) (*RevokeResponse, error)
}

type BaseHandler struct {
	Service API
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service API, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

// RegisterRoutes mounts the API under /api/v1. Every route sits behind
// authn.
func (h *Handler) RegisterRoutes(router *gin.Engine, authn gin.HandlerFunc) {
	v1 := router.Group("/api/v1", authn)
	{
		v1.POST("/affiliations", h.EnqueueAffiliation)
		v1.POST("/documents/authentications", h.EnqueueDocument)
		v1.GET("/outcomes/:request_id", h.GetOutcome)
		v1.GET("/citizens/:citizen_id/eligibility", h.CheckEligibility)
		v1.POST("/auth/revoke", h.Revoke)
	}
}

// EnqueueAffiliation godoc
// @Summary      Request a citizen affiliation
// @Description  Queue a citizen registration with the centralizer. The outcome is published asynchronously.
// @Tags         affiliations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      AffiliationRequest  true  "Citizen data"
// @Success      202      {object}  EnqueueResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      401      {object}  errors.ErrorResponse
// @Failure      503      {object}  errors.ErrorResponse
// @Router       /affiliations [post]
func (h *Handler) EnqueueAffiliation(c *gin.Context) {
	var req AffiliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	resp, err := h.Service.EnqueueAffiliation(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// EnqueueDocument godoc
// @Summary      Request a document authentication
// @Description  Queue a document for authentication by the centralizer
// @Tags         documents
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      DocumentRequest  true  "Document reference"
// @Success      202      {object}  EnqueueResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      401      {object}  errors.ErrorResponse
// @Failure      503      {object}  errors.ErrorResponse
// @Router       /documents/authentications [post]
func (h *Handler) EnqueueDocument(c *gin.Context) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	resp, err := h.Service.EnqueueDocument(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetOutcome godoc
// @Summary      Get a verification outcome
// @Description  Get the recorded outcome of a request by its request id
// @Tags         outcomes
// @Produce      json
// @Security     BearerAuth
// @Param        request_id  path      string  true  "Request ID"
// @Success      200         {object}  models.Outcome
// @Failure      401         {object}  errors.ErrorResponse
// @Failure      404         {object}  errors.ErrorResponse
// @Failure      503         {object}  errors.ErrorResponse
// @Router       /outcomes/{request_id} [get]
func (h *Handler) GetOutcome(c *gin.Context) {
	o, err := h.Service.GetOutcome(c.Request.Context(), c.Param("request_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}

// CheckEligibility godoc
// @Summary      Check citizen eligibility
// @Description  Ask the centralizer synchronously whether a citizen can be affiliated
// @Tags         citizens
// @Produce      json
// @Security     BearerAuth
// @Param        citizen_id  path      int  true  "Citizen ID"
// @Success      200         {object}  EligibilityResponse
// @Failure      400         {object}  errors.ErrorResponse
// @Failure      401         {object}  errors.ErrorResponse
// @Failure      408         {object}  errors.ErrorResponse
// @Failure      503         {object}  errors.ErrorResponse
// @Router       /citizens/{citizen_id}/eligibility [get]
func (h *Handler) CheckEligibility(c *gin.Context) {
	citizenID, err := strconv.ParseInt(c.Param("citizen_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	resp, err := h.Service.CheckEligibility(c.Request.Context(), citizenID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Revoke godoc
// @Summary      Revoke the current credential
// @Description  Revoke the bearer token used for this request until it expires
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  RevokeResponse
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /auth/revoke [post]
func (h *Handler) Revoke(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		h.HandleError(c, errors.ErrUnauthorized)
		return
	}

	resp, err := h.Service.Revoke(c.Request.Context(), auth.CredentialIDFromContext(c), claims)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
