package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/agent"
	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/users"
	"github.com/agrimandi/auth-service/internal/zones"
)

// AgentHandler exposes field-agent onboarding and management plus the zone
// lookup endpoints the agent tooling depends on. Admins provision and manage
// agents; agents authenticate with a temporary PIN on first login.
type AgentHandler struct {
	svc      *agent.Service
	zones    *zones.Service
	sessions *session.Service
	logger   *zap.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(svc *agent.Service, zoneSvc *zones.Service, sessions *session.Service, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{svc: svc, zones: zoneSvc, sessions: sessions, logger: logger}
}

// Register mounts the agent and zone routes.
func (h *AgentHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/agent")
	{
		a.POST("/first-login", h.FirstLogin)
		a.POST("/set-pin", h.SetPin)
	}
	self := a.Group("", Authenticated(h.sessions, h.logger), RequireRole(h.logger, users.RoleAgent))
	{
		self.POST("/training/complete", h.CompleteTraining)
		self.GET("/dashboard", h.Dashboard)
	}

	admin := rg.Group("/admin/agents", Authenticated(h.sessions, h.logger), RequireRole(h.logger, users.RoleAdmin))
	{
		admin.POST("", h.Create)
		admin.GET("", h.List)
		admin.GET("/:id", h.Get)
		admin.POST("/:id/deactivate", h.Deactivate)
		admin.POST("/:id/reassign-zone", h.ReassignZone)
	}

	rg.GET("/zones", Authenticated(h.sessions, h.logger), h.GetZones)
}

type createAgentRequest struct {
	FullName       string `json:"full_name" binding:"required"`
	MobileNumber   string `json:"mobile_number" binding:"required"`
	ZoneID         int64  `json:"zone_id" binding:"required"`
	StartDate      string `json:"start_date" binding:"required"`
	EmploymentType string `json:"employment_type" binding:"required"`
}

// Create handles POST /admin/agents.
func (h *AgentHandler) Create(c *gin.Context) {
	var req createAgentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		respondError(c, h.logger, apperr.New(apperr.CodeInvalidArgument, "start_date must be YYYY-MM-DD"))
		return
	}
	claims := ClaimsFrom(c)
	p, err := h.svc.Create(c.Request.Context(), agent.CreateInput{
		FullName:       req.FullName,
		Phone:          req.MobileNumber,
		ZoneID:         req.ZoneID,
		StartDate:      startDate,
		EmploymentType: agent.EmploymentType(req.EmploymentType),
		CreatedBy:      claims.UserID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "agent created, temporary PIN sent", gin.H{"agent": p})
}

type agentFirstLoginRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required"`
	TempPIN      string `json:"temp_pin" binding:"required"`
}

// FirstLogin handles POST /agent/first-login. A correct temporary PIN yields
// a short-lived token good only for setting a permanent PIN.
func (h *AgentHandler) FirstLogin(c *gin.Context) {
	var req agentFirstLoginRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.FirstLogin(c.Request.Context(), req.MobileNumber, req.TempPIN)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "temporary PIN accepted, set your PIN", gin.H{
		"requires_pin_change": res.RequiresPinChange,
		"temporary_token":     res.TemporaryToken,
		"expires_in":          res.ExpiresIn,
	})
}

type agentSetPinRequest struct {
	Token      string `json:"token" binding:"required"`
	PIN        string `json:"pin" binding:"required"`
	ConfirmPIN string `json:"confirm_pin" binding:"required"`
}

// SetPin handles POST /agent/set-pin.
func (h *AgentHandler) SetPin(c *gin.Context) {
	var req agentSetPinRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.SetPin(c.Request.Context(), req.Token, req.PIN, req.ConfirmPIN)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "PIN set", gin.H{
		"user":              res.User,
		"tokens":            res.Tokens,
		"requires_training": res.RequiresTraining,
	})
}

// CompleteTraining handles POST /agent/training/complete.
func (h *AgentHandler) CompleteTraining(c *gin.Context) {
	claims := ClaimsFrom(c)
	res, err := h.svc.CompleteTraining(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, res.Message, gin.H{"status": res.Status})
}

// Dashboard handles GET /agent/dashboard.
func (h *AgentHandler) Dashboard(c *gin.Context) {
	claims := ClaimsFrom(c)
	d, err := h.svc.GetDashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "dashboard", gin.H{"dashboard": d})
}

type deactivateAgentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Deactivate handles POST /admin/agents/:id/deactivate.
func (h *AgentHandler) Deactivate(c *gin.Context) {
	agentID, err := pathID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req deactivateAgentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	claims := ClaimsFrom(c)
	if err := h.svc.Deactivate(c.Request.Context(), agentID, req.Reason, claims.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "agent deactivated", nil)
}

type reassignZoneRequest struct {
	ZoneID        int64  `json:"zone_id" binding:"required"`
	EffectiveFrom string `json:"effective_from"`
}

// ReassignZone handles POST /admin/agents/:id/reassign-zone.
func (h *AgentHandler) ReassignZone(c *gin.Context) {
	agentID, err := pathID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req reassignZoneRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	var effectiveFrom time.Time
	if req.EffectiveFrom != "" {
		effectiveFrom, err = time.Parse("2006-01-02", req.EffectiveFrom)
		if err != nil {
			respondError(c, h.logger, apperr.New(apperr.CodeInvalidArgument, "effective_from must be YYYY-MM-DD"))
			return
		}
	}
	claims := ClaimsFrom(c)
	za, err := h.svc.ReassignZone(c.Request.Context(), agentID, req.ZoneID, claims.UserID, effectiveFrom)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "zone reassigned", gin.H{"assignment": za})
}

// List handles GET /admin/agents.
func (h *AgentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	var zoneID int64
	if v := c.Query("zone_id"); v != "" {
		zoneID, _ = strconv.ParseInt(v, 10, 64)
	}
	res, err := h.svc.List(c.Request.Context(), agent.ListFilter{
		Status: agent.Status(c.Query("status")),
		ZoneID: zoneID,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "agents", gin.H{
		"agents": res.Agents,
		"total":  res.Total,
		"page":   res.Page,
		"limit":  res.Limit,
	})
}

// Get handles GET /admin/agents/:id.
func (h *AgentHandler) Get(c *gin.Context) {
	agentID, err := pathID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	d, err := h.svc.Get(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "agent", gin.H{"agent": d})
}

// GetZones handles GET /zones. With parent_id it lists direct children, with
// root_id the full subtree, and with managed=true the caller's managed zones.
func (h *AgentHandler) GetZones(c *gin.Context) {
	ctx := c.Request.Context()
	switch {
	case c.Query("parent_id") != "":
		parentID, err := strconv.ParseInt(c.Query("parent_id"), 10, 64)
		if err != nil || parentID < 1 {
			respondError(c, h.logger, apperr.New(apperr.CodeInvalidArgument, "invalid parent_id"))
			return
		}
		zs, err := h.zones.Children(ctx, parentID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		respondOK(c, "zones", gin.H{"zones": zs})
	case c.Query("root_id") != "":
		rootID, err := strconv.ParseInt(c.Query("root_id"), 10, 64)
		if err != nil || rootID < 1 {
			respondError(c, h.logger, apperr.New(apperr.CodeInvalidArgument, "invalid root_id"))
			return
		}
		nodes, err := h.zones.Hierarchy(ctx, rootID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		respondOK(c, "zones", gin.H{"zones": nodes})
	case c.Query("managed") == "true":
		claims := ClaimsFrom(c)
		zs, err := h.zones.ByDistrictManager(ctx, claims.UserID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		respondOK(c, "zones", gin.H{"zones": zs})
	default:
		respondError(c, h.logger, apperr.New(apperr.CodeInvalidArgument, "one of parent_id, root_id, or managed is required"))
	}
}
