package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/apperr"
	"github.com/agrimandi/auth-service/internal/session"
	"github.com/agrimandi/auth-service/internal/team"
)

// TeamHandler exposes buyer-organization team management. The organization
// id rides in the session claims; invitation validation and acceptance are
// public because the invitee has no session yet.
type TeamHandler struct {
	svc      *team.Service
	sessions *session.Service
	logger   *zap.Logger
}

// NewTeamHandler creates a TeamHandler.
func NewTeamHandler(svc *team.Service, sessions *session.Service, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{svc: svc, sessions: sessions, logger: logger}
}

// Register mounts the team routes.
func (h *TeamHandler) Register(rg *gin.RouterGroup) {
	t := rg.Group("/team")
	t.POST("/invitations/validate", h.ValidateInvitationToken)
	t.POST("/invitations/accept", h.AcceptTeamInvitation)

	auth := t.Group("", Authenticated(h.sessions, h.logger))
	{
		auth.GET("/members", h.ListTeamMembers)
		auth.POST("/invitations", h.InviteTeamMember)
		auth.POST("/invitations/:id/resend", h.ResendTeamInvitation)
		auth.PATCH("/members/:id/role", h.UpdateTeamMemberRole)
		auth.POST("/members/:id/deactivate", h.DeactivateTeamMember)
		auth.DELETE("/members/:id", h.DeleteTeamMember)
	}
}

// orgFrom extracts the buyer organization id from the session claims.
func orgFrom(c *gin.Context) (int64, int64, error) {
	claims := ClaimsFrom(c)
	if claims == nil || claims.BuyerOrgID == 0 {
		return 0, 0, apperr.New(apperr.CodeUnauthorized, "no organization in session")
	}
	return claims.BuyerOrgID, claims.UserID, nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.New(apperr.CodeInvalidArgument, "invalid id")
	}
	return id, nil
}

type inviteRequest struct {
	Email        string `json:"email" binding:"required"`
	MobileNumber string `json:"mobile_number" binding:"required"`
	Role         string `json:"role" binding:"required"`
}

// InviteTeamMember handles POST /team/invitations.
func (h *TeamHandler) InviteTeamMember(c *gin.Context) {
	orgID, userID, err := orgFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req inviteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	inv, err := h.svc.Invite(c.Request.Context(), orgID, req.Email, req.MobileNumber, team.MemberRole(req.Role), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "invitation sent", gin.H{"invitation": inv})
}

type validateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// ValidateInvitationToken handles POST /team/invitations/validate without
// consuming the token.
func (h *TeamHandler) ValidateInvitationToken(c *gin.Context) {
	var req validateTokenRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	inv, err := h.svc.ValidateToken(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "invitation valid", gin.H{
		"email":      inv.Email,
		"role":       inv.Role,
		"expires_at": inv.ExpiresAt,
	})
}

type acceptInvitationRequest struct {
	Token    string `json:"token" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id"`
}

// AcceptTeamInvitation handles POST /team/invitations/accept.
func (h *TeamHandler) AcceptTeamInvitation(c *gin.Context) {
	var req acceptInvitationRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.Accept(c.Request.Context(), req.Token, req.FullName, req.Password, sessionMeta(c, req.DeviceID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "invitation accepted", gin.H{
		"user":       res.User,
		"membership": res.Membership,
		"tokens":     res.Tokens,
	})
}

// ListTeamMembers handles GET /team/members.
func (h *TeamHandler) ListTeamMembers(c *gin.Context) {
	orgID, userID, err := orgFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	f := team.ListFilter{
		Role:   team.MemberRole(c.Query("role")),
		Status: team.MemberStatus(c.Query("status")),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	}
	members, total, err := h.svc.List(c.Request.Context(), orgID, userID, f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "team members", gin.H{"members": members, "total": total})
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateTeamMemberRole handles PATCH /team/members/:id/role.
func (h *TeamHandler) UpdateTeamMemberRole(c *gin.Context) {
	orgID, userID, err := orgFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	memberID, err := pathID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req updateRoleRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	change, err := h.svc.UpdateRole(c.Request.Context(), orgID, memberID, team.MemberRole(req.Role), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "role updated", gin.H{"change": change})
}

// DeactivateTeamMember handles POST /team/members/:id/deactivate.
func (h *TeamHandler) DeactivateTeamMember(c *gin.Context) {
	h.removeLike(c, h.svc.Deactivate, "member deactivated")
}

// DeleteTeamMember handles DELETE /team/members/:id.
func (h *TeamHandler) DeleteTeamMember(c *gin.Context) {
	h.removeLike(c, h.svc.Delete, "member removed")
}

func (h *TeamHandler) removeLike(c *gin.Context, op func(ctx context.Context, orgID, memberID, byUserID int64) error, message string) {
	orgID, userID, err := orgFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	memberID, err := pathID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := op(c.Request.Context(), orgID, memberID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, message, nil)
}

// ResendTeamInvitation handles POST /team/invitations/:id/resend.
func (h *TeamHandler) ResendTeamInvitation(c *gin.Context) {
	orgID, userID, err := orgFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	invID, err := pathID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	inv, err := h.svc.Resend(c.Request.Context(), orgID, invID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, "invitation resent", gin.H{"invitation": inv})
}
