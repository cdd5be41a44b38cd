package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/policy"
	"github.com/mrlokans/librarian/internal/query"
)

type MembersController struct {
	facade  *query.Facade
	members MemberWriter
	audit   *audit.Service
}

func NewMembersController(facade *query.Facade, members MemberWriter, auditService *audit.Service) *MembersController {
	return &MembersController{
		facade:  facade,
		members: members,
		audit:   auditService,
	}
}

type updateMemberRequest struct {
	IsActiveMember *bool `json:"is_active_member" binding:"required"`
}

// ListMembers handles GET /api/members
func (mc *MembersController) ListMembers(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	page, err := mc.facade.ListMembers(c.Request.Context(), auth.GetCaller(c), limit, offset)
	if err != nil {
		respondLendingError(c, err, "list members")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetMember handles GET /api/members/:id
func (mc *MembersController) GetMember(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	member, err := mc.facade.GetMember(c.Request.Context(), auth.GetCaller(c), id)
	if err != nil {
		respondLendingError(c, err, "get member")
		return
	}
	c.JSON(http.StatusOK, member)
}

// Me handles GET /api/members/me
func (mc *MembersController) Me(c *gin.Context) {
	member, err := mc.facade.OwnProfile(c.Request.Context(), auth.GetCaller(c))
	if err != nil {
		respondLendingError(c, err, "own profile")
		return
	}
	c.JSON(http.StatusOK, member)
}

// UpdateMember handles PATCH /api/members/:id
func (mc *MembersController) UpdateMember(c *gin.Context) {
	if err := policy.Authorize(auth.GetCaller(c), policy.WriteMembers); err != nil {
		respondLendingError(c, err, "update member")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	member, err := mc.members.SetActive(c.Request.Context(), id, *req.IsActiveMember)
	if err != nil {
		respondLendingError(c, err, "update member")
		return
	}

	if mc.audit != nil {
		mc.audit.LogMember(actorFromContext(c), "member_update", member.ID,
			fmt.Sprintf("Set is_active_member=%v for %s", member.IsActiveMember, member.User.Username))
	}
	c.JSON(http.StatusOK, member)
}
