package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vallemarketing/valle360-teste-sub009/internal/services"
)

// updateTransitionRequest accepts the snake_case and camelCase spellings
// the admin UI has used over time
type updateTransitionRequest struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Action         string  `json:"action"`
	ErrorMessage   *string `json:"error_message"`
	ErrorMessageCC *string `json:"errorMessage"`
	Note           *string `json:"note"`
	CompletedNote  *string `json:"completed_note"`
	CompletionNote *string `json:"completion_note"`
	ToArea         *string `json:"to_area"`
	ToAreaCC       *string `json:"toArea"`
	NewToArea      *string `json:"new_to_area"`
	NewToAreaCC    *string `json:"newToArea"`
}

func (r updateTransitionRequest) command(actorID string) services.UpdateCommand {
	return services.UpdateCommand{
		ID:           r.ID,
		Status:       r.Status,
		Action:       r.Action,
		ErrorMessage: first(r.ErrorMessage, r.ErrorMessageCC),
		Note:         first(r.Note, r.CompletedNote, r.CompletionNote),
		ToArea:       first(r.ToArea, r.ToAreaCC, r.NewToArea, r.NewToAreaCC),
		ActorID:      actorID,
	}
}

type executeTransitionRequest struct {
	ID string `json:"id"`
}

// ListTransitions handles GET /workflow-transitions
func (h *Handler) ListTransitions(c *gin.Context) {
	q := services.ListQuery{
		Status:       c.Query("status"),
		FromArea:     query(c, "from_area", "fromArea"),
		ToArea:       query(c, "to_area", "toArea"),
		TriggerEvent: query(c, "trigger_event", "triggerEvent"),
		Limit:        limitParam(c),
	}

	transitions, err := h.Transitions.List(c.Request.Context(), q)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}

// UpdateTransition handles PATCH /workflow-transitions
func (h *Handler) UpdateTransition(c *gin.Context) {
	var req updateTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, NewValidationError("request body must be a JSON object"))
		return
	}

	t, err := h.Transitions.Update(c.Request.Context(), req.command(principal(c).UserID))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transition": t})
}

// ExecuteTransition handles POST /workflow-transitions/execute
func (h *Handler) ExecuteTransition(c *gin.Context) {
	var req executeTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, NewValidationError("request body must be a JSON object"))
		return
	}
	if req.ID == "" {
		WriteError(c, NewValidationError("id is required"))
		return
	}

	res, err := h.Transitions.Execute(c.Request.Context(), req.ID, principal(c).UserID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"transition":       res.Transition,
		"task_id":          res.TaskID,
		"board_id":         res.BoardID,
		"client_id":        nullable(res.ClientID),
		"already_executed": res.AlreadyExecuted,
	})
}

func first(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func query(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}

// limitParam reads ?limit. Absent or unparsable means the default; an
// explicit value below one is raised to one.
func limitParam(c *gin.Context) int {
	raw, ok := c.GetQuery("limit")
	if !ok || raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if n < 1 {
		return 1
	}
	return n
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
