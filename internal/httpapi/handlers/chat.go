package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-chat/internal/ai"
	"persona-chat/internal/chat"
	"persona-chat/internal/common"
	"persona-chat/internal/httpapi/middleware"
)

func identityFromContext(c *gin.Context) chat.Identity {
	var id chat.Identity
	if v, ok := c.Get(middleware.UserIDKey); ok {
		if uid, ok := v.(uint64); ok {
			id.UserID = uid
		}
	}
	if v, ok := c.Get(middleware.TierKey); ok {
		if tier, ok := v.(string); ok {
			id.Tier = tier
		}
	}
	if v, ok := c.Get(middleware.AnonymousIDKey); ok {
		if anon, ok := v.(string); ok {
			id.AnonymousID = anon
		}
	}
	return id
}

// chatError maps lifecycle errors onto HTTP status + stable code.
func (h *Handler) chatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		common.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "message is required")
	case errors.Is(err, chat.ErrAccessDenied):
		common.Fail(c, http.StatusForbidden, "ACCESS_DENIED", "no identity for this request")
	case errors.Is(err, chat.ErrAgentNotFound):
		common.Fail(c, http.StatusNotFound, "AGENT_NOT_FOUND", "unknown agent")
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, chat.ErrSessionExpired):
		common.Fail(c, http.StatusGone, "SESSION_EXPIRED", "session ended too long ago to resume")
	case errors.Is(err, chat.ErrLimitReached):
		common.Fail(c, http.StatusTooManyRequests, "LIMIT_REACHED", "daily session limit reached")
	case errors.Is(err, chat.ErrFreeLimitExceeded):
		common.Fail(c, http.StatusTooManyRequests, "FREE_LIMIT_EXCEEDED", "free message limit reached, please sign in")
	case errors.Is(err, chat.ErrProvider):
		var pe *ai.ProviderError
		if errors.As(err, &pe) {
			common.Fail(c, http.StatusBadGateway, "OPENAI_ERROR", pe.Message)
			return
		}
		common.Fail(c, http.StatusBadGateway, "AI_AGENT_ERROR", "ai agent failed to respond")
	default:
		h.Log.Error("chat handler error", zap.Error(err), zap.String("path", c.Request.URL.Path))
		common.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

type createSessionReq struct {
	AgentID string `json:"agent_id" binding:"required"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	id := identityFromContext(c)
	if !id.Valid() {
		common.Fail(c, http.StatusForbidden, "ACCESS_DENIED", "no identity for this request")
		return
	}

	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "agent_id is required")
		return
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), id, req.AgentID)
	if err != nil {
		h.chatError(c, err)
		return
	}

	common.OK(c, gin.H{
		"session_id":   sess.SessionID,
		"agent_id":     sess.PersonaID,
		"agent_name":   sess.PersonaName,
		"status":       sess.Status,
		"conversation": sess.Conversation,
		"created_at":   sess.CreatedAt,
	})
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	id := identityFromContext(c)
	if !id.Valid() {
		common.Fail(c, http.StatusForbidden, "ACCESS_DENIED", "no identity for this request")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "message is required")
		return
	}

	res, err := h.ChatSvc.SendMessage(c.Request.Context(), id, c.Param("session_id"), req.Message)
	if err != nil {
		h.chatError(c, err)
		return
	}

	body := gin.H{
		"session_id":    res.SessionID,
		"reply":         res.Reply,
		"message_id":    res.AssistantMsgID,
		"message_count": res.MessageCount,
		"token_usage":   res.Usage,
		"processing_ms": res.ProcessingMs,
	}
	if res.Reactivated {
		body["reactivated"] = true
	}
	if res.FreeMessagesRemaining != nil {
		body["free_messages_remaining"] = *res.FreeMessagesRemaining
	}
	common.OK(c, body)
}

func (h *Handler) StopChatSession(c *gin.Context) {
	id := identityFromContext(c)
	if !id.Valid() {
		common.Fail(c, http.StatusForbidden, "ACCESS_DENIED", "no identity for this request")
		return
	}

	sess, err := h.ChatSvc.StopSession(c.Request.Context(), id, c.Param("session_id"))
	if err != nil {
		h.chatError(c, err)
		return
	}

	common.OK(c, gin.H{
		"session_id": sess.SessionID,
		"status":     sess.Status,
		"ended_at":   sess.EndedAt,
		"duration":   sess.Duration,
	})
}

func (h *Handler) GetChatHistory(c *gin.Context) {
	id := identityFromContext(c)
	if !id.Valid() {
		common.Fail(c, http.StatusForbidden, "ACCESS_DENIED", "no identity for this request")
		return
	}

	hist, err := h.ChatSvc.GetHistory(c.Request.Context(), id, c.Param("session_id"))
	if err != nil {
		h.chatError(c, err)
		return
	}

	common.OK(c, gin.H{
		"session":  hist.Session,
		"messages": hist.Messages,
		"stats":    hist.Stats,
	})
}

func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	id := identityFromContext(c)
	if !id.Valid() {
		common.Fail(c, http.StatusForbidden, "ACCESS_DENIED", "no identity for this request")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "message is required")
		return
	}

	sessionID := c.Param("session_id")
	if err := h.ChatSvc.ValidateSession(c.Request.Context(), id, sessionID); err != nil {
		h.chatError(c, err)
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	jobID, err := common.NewULID()
	if err != nil {
		h.chatError(c, err)
		return
	}

	j := &chat.Job{
		ID:             jobID,
		SessionID:      sessionID,
		Prompt:         strings.TrimSpace(req.Message),
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}
	if id.IsAuthenticated() {
		uid := id.UserID
		j.UserID = &uid
	} else {
		anon := id.AnonymousID
		j.AnonymousID = &anon
	}

	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		h.Log.Error("create job failed", zap.String("session_id", sessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to queue message")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			h.Log.Error("publish job failed", zap.String("job_id", j.ID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to queue message")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID, "status": j.Status})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	id := identityFromContext(c)
	if !id.Valid() {
		common.Fail(c, http.StatusForbidden, "ACCESS_DENIED", "no identity for this request")
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJobForOwner(c.Request.Context(), id, jobID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, "JOB_NOT_FOUND", "job not found")
			return
		}
		h.chatError(c, err)
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"session_id":        j.SessionID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
