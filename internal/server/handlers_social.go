package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type friendRequestPayload struct {
	Username string `json:"username"`
}

type openChatPayload struct {
	FriendID string `json:"friend_id"`
}

type sendMessagePayload struct {
	Body string `json:"body"`
}

func (h *httpHandler) handleListFriends(c *gin.Context) {
	friends, err := h.social.ListFriends(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (h *httpHandler) handleRemoveFriend(c *gin.Context) {
	if err := h.social.RemoveFriend(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListFriendRequests(c *gin.Context) {
	userID := currentUserID(c)
	incoming, err := h.social.ListIncoming(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	outgoing, err := h.social.ListOutgoing(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incoming": incoming, "outgoing": outgoing})
}

func (h *httpHandler) handleSendFriendRequest(c *gin.Context) {
	var payload friendRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Username == "" {
		h.badRequest(c, "invalid_request")
		return
	}
	request, err := h.social.SendRequest(c.Request.Context(), currentUserID(c), payload.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

func (h *httpHandler) handleAcceptFriendRequest(c *gin.Context) {
	request, err := h.social.Accept(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *httpHandler) handleDeclineFriendRequest(c *gin.Context) {
	request, err := h.social.Decline(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *httpHandler) handleCancelFriendRequest(c *gin.Context) {
	if err := h.social.Cancel(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListChats(c *gin.Context) {
	chats, err := h.chat.ListChats(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *httpHandler) handleOpenChat(c *gin.Context) {
	var payload openChatPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	opened, err := h.chat.OpenChat(c.Request.Context(), currentUserID(c), payload.FriendID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, opened)
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	page, err := h.chat.ListMessages(c.Request.Context(), currentUserID(c), c.Param("id"), c.Query("before"), queryInt(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	var payload sendMessagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	message, err := h.chat.SendMessage(c.Request.Context(), currentUserID(c), c.Param("id"), payload.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	updated, err := h.chat.MarkRead(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": updated})
}
