package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/fitlog/backend/internal/events"
	"github.com/fitlog/backend/internal/media"
	"github.com/fitlog/backend/internal/social"
	"github.com/fitlog/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type authResponsePayload struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   int64      `json:"expires_in"`
	TokenType   string     `json:"token_type"`
	User        users.User `json:"user"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleAuthRequestPayload struct {
	IDToken string `json:"id_token"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request users.RegisterRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	user, err := h.users.Register(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	events.Emit(c.Request.Context(), h.publisher, h.logger, events.Event{
		Type: events.TypeUserRegistered, UserID: user.ID, EntityID: user.ID,
		Data: map[string]interface{}{"method": "password"},
	})
	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	clientKey := c.ClientIP()
	if allowed, retryAfter := h.limiter.Allow(clientKey); !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_attempts"})
		return
	}

	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		h.badRequest(c, "invalid_request")
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		h.logger.Warn("login rejected", zap.String("client_ip", clientKey))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.limiter.Reset(clientKey)
	h.respondWithToken(c, http.StatusOK, user)
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	if h.verifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "google_sign_in_disabled"})
		return
	}
	var request googleAuthRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		h.badRequest(c, "invalid_request")
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.ResolveGoogleUser(c.Request.Context(), users.GoogleProfile{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, user)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, user users.User) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(status, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        user,
	})
}

func (h *httpHandler) handleGetMe(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleUpdateMe(c *gin.Context) {
	var update users.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), currentUserID(c), update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleDeleteMe(c *gin.Context) {
	userID := currentUserID(c)
	if err := h.users.Delete(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}
	events.Emit(c.Request.Context(), h.publisher, h.logger, events.Event{
		Type: events.TypeUserDeleted, UserID: userID, EntityID: userID,
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleTargets(c *gin.Context) {
	targets, err := h.users.NutritionTargets(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, targets)
}

// handleAvatarUpload accepts either a raw image body or a multipart "avatar" field.
func (h *httpHandler) handleAvatarUpload(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media_disabled"})
		return
	}
	body, err := readUpload(c, "avatar")
	if err != nil && !errors.Is(err, media.ErrTooLarge) {
		h.badRequest(c, "invalid_upload")
		return
	}
	contentType := ""
	if err == nil {
		contentType, err = media.ValidateImage(body)
	}
	switch {
	case errors.Is(err, media.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image_too_large"})
		return
	case errors.Is(err, media.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_image_type"})
		return
	case err != nil:
		h.badRequest(c, "empty_upload")
		return
	}

	userID := currentUserID(c)
	url, err := h.media.Put(c.Request.Context(), media.AvatarKey(userID, contentType, h.clock()), contentType, body)
	if err != nil {
		h.logger.Error("avatar upload failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload_failed"})
		return
	}
	user, err := h.users.SetAvatarURL(c.Request.Context(), userID, url)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// maxUploadBytes leaves room for multipart framing around a maximum size image.
const maxUploadBytes = media.MaxImageBytes + 1<<20

func readUpload(c *gin.Context, field string) ([]byte, error) {
	limited := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType != "multipart/form-data" {
		body, err := io.ReadAll(limited)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, media.ErrTooLarge
		}
		return body, err
	}
	c.Request.Body = limited
	header, err := c.FormFile(field)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return nil, media.ErrTooLarge
	}
	if err != nil {
		return nil, err
	}
	if header.Size > media.MaxImageBytes {
		return nil, media.ErrTooLarge
	}
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (h *httpHandler) handleFriendCode(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	size := queryInt(c, "size")
	if size > 1024 {
		size = 1024
	}
	png, err := social.FriendCodePNG(user.Username, size, nil)
	if err != nil {
		h.logger.Error("friend code render failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "friend_code_failed"})
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *httpHandler) handleUserSearch(c *gin.Context) {
	userID := currentUserID(c)
	found, err := h.users.Search(c.Request.Context(), c.Query("q"), queryInt(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	results := lo.FilterMap(found, func(user users.User, _ int) (users.PublicProfile, bool) {
		return user.Public(), user.ID != userID
	})
	c.JSON(http.StatusOK, gin.H{"users": results})
}
