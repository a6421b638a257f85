package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/auth"
	"github.com/fitlog/backend/internal/chat"
	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/events"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/foods"
	"github.com/fitlog/backend/internal/media"
	"github.com/fitlog/backend/internal/programs"
	"github.com/fitlog/backend/internal/social"
	"github.com/fitlog/backend/internal/stats"
	"github.com/fitlog/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const userIDContextKey = "fitlog_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingDomainService = errors.New("domain service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	// GoogleVerifier is optional; without it Google sign-in answers 503.
	GoogleVerifier GoogleVerifier
	TokenManager   TokenManager
	Users          *users.Service
	Exercises      *exercises.Service
	Programs       *programs.Service
	Diary          *diary.Service
	Foods          *foods.Service
	Stats          *stats.Service
	Social         *social.Service
	Chat           *chat.Service
	// Media is optional; without it avatar uploads answer 503.
	Media          media.Store
	Realtime       *RealtimeDispatcher
	Publisher      events.Publisher
	LoginLimiter   *LoginLimiter
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Exercises == nil || deps.Programs == nil || deps.Diary == nil || deps.Foods == nil ||
		deps.Stats == nil || deps.Social == nil || deps.Chat == nil {
		return nil, errMissingDomainService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	origins := normalizeOrigins(deps.AllowedOrigins)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(origins))

	handler := &httpHandler{
		verifier:  deps.GoogleVerifier,
		tokens:    deps.TokenManager,
		users:     deps.Users,
		exercises: deps.Exercises,
		programs:  deps.Programs,
		diary:     deps.Diary,
		foods:     deps.Foods,
		stats:     deps.Stats,
		social:    deps.Social,
		chat:      deps.Chat,
		media:     deps.Media,
		realtime:  realtime,
		publisher: deps.Publisher,
		limiter:   deps.LoginLimiter,
		origins:   origins,
		clock:     clock,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/google", handler.handleGoogleAuth)

	streams := router.Group("/")
	streams.Use(handler.authorizeStream)
	streams.GET("/events/stream", handler.handleEventStream)
	streams.GET("/chats/ws", handler.handleChatSocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/me", handler.handleGetMe)
	protected.PATCH("/me", handler.handleUpdateMe)
	protected.DELETE("/me", handler.handleDeleteMe)
	protected.GET("/me/targets", handler.handleTargets)
	protected.PUT("/me/avatar", handler.handleAvatarUpload)
	protected.GET("/me/friend-code.png", handler.handleFriendCode)
	protected.GET("/users/search", handler.handleUserSearch)

	protected.GET("/exercises", handler.handleListExercises)
	protected.GET("/exercises/muscle-groups", handler.handleMuscleGroups)
	protected.POST("/exercises", handler.handleCreateExercise)
	protected.GET("/exercises/:id", handler.handleGetExercise)
	protected.PUT("/exercises/:id", handler.handleUpdateExercise)
	protected.DELETE("/exercises/:id", handler.handleDeleteExercise)

	protected.GET("/programs", handler.handleListPrograms)
	protected.POST("/programs", handler.handleCreateProgram)
	protected.GET("/programs/:id", handler.handleGetProgram)
	protected.PUT("/programs/:id", handler.handleUpdateProgram)
	protected.DELETE("/programs/:id", handler.handleDeleteProgram)
	protected.POST("/programs/:id/apply", handler.handleApplyProgram)

	protected.GET("/diary", handler.handleListDiary)
	protected.POST("/diary", handler.handleCreateDiaryEntry)
	protected.GET("/diary/summary", handler.handleDaySummary)
	protected.GET("/diary/:id", handler.handleGetDiaryEntry)
	protected.PUT("/diary/:id", handler.handleUpdateDiaryEntry)
	protected.DELETE("/diary/:id", handler.handleDeleteDiaryEntry)

	protected.GET("/foods/barcode/:code", handler.handleFoodBarcode)
	protected.GET("/foods/search", handler.handleFoodSearch)
	protected.POST("/foods", handler.handleCreateFood)

	protected.GET("/stats/weight", handler.handleWeightHistory)
	protected.GET("/stats/calories", handler.handleCalorieHistory)
	protected.GET("/stats/muscle-groups", handler.handleMuscleGroupVolume)
	protected.GET("/stats/records", handler.handlePersonalRecords)
	protected.GET("/stats/streak", handler.handleStreak)

	protected.GET("/friends", handler.handleListFriends)
	protected.DELETE("/friends/:id", handler.handleRemoveFriend)
	protected.GET("/friends/requests", handler.handleListFriendRequests)
	protected.POST("/friends/requests", handler.handleSendFriendRequest)
	protected.POST("/friends/requests/:id/accept", handler.handleAcceptFriendRequest)
	protected.POST("/friends/requests/:id/decline", handler.handleDeclineFriendRequest)
	protected.DELETE("/friends/requests/:id", handler.handleCancelFriendRequest)

	protected.GET("/chats", handler.handleListChats)
	protected.POST("/chats", handler.handleOpenChat)
	protected.GET("/chats/:id/messages", handler.handleListMessages)
	protected.POST("/chats/:id/messages", handler.handleSendMessage)
	protected.POST("/chats/:id/read", handler.handleMarkRead)

	return router, nil
}

type httpHandler struct {
	verifier  GoogleVerifier
	tokens    TokenManager
	users     *users.Service
	exercises *exercises.Service
	programs  *programs.Service
	diary     *diary.Service
	foods     *foods.Service
	stats     *stats.Service
	social    *social.Service
	chat      *chat.Service
	media     media.Store
	realtime  *RealtimeDispatcher
	publisher events.Publisher
	limiter   *LoginLimiter
	origins   []string
	clock     func() time.Time
	logger    *zap.Logger
}

func normalizeOrigins(allowedOrigins []string) []string {
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func allowsAnyOrigin(origins []string) bool {
	return len(origins) == 0 || (len(origins) == 1 && origins[0] == "*")
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if allowsAnyOrigin(origins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	h.authorize(c, bearerToken(c.GetHeader("Authorization")))
}

// authorizeStream also accepts ?access_token= because browsers cannot set headers on EventSource or WebSocket.
func (h *httpHandler) authorizeStream(c *gin.Context) {
	token := strings.TrimSpace(c.Query("access_token"))
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}
	h.authorize(c, token)
}

func (h *httpHandler) authorize(c *gin.Context, token string) {
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

// respondError maps service errors onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	}
	body := gin.H{"error": apperr.ReasonOf(err, "internal_error")}
	if code := apperr.CodeOf(err); code != "" {
		body["code"] = code
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func (h *httpHandler) badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": reason})
}

func (h *httpHandler) today() string {
	return h.clock().UTC().Format(diary.DayLayout)
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return value
}
