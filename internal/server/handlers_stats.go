package server

import (
	"net/http"

	"github.com/fitlog/backend/internal/diary"
	"github.com/gin-gonic/gin"
)

const defaultStatsWindowDays = 30

// statsRange reads from/to, defaulting to the thirty days ending today.
func (h *httpHandler) statsRange(c *gin.Context) (string, string) {
	now := h.clock().UTC()
	from := c.Query("from")
	to := c.Query("to")
	if to == "" {
		to = now.Format(diary.DayLayout)
	}
	if from == "" {
		from = now.AddDate(0, 0, -(defaultStatsWindowDays - 1)).Format(diary.DayLayout)
	}
	return from, to
}

func (h *httpHandler) handleWeightHistory(c *gin.Context) {
	from, to := h.statsRange(c)
	points, err := h.stats.WeightHistory(c.Request.Context(), currentUserID(c), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "points": points})
}

func (h *httpHandler) handleCalorieHistory(c *gin.Context) {
	from, to := h.statsRange(c)
	points, err := h.stats.CalorieHistory(c.Request.Context(), currentUserID(c), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "points": points})
}

func (h *httpHandler) handleMuscleGroupVolume(c *gin.Context) {
	from, to := h.statsRange(c)
	groups, err := h.stats.MuscleGroupVolume(c.Request.Context(), currentUserID(c), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "muscle_groups": groups})
}

func (h *httpHandler) handlePersonalRecords(c *gin.Context) {
	records, err := h.stats.PersonalRecords(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *httpHandler) handleStreak(c *gin.Context) {
	today := c.Query("today")
	if today == "" {
		today = h.today()
	}
	streak, err := h.stats.Streak(c.Request.Context(), currentUserID(c), today)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, streak)
}
