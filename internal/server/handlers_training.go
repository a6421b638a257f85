package server

import (
	"net/http"
	"strconv"

	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/programs"
	"github.com/gin-gonic/gin"
)

type applyProgramPayload struct {
	Day string `json:"day"`
}

func (h *httpHandler) handleListExercises(c *gin.Context) {
	ownedOnly, _ := strconv.ParseBool(c.Query("mine"))
	list, err := h.exercises.List(c.Request.Context(), currentUserID(c), exercises.Filter{
		Search:      c.Query("search"),
		MuscleGroup: c.Query("muscle_group"),
		Equipment:   c.Query("equipment"),
		Difficulty:  c.Query("difficulty"),
		OwnedOnly:   ownedOnly,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exercises": list})
}

func (h *httpHandler) handleMuscleGroups(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"muscle_groups": h.exercises.MuscleGroups()})
}

func (h *httpHandler) handleCreateExercise(c *gin.Context) {
	var input exercises.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	exercise, err := h.exercises.Create(c.Request.Context(), currentUserID(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exercise)
}

func (h *httpHandler) handleGetExercise(c *gin.Context) {
	exercise, err := h.exercises.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exercise)
}

func (h *httpHandler) handleUpdateExercise(c *gin.Context) {
	var input exercises.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	exercise, err := h.exercises.Update(c.Request.Context(), currentUserID(c), c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exercise)
}

func (h *httpHandler) handleDeleteExercise(c *gin.Context) {
	if err := h.exercises.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListPrograms(c *gin.Context) {
	list, err := h.programs.List(c.Request.Context(), currentUserID(c), c.Query("muscle_group"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"programs": list})
}

func (h *httpHandler) handleCreateProgram(c *gin.Context) {
	var input programs.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	program, err := h.programs.Create(c.Request.Context(), currentUserID(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, program)
}

func (h *httpHandler) handleGetProgram(c *gin.Context) {
	program, err := h.programs.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, program)
}

func (h *httpHandler) handleUpdateProgram(c *gin.Context) {
	var input programs.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	program, err := h.programs.Update(c.Request.Context(), currentUserID(c), c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, program)
}

func (h *httpHandler) handleDeleteProgram(c *gin.Context) {
	if err := h.programs.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleApplyProgram(c *gin.Context) {
	var payload applyProgramPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			h.badRequest(c, "invalid_request")
			return
		}
	}
	if payload.Day == "" {
		payload.Day = h.today()
	}
	entries, err := h.programs.ApplyToDiary(c.Request.Context(), currentUserID(c), c.Param("id"), payload.Day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entries": entries})
}
