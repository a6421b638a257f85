package server

import (
	"net/http"

	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/foods"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListDiary(c *gin.Context) {
	query := diary.Query{
		Day:    c.Query("day"),
		From:   c.Query("from"),
		To:     c.Query("to"),
		Kind:   c.Query("kind"),
		Search: c.Query("search"),
		Cursor: c.Query("cursor"),
		Limit:  queryInt(c, "limit"),
	}
	if query.Day == "" && query.From == "" && query.To == "" {
		query.Day = h.today()
	}
	page, err := h.diary.List(c.Request.Context(), currentUserID(c), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleCreateDiaryEntry(c *gin.Context) {
	var input diary.EntryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	if input.Day == "" {
		input.Day = h.today()
	}
	entry, err := h.diary.Create(c.Request.Context(), currentUserID(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *httpHandler) handleDaySummary(c *gin.Context) {
	day := c.Query("day")
	if day == "" {
		day = h.today()
	}
	summary, err := h.diary.DaySummary(c.Request.Context(), currentUserID(c), day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleGetDiaryEntry(c *gin.Context) {
	entry, err := h.diary.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleUpdateDiaryEntry(c *gin.Context) {
	var input diary.EntryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	entry, err := h.diary.Update(c.Request.Context(), currentUserID(c), c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleDeleteDiaryEntry(c *gin.Context) {
	if err := h.diary.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleFoodBarcode(c *gin.Context) {
	product, err := h.foods.Lookup(c.Request.Context(), currentUserID(c), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *httpHandler) handleFoodSearch(c *gin.Context) {
	products, err := h.foods.Search(c.Request.Context(), currentUserID(c), c.Query("q"), queryInt(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *httpHandler) handleCreateFood(c *gin.Context) {
	var input foods.CustomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	product, err := h.foods.CreateCustom(c.Request.Context(), currentUserID(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}
