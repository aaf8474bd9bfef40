package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/service"
)

// ListPostcards 分页列出明信片，支持只看未读。
func (a *API) ListPostcards(c *gin.Context) {
	list, err := a.postcards.List(c.Request.Context(), currentUserID(c), service.PostcardFilter{
		Limit:      parseIntQuery(c, "limit", 20),
		Offset:     parseIntQuery(c, "offset", 0),
		UnreadOnly: c.Query("unread") == "true" || c.Query("unread") == "1",
	})
	if err != nil {
		writeServiceError(c, err, "获取明信片失败")
		return
	}
	c.JSON(http.StatusOK, list)
}

// LatestPostcard 最近一张已生成的明信片。
func (a *API) LatestPostcard(c *gin.Context) {
	card, err := a.postcards.Latest(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err, "获取明信片失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"postcard": card})
}

// UnreadPostcardCount 未读数量。
func (a *API) UnreadPostcardCount(c *gin.Context) {
	count, err := a.postcards.UnreadCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err, "获取未读数量失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// GetPostcard 按 ID 读取。
func (a *API) GetPostcard(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的明信片ID")
		return
	}

	card, err := a.postcards.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeServiceError(c, err, "获取明信片失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"postcard": card})
}

// GetPostcardByDiary 按日记读取，生成中的明信片 ready 为 false。
func (a *API) GetPostcardByDiary(c *gin.Context) {
	diaryID, err := parseUintParam(c, "diaryID")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日记ID")
		return
	}

	card, err := a.postcards.GetByDiary(c.Request.Context(), currentUserID(c), diaryID)
	if err != nil {
		writeServiceError(c, err, "获取明信片失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"postcard": card})
}

// MarkPostcardRead 标记已读。
func (a *API) MarkPostcardRead(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的明信片ID")
		return
	}

	card, err := a.postcards.MarkRead(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeServiceError(c, err, "标记已读失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"postcard": card})
}

// RegeneratePostcard 重新生成图片或整张明信片。
func (a *API) RegeneratePostcard(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的明信片ID")
		return
	}

	card, err := a.postcards.RegenerateImage(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeServiceError(c, err, "重新生成失败")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"postcard": card})
}
