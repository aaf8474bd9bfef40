package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/service"
)

type diaryRequest struct {
	Content      string   `json:"content"`
	EmotionTags  []string `json:"emotion_tags"`
	Intensity    int      `json:"intensity"`
	TriggerEvent string   `json:"trigger_event"`
}

func (r diaryRequest) toInput(userID uint) service.DiaryInput {
	return service.DiaryInput{
		UserID:       userID,
		Content:      r.Content,
		Tags:         r.EmotionTags,
		Intensity:    r.Intensity,
		TriggerEvent: r.TriggerEvent,
	}
}

// CreateDiary 写日记，探险与明信片在后台生成。
func (a *API) CreateDiary(c *gin.Context) {
	var payload diaryRequest
	if !bindJSON(c, &payload, "日记内容格式不正确") {
		return
	}

	diary, err := a.diaries.Create(c.Request.Context(), payload.toInput(currentUserID(c)))
	if err != nil {
		writeServiceError(c, err, "保存日记失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"diary": diary})
}

// ListDiaries 分页列出日记。
func (a *API) ListDiaries(c *gin.Context) {
	list, err := a.diaries.List(c.Request.Context(), currentUserID(c), service.DiaryListOptions{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 20),
	})
	if err != nil {
		writeServiceError(c, err, "获取日记失败")
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetDiary 读取单篇日记。
func (a *API) GetDiary(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日记ID")
		return
	}

	diary, err := a.diaries.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeServiceError(c, err, "获取日记失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"diary": diary})
}

// UpdateDiary 编辑日记。
func (a *API) UpdateDiary(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日记ID")
		return
	}
	var payload diaryRequest
	if !bindJSON(c, &payload, "日记内容格式不正确") {
		return
	}

	diary, err := a.diaries.Update(c.Request.Context(), id, payload.toInput(currentUserID(c)))
	if err != nil {
		writeServiceError(c, err, "更新日记失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"diary": diary})
}

// DeleteDiary 删除日记及其关联数据。
func (a *API) DeleteDiary(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日记ID")
		return
	}

	if err := a.diaries.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		writeServiceError(c, err, "删除日记失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "日记已删除"})
}

// AnalyzeDiary 情绪分析并结算，重复调用不会重复加分。
func (a *API) AnalyzeDiary(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日记ID")
		return
	}

	result, err := a.analysis.Analyze(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeServiceError(c, err, "情绪分析失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": result})
}
