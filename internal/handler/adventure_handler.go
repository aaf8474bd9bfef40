package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/db"
	"github.com/moodfox/internal/service"
)

type answerRequest struct {
	Answers []string `json:"answers"`
}

type sessionStep func(ctx *gin.Context, userID, sessionID uint) (*db.AdventureSession, error)

// GetOrCreateAdventure 返回日记对应的探险，不存在时创建并在后台出题。
func (a *API) GetOrCreateAdventure(c *gin.Context) {
	diaryID, err := parseUintParam(c, "diaryID")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日记ID")
		return
	}

	session, created, err := a.adventures.GetOrCreateSession(c.Request.Context(), currentUserID(c), diaryID)
	if err != nil {
		writeServiceError(c, err, "获取探险失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": session,
		"is_new":  created,
		"ready":   session.Status != db.AdventureStatusGenerating,
	})
}

// GetAdventure 按会话 ID 读取探险。
func (a *API) GetAdventure(c *gin.Context) {
	a.sessionAction(c, func(ctx *gin.Context, userID, sessionID uint) (*db.AdventureSession, error) {
		return a.adventures.GetSession(ctx.Request.Context(), userID, sessionID)
	}, "获取探险失败")
}

// StartAdventure pending → in_progress。
func (a *API) StartAdventure(c *gin.Context) {
	a.sessionAction(c, func(ctx *gin.Context, userID, sessionID uint) (*db.AdventureSession, error) {
		return a.adventures.StartSession(ctx.Request.Context(), userID, sessionID)
	}, "开始探险失败")
}

// RetryAdventure 失败后重新挑战。
func (a *API) RetryAdventure(c *gin.Context) {
	a.sessionAction(c, func(ctx *gin.Context, userID, sessionID uint) (*db.AdventureSession, error) {
		return a.adventures.RetrySession(ctx.Request.Context(), userID, sessionID)
	}, "重新挑战失败")
}

// SkipAdventure 跳过探险。
func (a *API) SkipAdventure(c *gin.Context) {
	a.sessionAction(c, func(ctx *gin.Context, userID, sessionID uint) (*db.AdventureSession, error) {
		return a.adventures.SkipSession(ctx.Request.Context(), userID, sessionID)
	}, "跳过探险失败")
}

func (a *API) sessionAction(c *gin.Context, step sessionStep, message string) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的探险ID")
		return
	}

	session, err := step(c, currentUserID(c), sessionID)
	if err != nil {
		writeServiceError(c, err, message)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// SubmitAdventureAnswer 提交当前题目的答案。
func (a *API) SubmitAdventureAnswer(c *gin.Context) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的探险ID")
		return
	}
	var payload answerRequest
	if !bindJSON(c, &payload, "请选择答案") {
		return
	}

	result, err := a.adventures.SubmitAnswer(c.Request.Context(), currentUserID(c), sessionID, payload.Answers)
	if err != nil {
		writeServiceError(c, err, "提交答案失败")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CompleteAdventure 结算探险。
func (a *API) CompleteAdventure(c *gin.Context) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的探险ID")
		return
	}

	result, err := a.adventures.CompleteSession(c.Request.Context(), currentUserID(c), sessionID)
	if err != nil {
		writeServiceError(c, err, "结算探险失败")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListItems 返回背包物品。
func (a *API) ListItems(c *gin.Context) {
	items, err := a.adventures.ListItems(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err, "获取背包失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetGameState 返回养成数值，首次访问时创建。
func (a *API) GetGameState(c *gin.Context) {
	state, err := a.ledger.GetOrCreate(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err, "获取游戏状态失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":          state,
		"next_level_at":  state.Level * db.DiariesPerLevel,
		"level_up_bonus": service.LevelUpBonus,
	})
}
