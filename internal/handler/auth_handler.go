package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/db"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验用户名密码并写入会话。
func (a *API) Login(c *gin.Context) {
	var payload loginRequest
	if !bindJSON(c, &payload, "请输入用户名和密码") {
		return
	}

	user, err := db.Authenticate(a.db.WithContext(c.Request.Context()), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, db.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "用户名或密码错误")
			return
		}
		respondError(c, http.StatusInternalServerError, "登录失败")
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "username": user.Username})
}

// Logout 清空会话。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

// Me 返回当前登录用户。
func (a *API) Me(c *gin.Context) {
	session := sessions.Default(c)
	c.JSON(http.StatusOK, gin.H{
		"user_id":  currentUserID(c),
		"username": session.Get("username"),
	})
}

// AuthRequired 是一个简单的认证中间件，未登录时返回 401。
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get("user_id").(uint)
		if !ok || userID == 0 {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}
