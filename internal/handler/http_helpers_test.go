package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/service"
)

func TestWriteServiceErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "diary not found", err: service.ErrDiaryNotFound, want: http.StatusNotFound},
		{name: "wrapped postcard not found", err: fmt.Errorf("load: %w", service.ErrPostcardNotFound), want: http.StatusNotFound},
		{name: "invalid state", err: service.ErrInvalidState, want: http.StatusBadRequest},
		{name: "invalid diary", err: fmt.Errorf("%w: content required", service.ErrInvalidDiary), want: http.StatusBadRequest},
		{name: "unknown", err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			c.Request = httptest.NewRequest(http.MethodGet, "/api/diaries/1", nil)

			writeServiceError(c, tt.err, "操作失败")
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestParseUintParamRejectsZero(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, raw := range []string{"0", "-1", "abc", ""} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Params = gin.Params{{Key: "id", Value: raw}}
		if _, err := parseUintParam(c, "id"); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, err := parseUintParam(c, "id")
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}
}
