package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	usagedomain "github.com/billflow/billflow/internal/usage/domain"
)

func (s *Server) TodayUsage(c *gin.Context) {
	user := currentUser(c)

	usage, err := s.usageSvc.TodayUsage(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (s *Server) UsageHistory(c *gin.Context) {
	user := currentUser(c)

	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, usagedomain.ErrInvalidDays)
			return
		}
		days = parsed
	}

	history, err := s.usageSvc.UsageHistory(c.Request.Context(), user.ID, days)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"days":    days,
		"history": history,
	})
}

func (s *Server) MonthlySummary(c *gin.Context) {
	user := currentUser(c)

	year, month, ok := yearMonthParams(c)
	if !ok {
		return
	}

	summary, err := s.usageSvc.MonthlySummary(c.Request.Context(), user.ID, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) CurrentMonthSummary(c *gin.Context) {
	user := currentUser(c)

	summary, err := s.usageSvc.CurrentMonthSummary(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) AllTimeStats(c *gin.Context) {
	user := currentUser(c)

	stats, err := s.usageSvc.AllTimeStats(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// yearMonthParams parses the :year/:month path segments. On failure it
// records the error and reports false; the handler just returns.
func yearMonthParams(c *gin.Context) (int, int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		AbortWithError(c, usagedomain.ErrInvalidYear)
		return 0, 0, false
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		AbortWithError(c, usagedomain.ErrInvalidMonth)
		return 0, 0, false
	}
	return year, month, true
}
