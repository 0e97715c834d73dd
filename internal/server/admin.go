package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/dashboard"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

func (s *Server) AdminOverview(c *gin.Context) {
	overview, err := s.dashboard.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *Server) AdminListUsers(c *gin.Context) {
	users, err := s.dashboard.ListUsers(
		c.Request.Context(),
		c.Query("search"),
		c.Query("role"),
		c.Query("sort"),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) AdminUserDetail(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := s.userSvc.GetByID(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	stats, err := s.usageSvc.AllTimeStats(ctx, user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	currentMonth, err := s.usageSvc.CurrentMonthSummary(ctx, user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoices, err := s.billingSvc.ListInvoices(ctx, user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	recent := invoices.Invoices
	if len(recent) > 5 {
		recent = recent[:5]
	}

	c.JSON(http.StatusOK, gin.H{
		"user":            user,
		"stats":           stats,
		"current_month":   currentMonth,
		"recent_invoices": recent,
		"total_invoices":  invoices.TotalInvoices,
		"total_spent":     invoices.TotalSpent,
	})
}

type updateRoleRequest struct {
	Role userdomain.Role `json:"role"`
}

func (s *Server) AdminUpdateRole(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	admin := currentUser(c)
	if admin.ID == userID {
		AbortWithError(c, ErrOwnRole)
		return
	}

	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrBadRequest)
		return
	}

	user, err := s.userSvc.UpdateRole(c.Request.Context(), userID, req.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "role updated",
		"user":    user,
	})
}

func (s *Server) AdminAllInvoices(c *gin.Context) {
	filter := dashboard.InvoiceFilter{
		Status: c.Query("status"),
		Month:  c.Query("month"),
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, userdomain.ErrUserNotFound)
			return
		}
		filter.UserID = id
	}

	invoices, err := s.dashboard.AllInvoices(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func (s *Server) AdminGenerateInvoice(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	req := s.defaultInvoicePeriod()
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrBadRequest)
			return
		}
	}

	result, err := s.billingSvc.GenerateInvoice(c.Request.Context(), userID, req.Year, req.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.AlreadyExisted {
		c.JSON(http.StatusOK, gin.H{
			"message": "invoice already exists for this month",
			"invoice": result.Invoice,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "invoice generated",
		"invoice": result.Invoice,
	})
}

// AdminPayInvoice marks any user's invoice paid. The owning user is resolved
// from the invoice row itself.
func (s *Server) AdminPayInvoice(c *gin.Context) {
	invoiceID, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	var invoice billingdomain.Invoice
	err := s.db.WithContext(c.Request.Context()).Where("id = ?", invoiceID).First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		AbortWithError(c, billingdomain.ErrInvoiceNotFound)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.billingSvc.MarkPaid(c.Request.Context(), invoice.UserID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	message := "invoice paid"
	if result.AlreadyPaid {
		message = "invoice was already paid"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"invoice": result.Invoice,
	})
}

func (s *Server) AdminPlatformStats(c *gin.Context) {
	days := 14
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, usagedomain.ErrInvalidDays)
			return
		}
		days = parsed
	}

	stats, err := s.dashboard.PlatformStats(c.Request.Context(), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func userIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, userdomain.ErrUserNotFound)
		return 0, false
	}
	return id, true
}
