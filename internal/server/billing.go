package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/providers/pdf"
)

func (s *Server) CurrentEstimate(c *gin.Context) {
	user := currentUser(c)

	estimate, err := s.billingSvc.CurrentEstimate(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

func (s *Server) CalculateBill(c *gin.Context) {
	user := currentUser(c)

	year, month, ok := yearMonthParams(c)
	if !ok {
		return
	}

	bill, err := s.billingSvc.CalculateBill(c.Request.Context(), user.ID, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

type generateInvoiceRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	user := currentUser(c)

	req := s.defaultInvoicePeriod()
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrBadRequest)
			return
		}
	}

	result, err := s.billingSvc.GenerateInvoice(c.Request.Context(), user.ID, req.Year, req.Month)
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
		"message":        "invoice generated",
		"invoice":        result.Invoice,
		"bill_breakdown": result.Bill,
	})
}

func (s *Server) ListInvoices(c *gin.Context) {
	user := currentUser(c)

	invoices, err := s.billingSvc.ListInvoices(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func (s *Server) GetInvoice(c *gin.Context) {
	user := currentUser(c)

	invoiceID, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	invoice, err := s.billingSvc.GetInvoice(c.Request.Context(), user.ID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) PayInvoice(c *gin.Context) {
	user := currentUser(c)

	invoiceID, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	result, err := s.billingSvc.MarkPaid(c.Request.Context(), user.ID, invoiceID)
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

func (s *Server) InvoicePDF(c *gin.Context) {
	user := currentUser(c)

	invoiceID, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	invoice, err := s.billingSvc.GetInvoice(c.Request.Context(), user.ID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.pdfSvc.GenerateInvoice(c.Request.Context(), invoicePDFData(invoice, user.Username, user.Email))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if reader == nil {
		AbortWithError(c, errors.New("pdf rendering is not configured"))
		return
	}

	document, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("invoice-%s.pdf", invoice.Month)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", document)
}

func invoicePDFData(invoice *billingdomain.Invoice, username, email string) pdf.InvoiceData {
	avgGB := float64(invoice.AvgStorageBytes) / (1 << 30)
	return pdf.InvoiceData{
		InvoiceNumber: "INV-" + invoice.ID.String(),
		Username:      username,
		Email:         email,
		Month:         invoice.Month,
		GeneratedAt:   invoice.GeneratedAt.Format("2006-01-02 15:04"),
		Status:        invoice.Status,
		Items: []pdf.InvoiceItem{
			{
				Description: fmt.Sprintf("Storage (avg %.4f GB over %d day(s))", avgGB, invoice.DaysActive),
				Quantity:    strconv.Itoa(invoice.DaysActive),
				Rate:        invoice.RateStoragePerGBDay.StringFixed(4) + " /GB-day",
				Amount:      invoice.StorageCost.StringFixed(4),
			},
			{
				Description: "API calls",
				Quantity:    strconv.FormatInt(invoice.TotalAPICalls, 10),
				Rate:        invoice.RateAPIPerCall.StringFixed(4) + " /call",
				Amount:      invoice.APICost.StringFixed(4),
			},
		},
		Total: invoice.TotalAmount.StringFixed(4),
	}
}

// defaultInvoicePeriod is the previous calendar month, matching what the
// scheduled run would bill.
func (s *Server) defaultInvoicePeriod() generateInvoiceRequest {
	now := s.clock.Now()
	year, month := now.Year(), int(now.Month())
	if month == 1 {
		return generateInvoiceRequest{Year: year - 1, Month: 12}
	}
	return generateInvoiceRequest{Year: year, Month: month - 1}
}

func invoiceIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, billingdomain.ErrInvoiceNotFound)
		return 0, false
	}
	return id, true
}
