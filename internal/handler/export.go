package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"walletcore/internal/middleware"
	"walletcore/internal/models"
	"walletcore/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportHandler streams the owner's ledger as CSV or XLSX for the
// reporting collaborators.
type ExportHandler struct {
	DB *gorm.DB
}

func NewExportHandler(db *gorm.DB) *ExportHandler {
	return &ExportHandler{DB: db}
}

func (h *ExportHandler) ownerTransactions(c *gin.Context) ([]models.Transaction, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return nil, false
	}

	var rows []models.Transaction
	err := h.DB.
		Where("owner_id = ? AND deleted_at IS NULL", user.ID).
		Order("transaction_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "query failed")
		return nil, false
	}
	return rows, true
}

var exportHeader = []string{"date", "type", "status", "description", "amount", "currency", "category_id", "installment"}

func exportRecord(t *models.Transaction) []string {
	installment := ""
	if t.InstallmentNumber != nil && t.TotalInstallments != nil {
		installment = fmt.Sprintf("%d/%d", *t.InstallmentNumber, *t.TotalInstallments)
	}
	category := ""
	if t.CategoryID != nil {
		category = *t.CategoryID
	}
	return []string{
		t.TransactionDate.Format("2006-01-02"),
		t.Type,
		t.Status,
		t.Description,
		t.Amount.StringFixed(2),
		t.CurrencyCode,
		category,
		installment,
	}
}

// ExportCSV writes the ledger as a CSV download.
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	rows, ok := h.ownerTransactions(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("transactions-%s.csv", time.Now().Format("20060102"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for i := range rows {
		_ = w.Write(exportRecord(&rows[i]))
	}
	w.Flush()
}

// ExportXLSX writes the ledger as an Excel workbook.
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	rows, ok := h.ownerTransactions(c)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Transactions"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for col, name := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, name)
	}
	for i := range rows {
		for col, val := range exportRecord(&rows[i]) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, val)
		}
	}

	filename := fmt.Sprintf("transactions-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := f.Write(c.Writer); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "export failed")
	}
}
