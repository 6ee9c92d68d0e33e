package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"walletcore/internal/analysis"
	"walletcore/internal/budget"
	"walletcore/internal/ledger"
	"walletcore/internal/models"
	"walletcore/internal/series"
	"walletcore/internal/store"
	"walletcore/internal/syncer"
	"walletcore/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// LocalAPI is the device-side HTTP surface the UI shell talks to. It
// binds to loopback only; the store behind it is already scoped to the
// paired owner, so there is no session layer.
type LocalAPI struct {
	Store    *store.Store
	Ledger   *ledger.Service
	Analyzer *analysis.Analyzer
	Engine   *syncer.Engine
	Budgets  *budget.Checker
	// RecurrenceHorizon caps indefinite series generation when the
	// request does not choose a horizon of its own.
	RecurrenceHorizon int
}

func (api *LocalAPI) Register(r *gin.Engine) {
	g := r.Group("/api")
	g.POST("/accounts", api.CreateAccount)
	g.POST("/accounts/:id/adjust", api.AdjustAccount)
	g.POST("/cards", api.CreateCard)
	g.POST("/cards/:id/pay", api.PayInvoice)
	g.POST("/cards/:id/adjust", api.AdjustCard)
	g.GET("/cards/:id/invoice", api.CardInvoice)
	g.POST("/transactions", api.CreateTransaction)
	g.DELETE("/transactions/:id", api.DeleteTransaction)
	g.POST("/transfers", api.CreateTransfer)
	g.GET("/reports/:period", api.Report)
	g.GET("/budgets/status", api.BudgetStatus)
	g.POST("/sync", api.TriggerSync)
}

func parseDate(s string) (time.Time, error) {
	if err := util.ValidateDate(s); err != nil {
		return time.Time{}, err
	}
	return time.Parse("2006-01-02", s)
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, err.Error())
	case errors.Is(err, store.ErrUnauthenticated):
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, err.Error())
	case errors.Is(err, ledger.ErrInvalid):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, err.Error())
	}
}

// syncSoon schedules a fire-and-forget sync after a local mutation.
func (api *LocalAPI) syncSoon() {
	if api.Engine != nil {
		api.Engine.TriggerAsync(context.Background())
	}
}

type accountReq struct {
	Name           string          `json:"name" binding:"required"`
	Type           string          `json:"type" binding:"required"`
	CurrencyCode   string          `json:"currency_code"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Color          string          `json:"color"`
	Icon           string          `json:"icon"`
}

func (api *LocalAPI) CreateAccount(c *gin.Context) {
	var req accountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	if req.InitialBalance.Sign() < 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "initial balance must not be negative")
		return
	}
	acc := models.Account{
		Name:           req.Name,
		Type:           req.Type,
		CurrencyCode:   req.CurrencyCode,
		InitialBalance: req.InitialBalance,
		CurrentBalance: req.InitialBalance,
		Color:          req.Color,
		Icon:           req.Icon,
	}
	if err := api.Store.Write(func(tx *store.Tx) error { return tx.Create(&acc) }); err != nil {
		fail(c, err)
		return
	}
	api.syncSoon()
	util.Success(c, util.Response{"account": acc})
}

type cardReq struct {
	Name        string          `json:"name" binding:"required"`
	Brand       string          `json:"brand"`
	ClosingDay  int             `json:"closing_day"`
	DueDay      int             `json:"due_day"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Color       string          `json:"color"`
}

func (api *LocalAPI) CreateCard(c *gin.Context) {
	var req cardReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	if err := util.ValidateDayOfMonth(req.ClosingDay); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	if err := util.ValidateDayOfMonth(req.DueDay); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	if err := util.ValidateAmount(req.CreditLimit); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	card := models.CreditCard{
		Name:        req.Name,
		Brand:       req.Brand,
		ClosingDay:  req.ClosingDay,
		DueDay:      req.DueDay,
		CreditLimit: req.CreditLimit,
		Color:       req.Color,
		IsActive:    true,
	}
	if err := api.Store.Write(func(tx *store.Tx) error { return tx.Create(&card) }); err != nil {
		fail(c, err)
		return
	}
	api.syncSoon()
	util.Success(c, util.Response{"card": card})
}

type transactionReq struct {
	Type         string          `json:"type" binding:"required"`
	Status       string          `json:"status"`
	Description  string          `json:"description"`
	Notes        string          `json:"notes"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	AccountID    *string         `json:"account_id"`
	CreditCardID *string         `json:"credit_card_id"`
	CategoryID   *string         `json:"category_id"`
	Date         string          `json:"date" binding:"required"`

	InstallmentCount int    `json:"installment_count"`
	InstallmentTotal bool   `json:"installment_total"`
	Frequency        string `json:"frequency"`
	RecurrenceCount  int    `json:"recurrence_count"`
	Indefinite       bool   `json:"indefinite"`
}

func (api *LocalAPI) CreateTransaction(c *gin.Context) {
	var req transactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	plan := series.Plan{}
	switch {
	case req.InstallmentCount > 0:
		plan.Installment = &series.Installment{Count: req.InstallmentCount, Total: req.InstallmentTotal}
	case req.Frequency != "":
		plan.Recurrence = &series.Recurrence{
			Frequency:  req.Frequency,
			Count:      req.RecurrenceCount,
			Indefinite: req.Indefinite,
		}
		if req.Indefinite {
			plan.Horizon = api.RecurrenceHorizon
		}
	}

	rows, err := api.Ledger.Create(models.Transaction{
		Type:            req.Type,
		Status:          req.Status,
		Description:     req.Description,
		Notes:           req.Notes,
		Amount:          req.Amount,
		CurrencyCode:    req.CurrencyCode,
		AccountID:       req.AccountID,
		CreditCardID:    req.CreditCardID,
		CategoryID:      req.CategoryID,
		TransactionDate: date,
	}, plan)
	if err != nil {
		fail(c, err)
		return
	}
	api.syncSoon()
	util.Success(c, util.Response{"transactions": rows})
}

func (api *LocalAPI) DeleteTransaction(c *gin.Context) {
	id := c.Param("id")
	var err error
	if c.Query("future") == "true" {
		err = api.Ledger.DeleteFromHere(id)
	} else {
		err = api.Ledger.Delete(id)
	}
	if err != nil {
		fail(c, err)
		return
	}
	api.syncSoon()
	util.Success(c, util.Response{"deleted": id})
}

type transferReq struct {
	FromAccountID string          `json:"from_account_id" binding:"required"`
	ToAccountID   string          `json:"to_account_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date" binding:"required"`
}

func (api *LocalAPI) CreateTransfer(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	txn, err := api.Ledger.Transfer(req.FromAccountID, req.ToAccountID, req.Amount, date)
	if err != nil {
		fail(c, err)
		return
	}
	api.syncSoon()
	util.Success(c, util.Response{"transfer": txn})
}

type payReq struct {
	AccountID string          `json:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date" binding:"required"`
}

func (api *LocalAPI) PayInvoice(c *gin.Context) {
	var req payReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	payment, err := api.Ledger.PayInvoice(c.Param("id"), req.AccountID, req.Amount, date)
	if err != nil {
		fail(c, err)
		return
	}
	api.syncSoon()
	util.Success(c, util.Response{"payment": payment})
}

type adjustReq struct {
	Target decimal.Decimal `json:"target"`
	Date   string          `json:"date" binding:"required"`
}

func (api *LocalAPI) AdjustAccount(c *gin.Context) {
	api.adjust(c, api.Ledger.AdjustAccountBalance)
}

func (api *LocalAPI) AdjustCard(c *gin.Context) {
	api.adjust(c, api.Ledger.AdjustCardBalance)
}

func (api *LocalAPI) adjust(c *gin.Context, op func(string, decimal.Decimal, time.Time) (*models.Transaction, error)) {
	var req adjustReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	adj, err := op(c.Param("id"), req.Target, date)
	if err != nil {
		fail(c, err)
		return
	}
	api.syncSoon()
	util.Success(c, util.Response{"adjustment": adj})
}

func (api *LocalAPI) CardInvoice(c *gin.Context) {
	ref := time.Now()
	if s := c.Query("ref"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		ref = parsed
	}
	report, err := api.Analyzer.CardInvoice(c.Param("id"), ref)
	if err != nil {
		fail(c, err)
		return
	}
	util.Success(c, util.Response{"invoice": report})
}

func (api *LocalAPI) Report(c *gin.Context) {
	ref := time.Now()
	if s := c.Query("ref"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		ref = parsed
	}
	report, err := api.Analyzer.Summarize(analysis.Period(c.Param("period")), ref, c.Query("currency"))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	util.Success(c, util.Response{"report": report})
}

func (api *LocalAPI) BudgetStatus(c *gin.Context) {
	statuses, err := api.Budgets.Check(time.Now())
	if err != nil {
		fail(c, err)
		return
	}
	util.Success(c, util.Response{"budgets": statuses})
}

func (api *LocalAPI) TriggerSync(c *gin.Context) {
	api.syncSoon()
	util.Success(c, util.Response{"status": "scheduled"})
}
