package handler

import (
	"net/http"
	"strconv"
	"time"

	"rifas/internal/service"
	"rifas/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const tokenHeader = "X-Reservation-Token"

// Handler 统一处理器，只做参数绑定与错误映射，业务都在 service 层
type Handler struct {
	reservations *service.ReservationService
	bookings     *service.BookingService
	sales        *service.SaleService
	raffles      *service.RaffleService
	log          *zap.Logger
}

// NewHandler 创建处理器实例
func NewHandler(deps service.Deps) *Handler {
	sales := service.NewSaleService(deps)
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		reservations: service.NewReservationService(deps),
		bookings:     service.NewBookingService(deps, sales),
		sales:        sales,
		raffles:      service.NewRaffleService(deps),
		log:          log.With(zap.String("component", "http")),
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, _ := response.Classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.FromError(c, err)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// ============================================================
// 票板与票号
// ============================================================

// GetBoard 公开票板
// GET /api/v1/raffles/:id/board
func (h *Handler) GetBoard(c *gin.Context) {
	raffleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	board, err := h.raffles.Board(c.Request.Context(), raffleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"raffle_id": raffleID,
		"tickets":   board,
	})
}

// GenerateTickets 生成票号
// POST /api/v1/raffles/:id/tickets
func (h *Handler) GenerateTickets(c *gin.Context) {
	raffleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	created, err := h.raffles.GenerateTickets(c.Request.Context(), raffleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"raffle_id": raffleID,
		"created":   created,
	})
}

// ============================================================
// 预订
// ============================================================

// ReserveRequest 预订请求
type ReserveRequest struct {
	RaffleID   int64   `json:"raffle_id" binding:"required"`
	TicketIDs  []int64 `json:"ticket_ids" binding:"required,min=1"`
	TTLMinutes int     `json:"ttl_minutes" binding:"omitempty,min=1,max=1440"`
}

// Reserve 预订一组票，返回的 token 下单时原样提交
// POST /api/v1/reservations
func (h *Handler) Reserve(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	ttl := time.Duration(req.TTLMinutes) * time.Minute
	res, err := h.reservations.ReserveTickets(c.Request.Context(), req.RaffleID, req.TicketIDs, ttl)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// ValidateReservation 校验预订是否仍然有效
// POST /api/v1/reservations/:ticket_id/validate
func (h *Handler) ValidateReservation(c *gin.Context) {
	ticketID, ok := paramID(c, "ticket_id")
	if !ok {
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	if err := h.reservations.ValidateReservation(c.Request.Context(), ticketID, req.Token); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"ticket_id": ticketID, "valid": true})
}

// CancelReservation 放弃预订，token 通过请求头提交
// DELETE /api/v1/reservations/:ticket_id
func (h *Handler) CancelReservation(c *gin.Context) {
	ticketID, ok := paramID(c, "ticket_id")
	if !ok {
		return
	}
	token := c.GetHeader(tokenHeader)
	if token == "" {
		response.ParamError(c, tokenHeader+" header is required")
		return
	}
	if err := h.reservations.CancelReservation(c.Request.Context(), ticketID, token); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"ticket_id": ticketID, "released": true})
}

// ============================================================
// 下单与付款
// ============================================================

type ClientRequest struct {
	Name       string `json:"name" binding:"required,max=128"`
	Phone      string `json:"phone" binding:"max=32"`
	Email      string `json:"email" binding:"omitempty,email,max=128"`
	NationalID string `json:"national_id" binding:"max=32"`
	Address    string `json:"address" binding:"max=256"`
}

// BookRequest 下单请求
type BookRequest struct {
	RaffleID        int64         `json:"raffle_id" binding:"required"`
	TicketIDs       []int64       `json:"ticket_ids" binding:"required,min=1"`
	Token           string        `json:"token" binding:"required"`
	Client          ClientRequest `json:"client"`
	AmountPaid      int64         `json:"amount_paid"`
	PaymentMethodID *int64        `json:"payment_method_id"`
	Online          *bool         `json:"online"`
}

// Book 公开购票
// POST /api/v1/bookings
func (h *Handler) Book(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	online := true
	if req.Online != nil {
		online = *req.Online
	}
	result, err := h.bookings.Book(c.Request.Context(), &service.BookingRequest{
		RaffleID:  req.RaffleID,
		TicketIDs: req.TicketIDs,
		Token:     req.Token,
		Client: service.ClientInfo{
			Name:       req.Client.Name,
			Phone:      req.Client.Phone,
			Email:      req.Client.Email,
			NationalID: req.Client.NationalID,
			Address:    req.Client.Address,
		},
		AmountPaid:      req.AmountPaid,
		PaymentMethodID: req.PaymentMethodID,
		Online:          online,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"sale_id":      result.Sale.ID,
		"sale_no":      result.Sale.SaleNo,
		"status":       result.Sale.Status,
		"amount_total": result.Sale.AmountTotal,
		"amount_paid":  result.Sale.AmountPaid,
		"client_id":    result.Client.ID,
		"ticket_ids":   result.TicketIDs,
		"receipt_no":   result.ReceiptNo,
		"hold_until":   result.HoldUntil,
	})
}

// InstallmentBody 登记付款请求
type InstallmentBody struct {
	Amount          int64  `json:"amount"`
	PaymentMethodID *int64 `json:"payment_method_id"`
	ActorID         *int64 `json:"actor_id"`
	Note            string `json:"note" binding:"max=512"`
}

// RecordInstallment 登记一笔付款
// POST /api/v1/sales/:id/installments
func (h *Handler) RecordInstallment(c *gin.Context) {
	saleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req InstallmentBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	sale, err := h.sales.RecordInstallment(c.Request.Context(), &service.InstallmentRequest{
		SaleID:          saleID,
		Amount:          req.Amount,
		PaymentMethodID: req.PaymentMethodID,
		ActorID:         req.ActorID,
		Note:            req.Note,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, sale)
}

// GetSummary 销售财务汇总
// GET /api/v1/sales/:id/summary
func (h *Handler) GetSummary(c *gin.Context) {
	saleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	summary, err := h.sales.GetFinancialSummary(c.Request.Context(), saleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, summary)
}
