package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"rifas/internal/clock"
	"rifas/internal/config"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/metrics"
	"rifas/internal/model"
	"rifas/internal/service"
	"rifas/internal/testutil"
	"rifas/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Retryable bool            `json:"retryable"`
}

type testServer struct {
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	registry := prometheus.NewRegistry()
	h := NewHandler(service.Deps{
		DB:      db,
		Config:  config.Default(),
		Clock:   clock.NewFake(testutil.Epoch),
		Board:   cache.NewMemoryBoard(),
		Metrics: metrics.New(registry),
	})
	return &testServer{db: db, router: SetupRouter(h, nil, registry)}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	raffle, tickets := testutil.SeedRaffle(t, s.db, 10000, 5, model.RaffleStatusActive)

	w, env := s.do(t, http.MethodPost, "/api/v1/reservations", gin.H{
		"raffle_id":  raffle.ID,
		"ticket_ids": []int64{tickets[0].ID, tickets[1].ID, tickets[2].ID},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reservation service.Reservation
	require.NoError(t, json.Unmarshal(env.Data, &reservation))
	require.NotEmpty(t, reservation.Token)

	w, env = s.do(t, http.MethodPost, "/api/v1/reservations", gin.H{
		"raffle_id":  raffle.ID,
		"ticket_ids": []int64{tickets[2].ID},
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeTicketNotAvailable, env.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/bookings", gin.H{
		"raffle_id":   raffle.ID,
		"ticket_ids":  reservation.TicketIDs,
		"token":       reservation.Token,
		"amount_paid": 15000,
		"client": gin.H{
			"name":  "Ana Gómez",
			"phone": "3001234567",
		},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var booked struct {
		SaleID int64  `json:"sale_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &booked))
	assert.Equal(t, model.SaleStatusInstallment, booked.Status)
	salePath := "/api/v1/sales/" + strconv.FormatInt(booked.SaleID, 10)

	w, env = s.do(t, http.MethodPost, salePath+"/installments", gin.H{"amount": 20000}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, response.CodeInvalidAmount, env.Code)
	assert.Contains(t, env.Message, "exceeds remaining balance")

	w, env = s.do(t, http.MethodPost, salePath+"/installments", gin.H{"amount": 15000, "actor_id": 9}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sale model.Sale
	require.NoError(t, json.Unmarshal(env.Data, &sale))
	assert.Equal(t, model.SaleStatusPaid, sale.Status)

	w, env = s.do(t, http.MethodPost, salePath+"/installments", gin.H{"amount": 1}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeAlreadySettled, env.Code)

	w, env = s.do(t, http.MethodGet, salePath+"/summary", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary service.FinancialSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, int64(30000), summary.AmountPaid)
	assert.Equal(t, int64(0), summary.Balance)
	assert.Len(t, summary.Tickets, 3)

	w, env = s.do(t, http.MethodGet, "/api/v1/raffles/"+strconv.FormatInt(raffle.ID, 10)+"/board", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board struct {
		Tickets []model.BoardTicket `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board.Tickets, 5)
	assert.False(t, board.Tickets[0].Available)
	assert.True(t, board.Tickets[4].Available)
}

func TestBookingWithWrongTokenOverHTTP(t *testing.T) {
	s := newTestServer(t)
	raffle, tickets := testutil.SeedRaffle(t, s.db, 10000, 2, model.RaffleStatusActive)

	w, _ := s.do(t, http.MethodPost, "/api/v1/reservations", gin.H{
		"raffle_id":  raffle.ID,
		"ticket_ids": []int64{tickets[0].ID},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/v1/bookings", gin.H{
		"raffle_id":  raffle.ID,
		"ticket_ids": []int64{tickets[0].ID},
		"token":      "forged",
		"client":     gin.H{"name": "Ana", "phone": "3001234567"},
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeReservationInvalid, env.Code)
	assert.Contains(t, env.Message, "token mismatch")
	assert.False(t, env.Retryable)
}

func TestCancelReservationOverHTTP(t *testing.T) {
	s := newTestServer(t)
	raffle, tickets := testutil.SeedRaffle(t, s.db, 10000, 2, model.RaffleStatusActive)

	_, env := s.do(t, http.MethodPost, "/api/v1/reservations", gin.H{
		"raffle_id":  raffle.ID,
		"ticket_ids": []int64{tickets[0].ID},
	}, nil)
	var reservation service.Reservation
	require.NoError(t, json.Unmarshal(env.Data, &reservation))
	path := "/api/v1/reservations/" + strconv.FormatInt(tickets[0].ID, 10)

	w, _ := s.do(t, http.MethodPost, path+"/validate", gin.H{"token": reservation.Token}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, nil, map[string]string{tokenHeader: reservation.Token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TicketStatusAvailable, testutil.ReloadTicket(t, s.db, tickets[0].ID).Status)

	w, env = s.do(t, http.MethodPost, path+"/validate", gin.H{"token": reservation.Token}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeStateConflict, env.Code)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/reservations", gin.H{"raffle_id": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeParamError, env.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/sales/abc/summary", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/sales/77/summary", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeNotFound, env.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	raffle, tickets := testutil.SeedRaffle(t, s.db, 10000, 1, model.RaffleStatusActive)
	s.do(t, http.MethodPost, "/api/v1/reservations", gin.H{
		"raffle_id":  raffle.ID,
		"ticket_ids": []int64{tickets[0].ID},
	}, nil)

	w, _ := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rifas_reservations_total{result="ok"} 1`)
}
