package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/glkeru/amperequest/internal/services"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

type Handler struct {
	router   *mux.Router
	platform *services.Platform
	tokens   TokenVerifier
	journal  interf.JournalStorage
	logger   *zap.Logger
	now      func() time.Time
}

// journal может быть nil: история событий тогда недоступна
func NewHandler(platform *services.Platform, tokens TokenVerifier, journal interf.JournalStorage, logger *zap.Logger) *Handler {
	router := mux.NewRouter()
	h := &Handler{router, platform, tokens, journal, logger, time.Now}
	router.Use(MiddlewareMetrics)

	// чтение
	router.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)
	router.HandleFunc("/users/{id}/balance", h.GetBalance).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	router.HandleFunc("/marketplace", h.GetMarketplace).Methods(http.MethodGet)
	router.HandleFunc("/listings/{id}", h.GetListing).Methods(http.MethodGet)
	router.HandleFunc("/vouchers/{id}", h.GetVoucher).Methods(http.MethodGet)
	router.HandleFunc("/vouchers/{id}/redemption", h.GetRedemption).Methods(http.MethodGet)
	router.HandleFunc("/plots/{id}", h.GetPlot).Methods(http.MethodGet)
	router.HandleFunc("/funds/{id}", h.GetFunds).Methods(http.MethodGet)
	router.HandleFunc("/leaderboard", h.Leaderboard).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.NetworkStats).Methods(http.MethodGet)
	router.HandleFunc("/events/{id}", h.GetEvents).Methods(http.MethodGet)

	// операции от имени вызывающего
	private := router.NewRoute().Subrouter()
	private.Use(h.authenticate)
	private.HandleFunc("/users", h.InitUser).Methods(http.MethodPost)
	private.HandleFunc("/sessions", h.StartSession).Methods(http.MethodPost)
	private.HandleFunc("/sessions/{id}/energy", h.UpdateSession).Methods(http.MethodPost)
	private.HandleFunc("/sessions/{id}/end", h.EndSession).Methods(http.MethodPost)
	private.HandleFunc("/points/credit", h.CreditPoints).Methods(http.MethodPost)
	private.HandleFunc("/points/debit", h.DebitPoints).Methods(http.MethodPost)
	private.HandleFunc("/vouchers/{id}/redeem", h.RedeemVoucher).Methods(http.MethodPost)
	private.HandleFunc("/marketplace", h.InitMarketplace).Methods(http.MethodPost)
	private.HandleFunc("/marketplace/purchase", h.BuyFromMarketplace).Methods(http.MethodPost)
	private.HandleFunc("/listings", h.CreateListing).Methods(http.MethodPost)
	private.HandleFunc("/listings/{id}/buy", h.BuyFromListing).Methods(http.MethodPost)
	private.HandleFunc("/listings/{id}", h.CancelListing).Methods(http.MethodDelete)
	private.HandleFunc("/plots", h.PurchasePlot).Methods(http.MethodPost)
	private.HandleFunc("/plots/{id}/charger", h.InstallCharger).Methods(http.MethodPost)
	private.HandleFunc("/plots/{id}/upgrade", h.UpgradeCharger).Methods(http.MethodPost)
	private.HandleFunc("/plots/{id}/sessions", h.RecordSession).Methods(http.MethodPost)
	private.HandleFunc("/plots/{id}/withdraw", h.WithdrawRevenue).Methods(http.MethodPost)
	private.HandleFunc("/game-engine", h.InitGameEngine).Methods(http.MethodPost)
	private.HandleFunc("/game-engine/sessions", h.RecordVirtualSession).Methods(http.MethodPost)
	private.HandleFunc("/funds/deposit", h.Deposit).Methods(http.MethodPost)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	j, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Marshal", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(j)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{err.Error()})
}

func (h *Handler) decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("body is not correct: %v: %w", err, model.ErrInvalidInput)
	}
	return nil
}

func (h *Handler) timestamp(ts int64) int64 {
	if ts == 0 {
		return h.now().Unix()
	}
	return ts
}

func pathID(r *http.Request) (identity.Identity, error) {
	id, err := identity.Parse(mux.Vars(r)["id"])
	if err != nil {
		return identity.Nil, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	return id, nil
}

// участок: номер или удостоверение
func plotRef(r *http.Request) (identity.Identity, error) {
	raw := mux.Vars(r)["id"]
	if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
		return identity.Plot(uint32(n)), nil
	}
	return pathID(r)
}

func caller(r *http.Request) identity.Identity {
	c, _ := Caller(r.Context())
	return c
}

type sessionRequest struct {
	ChargerCode    string `json:"charger_code"`
	ChargerPowerKW uint32 `json:"charger_power_kw"`
	PricePerKWh    uint64 `json:"price_per_kwh"`
	Timestamp      int64  `json:"timestamp"`
	Nonce          uint32 `json:"nonce"`
}

type sessionResponse struct {
	ID      identity.Identity     `json:"id"`
	Session model.ChargingSession `json:"session"`
}

type energyRequest struct {
	EnergyWh uint64 `json:"energy_wh"`
}

type endSessionResponse struct {
	Session model.ChargingSession `json:"session"`
	Account model.UserAccount     `json:"account"`
}

type pointsRequest struct {
	User   identity.Identity `json:"user"`
	Amount uint64            `json:"amount"`
}

type listingRequest struct {
	PointsAmount  uint64 `json:"points_amount"`
	PricePerPoint uint64 `json:"price_per_point"`
	Timestamp     int64  `json:"timestamp"`
}

type listingResponse struct {
	ID      identity.Identity   `json:"id"`
	Listing model.PointsListing `json:"listing"`
}

type purchaseRequest struct {
	PointsAmount uint64 `json:"points_amount"`
	Timestamp    int64  `json:"timestamp"`
}

type voucherResponse struct {
	ID      identity.Identity   `json:"id"`
	Voucher model.PointsVoucher `json:"voucher"`
}

type plotRequest struct {
	PlotID    uint32 `json:"plot_id"`
	Latitude  int32  `json:"latitude"`
	Longitude int32  `json:"longitude"`
	Price     uint64 `json:"price"`
}

type plotResponse struct {
	ID   identity.Identity `json:"id"`
	Plot model.VirtualPlot `json:"plot"`
}

type chargerRequest struct {
	PowerKW uint32 `json:"power_kw"`
	Cost    uint64 `json:"cost"`
}

type plotSessionRequest struct {
	Payer   identity.Identity `json:"payer"`
	Revenue uint64            `json:"revenue"`
}

type virtualSessionRequest struct {
	Plot    identity.Identity `json:"plot"`
	Revenue uint64            `json:"revenue"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type depositRequest struct {
	Owner  identity.Identity `json:"owner"`
	Amount uint64            `json:"amount"`
}

type fundsResponse struct {
	Owner  identity.Identity `json:"owner"`
	Amount uint64            `json:"amount"`
}

// Пользователи и сессии

func (h *Handler) InitUser(w http.ResponseWriter, r *http.Request) {
	acc, err := h.platform.Ledger.InitUser(r.Context(), caller(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, acc)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	acc, err := h.platform.Ledger.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.platform.Ledger.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, session, err := h.platform.Ledger.StartSession(r.Context(), caller(r),
		req.ChargerCode, req.ChargerPowerKW, req.PricePerKWh, h.timestamp(req.Timestamp), req.Nonce)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sessionResponse{id, session})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.platform.Ledger.GetSession(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{id, session})
}

func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req energyRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.platform.Ledger.UpdateSession(r.Context(), caller(r), id, req.EnergyWh)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{id, session})
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	session, acc, err := h.platform.Ledger.EndSession(r.Context(), caller(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, endSessionResponse{session, acc})
}

// Привилегированные операции: вызывающий проверяется по списку доверенных

func (h *Handler) CreditPoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.platform.Ledger.CreditPoints(r.Context(), req.User, req.Amount, caller(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DebitPoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.platform.Ledger.DebitPoints(r.Context(), req.User, req.Amount, caller(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RecordSession(w http.ResponseWriter, r *http.Request) {
	id, err := plotRef(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req plotSessionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.platform.Plots.RecordSession(r.Context(), id, req.Payer, req.Revenue, caller(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ваучеры и маркетплейс

func (h *Handler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	redemption, err := h.platform.Ledger.RedeemVoucher(r.Context(), caller(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, redemption)
}

func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	voucher, err := h.platform.Market.GetVoucher(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, voucherResponse{id, voucher})
}

func (h *Handler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	redemption, err := h.platform.Ledger.GetRedemption(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, redemption)
}

func (h *Handler) InitMarketplace(w http.ResponseWriter, r *http.Request) {
	market, err := h.platform.Market.InitMarketplace(r.Context(), caller(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, market)
}

func (h *Handler) GetMarketplace(w http.ResponseWriter, r *http.Request) {
	market, err := h.platform.Market.GetMarketplace(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, market)
}

func (h *Handler) BuyFromMarketplace(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, voucher, err := h.platform.Market.BuyFromMarketplace(r.Context(), caller(r), req.PointsAmount, h.timestamp(req.Timestamp))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, voucherResponse{id, voucher})
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, listing, err := h.platform.Market.CreateListing(r.Context(), caller(r), req.PointsAmount, req.PricePerPoint, h.timestamp(req.Timestamp))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, listingResponse{id, listing})
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	listing, err := h.platform.Market.GetListing(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listingResponse{id, listing})
}

func (h *Handler) BuyFromListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req purchaseRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, voucher, err := h.platform.Market.BuyFromListing(r.Context(), caller(r), listingID, h.timestamp(req.Timestamp))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, voucherResponse{id, voucher})
}

func (h *Handler) CancelListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.platform.Market.CancelListing(r.Context(), caller(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Участки

func (h *Handler) PurchasePlot(w http.ResponseWriter, r *http.Request) {
	var req plotRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, plot, err := h.platform.Plots.PurchasePlot(r.Context(), caller(r), req.PlotID, req.Latitude, req.Longitude, req.Price)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, plotResponse{id, plot})
}

func (h *Handler) GetPlot(w http.ResponseWriter, r *http.Request) {
	id, err := plotRef(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	plot, err := h.platform.Plots.GetPlot(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plotResponse{id, plot})
}

func (h *Handler) InstallCharger(w http.ResponseWriter, r *http.Request) {
	h.charger(w, r, h.platform.Plots.InstallCharger)
}

func (h *Handler) UpgradeCharger(w http.ResponseWriter, r *http.Request) {
	h.charger(w, r, h.platform.Plots.UpgradeCharger)
}

func (h *Handler) charger(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, owner, plot identity.Identity, powerKW uint32, cost uint64) (model.VirtualPlot, error)) {
	id, err := plotRef(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req chargerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	plot, err := op(r.Context(), caller(r), id, req.PowerKW, req.Cost)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plotResponse{id, plot})
}

func (h *Handler) WithdrawRevenue(w http.ResponseWriter, r *http.Request) {
	id, err := plotRef(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	plot, err := h.platform.Plots.WithdrawRevenue(r.Context(), caller(r), id, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plotResponse{id, plot})
}

// Игровой движок

func (h *Handler) InitGameEngine(w http.ResponseWriter, r *http.Request) {
	rec, err := h.platform.Engine.Initialize(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

// Виртуальная сессия оплачивается вызывающим
func (h *Handler) RecordVirtualSession(w http.ResponseWriter, r *http.Request) {
	var req virtualSessionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.platform.Engine.RecordVirtualSession(r.Context(), caller(r), req.Plot, req.Revenue); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Денежные балансы

// Зачисление пополнения кассой
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := h.platform.Value.Deposit(r.Context(), req.Owner, req.Amount, caller(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fundsResponse{req.Owner, amount})
}

func (h *Handler) GetFunds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := h.platform.Value.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fundsResponse{id, amount})
}

// Отчеты

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, fmt.Errorf("limit %q: %w", raw, model.ErrInvalidInput))
			return
		}
		limit = n
	}
	users, err := h.platform.Analytics.Leaderboard(r.Context(), r.URL.Query().Get("by"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) NetworkStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.platform.Analytics.NetworkStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, "Journal is not configured", http.StatusNotFound)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.ParseInt(raw, 10, 64); err != nil {
			h.writeError(w, r, fmt.Errorf("limit %q: %w", raw, model.ErrInvalidInput))
			return
		}
	}
	events, err := h.journal.GetEvents(r.Context(), id.String(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}
