package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/internal/model"
	"souq-crypto-pay/internal/repository"
	"souq-crypto-pay/internal/service"
	"souq-crypto-pay/pkg/logger"
)

// orderPayload 对外的订单视图
type orderPayload struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Crypto      string `json:"crypto"`
	AdminWallet string `json:"adminWallet"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

// errorResponse 支付接口错误响应
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// apiResponse 管理接口统一响应
type apiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// listData 管理接口列表数据
type listData struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Orders   []model.Order `json:"orders"`
}

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	orderService *service.OrderService
	poller       *service.PollerService
	orderRepo    *repository.OrderRepository
}

// NewHTTPServer 创建并返回 HTTP 服务器
func NewHTTPServer(
	orderService *service.OrderService,
	poller *service.PollerService,
	orderRepo *repository.OrderRepository,
	port int,
) *http.Server {
	handler := &HTTPHandler{
		orderService: orderService,
		poller:       poller,
		orderRepo:    orderRepo,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/create-order", handler.handleCreateOrder)
	mux.HandleFunc("/api/check-payment", handler.handleCheckPayment)
	mux.HandleFunc("/api/check-pending-payments", handler.handleCheckPending)
	mux.HandleFunc("/api/orders", handler.handleListOrders)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}

// handleCreateOrder 创建订单
func (h *HTTPHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if done := h.preflight(w, r, http.MethodPost); done {
		return
	}

	var req struct {
		Amount        json.Number `json:"amount"`
		Crypto        string      `json:"crypto"`
		CustomerEmail string      `json:"customerEmail"`
		CustomerName  string      `json:"customerName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "请求体不是合法 JSON"})
		return
	}

	if req.Amount == "" || req.Crypto == "" || req.CustomerEmail == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "amount、crypto、customerEmail 为必填字段"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "amount 不是合法数字"})
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), service.CreateOrderInput{
		Amount:        amount,
		Crypto:        req.Crypto,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"order":   toOrderPayload(order),
	})
}

// handleCheckPayment 提交交易哈希并立即核验
func (h *HTTPHandler) handleCheckPayment(w http.ResponseWriter, r *http.Request) {
	if done := h.preflight(w, r, http.MethodPost); done {
		return
	}

	var req struct {
		OrderID string `json:"orderId"`
		Crypto  string `json:"crypto"`
		TxHash  string `json:"txHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "请求体不是合法 JSON"})
		return
	}

	if req.OrderID == "" || req.Crypto == "" || req.TxHash == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "orderId、crypto、txHash 为必填字段"})
		return
	}

	order, err := h.orderService.CheckPayment(r.Context(), req.OrderID, req.Crypto, req.TxHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  order.Status,
		"txHash":  order.TxHash,
		"orderId": order.ID,
	})
}

// handleCheckPending 手动触发一轮待支付订单扫描
func (h *HTTPHandler) handleCheckPending(w http.ResponseWriter, r *http.Request) {
	if done := h.preflight(w, r, http.MethodPost); done {
		return
	}

	summary, err := h.poller.RunCycle(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"processed": summary.Processed,
		"results":   summary.Results,
	})
}

// handleListOrders 管理端订单列表
func (h *HTTPHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if done := h.preflight(w, r, http.MethodGet); done {
		return
	}

	query := r.URL.Query()

	var page, pageSize int
	fmt.Sscanf(query.Get("page"), "%d", &page)
	fmt.Sscanf(query.Get("page_size"), "%d", &pageSize)

	filter := repository.OrderFilter{
		Crypto:        query.Get("crypto"),
		Status:        query.Get("status"),
		CustomerEmail: query.Get("customer_email"),
		TxHash:        query.Get("tx_hash"),
		Page:          page,
		PageSize:      pageSize,
	}

	orders, total, err := h.orderRepo.ListOrders(filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Code: -1, Message: "查询失败"})
		return
	}

	// 规范化分页参数（与 Repository 保持一致）
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Code:    0,
		Message: "success",
		Data: listData{
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
			Orders:   orders,
		},
	})
}

// preflight 处理 CORS 与方法校验，返回 true 表示请求已被响应
func (h *HTTPHandler) preflight(w http.ResponseWriter, r *http.Request, method string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}

	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "仅支持 " + method + " 请求"})
		return true
	}
	return false
}

// writeError 把业务错误映射为 HTTP 状态码，500 不向外泄露内部细节
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrUnsupportedCurrency):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apperr.ErrUnsupportedCurrency.Error()})
	case errors.Is(err, apperr.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: apperr.ErrOrderNotFound.Error()})
	case errors.Is(err, apperr.ErrTxNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: apperr.ErrTxNotFound.Error()})
	case errors.Is(err, apperr.ErrCycleRunning):
		writeJSON(w, http.StatusConflict, errorResponse{Error: apperr.ErrCycleRunning.Error()})
	default:
		logger.Error(r.Context(), "请求处理失败", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "内部错误"})
	}
}

// toOrderPayload 将 model.Order 转为响应结构
func toOrderPayload(o *model.Order) orderPayload {
	return orderPayload{
		ID:          o.ID,
		Amount:      o.Amount.String(),
		Crypto:      o.Crypto,
		AdminWallet: o.AdminWallet,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// writeJSON 写入 JSON 响应
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
