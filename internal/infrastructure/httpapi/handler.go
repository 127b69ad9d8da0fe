package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/application/checkout"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/application/reconcile"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/payment"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/product"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/stock"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/transaction"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/wompi"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/pkg/logging"
)

const headerRequestID = "X-Request-ID"

type Handler struct {
	checkout   *checkout.Service
	reconciler *reconcile.Service
	catalog    product.Catalog
	ledger     stock.Ledger
	log        *zap.Logger
	metrics    *Metrics
}

func NewHandler(
	checkoutSvc *checkout.Service,
	reconciler *reconcile.Service,
	catalog product.Catalog,
	ledger stock.Ledger,
	logger *zap.Logger,
	metrics *Metrics,
) *Handler {
	return &Handler{
		checkout:   checkoutSvc,
		reconciler: reconciler,
		catalog:    catalog,
		ledger:     ledger,
		log:        logger.With(zap.String("component", "http_server")),
		metrics:    metrics,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.handle(mux, "POST /v1/transactions", h.handleCreateTransaction)
	h.handle(mux, "GET /v1/transactions/{id}/status", h.handleTransactionStatus)
	h.handle(mux, "POST /v1/transactions/webhook", h.handleWebhook)
	h.handle(mux, "GET /v1/products", h.handleListProducts)
	h.handle(mux, "POST /v1/stock/movements", h.handleApplyMovement)
	h.handle(mux, "GET /v1/stock/movements", h.handleListMovements)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

func (h *Handler) handle(mux *http.ServeMux, route string, handler http.HandlerFunc) {
	mux.Handle(route, h.withTrace(route, h.withRequestLogger(h.withMetrics(route, handler))))
}

type createTransactionRequest struct {
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
	CustomerEmail string `json:"customerEmail"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	CardNumber    string `json:"cardNumber,omitempty"`
	CardHolder    string `json:"cardHolder,omitempty"`
	ExpiryDate    string `json:"expiryDate,omitempty"`
	CVV           string `json:"cvv,omitempty"`
}

type createTransactionData struct {
	TransactionID string `json:"transactionId"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	ProductName   string `json:"productName"`
	Quantity      int    `json:"quantity"`
	StatusURL     string `json:"statusUrl"`
}

func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := checkout.Input{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		CustomerEmail: req.CustomerEmail,
	}
	if req.CardNumber != "" {
		month, year, err := payment.ParseExpiry(req.ExpiryDate)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid expiry date, expected MM/YY or MMYY")
			return
		}
		input.Card = &payment.Card{
			Number:      req.CardNumber,
			Holder:      req.CardHolder,
			ExpiryMonth: month,
			ExpiryYear:  year,
			CVV:         req.CVV,
		}
	}

	result, err := h.checkout.Run(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "transaction created", createTransactionData{
		TransactionID: result.TransactionID,
		Reference:     result.Reference,
		Status:        string(result.Status),
		Amount:        transaction.MajorUnits(result.Amount),
		ProductName:   result.ProductName,
		Quantity:      result.Quantity,
		StatusURL:     "/v1/transactions/" + result.TransactionID + "/status",
	})
}

type transactionStatusData struct {
	TransactionID string `json:"transactionId"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	ProductName   string `json:"productName"`
	Quantity      int    `json:"quantity"`
	Amount        int64  `json:"amount"`
	Subtotal      int64  `json:"subtotal"`
	BaseFee       int64  `json:"baseFee"`
	DeliveryFee   int64  `json:"deliveryFee"`
	CustomerEmail string `json:"customerEmail"`
	IsPending     bool   `json:"isPending"`
	IsCompleted   bool   `json:"isCompleted"`
	CanRetry      bool   `json:"canRetry"`
}

func (h *Handler) handleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	t, err := h.checkout.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	// Display amounts are re-derived from the persisted total, in major units.
	quote := transaction.QuoteFromTotal(t.Amount)
	writeSuccess(w, http.StatusOK, "transaction retrieved", transactionStatusData{
		TransactionID: t.ID,
		Reference:     t.Reference,
		Status:        string(t.Status),
		ProductName:   t.ProductName,
		Quantity:      t.Quantity,
		Amount:        transaction.MajorUnits(quote.Total),
		Subtotal:      transaction.MajorUnits(quote.Subtotal),
		BaseFee:       transaction.MajorUnits(quote.BaseFee),
		DeliveryFee:   transaction.MajorUnits(quote.DeliveryFee),
		CustomerEmail: t.CustomerEmail,
		IsPending:     t.Status == transaction.StatusPending,
		IsCompleted:   t.Status.Terminal(),
		CanRetry:      t.Status == transaction.StatusDeclined,
	})
}

type webhookResponse struct {
	Success   bool   `json:"success"`
	Processed bool   `json:"processed"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// handleWebhook always answers 200: the processor does not retry after a 200
// and must never be tricked into retrying by a transient local failure.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var e wompi.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusOK, webhookResponse{
			Success:   false,
			Processed: false,
			Message:   "malformed payload",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	outcome := h.reconciler.Handle(r.Context(), e)
	writeJSON(w, http.StatusOK, webhookResponse{
		Success:   true,
		Processed: outcome.Processed,
		Message:   outcome.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type productData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	SKU    string `json:"sku"`
	Price  int64  `json:"price"`
	Stock  int    `json:"stock"`
	Active bool   `json:"active"`
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]productData, 0, len(products))
	for _, p := range products {
		out = append(out, productData{
			ID:     p.ID,
			Name:   p.Name,
			SKU:    p.SKU,
			Price:  p.Price,
			Stock:  p.Stock,
			Active: p.Active,
		})
	}
	writeSuccess(w, http.StatusOK, "products retrieved", out)
}

type applyMovementRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Type      string `json:"type"`
	Reference string `json:"reference,omitempty"`
}

type movementData struct {
	ID            string `json:"id"`
	ProductID     string `json:"productId"`
	TransactionID string `json:"transactionId,omitempty"`
	Quantity      int    `json:"quantity"`
	Type          string `json:"type"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	Reference     string `json:"reference,omitempty"`
}

func (h *Handler) handleApplyMovement(w http.ResponseWriter, r *http.Request) {
	var req applyMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.ledger.ApplyMovement(r.Context(), stock.Movement{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Type:      stock.MovementType(req.Type),
		Reference: req.Reference,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "movement applied", toMovementData(m))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	movements, err := h.ledger.ListMovements(r.Context(), r.URL.Query().Get("productId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]movementData, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementData(m))
	}
	writeSuccess(w, http.StatusOK, "movements retrieved", out)
}

func toMovementData(m *stock.Movement) movementData {
	return movementData{
		ID:            m.ID,
		ProductID:     m.ProductID,
		TransactionID: m.TransactionID,
		Quantity:      m.Quantity,
		Type:          string(m.Type),
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		Reference:     m.Reference,
	}
}

// withRequestLogger injects a request-scoped logger so application code logs
// carry the request id.
func (h *Handler) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		logger := h.log.With(zap.String("request_id", requestID))
		ctx := logging.ContextWithLogger(r.Context(), logger)

		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))

		logger.Info("http_access",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", lrw.status),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type envelope struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message, StatusCode: status})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message, StatusCode: status})
}

// writeDomainError maps domain failures to the client contract. Raw gateway
// and storage error text never reaches the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, transaction.ErrInvalidQuantity),
		errors.Is(err, transaction.ErrInvalidAmount),
		errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, stock.ErrInvalidType),
		errors.Is(err, product.ErrInactive):
		writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		writeFailure(w, http.StatusBadRequest, "insufficient stock")
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, transaction.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "not found")
	case errors.Is(err, transaction.ErrConflict),
		errors.Is(err, transaction.ErrTerminalState):
		writeFailure(w, http.StatusConflict, "conflict")
	case payment.IsGatewayError(err):
		writeFailure(w, http.StatusBadGateway, "payment gateway error")
	default:
		logging.FromContext(r.Context()).Error("internal_error", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "internal error")
	}
}
