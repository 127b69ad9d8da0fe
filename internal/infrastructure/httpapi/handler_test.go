package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/application/checkout"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/application/reconcile"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/payment"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/product"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/id"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/memory"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/wompi"
)

const eventsSecret = "events-secret"

type stubGateway struct {
	status payment.Status
}

func (g *stubGateway) TokenizeCard(_ context.Context, _ payment.Card) (*payment.CardToken, error) {
	return &payment.CardToken{ID: "tok_1", Brand: "VISA", LastFour: "4242"}, nil
}

func (g *stubGateway) CreateAuthorization(_ context.Context, _ payment.AuthorizationRequest) (*payment.Authorization, error) {
	return &payment.Authorization{ExternalID: "wompi-1", Status: g.status}, nil
}

func (g *stubGateway) QueryStatus(_ context.Context, _ string) (payment.Status, error) {
	return g.status, nil
}

func newServer(t *testing.T, status payment.Status) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	err := store.SaveProduct(context.Background(), &product.Product{
		ID: "p1", Name: "Widget", SKU: "W-1", Price: 100_000, Stock: 10, Active: true,
	})
	if err != nil {
		t.Fatalf("SaveProduct: %v", err)
	}

	logger := zap.NewNop()
	checkoutSvc := checkout.NewService(store, store, &stubGateway{status: status}, id.NewUUIDGenerator(), nil, nil, nil)
	reconcileSvc := reconcile.NewService(store, nil, eventsSecret, nil)
	h := NewHandler(checkoutSvc, reconcileSvc, store, store, logger, nil)
	return h.Router(), store
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (envelope, map[string]any) {
	t.Helper()
	var env envelope
	var raw struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &raw)
	return env, raw.Data
}

func TestCreateTransaction(t *testing.T) {
	t.Parallel()
	router, store := newServer(t, payment.StatusApproved)

	rec := doJSON(t, router, http.MethodPost, "/v1/transactions", `{
		"productId": "p1",
		"quantity": 2,
		"customerEmail": "buyer@example.com",
		"cardNumber": "4242424242424242",
		"cardHolder": "JANE DOE",
		"expiryDate": "12/28",
		"cvv": "123"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	env, data := decodeEnvelope(t, rec)
	if !env.Success {
		t.Errorf("success = false: %s", env.Message)
	}
	if data["status"] != "APPROVED" {
		t.Errorf("status = %v, want APPROVED", data["status"])
	}
	// 2 * 100000 subtotal + 500 base + 800 delivery = 201300 minor = 2013 major.
	if data["amount"] != float64(2013) {
		t.Errorf("amount = %v, want 2013 major units", data["amount"])
	}
	if !strings.HasPrefix(data["statusUrl"].(string), "/v1/transactions/") {
		t.Errorf("statusUrl = %v", data["statusUrl"])
	}

	p, _ := store.FindProduct(context.Background(), "p1")
	if p.Stock != 8 {
		t.Errorf("stock = %d, want 8", p.Stock)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	t.Parallel()
	router, _ := newServer(t, payment.StatusApproved)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"unknown field", `{"productId":"p1","quantity":1,"customerEmail":"a@b.c","bogus":true}`, http.StatusBadRequest},
		{"missing product", `{"quantity":1,"customerEmail":"a@b.c"}`, http.StatusBadRequest},
		{"unknown product", `{"productId":"nope","quantity":1,"customerEmail":"a@b.c"}`, http.StatusNotFound},
		{"oversold", `{"productId":"p1","quantity":99,"customerEmail":"a@b.c"}`, http.StatusBadRequest},
		{"bad expiry", `{"productId":"p1","quantity":1,"customerEmail":"a@b.c","cardNumber":"4242424242424242","cardHolder":"J","expiryDate":"13-2","cvv":"123"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/v1/transactions", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			env, _ := decodeEnvelope(t, rec)
			if env.Success {
				t.Error("success must be false")
			}
		})
	}
}

func TestTransactionStatus(t *testing.T) {
	t.Parallel()
	router, _ := newServer(t, payment.StatusApproved)

	rec := doJSON(t, router, http.MethodPost, "/v1/transactions",
		`{"productId":"p1","quantity":1,"customerEmail":"buyer@example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	_, data := decodeEnvelope(t, rec)
	txID := data["transactionId"].(string)

	rec = doJSON(t, router, http.MethodGet, "/v1/transactions/"+txID+"/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	_, data = decodeEnvelope(t, rec)
	if data["status"] != "PENDING" {
		t.Errorf("status = %v, want PENDING", data["status"])
	}
	if data["isPending"] != true || data["isCompleted"] != false {
		t.Errorf("flags = isPending:%v isCompleted:%v", data["isPending"], data["isCompleted"])
	}
	// 100000 + 500 + 800, reported in major units.
	if data["amount"] != float64(1013) || data["baseFee"] != float64(5) || data["deliveryFee"] != float64(8) {
		t.Errorf("amounts = %v/%v/%v", data["amount"], data["baseFee"], data["deliveryFee"])
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/transactions/missing/status", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing id: status = %d, want 404", rec.Code)
	}
}

// The webhook endpoint always answers 200, whatever arrives.
func TestWebhookAlwaysResponds200(t *testing.T) {
	t.Parallel()
	router, store := newServer(t, payment.StatusApproved)

	rec := doJSON(t, router, http.MethodPost, "/v1/transactions",
		`{"productId":"p1","quantity":1,"customerEmail":"buyer@example.com"}`)
	_, data := decodeEnvelope(t, rec)
	reference := data["reference"].(string)

	genuine := wompi.Event{
		Event: "transaction.updated",
		Data: wompi.EventData{Transaction: wompi.EventTransaction{
			ID: "wompi-1", AmountInCents: 101_300, Reference: reference,
			CustomerEmail: "buyer@example.com", Status: "APPROVED",
		}},
		Timestamp: 1_700_000_060,
		Signature: wompi.EventSignature{Properties: []string{"transaction.id", "transaction.status", "transaction.amount_in_cents"}},
	}
	genuine.Signature.Checksum = wompi.EventChecksum(genuine, eventsSecret)
	payload, _ := json.Marshal(genuine)

	tests := []struct {
		name          string
		body          string
		wantProcessed bool
	}{
		{"genuine event", string(payload), true},
		{"malformed body", `{not json`, false},
		{"unsigned event", `{"event":"transaction.updated","data":{"transaction":{"reference":"` + reference + `","status":"APPROVED"}}}`, false},
		{"unrelated event", `{"event":"nequi_token.updated"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/v1/transactions/webhook", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 unconditionally", rec.Code)
			}
			var resp webhookResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Processed != tt.wantProcessed {
				t.Errorf("processed = %v, want %v", resp.Processed, tt.wantProcessed)
			}
		})
	}

	p, _ := store.FindProduct(context.Background(), "p1")
	if p.Stock != 9 {
		t.Errorf("stock = %d, want 9 (only the genuine event applied)", p.Stock)
	}
}

func TestListProducts(t *testing.T) {
	t.Parallel()
	router, _ := newServer(t, payment.StatusApproved)

	rec := doJSON(t, router, http.MethodGet, "/v1/products", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var env struct {
		Data []productData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 1 || env.Data[0].ID != "p1" || env.Data[0].Stock != 10 {
		t.Errorf("products = %+v", env.Data)
	}
}

func TestStockMovements(t *testing.T) {
	t.Parallel()
	router, _ := newServer(t, payment.StatusApproved)

	rec := doJSON(t, router, http.MethodPost, "/v1/stock/movements",
		`{"productId":"p1","quantity":5,"type":"RESTOCK","reference":"po-77"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	_, data := decodeEnvelope(t, rec)
	if data["previousStock"] != float64(10) || data["newStock"] != float64(15) {
		t.Errorf("movement = %v", data)
	}

	// SALE is reserved for the settle path.
	rec = doJSON(t, router, http.MethodPost, "/v1/stock/movements",
		`{"productId":"p1","quantity":-1,"type":"SALE"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("manual SALE: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/stock/movements?productId=p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var env struct {
		Data []movementData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 1 || env.Data[0].Type != "RESTOCK" || env.Data[0].Reference != "po-77" {
		t.Errorf("movements = %+v", env.Data)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	router, _ := newServer(t, payment.StatusApproved)

	rec := doJSON(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
