package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeOrders struct {
	created   []orders.CreatePendingOrderInput
	filters   orders.ListFilters
	fulfilled orders.FulfillInput
	refunded  orders.RefundInput
	canceled  uuid.UUID
	order     *models.Order
	list      *orders.ListResult
	err       error
}

func (f *fakeOrders) CreatePendingOrder(_ context.Context, in orders.CreatePendingOrderInput) (*models.Order, error) {
	f.created = append(f.created, in)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: uuid.New(), UserID: in.OwnerID, TotalCents: in.TotalCents, StripeSessionID: in.StripeSessionID, Status: enums.OrderStatusPending}, nil
}

func (f *fakeOrders) ListOrdersForUser(context.Context, uuid.UUID) ([]models.Order, error) {
	return []models.Order{*f.order}, f.err
}

func (f *fakeOrders) GetOrderForUser(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) CancelPending(_ context.Context, orderID, _ uuid.UUID) (*models.Order, error) {
	f.canceled = orderID
	return f.order, f.err
}

func (f *fakeOrders) ListOrders(_ context.Context, filters orders.ListFilters) (*orders.ListResult, error) {
	f.filters = filters
	return f.list, f.err
}

func (f *fakeOrders) MarkFulfilled(_ context.Context, in orders.FulfillInput) (*models.Order, error) {
	f.fulfilled = in
	return f.order, f.err
}

func (f *fakeOrders) MarkRefunded(_ context.Context, in orders.RefundInput) (*models.Order, error) {
	f.refunded = in
	return f.order, f.err
}

func withSession(r *http.Request, s *session.Session) *http.Request {
	return r.WithContext(session.WithSession(r.Context(), s))
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return errBody["code"].(string)
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	svc := &fakeOrders{}
	user := &session.Session{UserID: uuid.New(), Role: enums.ProfileRoleCustomer}
	body := `{"userId":"` + user.UserID.String() + `","subtotal":1000,"shipping":500,"total":1500,"stripeSessionId":"cs_1"}`

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body)), user)
	rec := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, svc.created, 1)
	assert.Equal(t, int64(1500), svc.created[0].TotalCents)
	assert.Equal(t, user.UserID, *svc.created[0].OwnerID)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "cs_1", data["stripeSessionId"])
}

func TestCheckoutRejections(t *testing.T) {
	user := &session.Session{UserID: uuid.New()}
	cases := []struct {
		name    string
		body    string
		session *session.Session
		status  int
		code    pkgerrors.Code
	}{
		{
			name:   "anonymous",
			body:   `{}`,
			status: http.StatusUnauthorized,
			code:   pkgerrors.CodeUnauthorized,
		},
		{
			name:    "missing total",
			body:    `{"userId":"` + user.UserID.String() + `","subtotal":1,"shipping":0,"stripeSessionId":"cs"}`,
			session: user,
			status:  http.StatusBadRequest,
			code:    pkgerrors.CodeValidation,
		},
		{
			name:    "string amount",
			body:    `{"userId":"` + user.UserID.String() + `","subtotal":"1","shipping":0,"total":1,"stripeSessionId":"cs"}`,
			session: user,
			status:  http.StatusBadRequest,
			code:    pkgerrors.CodeValidation,
		},
		{
			name:    "other user",
			body:    `{"userId":"` + uuid.NewString() + `","subtotal":1,"shipping":0,"total":1,"stripeSessionId":"cs"}`,
			session: user,
			status:  http.StatusForbidden,
			code:    pkgerrors.CodeForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeOrders{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(tc.body))
			if tc.session != nil {
				req = withSession(req, tc.session)
			}
			rec := httptest.NewRecorder()
			Checkout(svc, logger.Nop()).ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, string(tc.code), errorCode(t, rec))
			assert.Empty(t, svc.created)
		})
	}
}

func TestCancelMyOrderPassesPathID(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeOrders{order: &models.Order{ID: orderID, Status: enums.OrderStatusCanceled}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", nil)
	req = withParam(withSession(req, &session.Session{UserID: uuid.New()}), "orderId", orderID.String())
	rec := httptest.NewRecorder()

	CancelMyOrder(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, svc.canceled)
}

func TestMyOrderMapsNotFound(t *testing.T) {
	svc := &fakeOrders{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil)
	req = withParam(withSession(req, &session.Session{UserID: uuid.New()}), "orderId", uuid.NewString())
	rec := httptest.NewRecorder()

	MyOrder(svc, logger.Nop()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListSetsCursorHeader(t *testing.T) {
	svc := &fakeOrders{list: &orders.ListResult{
		Orders:     []models.Order{{ID: uuid.New(), Status: enums.OrderStatusPaid}},
		NextCursor: "abc",
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=paid&limit=1", nil)
	rec := httptest.NewRecorder()

	AdminListOrders(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get(NextCursorHeader))
	assert.Equal(t, "paid", svc.filters.Status)
	assert.Equal(t, 1, svc.filters.Pagination.Limit)
	assert.Len(t, decode(t, rec)["data"], 1)
}

func TestAdminListRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?limit=1000", nil)
	rec := httptest.NewRecorder()
	AdminListOrders(&fakeOrders{}, logger.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminFulfillSanitizesInput(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeOrders{order: &models.Order{ID: orderID, Status: enums.OrderStatusFulfilled}}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"carrier":"  <b>UPS</b> ","trackingNumber":"1Z999"}`))
	req = withParam(req, "orderId", orderID.String())
	rec := httptest.NewRecorder()

	AdminFulfillOrder(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, svc.fulfilled.Carrier, "<")
	assert.Equal(t, "1Z999", svc.fulfilled.TrackingNumber)
}

func TestAdminRefundForwardsAmount(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeOrders{order: &models.Order{ID: orderID, Status: enums.OrderStatusRefunded}}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"amount":250}`))
	req = withParam(req, "orderId", orderID.String())
	rec := httptest.NewRecorder()

	AdminRefundOrder(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.RefundInput{OrderID: orderID, AmountCents: 250}, svc.refunded)
}

func TestCurrentSessionAnonymousIsNull(t *testing.T) {
	rec := httptest.NewRecorder()
	CurrentSession().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body, "data")
	assert.Nil(t, body["data"])
}

func TestCurrentSessionIncludesCapabilities(t *testing.T) {
	s := &session.Session{UserID: uuid.New(), Email: "a@example.com", Role: enums.ProfileRoleAdmin}
	rec := httptest.NewRecorder()
	CurrentSession().ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/", nil), s))

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "a@example.com", data["email"])
	assert.Equal(t, true, data["capabilities"].(map[string]any)["admin"])
}

type fakeEnsurer struct {
	id  uuid.UUID
	err error
}

func (f fakeEnsurer) EnsureTenantID(context.Context, *session.Session) (uuid.UUID, error) {
	return f.id, f.err
}

func TestAdminTenant(t *testing.T) {
	id := uuid.New()
	req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), &session.Session{UserID: uuid.New()})
	rec := httptest.NewRecorder()
	AdminTenant(fakeEnsurer{id: id}, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.String(), decode(t, rec)["data"].(map[string]any)["tenantId"])

	rec = httptest.NewRecorder()
	AdminTenant(fakeEnsurer{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db"), "tenant")}, logger.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func newCartCodec(t *testing.T) (*cart.Codec, config.CartConfig) {
	t.Helper()
	cfg := config.CartConfig{Secret: "0123456789abcdef0123", CookieName: "sf_cart", TTL: time.Hour}
	codec, err := cart.NewCodec(cfg.Secret, cfg.TTL)
	require.NoError(t, err)
	return codec, cfg
}

func TestCartRoundTripThroughCookie(t *testing.T) {
	codec, cfg := newCartCodec(t)
	body := `{"lines":[{"productId":"p1","quantity":2},{"productId":"p1","quantity":3}]}`
	rec := httptest.NewRecorder()
	PutCart(codec, cfg, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/cart", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	GetCart(codec, cfg, logger.Nop()).ServeHTTP(rec, req)

	lines := decode(t, rec)["data"].(map[string]any)["lines"].([]any)
	require.Len(t, lines, 1)
	assert.EqualValues(t, 5, lines[0].(map[string]any)["quantity"])
}

func TestCartTamperedCookieReadsEmpty(t *testing.T) {
	codec, cfg := newCartCodec(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: "tampered"})
	rec := httptest.NewRecorder()

	GetCart(codec, cfg, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["data"].(map[string]any)["lines"])
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestCartRejectsOversizedQuantity(t *testing.T) {
	codec, cfg := newCartCodec(t)
	rec := httptest.NewRecorder()
	PutCart(codec, cfg, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(`{"lines":[{"productId":"p","quantity":100}]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": ok}, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": ok, "redis": down}, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
