package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	commonapi "agencyhub/pkg/api/common"
	"agencyhub/pkg/billing"
	"agencyhub/pkg/ctxkeys"
	"agencyhub/pkg/logging"

	"agencyhub/internal/razorpay"
)

// PaymentProvider is the slice of the provider client the handlers need.
// Satisfied by *razorpay.Client; tests substitute a fake.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, amountCents int64, currency, receipt string, notes map[string]string) (*razorpay.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// BursarMetrics holds custom Prometheus metrics for the payments service
type BursarMetrics struct {
	OrdersCreated  *prometheus.CounterVec // labels: tier, status
	Verifications  *prometheus.CounterVec // labels: result
	TokensCredited *prometheus.CounterVec // labels: tier

	DBQueries     *prometheus.CounterVec
	DBDuration    *prometheus.HistogramVec
	DBConnections *prometheus.GaugeVec
}

// Payments implements the token purchase pipeline: order initiation,
// payment verification and the exactly-once balance credit.
type Payments struct {
	db       *sql.DB
	logger   logging.Logger
	provider PaymentProvider
	pricing  billing.PriceTable
	metrics  *BursarMetrics
}

// NewPayments creates the payments handler set. All collaborators are
// injected; the handlers keep no package-level state.
func NewPayments(database *sql.DB, log logging.Logger, provider PaymentProvider, pricing billing.PriceTable, metrics *BursarMetrics) *Payments {
	return &Payments{
		db:       database,
		logger:   log,
		provider: provider,
		pricing:  pricing,
		metrics:  metrics,
	}
}

func (s *Payments) callerTenantID(c *gin.Context) string {
	return c.GetString(string(ctxkeys.KeyTenantID))
}

func (s *Payments) callerUserID(c *gin.Context) string {
	return c.GetString(string(ctxkeys.KeyUserID))
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, commonapi.ErrorResponse{
		Error:   message,
		Code:    code,
		Service: "bursar",
	})
}

func respondConflict(c *gin.Context, status string) {
	c.JSON(http.StatusConflict, commonapi.ErrorResponse{
		Error:   "Purchase already processed",
		Code:    commonapi.CodeConflict,
		Service: "bursar",
		Details: map[string]interface{}{"status": status},
	})
}
