package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

type RouterOptions struct {
	Tokens   ports.TokenVerifier
	Gatherer prometheus.Gatherer
	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(req.Context()); err != nil {
				logHTTPOperationError(req.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", err)
				writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
				return
			}
		}
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/webhooks/{gateway}", handler.receiveWebhook)
	r.Post("/track-click", handler.trackClickPost)
	r.Get("/r/{code}", handler.trackClickRedirect)

	authenticated := func(r chi.Router) {
		r.Use(authMiddleware(opts.Tokens))
		r.Post("/signups", handler.registerSignup)
		r.Post("/milestones", handler.recordMilestone)
		r.Post("/affiliates", handler.applyAffiliate)
		r.Get("/affiliates/me", handler.getDashboard)
		r.Get("/affiliates/me/commissions", handler.listCommissions)
		mountPayoutRoutes(r, handler)
		r.Get("/admin/payout-requests", handler.listPendingPayouts)
		r.Post("/admin/affiliates/{affiliate_id}/approve", handler.approveAffiliate)
		r.Post("/admin/affiliates/{affiliate_id}/reject", handler.rejectAffiliate)
		r.Get("/admin/reconciliation/payments", handler.listUnreconciledPayments)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(authenticated)
	})

	// Unversioned payout paths kept for existing clients.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(opts.Tokens))
		mountPayoutRoutes(r, handler)
	})
	return r
}

func mountPayoutRoutes(r chi.Router, handler *Handler) {
	r.Post("/payout-requests", handler.requestPayout)
	r.Get("/payout-requests", handler.listPayouts)
	r.Post("/payout-requests/{id}/approve", handler.approvePayout)
	r.Post("/payout-requests/{id}/reject", handler.rejectPayout)
	r.Post("/payout-requests/{id}/mark-paid", handler.markPayoutPaid)
}
