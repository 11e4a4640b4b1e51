package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Catalog & fees
// ============================================================

func getCatalogHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/projects/{projectId}/catalog")
		defer span.End()

		projectID := chi.URLParam(r, "projectId")
		span.SetAttributes(attribute.String("project.id", projectID))

		catalog, err := contrib.Catalog(ctx, projectID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		partial := make([]string, 0, len(catalog.PartialPhases))
		for phaseID := range catalog.PartialPhases {
			partial = append(partial, phaseID)
		}
		writeJSON(w, http.StatusOK, struct {
			*domain.Catalog
			PartialPhases []string `json:"partialPhases"`
		}{catalog, partial})
	}
}

func previewFeesHandler(contrib *service.ContributionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/fees/preview")
		defer span.End()

		fees := contrib.PreviewFees(ctx, r.URL.Query().Get("amount"))
		writeJSON(w, http.StatusOK, fees.View())
	}
}

// ============================================================
// Contribution flows
// ============================================================

func createFlowHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/contributions/flows")
		defer span.End()

		var req domain.CreateFlowRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(
			attribute.String("project.id", req.ProjectID),
			attribute.Bool("preselected", req.PhaseID != "" || req.MilestoneID != ""),
		)

		flow, err := contrib.CreateFlow(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.Header().Set("Location", "/v1/contributions/flows/"+flow.ID())
		writeJSON(w, http.StatusCreated, flow.View())
	}
}

func getFlowHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, err := contrib.Flow(chi.URLParam(r, "flowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, flow.View())
	}
}

// flowAction is a flow operation that takes no input.
type flowAction func(f *service.Flow, ctx context.Context) (*domain.FlowView, error)

func flowActionHandler(contrib *service.ContributionService, name string, action flowAction, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/contributions/flows/{flowId}/"+name)
		defer span.End()

		flow, err := contrib.Flow(chi.URLParam(r, "flowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("flow.id", flow.ID()))

		view, err := action(flow, ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// withFlow resolves the flow, decodes a fresh body and runs fn.
func withFlow(contrib *service.ContributionService, name string, newBody func() any, fn func(ctx context.Context, f *service.Flow, body any) (*domain.FlowView, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" /v1/contributions/flows/{flowId}/"+name)
		defer span.End()

		flow, err := contrib.Flow(chi.URLParam(r, "flowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("flow.id", flow.ID()))

		body := newBody()
		if err := decodeBody(r, body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := fn(ctx, flow, body)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type termsBody struct {
	Accepted *bool `json:"accepted"`
}

func acceptTermsHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return withFlow(contrib, "terms", func() any { return &termsBody{} },
		func(ctx context.Context, f *service.Flow, body any) (*domain.FlowView, error) {
			b := body.(*termsBody)
			accepted := true
			if b.Accepted != nil {
				accepted = *b.Accepted
			}
			return f.AcceptTerms(ctx, accepted)
		}, logger)
}

type phaseBody struct {
	PhaseID string `json:"phaseId"`
}

func selectPhaseHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return withFlow(contrib, "phase", func() any { return &phaseBody{} },
		func(ctx context.Context, f *service.Flow, body any) (*domain.FlowView, error) {
			b := body.(*phaseBody)
			if b.PhaseID == "" {
				return nil, &domain.ErrValidation{Field: "phaseId", Message: "is required"}
			}
			return f.SelectPhase(ctx, b.PhaseID)
		}, logger)
}

type milestoneBody struct {
	MilestoneID string `json:"milestoneId"`
}

func selectMilestoneHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return withFlow(contrib, "milestone", func() any { return &milestoneBody{} },
		func(ctx context.Context, f *service.Flow, body any) (*domain.FlowView, error) {
			b := body.(*milestoneBody)
			if b.MilestoneID == "" {
				return nil, &domain.ErrValidation{Field: "milestoneId", Message: "is required"}
			}
			return f.SelectMilestone(ctx, b.MilestoneID)
		}, logger)
}

type customAmountBody struct {
	Amount string `json:"amount"`
}

func customAmountHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return withFlow(contrib, "custom-amount", func() any { return &customAmountBody{} },
		func(ctx context.Context, f *service.Flow, body any) (*domain.FlowView, error) {
			return f.EditCustomAmount(ctx, body.(*customAmountBody).Amount)
		}, logger)
}

type paymentTypeBody struct {
	Type domain.PaymentType `json:"type"`
}

func paymentTypeHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return withFlow(contrib, "payment-type", func() any { return &paymentTypeBody{} },
		func(ctx context.Context, f *service.Flow, body any) (*domain.FlowView, error) {
			return f.SetPaymentType(ctx, body.(*paymentTypeBody).Type)
		}, logger)
}

type submitResponse struct {
	Redirect *domain.PaymentRedirect `json:"redirect"`
	Flow     *domain.FlowView        `json:"flow"`
}

func submitHandler(contrib *service.ContributionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/contributions/flows/{flowId}/submit")
		defer span.End()

		flowID := chi.URLParam(r, "flowId")
		span.SetAttributes(attribute.String("flow.id", flowID))

		redirect, err := contrib.Submit(ctx, flowID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		flow, err := contrib.Flow(flowID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, submitResponse{Redirect: redirect, Flow: flow.View()})
	}
}
