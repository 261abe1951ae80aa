package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coachkit/creditledger/core"
	"github.com/coachkit/creditledger/pkg/binder"
	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/svc/credit"
	"github.com/coachkit/creditledger/svc/ledger"
	"github.com/coachkit/creditledger/svc/quota"
)

// API serves the account routes.
type API struct {
	credits *credit.Service
	quota   *quota.Enforcer
	log     *slog.Logger
}

func New(credits *credit.Service, enforcer *quota.Enforcer, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{credits: credits, quota: enforcer, log: log.With(logger.Component("httpapi"))}
}

// Routes returns the /v1 router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/accounts", a.wrap(a.createAccount))
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/", a.wrap(a.getAccount))
		r.Post("/deduct", a.wrap(a.deduct))
		r.Post("/credits", a.wrap(a.addCredits))
		r.Post("/quota/{feature}", a.wrap(a.checkQuota))
		r.Get("/usage", a.wrap(a.usage))
	})
	return r
}

func (a *API) wrap(h core.HandlerFunc) http.HandlerFunc {
	return core.Wrap(h, a.log)
}

// fail logs server-side failures and renders the mapped error.
func (a *API) fail(r *http.Request, op string, err error) core.Response {
	mapped := toHTTPError(err)
	if httpErr, ok := mapped.(core.HTTPError); !ok || httpErr.Code >= http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "request failed",
			slog.String("op", op),
			logger.AccountID(chi.URLParam(r, "id")),
			logger.Error(err),
		)
	}
	return core.JSONError(mapped)
}

type createAccountRequest struct {
	ID                     string      `json:"id"`
	DisplayName            string      `json:"display_name"`
	Email                  string      `json:"email"`
	Tier                   ledger.Tier `json:"tier"`
	ExternalSubscriptionID string      `json:"external_subscription_id"`
	ExternalCustomerID     string      `json:"external_customer_id"`
}

type accountView struct {
	ID                     string               `json:"id"`
	DisplayName            string               `json:"display_name,omitempty"`
	Email                  string               `json:"email,omitempty"`
	Tier                   ledger.Tier          `json:"tier"`
	Balance                int64                `json:"balance"`
	ExternalSubscriptionID string               `json:"external_subscription_id,omitempty"`
	ExternalCustomerID     string               `json:"external_customer_id,omitempty"`
	Transactions           []ledger.Transaction `json:"transactions"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

func viewOf(acc *ledger.Account) accountView {
	txs := acc.Transactions
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	return accountView{
		ID:                     acc.ID,
		DisplayName:            acc.DisplayName,
		Email:                  acc.Email,
		Tier:                   acc.Tier,
		Balance:                acc.Balance,
		ExternalSubscriptionID: acc.ExternalSubscriptionID,
		ExternalCustomerID:     acc.ExternalCustomerID,
		Transactions:           txs,
		CreatedAt:              acc.CreatedAt,
		UpdatedAt:              acc.UpdatedAt,
	}
}

func (a *API) createAccount(r *http.Request) core.Response {
	var req createAccountRequest
	if err := binder.JSON(r, &req); err != nil {
		return a.fail(r, "initialize", err)
	}
	if req.Tier == "" {
		req.Tier = ledger.TierFree
	}

	if _, err := a.credits.Initialize(r.Context(), credit.NewAccount{
		ID:                     req.ID,
		DisplayName:            req.DisplayName,
		Email:                  req.Email,
		Tier:                   req.Tier,
		ExternalSubscriptionID: req.ExternalSubscriptionID,
		ExternalCustomerID:     req.ExternalCustomerID,
	}); err != nil {
		return a.fail(r, "initialize", err)
	}

	acc, err := a.credits.Balance(r.Context(), req.ID)
	if err != nil {
		return a.fail(r, "initialize", err)
	}
	return core.Created(viewOf(acc))
}

func (a *API) getAccount(r *http.Request) core.Response {
	acc, err := a.credits.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return a.fail(r, "balance", err)
	}
	return core.OK(viewOf(acc))
}

type deductRequest struct {
	Amount    int64  `json:"amount"`
	Feature   string `json:"feature"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (a *API) deduct(r *http.Request) core.Response {
	var req deductRequest
	if err := binder.JSON(r, &req); err != nil {
		return a.fail(r, "deduct", err)
	}

	res, err := a.credits.Deduct(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Feature, ledger.Metadata{
		Reference: req.Reference,
		Reason:    req.Reason,
	})
	if err != nil {
		return a.fail(r, "deduct", err)
	}
	return core.OK(res)
}

type addCreditsRequest struct {
	Amount    int64       `json:"amount"`
	Kind      ledger.Kind `json:"kind"`
	Reference string      `json:"reference"`
	Reason    string      `json:"reason"`
}

func (a *API) addCredits(r *http.Request) core.Response {
	var req addCreditsRequest
	if err := binder.JSON(r, &req); err != nil {
		return a.fail(r, "add", err)
	}
	// Renewals come only from billing events.
	if req.Kind == ledger.KindRenewal {
		return a.fail(r, "add", credit.ErrInvalidKind)
	}

	res, err := a.credits.Add(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Kind, ledger.Metadata{
		Reference: req.Reference,
		Reason:    req.Reason,
	})
	if err != nil {
		return a.fail(r, "add", err)
	}
	return core.OK(res)
}

func (a *API) checkQuota(r *http.Request) core.Response {
	id := chi.URLParam(r, "id")
	feature := quota.Feature(chi.URLParam(r, "feature"))

	acc, err := a.credits.Balance(r.Context(), id)
	if err != nil {
		return a.fail(r, "quota", err)
	}

	d, err := a.quota.CheckAndIncrement(r.Context(), id, feature, acc.Tier)
	if err != nil {
		return a.fail(r, "quota", err)
	}
	if !d.Allowed {
		return core.JSONError(core.ErrTooManyRequests.
			WithMessage("usage limit reached for " + string(feature)).
			WithDetails(map[string]any{
				"used":     d.Used,
				"limit":    d.Limit,
				"reset_at": d.ResetAt,
			}))
	}
	return core.OK(d)
}

func (a *API) usage(r *http.Request) core.Response {
	id := chi.URLParam(r, "id")
	acc, err := a.credits.Balance(r.Context(), id)
	if err != nil {
		return a.fail(r, "usage", err)
	}

	usage, err := a.quota.Usage(r.Context(), id, acc.Tier)
	if err != nil {
		return a.fail(r, "usage", err)
	}
	return core.Status(http.StatusOK, usage, map[string]any{"tier": acc.Tier})
}
