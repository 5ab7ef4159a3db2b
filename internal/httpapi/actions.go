package httpapi

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"dacgov.org/internal/asset"
	"dacgov.org/internal/auth"
	"dacgov.org/internal/engine"
	"dacgov.org/internal/governance"
	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/ledger"
	"dacgov.org/internal/membership"
	"dacgov.org/internal/settings"
)

var errMarkup = errors.New("markup is not allowed")

func (a *API) handleActionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": engine.ActionNames()})
}

func (a *API) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	act, err := engine.NewAction(r.PathValue("name"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err := decodeJSON(w, r, act); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.plainText(act); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.engine.Apply(r.Context(), auth.Authorities(r.Context(), a.engine.Contract()), act)
	if err != nil {
		w.Header().Set("X-Call-ID", res.CallID)
		handleEngineError(w, r, err)
		return
	}
	w.Header().Set("X-Call-ID", res.CallID)
	writeJSON(w, http.StatusOK, res)
}

// plainText rejects free-text fields that carry HTML.
func (a *API) plainText(act engine.Action) error {
	var fields []string
	switch v := act.(type) {
	case *engine.Issue:
		fields = []string{v.Memo}
	case *engine.Transfer:
		fields = []string{v.Memo}
	case *engine.Join:
		fields = []string{v.Handle}
	case *engine.Update:
		fields = []string{v.Text}
	case *engine.Propose:
		fields = []string{v.Title, v.BodyRef}
	}
	for _, f := range fields {
		if html.UnescapeString(a.text.Sanitize(f)) != f {
			return fmt.Errorf("%w: %q", errMarkup, f)
		}
	}
	return nil
}

var (
	badRequest = []error{
		asset.ErrInvalidSymbol, asset.ErrInvalidAmount, asset.ErrSymbolMismatch, asset.ErrOverflow,
		ledger.ErrMemoTooLong, ledger.ErrNonPositive, ledger.ErrSelfTransfer, ledger.ErrUnknownAccount,
		settings.ErrUnknownAccount,
		membership.ErrInvalidHandle, membership.ErrUnknownUpdate, membership.ErrInvalidStatus, membership.ErrInvalidRef,
		governance.ErrInvalidTitle, governance.ErrInvalidBody, governance.ErrInvalidChoice, governance.ErrUnknownStatus,
	}
	notFound = []error{
		engine.ErrUnknownAction, kv.ErrNotFound,
		ledger.ErrUnknownSymbol, ledger.ErrNoBalance,
		membership.ErrNotMember,
		governance.ErrProposalNotFound, governance.ErrVoteNotFound,
	}
	conflict = []error{
		ledger.ErrSymbolExists, ledger.ErrOverdrawn, ledger.ErrSupplyExceeded,
		settings.ErrNotConfigured,
		membership.ErrAlreadyMember, membership.ErrAdmissionClosed, membership.ErrInsufficientDues,
		membership.ErrExpired, membership.ErrArchived, membership.ErrNotLeaving, membership.ErrNegativeBalance,
		membership.ErrStatusFinal,
		governance.ErrProposalClosed, governance.ErrProposalExpired,
	}
)

func statusFor(err error) int {
	if errors.Is(err, host.ErrUnauthorized) {
		return http.StatusForbidden
	}
	for _, group := range []struct {
		code int
		errs []error
	}{
		{http.StatusBadRequest, badRequest},
		{http.StatusNotFound, notFound},
		{http.StatusConflict, conflict},
	} {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.code
			}
		}
	}
	return http.StatusInternalServerError
}

func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		writeError(w, r, code, "internal error")
		return
	}
	writeError(w, r, code, err.Error())
}
