package httpapi

import (
	"net/http"
	"strconv"

	"dacgov.org/internal/governance"
)

// get wraps a read-only handler with the method check and error mapping.
func get(w http.ResponseWriter, r *http.Request, fn func() (any, error)) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	v, err := fn()
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) getSupply(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) {
		supply, err := a.engine.Supply(r.Context(), r.PathValue("symbol"))
		return map[string]any{"supply": supply}, err
	})
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) { return a.engine.Stats(r.Context(), r.PathValue("symbol")) })
}

func (a *API) listBalances(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) {
		items, err := a.engine.Balances(r.Context(), r.PathValue("owner"))
		return map[string]any{"owner": r.PathValue("owner"), "items": nonNil(items)}, err
	})
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) {
		owner := r.PathValue("owner")
		balance, err := a.engine.Balance(r.Context(), owner, r.PathValue("symbol"))
		return map[string]any{"owner": owner, "balance": balance}, err
	})
}

func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) { return a.engine.Config(r.Context()) })
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) {
		items, err := a.engine.Members(r.Context())
		return map[string]any{"items": nonNil(items)}, err
	})
}

func (a *API) getMember(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) { return a.engine.Member(r.Context(), r.PathValue("account")) })
}

func (a *API) listProposals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	var status governance.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := governance.ParseStatus(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		status = s
	}
	get(w, r, func() (any, error) {
		items, err := a.engine.Proposals(r.Context(), status)
		return map[string]any{"items": nonNil(items)}, err
	})
}

func (a *API) getProposal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	get(w, r, func() (any, error) { return a.engine.Proposal(r.Context(), id) })
}

func (a *API) listVotes(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) {
		items, err := a.engine.VotesBy(r.Context(), r.PathValue("voter"))
		return map[string]any{"items": nonNil(items)}, err
	})
}

func (a *API) getVote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	get(w, r, func() (any, error) { return a.engine.Vote(r.Context(), r.PathValue("voter"), id) })
}

func (a *API) listAnnouncements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var after uint64
	if raw := q.Get("after"); raw != "" {
		if after, err = strconv.ParseUint(raw, 10, 64); err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
	}
	get(w, r, func() (any, error) {
		items, err := a.engine.Announcements(r.Context(), after, limit)
		next := after
		if len(items) > 0 {
			next = items[len(items)-1].ID
		}
		return map[string]any{"items": nonNil(items), "next_after": next}, err
	})
}

func (a *API) getUsage(w http.ResponseWriter, r *http.Request) {
	get(w, r, func() (any, error) {
		payer := r.PathValue("payer")
		bytes, err := a.engine.Usage(r.Context(), payer)
		return map[string]any{"payer": payer, "bytes": bytes}, err
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
