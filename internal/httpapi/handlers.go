package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"billdesk/internal/domain"
	"billdesk/internal/service"
)

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var draft domain.SaleDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.CreateSale(r.Context(), draft)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleSearchSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	field := domain.SaleSearchField(strings.TrimSpace(query.Get("field")))
	limit := parsePositiveLimit(query.Get("limit"), 50, 200)
	sales, err := a.service.SearchSales(r.Context(), field, query.Get("q"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleNextBillID(w http.ResponseWriter, r *http.Request) {
	id, err := a.service.NextBillID(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill_id": id})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	var draft domain.SaleDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.UpdateSale(r.Context(), chi.URLParam(r, "billID"), draft)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSale(r.Context(), chi.URLParam(r, "billID")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBillDocument renders the printable invoice. The HTML is produced by
// html/template, so customer-entered fields are escaped.
func (a *API) handleBillDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.service.BillDocument(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	html, err := a.documents.RenderHTML(doc)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

func (a *API) handleCreatePurchase(tracked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft domain.PurchaseDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		create := a.service.CreateGeneralPurchase
		if tracked {
			create = a.service.CreateTrackedPurchase
		}
		purchase, err := create(r.Context(), draft)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, purchase)
	}
}

func (a *API) handleListPurchaseLines(w http.ResponseWriter, r *http.Request) {
	day, err := a.parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lines, err := a.service.ListPurchaseLines(r.Context(), day)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (a *API) handleEditPurchaseItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var line domain.PurchaseLine
	if err := decodeJSON(r, &line); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	item, err := a.service.EditPurchaseItem(r.Context(), id, line)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleDeletePurchaseItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.DeletePurchaseItem(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListExpenditures(w http.ResponseWriter, r *http.Request) {
	day, err := a.parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	list, err := a.service.ListExpenditures(r.Context(), day)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenditures": list})
}

func (a *API) handleAddExpenditure(w http.ResponseWriter, r *http.Request) {
	var draft domain.ExpenditureDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exp, err := a.service.AddExpenditure(r.Context(), draft)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (a *API) handleUpdateExpenditure(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var draft domain.ExpenditureDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exp, err := a.service.UpdateExpenditure(r.Context(), id, draft)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (a *API) handleDeleteExpenditure(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.DeleteExpenditure(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListInventory(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListInventory(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": records})
}

func (a *API) handleDeleteInventory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.DeleteInventoryRecord(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListMovements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 200, 1000)
	movements, err := a.service.ListMovements(r.Context(), query.Get("item"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleDueReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := a.service.ListDueReminders(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

func (a *API) handleMarkReminder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.MarkReminderNotified(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSendReminder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reminder, err := a.service.SendReminder(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reminder)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	period := domain.Period(strings.TrimSpace(r.URL.Query().Get("period")))
	if period == "" {
		period = domain.PeriodDay
	}
	summary, err := a.reports.Summarize(r.Context(), period)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := a.reports.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := a.service.BusinessProfile(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var profile domain.BusinessProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.SaveBusinessProfile(r.Context(), profile)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	if err := a.auth.DeleteUser(r.Context(), actor, chi.URLParam(r, "username")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
