package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"p2pcalc/commontypes"
	"p2pcalc/modules/diagnostics"
	"p2pcalc/modules/engine"
	"p2pcalc/modules/history"
	"p2pcalc/modules/numfmt"
	"p2pcalc/modules/state"
	"p2pcalc/modules/telegram"
)

const maxBodyBytes = 1 << 20

type stateResponse struct {
	State       state.Snapshot           `json:"state"`
	Result      engine.CalculationResult `json:"result"`
	Profit      *engine.ProfitResult     `json:"profit,omitempty"`
	Commission  *engine.CommissionSplit  `json:"commission,omitempty"`
	Stats       *history.Stats           `json:"stats,omitempty"`
	HostActions []commontypes.Action     `json:"hostActions,omitempty"`
}

// calculation is the numeric reading of the raw inputs.
type calculation struct {
	fiat, crypto, profit, commission, sell float64
}

func readInputs(snap state.Snapshot) calculation {
	c := calculation{
		fiat:   numfmt.ParseNumber(snap.Fiat),
		crypto: numfmt.ParseNumber(snap.Crypto),
		profit: numfmt.ParseNumber(snap.Profit),
		sell:   numfmt.ParseNumber(snap.Sell),
	}
	// A hidden commission section does not apply.
	if snap.ShowCommission {
		c.commission = numfmt.ParseNumber(snap.Commission)
	}
	return c
}

func buildStateResponse(store *state.Store, host telegram.Host) stateResponse {
	snap := store.Snapshot()
	in := readInputs(snap)

	resp := stateResponse{
		State:  snap,
		Result: engine.Calculate(in.fiat, in.crypto, in.profit, in.commission),
	}
	if in.sell > 0 {
		p := engine.CalculateProfit(in.fiat, in.crypto, in.sell, in.commission)
		resp.Profit = &p
	}
	if in.commission > 0 {
		split := engine.SplitCommission(in.crypto, in.commission)
		resp.Commission = &split
	}
	if stats, ok := history.Compute(snap.History); ok {
		resp.Stats = &stats
	}
	if sh, ok := host.(*telegram.SessionHost); ok {
		resp.HostActions = sh.Actions()
	}
	return resp
}

func (a *app) respondState(w http.ResponseWriter, status int, store *state.Store, host telegram.Host) {
	a.writeJSON(w, status, buildStateResponse(store, host))
}

func (a *app) handleState(w http.ResponseWriter, r *http.Request) {
	store, host := a.session(r)
	host.Ready()
	host.Expand()
	telegram.ApplyTheme(host, string(store.Preferences().Theme))
	a.recorder(host).Track(r.Context(), diagnostics.EventPageView, map[string]any{"page": "calculator"})
	a.respondState(w, http.StatusOK, store, host)
}

type inputRequest struct {
	Value string `json:"value"`
}

func (a *app) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	store, host := a.session(r)
	value := numfmt.FormatInputNumber(numfmt.SanitizeInput(req.Value))

	switch r.PathValue("field") {
	case "fiat":
		store.SetFiatInput(value)
	case "crypto":
		store.SetCryptoInput(value)
	case "profit":
		// Desired profit may be negative.
		if strings.HasPrefix(strings.TrimSpace(req.Value), "-") {
			value = "-" + value
		}
		store.SetProfitInput(value)
	case "commission":
		store.SetCommissionInput(value)
	case "sell":
		store.SetSellInput(value)
	default:
		a.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown input %q", r.PathValue("field")))
		return
	}
	a.respondState(w, http.StatusOK, store, host)
}

func (a *app) handleReset(w http.ResponseWriter, r *http.Request) {
	store, host := a.session(r)
	store.ResetCalculator()
	host.ImpactOccurred(telegram.ImpactLight)
	a.respondState(w, http.StatusOK, store, host)
}

func (a *app) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	store, host := a.session(r)
	in := readInputs(store.Snapshot())

	res := engine.Calculate(in.fiat, in.crypto, in.profit, in.commission)
	if res.IsZero() {
		host.NotificationOccurred(telegram.NotificationError)
		a.writeError(w, http.StatusUnprocessableEntity, "calculation is incomplete")
		return
	}

	profit, rate := in.profit, res.TargetRate
	if in.sell > 0 {
		p := engine.CalculateProfit(in.fiat, in.crypto, in.sell, in.commission)
		profit, rate = p.Profit, p.SellRate
	}

	item := history.NewItem(in.fiat, in.crypto, profit, rate, in.sell, a.now())
	store.AddToHistory(item)
	host.NotificationOccurred(telegram.NotificationSuccess)
	a.recorder(host).Track(r.Context(), diagnostics.EventCalculationSaved, map[string]any{"id": item.ID})

	a.writeJSON(w, http.StatusCreated, item)
}

func (a *app) handleListHistory(w http.ResponseWriter, r *http.Request) {
	store, _ := a.session(r)
	q := r.URL.Query()
	a.writeJSON(w, http.StatusOK, history.Filter(store.History(), q.Get("q"), history.ParseKind(q.Get("kind"))))
}

func (a *app) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	store, host := a.session(r)
	store.ClearHistory()
	host.ImpactOccurred(telegram.ImpactMedium)
	a.recorder(host).Track(r.Context(), diagnostics.EventHistoryCleared, nil)
	a.respondState(w, http.StatusOK, store, host)
}

func (a *app) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	store, host := a.session(r)
	items := store.History()
	now := a.now()

	var buf bytes.Buffer
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "csv":
		if err := history.ExportCSV(&buf, items); err != nil {
			a.log.Errorf("Exporting history as CSV: %v", err)
			a.writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	case "", "json":
		format = "json"
		if err := history.ExportJSON(&buf, items, now); err != nil {
			a.log.Errorf("Exporting history as JSON: %v", err)
			a.writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
	default:
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	a.recorder(host).Track(r.Context(), diagnostics.EventHistoryExported, map[string]any{"format": format, "count": len(items)})
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", history.ExportFilename(format, now)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type importResponse struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

func (a *app) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	var imported []state.HistoryItem
	if isCSV(r) {
		imported, err = history.ParseCSV(bytes.NewReader(body))
	} else {
		imported, err = history.ParseJSON(body)
	}
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, history.ErrInvalidImport) {
			status = http.StatusInternalServerError
		}
		a.writeError(w, status, err.Error())
		return
	}

	store, host := a.session(r)
	existing := store.History()
	merged := history.Merge(existing, imported)
	store.SetHistory(merged)
	host.NotificationOccurred(telegram.NotificationSuccess)

	added := len(merged) - len(existing)
	if added < 0 {
		added = 0
	}
	a.recorder(host).Track(r.Context(), diagnostics.EventHistoryImported, map[string]any{"received": len(imported), "added": added})
	a.writeJSON(w, http.StatusOK, importResponse{Imported: added, Total: len(merged)})
}

func isCSV(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "text/csv")
}

func (a *app) handleStats(w http.ResponseWriter, r *http.Request) {
	store, _ := a.session(r)
	stats, ok := history.Compute(store.History())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

func (a *app) handleListQuickButtons(w http.ResponseWriter, r *http.Request) {
	store, _ := a.session(r)
	a.writeJSON(w, http.StatusOK, store.QuickButtons())
}

// buttonValue puts a quick button value in the form it is stored in.
func buttonValue(v string) string {
	return numfmt.FormatInputNumber(numfmt.SanitizeInput(v))
}

func cleanQuickButton(b state.QuickButton) (state.QuickButton, error) {
	b.Value = buttonValue(b.Value)
	b.Label = strings.TrimSpace(numfmt.SanitizeInput(b.Label))
	if b.Value == "" || numfmt.ParseNumber(b.Value) == 0 {
		return b, errors.New("quick button value must be a non-zero number")
	}
	if b.Label == "" {
		b.Label = b.Value
	}
	return b, nil
}

func (a *app) handleAddQuickButton(w http.ResponseWriter, r *http.Request) {
	var req state.QuickButton
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	button, err := cleanQuickButton(req)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	store, host := a.session(r)
	store.AddQuickButton(button)
	host.SelectionChanged()
	a.writeJSON(w, http.StatusCreated, store.QuickButtons())
}

func (a *app) handleSetQuickButtons(w http.ResponseWriter, r *http.Request) {
	var req []state.QuickButton
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	buttons := make([]state.QuickButton, 0, len(req))
	for i, b := range req {
		clean, err := cleanQuickButton(b)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("button %d: %v", i, err))
			return
		}
		buttons = append(buttons, clean)
	}

	store, _ := a.session(r)
	store.SetQuickButtons(buttons)
	a.writeJSON(w, http.StatusOK, store.QuickButtons())
}

func (a *app) handleUpdateQuickButton(w http.ResponseWriter, r *http.Request) {
	var req state.QuickButton
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value := buttonValue(req.Value)
	label := strings.TrimSpace(numfmt.SanitizeInput(req.Label))
	if value == "" || label == "" {
		a.writeError(w, http.StatusBadRequest, "value and label are required")
		return
	}

	store, _ := a.session(r)
	store.UpdateQuickButton(value, label)
	a.writeJSON(w, http.StatusOK, store.QuickButtons())
}

func (a *app) handleRemoveQuickButton(w http.ResponseWriter, r *http.Request) {
	value := buttonValue(r.URL.Query().Get("value"))
	if value == "" {
		a.writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	store, _ := a.session(r)
	store.RemoveQuickButton(value)
	a.writeJSON(w, http.StatusOK, store.QuickButtons())
}

type preferencesRequest struct {
	Language         *string `json:"language"`
	Theme            *string `json:"theme"`
	ShowCommission   *bool   `json:"isCommissionVisible"`
	ToggleTheme      bool    `json:"toggleTheme"`
	ToggleCommission bool    `json:"toggleCommission"`
}

func (a *app) handlePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Validate everything before mutating so a bad field changes nothing.
	if req.Language != nil && !state.Language(*req.Language).Valid() {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: %q", state.ErrInvalidLanguage, *req.Language))
		return
	}
	if req.Theme != nil && !state.Theme(*req.Theme).Valid() {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: %q", state.ErrInvalidTheme, *req.Theme))
		return
	}

	store, host := a.session(r)
	cancel := watchTheme(store, host)
	defer cancel()

	if req.Language != nil {
		store.SetLanguage(state.Language(*req.Language))
	}
	if req.Theme != nil {
		store.SetTheme(state.Theme(*req.Theme))
	}
	if req.ToggleTheme {
		store.ToggleTheme()
	}
	if req.ShowCommission != nil {
		store.SetShowCommission(*req.ShowCommission)
	}
	if req.ToggleCommission {
		store.ToggleCommission()
	}
	a.respondState(w, http.StatusOK, store, host)
}

// watchTheme pushes header and background colors to host whenever the
// store's theme changes.
func watchTheme(store *state.Store, host telegram.Host) (cancel func()) {
	var mu sync.Mutex
	current := store.Preferences().Theme
	return store.Subscribe(func(s state.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Theme != current {
			current = s.Theme
			telegram.ApplyTheme(host, string(s.Theme))
		}
	})
}

func (a *app) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.recorder(a.host(r)).Summary(r.Context()))
}

func (a *app) handleExportDiagnostics(w http.ResponseWriter, r *http.Request) {
	data, err := a.recorder(a.host(r)).Export(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (a *app) handleClearDiagnostics(w http.ResponseWriter, r *http.Request) {
	a.recorder(a.host(r)).Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// trackRelay records the outcome of every relayed message.
func (a *app) trackRelay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.Method == http.MethodPost {
			a.recorder(a.host(r)).Track(r.Context(), diagnostics.EventMessageRelayed, map[string]any{"status": rec.status})
		}
	})
}

// recoverPanics turns a handler panic into a generic 500 and records it.
func (a *app) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.log.Errorf("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				a.recorder(a.host(r)).Track(r.Context(), diagnostics.EventRenderFault, map[string]any{
					"path":  r.URL.Path,
					"error": fmt.Sprint(rec),
				})
				a.writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeJSON answers 500 when v cannot be encoded.
func (a *app) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Errorf("Encoding %T response: %v", v, err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": "response could not be encoded"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func (a *app) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
