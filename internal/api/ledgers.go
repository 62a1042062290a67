package api

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"

	"gamezone/internal/ledger"
	"gamezone/internal/metrics"
	"gamezone/shared/audit"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func (s *HTTPServer) handleLedgers(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("ledgers_list")

	list, err := s.deps.Ledgers.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []ledger.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ledgers": list})
}

func (s *HTTPServer) handleStatement(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("ledger_statement")

	st, err := s.deps.Ledgers.Statement(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *HTTPServer) handleStatementXLSX(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("ledger_statement_xlsx")

	st, err := s.deps.Ledgers.Statement(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err = ledger.ExportStatement(st, audit.NewExcelizeWriter(), &buf); err != nil {
		fail(w, r, fmt.Errorf("export statement: %w", err))
		return
	}

	name := unsafeFilename.ReplaceAllString(st.Name, "_")
	if name == "" {
		name = st.LedgerID
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statement_%s.xlsx"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("ledger_add_entry")

	var req ledger.EntryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	st, err := s.deps.Ledgers.AddEntry(r.Context(), r.PathValue("id"), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}
