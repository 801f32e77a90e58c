package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
)

// ColumnPayload is one column of an inbound dataset. Values are positional;
// JSON null marks a missing cell. Timestamp values are RFC3339 strings or
// epoch seconds.
type ColumnPayload struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"` // numeric | text | timestamp
	Values []any  `json:"values"`
}

// DetectRequest is the payload for POST /api/v1/detect.
type DetectRequest struct {
	DataSource string          `json:"data_source"`
	Symbol     string          `json:"symbol"`
	DataType   string          `json:"data_type"`
	Columns    []ColumnPayload `json:"columns"`
}

// DetectResponse carries the detection pass outcome.
type DetectResponse struct {
	Anomalies      []*quality.AnomalyRecord `json:"anomalies"`
	DetectorErrors []quality.DetectorError  `json:"detector_errors,omitempty"`
	ProcessingMs   int64                    `json:"processing_ms"`
}

// handleDetect runs a detection pass over the submitted dataset.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.DataSource == "" {
		http.Error(w, "data_source is required", http.StatusBadRequest)
		return
	}

	tbl, err := buildTable(req.Columns)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid dataset: %v", err), http.StatusBadRequest)
		return
	}

	result := s.engine.DetectAnomalies(r.Context(), tbl, quality.DatasetContext{
		DataSource: req.DataSource,
		Symbol:     req.Symbol,
		DataType:   req.DataType,
	})

	writeJSON(w, http.StatusOK, DetectResponse{
		Anomalies:      result.Anomalies,
		DetectorErrors: result.DetectorErrors,
		ProcessingMs:   result.ProcessingTime.Milliseconds(),
	})
}

// handleAnomalies lists recent anomalies: GET /api/v1/anomalies?hours=24&limit=100
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hours := queryInt(r, "hours", 24)
	limit := queryInt(r, "limit", 100)
	records := s.engine.GetRecentAnomalies(hours, limit)
	if records == nil {
		records = []*quality.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": records,
		"count":     len(records),
	})
}

// handleAnomalyByID routes /api/v1/anomalies/{id} and
// /api/v1/anomalies/{id}/repair.
func (s *Server) handleAnomalyByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/anomalies/")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		http.Error(w, "anomaly ID required", http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/repair"); ok {
		s.handleRepair(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec := s.engine.GetAnomaly(rest)
	if rec == nil {
		http.Error(w, "anomaly not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRepair triggers auto-repair for one anomaly:
// POST /api/v1/anomalies/{id}/repair
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.engine.AutoRepairAnomaly(r.Context(), id)
	if result == nil {
		// Preconditions failed: disabled, unknown, resolved, or no
		// qualifying suggestion. The engine logged the reason.
		writeJSON(w, http.StatusOK, map[string]any{
			"repaired": false,
			"result":   nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repaired": result.Success,
		"result":   result,
	})
}

// handleStatistics serves GET /api/v1/statistics.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.GetAnomalyStatistics())
}

// handleCleanup serves POST /api/v1/cleanup?days=30.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := queryInt(r, "days", s.config.Retention.HistoryDays)
	s.engine.CleanupOldRecords(r.Context(), days)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"days":   days,
	})
}

// buildTable converts the wire columns into a dataset table.
func buildTable(cols []ColumnPayload) (*dataset.Table, error) {
	if len(cols) == 0 {
		return dataset.New()
	}

	built := make([]*dataset.Column, 0, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column with empty name")
		}
		switch c.Kind {
		case "numeric", "":
			values := make([]float64, len(c.Values))
			null := make([]bool, len(c.Values))
			for i, v := range c.Values {
				switch x := v.(type) {
				case nil:
					null[i] = true
				case float64:
					values[i] = x
				default:
					return nil, fmt.Errorf("column %q: value %d is not numeric", c.Name, i)
				}
			}
			built = append(built, dataset.NumericColumnWithNulls(c.Name, values, null))

		case "timestamp":
			values := make([]time.Time, len(c.Values))
			for i, v := range c.Values {
				switch x := v.(type) {
				case string:
					t, err := time.Parse(time.RFC3339, x)
					if err != nil {
						return nil, fmt.Errorf("column %q: value %d: %w", c.Name, i, err)
					}
					values[i] = t
				case float64:
					values[i] = time.Unix(int64(x), 0).UTC()
				default:
					return nil, fmt.Errorf("column %q: value %d is not a timestamp", c.Name, i)
				}
			}
			built = append(built, dataset.TimestampColumn(c.Name, values))

		case "text":
			values := make([]string, len(c.Values))
			for i, v := range c.Values {
				if x, ok := v.(string); ok {
					values[i] = x
				} else if v != nil {
					return nil, fmt.Errorf("column %q: value %d is not text", c.Name, i)
				}
			}
			built = append(built, dataset.TextColumn(c.Name, values))

		default:
			return nil, fmt.Errorf("column %q: unknown kind %q", c.Name, c.Kind)
		}
	}
	return dataset.New(built...)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
