package models

// RecordsResponse is the response for GET /api/v1/records.
type RecordsResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Records []ScrapeRecord `json:"records"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// LookupResponse is the response for GET /api/v1/records/lookup.
type LookupResponse struct {
	Success  bool          `json:"success"`
	Key      ReportKey     `json:"key"`
	Recorded bool          `json:"recorded"`
	Record   *ScrapeRecord `json:"record,omitempty"`
	Error    *ErrorDetail  `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	LedgerPath string `json:"ledger_path"`
	Records    int    `json:"records"`
	Version    string `json:"version"`
}

// ErrorResponse is the generic failure envelope used by middleware.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
