package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BackfillRequest struct {
	Cursor    string `json:"cursor,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

type BackfillDTO struct {
	EntityType string `json:"entity_type"`
	RowsCopied int    `json:"rows_copied"`
	NextCursor string `json:"next_cursor"`
	Done       bool   `json:"done"`
}

type BackfillResponse struct {
	Status string      `json:"status"`
	Data   BackfillDTO `json:"data"`
}

type ParityRecordDTO struct {
	NaturalKey string   `json:"natural_key"`
	Class      string   `json:"class"`
	Fields     []string `json:"fields,omitempty"`
}

type ParityReportDTO struct {
	EntityType string            `json:"entity_type"`
	Clean      bool              `json:"clean"`
	Mismatched []ParityRecordDTO `json:"mismatched"`
}

type ParityReportResponse struct {
	Status string          `json:"status"`
	Data   ParityReportDTO `json:"data"`
}

type RepairRequest struct {
	NaturalKeys []string `json:"natural_keys"`
}

type RepairDTO struct {
	EntityType string `json:"entity_type"`
	RowsCopied int    `json:"rows_copied"`
}

type RepairResponse struct {
	Status string    `json:"status"`
	Data   RepairDTO `json:"data"`
}
