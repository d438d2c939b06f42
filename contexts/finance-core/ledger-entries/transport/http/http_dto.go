package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateEntryRequest struct {
	EntityType  string `json:"entity_type"`
	OrgID       string `json:"org_id"`
	EntryDate   string `json:"entry_date"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

type UpdateEntryRequest struct {
	AmountCents *int64  `json:"amount_cents,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ApproveEntryRequest struct {
	ApprovedBy string `json:"approved_by"`
}

type EntryDTO struct {
	EntryID     string `json:"entry_id"`
	EntityType  string `json:"entity_type"`
	OrgID       string `json:"org_id"`
	EntryDate   string `json:"entry_date"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	ApprovedBy  string `json:"approved_by,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type EntryResponse struct {
	Status string   `json:"status"`
	Data   EntryDTO `json:"data"`
}

type EntriesResponse struct {
	Status string     `json:"status"`
	Data   []EntryDTO `json:"data"`
}

type UpsertBalanceRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type BalanceDTO struct {
	OrgID       string `json:"org_id"`
	BalanceDate string `json:"balance_date"`
	AmountCents int64  `json:"amount_cents"`
	UpdatedAt   string `json:"updated_at"`
}

type BalanceResponse struct {
	Status string     `json:"status"`
	Data   BalanceDTO `json:"data"`
}
