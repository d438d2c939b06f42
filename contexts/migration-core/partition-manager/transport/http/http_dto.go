package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProvisionPartitionRequest carries either a hash bucket (modulus/remainder)
// or a range bucket month ("2006-01"), never both.
type ProvisionPartitionRequest struct {
	Modulus   int    `json:"modulus,omitempty"`
	Remainder int    `json:"remainder,omitempty"`
	Month     string `json:"month,omitempty"`
}

type RetirePartitionRequest struct {
	Modulus   int    `json:"modulus,omitempty"`
	Remainder int    `json:"remainder,omitempty"`
	Month     string `json:"month,omitempty"`
}

type PartitionDTO struct {
	PartitionID string `json:"partition_id"`
	EntityType  string `json:"entity_type"`
	Scheme      string `json:"scheme"`
	Status      string `json:"status"`
	Modulus     int    `json:"modulus,omitempty"`
	Remainder   int    `json:"remainder,omitempty"`
	RangeStart  string `json:"range_start,omitempty"`
	RangeNext   string `json:"range_next,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type PartitionResponse struct {
	Status string       `json:"status"`
	Data   PartitionDTO `json:"data"`
}

type PartitionsResponse struct {
	Status string         `json:"status"`
	Data   []PartitionDTO `json:"data"`
}
