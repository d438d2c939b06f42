package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AdvanceStageRequest struct {
	Confirm bool `json:"confirm,omitempty"`
}

type StageDTO struct {
	EntityType string `json:"entity_type"`
	Stage      string `json:"stage"`
}

type StageResponse struct {
	Status string   `json:"status"`
	Data   StageDTO `json:"data"`
}
