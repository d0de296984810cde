package models

// Requests for the analysis HTTP endpoints. Defined in domain for reuse by the CLI.

type StartBatchRequest struct {
	Name        string   `json:"name"`
	Instruments []string `json:"instruments"`
	Limit       int      `json:"limit" default:"100" validate:"gte=1,lte=10000"`
	Strategies  []string `json:"strategies"`
	Concurrency int      `json:"concurrency" validate:"gte=0,lte=256"`
	Days        int      `json:"days" default:"30" validate:"gte=1,lte=365"`
}

type BatchResultsRequest struct {
	ID     string `param:"id" validate:"required,uuid"`
	Signal string `query:"signal" validate:"omitempty,oneof=BUY SELL HOLD buy sell hold"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=1000"`
}

type InstrumentAnalysisRequest struct {
	Code       string `param:"code" validate:"required"`
	Strategies string `query:"strategies"`
	Days       int    `query:"days" default:"30" validate:"gte=1,lte=365"`
	Refresh    bool   `query:"refresh"`
}

type SignalStatsRequest struct {
	Strategy string `query:"strategy"`
	Days     int    `query:"days" default:"7" validate:"gte=1,lte=365"`
}
