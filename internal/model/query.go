package model

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	Query          string `json:"query" validate:"required,min=1"`
	GeminiFileName string `json:"geminiFileName" validate:"required"`
}

// QueryResponse is the answer to a follow-up question
type QueryResponse struct {
	Answer string `json:"answer"`
}
