package server

// Request types for WebSocket commands with validation tags.

// TextQueryRequest is the request body for query/text.
type TextQueryRequest struct {
	Text string `json:"text" validate:"required,max=512"`
}

// EventsRequest is the request body for events/get.
type EventsRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=capture query error"`
}

// AudioInputRequest is the request body for audio/input.
type AudioInputRequest struct {
	Input string `json:"input" validate:"max=256"`
}
