package services

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ValidationHelper wraps the validator instance shared across handlers
type ValidationHelper struct {
	validate *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{validate: validator.New()}
}

// ValidateStruct validates a struct against its validate tags
func (v *ValidationHelper) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// APIResponse is the standard JSON envelope for all endpoints
type APIResponse struct {
	OK     bool        `json:"ok"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Machine-readable reason codes returned alongside HTTP errors
const (
	ReasonFlipAlreadyUsed     = "VOTE_LOCKED_FLIP_ALREADY_USED"
	ReasonVoteWindowExpired   = "VOTE_LOCKED_WINDOW_EXPIRED"
	ReasonSelfVote            = "CANNOT_VOTE_OWN_COMMENT"
	ReasonAlreadyProcessed    = "ALREADY_PROCESSED"
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// SendJSONResponse writes a success envelope
func SendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{OK: true, Data: data}); err != nil {
		log.Printf("[RESPONSE] failed to encode response: %v", err)
	}
}

// SendErrorResponse writes an error envelope
func SendErrorResponse(w http.ResponseWriter, status int, message string) {
	SendErrorWithReason(w, status, message, "")
}

// SendErrorWithReason writes an error envelope with a machine-readable reason code
func SendErrorWithReason(w http.ResponseWriter, status int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{OK: false, Error: message, Reason: reason}); err != nil {
		log.Printf("[RESPONSE] failed to encode error response: %v", err)
	}
}
