package models

import "net/http"

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// MutationResponse is the envelope every mutation answers with.
type MutationResponse struct {
	Code    int          `json:"code"`
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func OK(message string) MutationResponse {
	return MutationResponse{Code: http.StatusOK, Success: true, Message: message}
}

func Fail(code int, message string, errs ...FieldError) MutationResponse {
	return MutationResponse{Code: code, Success: false, Message: message, Errors: errs}
}

type UserMutationResponse struct {
	MutationResponse
	User *UserView `json:"user,omitempty"`
}

type PostMutationResponse struct {
	MutationResponse
	Post *PostView `json:"post,omitempty"`
}

type VoteMutationResponse struct {
	MutationResponse
	Score *int `json:"score,omitempty"`
}
