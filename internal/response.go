package internal

import "github.com/sensiblebit/efirma"

// ErrorResponse is returned by every boundary when an operation fails
// before producing a result.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewErrorResponse wraps err with its machine-readable code.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Code: efirma.ErrorCode(err)}
}

// PackResponse carries a packed container as base64 with its metadata.
type PackResponse struct {
	OK       bool                     `json:"ok" yaml:"ok"`
	Base64   string                   `json:"base64" yaml:"base64"`
	Metadata efirma.ContainerMetadata `json:"metadata" yaml:"metadata"`
}

// UnpackRequest is the body of a decode request.
type UnpackRequest struct {
	Base64   string `json:"base64" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UnpackResponse carries the metadata of an unpacked container.
type UnpackResponse struct {
	OK       bool                     `json:"ok" yaml:"ok"`
	Metadata efirma.ContainerMetadata `json:"metadata" yaml:"metadata"`
}
