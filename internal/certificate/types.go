package certificate

import "io"

// Input is the caller-supplied credential record for one issuance attempt.
// Dates are ISO-8601 day strings (2025-01-10).
type Input struct {
	Name             string   `json:"name" validate:"required"`
	Description      string   `json:"description"`
	IssuerName       string   `json:"issuerName" validate:"required"`
	IssuerAddress    string   `json:"issuerAddress" validate:"omitempty,eth_addr"`
	RecipientName    string   `json:"recipientName" validate:"required"`
	RecipientAddress string   `json:"recipientAddress" validate:"required,eth_addr"`
	IssueDate        string   `json:"issueDate" validate:"required"`
	ExpirationDate   string   `json:"expirationDate,omitempty"`
	Category         string   `json:"category,omitempty"`
	CredentialID     string   `json:"credentialId,omitempty"`
	Skills           []string `json:"skills,omitempty"`
}

// ImageSource is the certificate artwork to pin alongside the metadata.
// Content is read exactly once.
type ImageSource struct {
	Name        string
	ContentType string
	Content     io.Reader
}
