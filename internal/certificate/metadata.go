package certificate

import "fmt"

const (
	// Marshalled into every metadata document; bump on schema changes.
	metadataVersion = "1.0.0"

	externalURLBase = "https://certik.app/certificate/"

	ipfsScheme = "ipfs://"
)

// Attribute is one trait/value pair in the metadata attribute list.
type Attribute struct {
	TraitType   string `json:"trait_type"`
	Value       string `json:"value"`
	DisplayType string `json:"display_type,omitempty"`
}

// Metadata is the canonical ERC-721 style document pinned for a certificate.
// Field order is fixed so two builds from identical input serialize to
// identical bytes and therefore hash to the same content identifier.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	ExternalURL string      `json:"external_url"`
	Attributes  []Attribute `json:"attributes"`
	Properties  Properties  `json:"properties"`
}

// Properties carries the structured sub-records mirrored out of Input.
type Properties struct {
	Issuer      Party              `json:"issuer"`
	Recipient   Party              `json:"recipient"`
	Certificate CertificateDetails `json:"certificate"`
	Version     string             `json:"version"`
}

type Party struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type CertificateDetails struct {
	IssueDate      string   `json:"issueDate"`
	ExpirationDate string   `json:"expirationDate,omitempty"`
	CredentialID   string   `json:"credentialId,omitempty"`
	Category       string   `json:"category,omitempty"`
	Skills         []string `json:"skills,omitempty"`
}

// BuildMetadata derives the metadata document from an input record and the
// content identifier of the already-pinned image. Pure and deterministic:
// no I/O, no clocks, no randomness.
func BuildMetadata(input Input, imageCID string) Metadata {
	slug := input.CredentialID
	if slug == "" {
		slug = "view"
	}

	return Metadata{
		Name:        input.Name,
		Description: input.Description,
		Image:       ipfsScheme + imageCID,
		ExternalURL: externalURLBase + slug,
		Attributes:  buildAttributes(input),
		Properties: Properties{
			Issuer: Party{
				Name:    input.IssuerName,
				Address: input.IssuerAddress,
			},
			Recipient: Party{
				Name:    input.RecipientName,
				Address: input.RecipientAddress,
			},
			Certificate: CertificateDetails{
				IssueDate:      input.IssueDate,
				ExpirationDate: input.ExpirationDate,
				CredentialID:   input.CredentialID,
				Category:       input.Category,
				Skills:         input.Skills,
			},
			Version: metadataVersion,
		},
	}
}

// buildAttributes keeps a fixed ordering: issuer, recipient, issue date,
// then the optional traits, then one entry per skill in input order.
func buildAttributes(input Input) []Attribute {
	attributes := []Attribute{
		{TraitType: "Issuer", Value: input.IssuerName},
		{TraitType: "Recipient", Value: input.RecipientName},
		{TraitType: "Issue Date", Value: input.IssueDate, DisplayType: "date"},
	}

	if input.ExpirationDate != "" {
		attributes = append(attributes, Attribute{
			TraitType:   "Expiration Date",
			Value:       input.ExpirationDate,
			DisplayType: "date",
		})
	}
	if input.Category != "" {
		attributes = append(attributes, Attribute{TraitType: "Category", Value: input.Category})
	}
	if input.CredentialID != "" {
		attributes = append(attributes, Attribute{TraitType: "Credential ID", Value: input.CredentialID})
	}
	for i, skill := range input.Skills {
		attributes = append(attributes, Attribute{
			TraitType: fmt.Sprintf("Skill %d", i+1),
			Value:     skill,
		})
	}

	return attributes
}
