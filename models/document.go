package models

// DocumentAnalysis is the raw result of the remote document-analysis
// service: the recognized text lines in top-to-bottom reading order,
// plus the raw newline-joined block.
type DocumentAnalysis struct {
	Lines []string `json:"lines"`
	Raw   string   `json:"raw"`
}

// ExtractedDocument is the structured result of parsing recognized
// document text. It is created fresh per capture attempt and never
// mutated after construction.
type ExtractedDocument struct {
	DocumentType           string `json:"document_type,omitempty"`
	Type                   string `json:"type,omitempty"`
	CountryCode            string `json:"country_code,omitempty"`
	PassportNumber         string `json:"passport_number,omitempty"`
	PreviousPassportNumber string `json:"previous_passport_number,omitempty"`
	Surname                string `json:"surname,omitempty"`
	GivenNames             string `json:"given_names,omitempty"`
	Nationality            string `json:"nationality,omitempty"`
	NationalId             string `json:"national_id,omitempty"`
	Gender                 string `json:"gender,omitempty"`
	PlaceOfBirth           string `json:"place_of_birth,omitempty"`
	DateOfBirth            string `json:"date_of_birth,omitempty"`
	DateOfIssue            string `json:"date_of_issue,omitempty"`
	DateOfExpiry           string `json:"date_of_expiry,omitempty"`
	Authority              string `json:"authority,omitempty"`

	Status Status `json:"status"`
}

// Country is one entry of the reference country list fetched from the
// identity service.
type Country struct {
	Name string `json:"name"`
	Code string `json:"code"` // ISO 3166-1 alpha-3
}
