package validation

import (
	"log/slog"
	"time"

	"go-idv-capture/models"
)

const (
	// SupportedCountryCode is the ISO 3166-1 alpha-3 code of the only
	// issuing country with an extraction template.
	SupportedCountryCode = "NGA"

	documentTypePassport = "Passport"
	passportNumberLength = 9
	nationalIdLength     = 11
)

// ValidatePassport applies the field-level and cross-field acceptance
// rules to an extracted passport record. The national-ID number is
// optional (the older printed layout does not carry it) but must be
// exactly 11 characters when present. Date parsing failures are folded
// into a plain rejection rather than propagated.
func ValidatePassport(doc models.ExtractedDocument, now time.Time) bool {
	if doc.CountryCode != SupportedCountryCode {
		return false
	}
	if doc.DocumentType != documentTypePassport {
		return false
	}
	if len(doc.Gender) != 1 {
		return false
	}
	if doc.NationalId != "" && len(doc.NationalId) != nationalIdLength {
		return false
	}
	if len(doc.PassportNumber) != passportNumberLength {
		return false
	}

	expiry, err := ParseDocumentDate(doc.DateOfExpiry)
	if err != nil {
		slog.Debug("Rejecting document with unparseable expiry date", "error", err)
		return false
	}
	if IsExpired(expiry, now) {
		return false
	}

	return doc.DateOfBirth != "" && doc.Surname != "" && doc.GivenNames != ""
}

// Verdict turns the validation outcome into the status record the
// session routes on: acceptance begins the selfie capture, rejection
// sends the user back to document capture.
func Verdict(doc models.ExtractedDocument, now time.Time) models.Status {
	if ValidatePassport(doc, now) {
		return models.SuccessStatus(models.NextStepSelfieCapture)
	}
	return models.FailureStatus("invalid data")
}
