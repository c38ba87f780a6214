package validation

import (
	"testing"
	"time"

	"go-idv-capture/models"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)

func validPassport() models.ExtractedDocument {
	return models.ExtractedDocument{
		DocumentType:   "Passport",
		CountryCode:    "NGA",
		PassportNumber: "A12345678",
		Surname:        "ADEYEMI",
		GivenNames:     "CHIBUZO EMEKA",
		Nationality:    "NIGERIAN",
		NationalId:     "12345678901",
		Gender:         "M",
		PlaceOfBirth:   "LAGOS",
		DateOfBirth:    "23 OCT 94",
		DateOfExpiry:   "14 MAY 30",
	}
}

func TestValidatePassport(t *testing.T) {
	t.Run("well formed record is accepted", func(t *testing.T) {
		require.True(t, ValidatePassport(validPassport(), testNow))
	})

	t.Run("missing national id is accepted on older layouts", func(t *testing.T) {
		doc := validPassport()
		doc.NationalId = ""
		require.True(t, ValidatePassport(doc, testNow))
	})

	t.Run("national id with wrong length is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.NationalId = "123456"
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("wrong country code is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.CountryCode = "GHA"
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("non passport document type is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.DocumentType = "Drivers Licence"
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("multi character gender is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.Gender = "M LAGOS"
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("empty passport number is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.PassportNumber = ""
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("passport number with wrong length is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.PassportNumber = "A1234567"
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("expired document is rejected even when otherwise valid", func(t *testing.T) {
		doc := validPassport()
		doc.DateOfExpiry = "14 MAY 20"
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("unparseable expiry is rejected rather than panicking", func(t *testing.T) {
		doc := validPassport()
		doc.DateOfExpiry = "31 FEB 30"
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("empty surname is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.Surname = ""
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("empty given names are rejected", func(t *testing.T) {
		doc := validPassport()
		doc.GivenNames = ""
		require.False(t, ValidatePassport(doc, testNow))
	})

	t.Run("empty date of birth is rejected", func(t *testing.T) {
		doc := validPassport()
		doc.DateOfBirth = ""
		require.False(t, ValidatePassport(doc, testNow))
	})
}

func TestVerdict(t *testing.T) {
	t.Run("acceptance routes to selfie capture", func(t *testing.T) {
		status := Verdict(validPassport(), testNow)
		require.Equal(t, models.StatusCodeSuccess, status.Code)
		require.Equal(t, "success", status.Message)
		require.Equal(t, models.NextStepSelfieCapture, status.NextStep)
	})

	t.Run("rejection routes back to document capture", func(t *testing.T) {
		doc := validPassport()
		doc.PassportNumber = ""
		status := Verdict(doc, testNow)
		require.Equal(t, models.StatusCodeFailure, status.Code)
		require.Equal(t, "invalid data", status.Message)
		require.Equal(t, models.NextStepDocumentFront, status.NextStep)
	})
}
