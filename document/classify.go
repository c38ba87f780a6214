package document

import (
	"strings"

	"go-idv-capture/models"

	"golang.org/x/text/cases"
)

// DocumentType is the coarse classification of a recognized text block.
type DocumentType string

const (
	TypePassport       DocumentType = "Passport"
	TypeDriversLicence DocumentType = "Drivers Licence"
	TypeNationalID     DocumentType = "National ID"
	TypeUnknown        DocumentType = "Unknown"
)

// SupportedCountryName is the only country with an extraction template.
const SupportedCountryName = "Nigeria"

// DetectCountry scans the recognized text for any known country name,
// case-insensitively under Unicode case folding so that names with
// diacritics still match. Returns the matched reference name, or the
// empty string when no known country appears.
func DetectCountry(text string, countries []models.Country) string {
	folder := cases.Fold()
	folded := folder.String(text)
	for _, country := range countries {
		if country.Name == "" {
			continue
		}
		if strings.Contains(folded, folder.String(country.Name)) {
			return country.Name
		}
	}
	return ""
}

// DetectDocumentType classifies the text block by keyword markers.
func DetectDocumentType(text string) DocumentType {
	lowered := strings.ToLower(text)
	switch {
	case strings.Contains(lowered, "passport"):
		return TypePassport
	case strings.Contains(lowered, "drivers licence"):
		return TypeDriversLicence
	case strings.Contains(lowered, "national id"):
		return TypeNationalID
	default:
		return TypeUnknown
	}
}

// DetectLayout distinguishes the pre-redesign printed layout from the
// current one. Old-layout passports carry a bilingual "Type / Type"
// marker on the second recognized line.
func DetectLayout(lines []string) LayoutVersion {
	if len(lines) < 2 {
		return LayoutNew
	}
	if strings.Contains(strings.TrimSpace(lines[1]), "Type / Type") {
		return LayoutOld
	}
	return LayoutNew
}
