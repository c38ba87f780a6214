package document

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go-idv-capture/models"
	"go-idv-capture/validation"
)

const msgUnsupportedDocument = "Unsupported document type"

// Extract turns a newline-delimited block of recognized text into a
// structured, validated document record. It never panics on short or
// malformed input: every failure mode is encoded in the returned
// status, so a bad OCR result cannot abort the session.
func Extract(raw string, countries []models.Country, now time.Time) models.ExtractedDocument {
	country := DetectCountry(raw, countries)
	if country != SupportedCountryName {
		slog.Debug("No supported country detected in document text", "matched", country)
		return unsupportedDocument()
	}

	docType := DetectDocumentType(raw)
	if docType != TypePassport {
		slog.Debug("Unsupported document type detected", "document_type", docType)
		return unsupportedDocument()
	}

	lines := splitLines(raw)
	layout := DetectLayout(lines)
	slog.Debug("Extracting passport fields", "layout", layout, "line_count", len(lines))

	doc, err := extractPassport(lines, layout)
	if err != nil {
		slog.Warn("Passport extraction failed", "layout", layout, "error", err)
		doc.Status = models.FailureStatus(fmt.Sprintf("failed to process passport data: %v", err))
		return doc
	}

	doc.Status = validation.Verdict(doc, now)
	return doc
}

func unsupportedDocument() models.ExtractedDocument {
	return models.ExtractedDocument{Status: models.FailureStatus(msgUnsupportedDocument)}
}

func splitLines(raw string) []string {
	lines := strings.Split(raw, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

// extractPassport walks the offset table for the detected layout and
// assigns each templated line index to its field. The line list is
// normalized first so the lookup itself stays a pure index match.
func extractPassport(lines []string, layout LayoutVersion) (models.ExtractedDocument, error) {
	offsets := layoutOffsets[layout]
	lines = normalizeGenderLine(lines, offsets[FieldGender])

	doc := models.ExtractedDocument{DocumentType: string(TypePassport)}

	for field, index := range offsets {
		if index < 0 || index >= len(lines) {
			continue
		}
		value := lines[index]

		if dateFields[field] {
			normalized, err := normalizeDateLine(value)
			if err != nil {
				return doc, fmt.Errorf("%s: %w", field, err)
			}
			value = normalized
		}

		switch field {
		case FieldType:
			doc.Type = value
		case FieldCountryCode:
			doc.CountryCode = value
		case FieldPassportNumber:
			doc.PassportNumber = value
		case FieldPreviousPassportNumber:
			doc.PreviousPassportNumber = value
		case FieldSurname:
			doc.Surname = value
		case FieldGivenNames:
			doc.GivenNames = value
		case FieldNationality:
			doc.Nationality = value
		case FieldNationalId:
			doc.NationalId = value
		case FieldDateOfBirth:
			doc.DateOfBirth = value
		case FieldGender:
			doc.Gender = value
		case FieldPlaceOfBirth:
			doc.PlaceOfBirth = value
		case FieldAuthority:
			doc.Authority = value
		case FieldDateOfIssue:
			doc.DateOfIssue = value
		case FieldDateOfExpiry:
			doc.DateOfExpiry = value
		}
	}

	return doc, nil
}

// normalizeGenderLine compensates for the analysis service sometimes
// merging the gender character and the place of birth onto one line.
// The offset table assumes one field per line, so the merged line is
// split in two: the gender character stays at its templated index and
// the place-of-birth token is spliced in right after it, keeping every
// later index aligned. Returns a new slice; the input is not mutated.
func normalizeGenderLine(lines []string, genderIndex int) []string {
	if genderIndex < 0 || genderIndex >= len(lines) {
		return lines
	}

	line := lines[genderIndex]
	if len(line) <= 1 || !strings.Contains(line, " ") {
		return lines
	}

	parts := strings.SplitN(line, " ", 2)
	gender := strings.TrimSpace(parts[0])
	placeOfBirth := strings.TrimSpace(parts[1])

	normalized := make([]string, 0, len(lines)+1)
	normalized = append(normalized, lines[:genderIndex]...)
	normalized = append(normalized, gender, placeOfBirth)
	normalized = append(normalized, lines[genderIndex+1:]...)

	slog.Debug("Split merged gender line", "index", genderIndex, "gender", gender, "place_of_birth", placeOfBirth)
	return normalized
}

// normalizeDateLine reduces a printed date line to "DD MMM YY". The raw
// line embeds a redundant bilingual date pair separated by a slash,
// e.g. "23 OCT/OCT 94": the day and month abbreviation come from the
// part before the slash, the two-digit year from the token after the
// month repetition.
func normalizeDateLine(line string) (string, error) {
	parts := strings.Split(line, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("malformed date line %q", line)
	}

	dayMonth := strings.TrimSpace(parts[0])
	tail := strings.Fields(strings.TrimSpace(parts[1]))
	if dayMonth == "" || len(tail) < 2 {
		return "", fmt.Errorf("malformed date line %q", line)
	}

	return dayMonth + " " + tail[1], nil
}
