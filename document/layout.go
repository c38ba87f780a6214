package document

// LayoutVersion identifies which printed field arrangement a passport
// uses. The issuing authority revised the layout at some point, moving
// several fields to different line positions and adding the national
// identification number.
type LayoutVersion string

const (
	LayoutOld LayoutVersion = "old"
	LayoutNew LayoutVersion = "new"
)

// Field names a positionally extracted value.
type Field string

const (
	FieldType                   Field = "type"
	FieldCountryCode            Field = "country_code"
	FieldPassportNumber         Field = "passport_number"
	FieldSurname                Field = "surname"
	FieldGivenNames             Field = "given_names"
	FieldNationality            Field = "nationality"
	FieldPreviousPassportNumber Field = "previous_passport_number"
	FieldDateOfBirth            Field = "date_of_birth"
	FieldNationalId             Field = "national_id"
	FieldGender                 Field = "gender"
	FieldPlaceOfBirth           Field = "place_of_birth"
	FieldAuthority              Field = "authority"
	FieldDateOfIssue            Field = "date_of_issue"
	FieldDateOfExpiry           Field = "date_of_expiry"
)

// dateFields carry a redundant numeric/alpha date pair on one line and
// need normalization before validation.
var dateFields = map[Field]bool{
	FieldDateOfBirth:  true,
	FieldDateOfIssue:  true,
	FieldDateOfExpiry: true,
}

// layoutOffsets maps each field to its fixed line index per layout
// version. The engine has no semantic understanding of the text; the
// top-to-bottom ordering produced by the analysis service is
// load-bearing.
var layoutOffsets = map[LayoutVersion]map[Field]int{
	LayoutOld: {
		FieldType:           5,
		FieldCountryCode:    7,
		FieldPassportNumber: 8,
		FieldSurname:        10,
		FieldGivenNames:     12,
		FieldNationality:    15,
		FieldDateOfBirth:    18,
		FieldGender:         21,
		FieldPlaceOfBirth:   22,
		FieldAuthority:      23,
		FieldDateOfIssue:    26,
		FieldDateOfExpiry:   28,
	},
	LayoutNew: {
		FieldType:                   5,
		FieldCountryCode:            6,
		FieldPassportNumber:         7,
		FieldSurname:                9,
		FieldGivenNames:             11,
		FieldNationality:            14,
		FieldPreviousPassportNumber: 15,
		FieldDateOfBirth:            18,
		FieldNationalId:             19,
		FieldGender:                 21,
		FieldPlaceOfBirth:           22,
		FieldDateOfIssue:            25,
		FieldAuthority:              26,
		FieldDateOfExpiry:           29,
	},
}
