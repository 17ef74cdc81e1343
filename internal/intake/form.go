package intake

import (
	"errors"
	"fmt"
	"strings"
)

// Form field names, matching the JSON keys the backend expects.
const (
	FieldProviderName     = "doctor_name"
	FieldConsultationType = "consultation_type"
	FieldSpecialty        = "specialty"
	FieldAgeGroup         = "age_group"
	FieldGender           = "gender"
	FieldClinicName       = "clinic_name"
)

// Fields lists every form field in display order. All of them are required.
func Fields() []string {
	return []string{
		FieldProviderName,
		FieldConsultationType,
		FieldSpecialty,
		FieldAgeGroup,
		FieldGender,
		FieldClinicName,
	}
}

var ErrSubmitDisabled = errors.New("a consultation start is already pending")

// ValidationError lists every required field that was left blank.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Form holds the mutable draft behind the intake screen.
type Form struct {
	draft Params
}

func NewForm() *Form {
	return &Form{draft: Defaults()}
}

// NewFormFrom starts a form from a caller-supplied draft instead of the defaults.
func NewFormFrom(draft Params) *Form {
	return &Form{draft: draft}
}

func (f *Form) Draft() Params { return f.draft }

func (f *Form) Set(field, value string) error {
	switch field {
	case FieldProviderName:
		f.draft.ProviderName = value
	case FieldConsultationType:
		f.draft.ConsultationType = value
	case FieldSpecialty:
		f.draft.Specialty = value
	case FieldAgeGroup:
		f.draft.AgeGroup = value
	case FieldGender:
		f.draft.Gender = value
	case FieldClinicName:
		f.draft.ClinicName = value
	default:
		return fmt.Errorf("unknown intake field %q", field)
	}
	return nil
}

// Validate reports blank fields. All fields are required.
func (f *Form) Validate() error {
	return Validate(f.draft)
}

func Validate(p Params) error {
	fields := []struct {
		name  string
		value string
	}{
		{FieldProviderName, p.ProviderName},
		{FieldConsultationType, p.ConsultationType},
		{FieldSpecialty, p.Specialty},
		{FieldAgeGroup, p.AgeGroup},
		{FieldGender, p.Gender},
		{FieldClinicName, p.ClinicName},
	}
	var missing []string
	for _, fld := range fields {
		if strings.TrimSpace(fld.value) == "" {
			missing = append(missing, fld.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// SubmitEnabled mirrors the submit button: disabled while a start is pending.
func SubmitEnabled(starting bool) bool {
	return !starting
}

// Submit validates the draft and returns the params to start a consultation with.
func (f *Form) Submit(starting bool) (Params, error) {
	if !SubmitEnabled(starting) {
		return Params{}, ErrSubmitDisabled
	}
	if err := f.Validate(); err != nil {
		return Params{}, err
	}
	return Params{
		ProviderName:     strings.TrimSpace(f.draft.ProviderName),
		ConsultationType: strings.TrimSpace(f.draft.ConsultationType),
		Specialty:        strings.TrimSpace(f.draft.Specialty),
		AgeGroup:         strings.TrimSpace(f.draft.AgeGroup),
		Gender:           strings.TrimSpace(f.draft.Gender),
		ClinicName:       strings.TrimSpace(f.draft.ClinicName),
	}, nil
}
