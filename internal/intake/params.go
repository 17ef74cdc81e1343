package intake

// Params is the immutable record a consultation is started with.
type Params struct {
	ProviderName     string `json:"doctor_name"`
	ConsultationType string `json:"consultation_type"`
	Specialty        string `json:"specialty"`
	AgeGroup         string `json:"age_group"`
	Gender           string `json:"gender"`
	ClinicName       string `json:"clinic_name"`
}

// Defaults returns the draft every new form starts from.
func Defaults() Params {
	return Params{
		ProviderName:     "Dr. Emily Johnson",
		ConsultationType: "child_allergy",
		Specialty:        "pediatrics",
		AgeGroup:         "child",
		Gender:           "both",
		ClinicName:       "Metro Allergy Clinic",
	}
}

// Option is a selectable value and its display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options groups the choices offered by the select fields of the form.
type Options struct {
	ConsultationTypes []Option `json:"consultation_types"`
	Specialties       []Option `json:"specialties"`
	AgeGroups         []Option `json:"age_groups"`
	Genders           []Option `json:"genders"`
}

func DefaultOptions() Options {
	return Options{
		ConsultationTypes: []Option{
			{Value: "child_allergy", Label: "Child Allergy Consultation"},
			{Value: "adult_allergy", Label: "Adult Allergy Consultation"},
			{Value: "child_vaccination", Label: "Child Vaccination"},
			{Value: "general_consultation", Label: "General Consultation"},
		},
		Specialties: []Option{
			{Value: "pediatrics", Label: "Pediatrics"},
			{Value: "internal_medicine", Label: "Internal Medicine"},
			{Value: "allergy", Label: "Allergy & Immunology"},
			{Value: "general", Label: "General Practice"},
		},
		AgeGroups: []Option{
			{Value: "child", Label: "Child (0-18 years)"},
			{Value: "adult", Label: "Adult (18+ years)"},
			{Value: "both", Label: "Both"},
		},
		Genders: []Option{
			{Value: "male", Label: "Male"},
			{Value: "female", Label: "Female"},
			{Value: "both", Label: "Both"},
		},
	}
}

// Label returns the display label for value, or value itself when unknown.
func Label(options []Option, value string) string {
	for _, o := range options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}
