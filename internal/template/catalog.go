package template

// Variable is descriptive metadata for one recognized substitution key.
// The catalog is presented to operators; it is not consulted by Build.
type Variable struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Sample      string `json:"sample"`
}

// DefaultTemplate is the starting outreach template for a fresh workspace.
const DefaultTemplate = `Hey {{first_name}}! Absolutely loved your latest post about {{topic}}. We're launching a campaign with creators who align with {{brand_values}} and would be thrilled to collaborate with you. Can I send more details?`

// DefaultVariables are the custom variables seeded on first run.
func DefaultVariables() map[string]string {
	return map[string]string{
		"topic":        "your wellness journey",
		"brand_values": "meaningful partnerships with wellness creators",
	}
}

// Catalog lists the recognized variables with operator-facing copy.
func Catalog() []Variable {
	return []Variable{
		{
			Key:         "first_name",
			Label:       "First name",
			Description: "Automatically extracted from the contact name.",
			Sample:      "Jamie",
		},
		{
			Key:         "full_name",
			Label:       "Full name",
			Description: "Complete name stored for the contact.",
			Sample:      "Jamie Rivera",
		},
		{
			Key:         "handle",
			Label:       "Instagram handle",
			Description: "@handle stored for the recipient.",
			Sample:      "creatorlife",
		},
		{
			Key:         "topic",
			Label:       "Campaign topic",
			Description: "Outline what resonated with you in their content.",
			Sample:      "sustainable skincare",
		},
		{
			Key:         "brand_values",
			Label:       "Brand values",
			Description: "Share your brand focus or campaign positioning.",
			Sample:      "eco-conscious partnerships",
		},
	}
}
