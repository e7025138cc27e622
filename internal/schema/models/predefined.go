package models

// Predefined returns the schemas seeded at startup. Each call returns fresh
// values so callers may mutate them.
func Predefined() []Schema {
	return []Schema{
		{
			ID:          "web3-bootcamp",
			Name:        "Web3 Bootcamp Completion",
			Description: "Certificate for completing a Web3 development bootcamp",
			Version:     "1.0",
			IsActive:    true,
			Fields: []Field{
				{Name: "courseName", Type: FieldString, Required: true, Description: "Name of the completed course"},
				{Name: "completionDate", Type: FieldDate, Required: true, Description: "Date of completion"},
				{Name: "skillLevel", Type: FieldString, Required: true, Description: "Achieved skill level"},
				{Name: "instructor", Type: FieldString, Required: false, Description: "Course instructor"},
			},
		},
		{
			ID:          "project-verification",
			Name:        "Project Contribution Verification",
			Description: "Verification of contribution to a project",
			Version:     "1.0",
			IsActive:    true,
			Fields: []Field{
				{Name: "projectName", Type: FieldString, Required: true, Description: "Name of the project"},
				{Name: "role", Type: FieldString, Required: true, Description: "Role in the project"},
				{Name: "contributionDate", Type: FieldDate, Required: true, Description: "Date of contribution"},
				{Name: "technologies", Type: FieldArray, Required: false, Description: "Technologies used"},
			},
		},
		{
			ID:          "professional-cert",
			Name:        "Professional Certification",
			Description: "Professional certification credential",
			Version:     "1.0",
			IsActive:    true,
			Fields: []Field{
				{Name: "certificationName", Type: FieldString, Required: true, Description: "Name of the certification"},
				{Name: "issuingOrganization", Type: FieldString, Required: true, Description: "Organization that issued the certification"},
				{Name: "issueDate", Type: FieldDate, Required: true, Description: "Date the certification was issued"},
				{Name: "expirationDate", Type: FieldDate, Required: false, Description: "Expiration date of the certification"},
			},
		},
	}
}
