package handler

import (
	"strings"

	"credreg/internal/schema/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

// RegisterSchemaRequest is the body of POST /schemas.
type RegisterSchemaRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Version     string         `json:"version"`
	Fields      []models.Field `json:"fields"`
	IsActive    *bool          `json:"isActive"`

	parsedID id.SchemaID
}

// Validate implements httputil.Validatable. Field-level checks happen in
// models.Schema.Prepare so every definition problem is reported together.
func (r *RegisterSchemaRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	schemaID, err := id.ParseSchemaID(r.ID)
	if err != nil {
		return err
	}
	r.parsedID = schemaID
	r.Name = strings.TrimSpace(r.Name)
	r.Version = strings.TrimSpace(r.Version)
	if r.Version == "" {
		r.Version = "1.0"
	}
	return nil
}

// ToSchema builds the schema to publish. Schemas are active unless the
// request says otherwise.
func (r *RegisterSchemaRequest) ToSchema() models.Schema {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return models.Schema{
		ID:          r.parsedID,
		Name:        r.Name,
		Description: strings.TrimSpace(r.Description),
		Version:     r.Version,
		Fields:      r.Fields,
		IsActive:    active,
	}
}
