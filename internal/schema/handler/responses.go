package handler

import (
	"credreg/internal/schema/models"
	id "credreg/pkg/domain"
)

type SchemaListResponse struct {
	Schemas []models.Schema `json:"schemas"`
	Total   int             `json:"total"`
}

type HistoryResponse struct {
	SchemaID id.SchemaID           `json:"schemaId"`
	Entries  []models.HistoryEntry `json:"entries"`
}
