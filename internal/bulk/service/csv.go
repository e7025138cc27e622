package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"credreg/internal/bulk/models"
	schemamodels "credreg/internal/schema/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

const recipientColumn = "recipientDid"

// ParseCSV reads bulk rows from a CSV document whose header names a
// recipientDid column and any number of claim columns. Cell values are
// coerced to the type the schema declares for the column; empty cells are
// omitted from the claims. Any malformed recipient rejects the whole input.
func ParseCSV(r io.Reader, schema *schemamodels.Schema) ([]models.Input, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeValidation, "csv input is empty")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid csv")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	recipientIdx := -1
	for i, col := range header {
		if col == recipientColumn {
			recipientIdx = i
			break
		}
	}
	if recipientIdx < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "csv header must contain a recipientDid column")
	}

	var (
		inputs   []models.Input
		problems = map[string]string{}
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid csv")
		}
		if blank(row) {
			continue
		}

		// Problems are keyed by the file line the record starts on.
		line, _ := reader.FieldPos(0)
		rowKey := fmt.Sprintf("row %d", line)
		recipient := strings.TrimSpace(cell(row, recipientIdx))
		if _, err := id.ParseDID(recipient); err != nil {
			problems[rowKey] = fmt.Sprintf("invalid recipientDid %q", recipient)
			continue
		}

		claims := map[string]any{}
		for i, col := range header {
			if i == recipientIdx || col == "" {
				continue
			}
			raw := strings.TrimSpace(cell(row, i))
			if raw == "" {
				continue
			}
			v, err := coerce(schema, col, raw)
			if err != nil {
				problems[rowKey+" "+col] = err.Error()
				continue
			}
			claims[col] = v
		}
		inputs = append(inputs, models.Input{RecipientDID: recipient, Claims: claims})
	}

	if len(problems) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "csv contains invalid rows").WithFields(problems)
	}
	if len(inputs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "csv contains no records")
	}
	return inputs, nil
}

// coerce converts a cell to the schema's declared type. Columns the schema
// does not declare stay strings.
func coerce(schema *schemamodels.Schema, column, raw string) (any, error) {
	if schema == nil {
		return raw, nil
	}
	field, ok := schema.Field(column)
	if !ok {
		return raw, nil
	}
	switch field.Type {
	case schemamodels.FieldNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return n, nil
	case schemamodels.FieldBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %q", raw)
		}
		return b, nil
	case schemamodels.FieldArray:
		parts := strings.Split(raw, ";")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
