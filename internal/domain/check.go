package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/fieldsync/internal/store"
)

// FieldError reports a domain field whose JSON type does not match the
// collection's record type.
type FieldError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Collection, e.Field, e.Reason)
}

var recordTypes = map[string]func() any{
	store.Households:      func() any { return new(Household) },
	store.Participants:    func() any { return new(Participant) },
	store.Samples:         func() any { return new(Sample) },
	store.Surveys:         func() any { return new(Survey) },
	store.LabResults:      func() any { return new(LabResult) },
	store.SampleTypes:     func() any { return new(SampleType) },
	store.TeamMembers:     func() any { return new(TeamMember) },
	store.ProjectMetadata: func() any { return new(ProjectMetadata) },
	store.AppSettings:     func() any { return new(AppSetting) },
}

// Check decodes fields into the collection's record type and fails on the
// first value of the wrong type. Fields the type does not declare pass
// through untouched, as do system fields, which the store overwrites.
func Check(collection string, fields map[string]any) error {
	newRecord, ok := recordTypes[collection]
	if !ok {
		return &store.UnknownCollectionError{Collection: collection}
	}
	domainFields := make(map[string]any, len(fields))
	for k, v := range fields {
		if !store.IsSystemField(k) {
			domainFields[k] = v
		}
	}
	raw, err := json.Marshal(domainFields)
	if err != nil {
		return fmt.Errorf("%s: encode fields: %w", collection, err)
	}
	var typeErr *json.UnmarshalTypeError
	if err := json.Unmarshal(raw, newRecord()); errors.As(err, &typeErr) {
		return &FieldError{
			Collection: collection,
			Field:      typeErr.Field,
			Reason:     fmt.Sprintf("want %s, got %s", typeErr.Type, typeErr.Value),
		}
	} else if err != nil {
		return &FieldError{Collection: collection, Reason: err.Error()}
	}
	return nil
}
