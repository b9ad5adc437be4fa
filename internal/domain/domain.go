// Package domain declares the record types stored in each collection. The
// sync core never inspects these fields; they exist so callers get typed
// access through store.Collection.
package domain

import (
	"context"
	"time"

	"github.com/matheus3301/fieldsync/internal/store"
)

// Household is a surveyed dwelling, the root of a field visit.
type Household struct {
	store.Record
	Code      string  `json:"code"`
	Address   string  `json:"address"`
	Village   string  `json:"village,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Members   int     `json:"members"`
}

// Participant is a household member enrolled in the study.
type Participant struct {
	store.Record
	HouseholdID string `json:"householdId"`
	Name        string `json:"name"`
	Sex         string `json:"sex,omitempty"`
	BirthYear   int    `json:"birthYear,omitempty"`
	Consented   bool   `json:"consented"`
}

// Sample is a specimen collected from a participant and tracked by barcode.
type Sample struct {
	store.Record
	ParticipantID string    `json:"participantId"`
	SampleTypeID  string    `json:"sampleTypeId"`
	Barcode       string    `json:"barcode"`
	VolumeML      float64   `json:"volumeMl,omitempty"`
	CollectedAt   time.Time `json:"collectedAt,omitzero"`
	Notes         string    `json:"notes,omitempty"`
}

// Survey is one completed questionnaire. Answers are keyed by question id.
type Survey struct {
	store.Record
	HouseholdID   string         `json:"householdId"`
	ParticipantID string         `json:"participantId,omitempty"`
	Form          string         `json:"form"`
	Answers       map[string]any `json:"answers,omitempty"`
	CompletedAt   time.Time      `json:"completedAt,omitzero"`
}

// LabResult is an assay outcome reported against a sample.
type LabResult struct {
	store.Record
	SampleID   string         `json:"sampleId"`
	Assay      string         `json:"assay"`
	Result     string         `json:"result"`
	Values     map[string]any `json:"values,omitempty"`
	ReportedAt time.Time      `json:"reportedAt,omitzero"`
}

// SampleType is reference data describing a kind of specimen.
type SampleType struct {
	store.Record
	Name          string  `json:"name"`
	Container     string  `json:"container,omitempty"`
	DefaultVolume float64 `json:"defaultVolumeMl,omitempty"`
}

// TeamMember is a field collector or supervisor.
type TeamMember struct {
	store.Record
	Name   string `json:"name"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`
	Active bool   `json:"active"`
}

// ProjectMetadata describes the study the device is enrolled in.
type ProjectMetadata struct {
	store.Record
	Name      string `json:"name"`
	Protocol  string `json:"protocol,omitempty"`
	Site      string `json:"site,omitempty"`
	StartDate string `json:"startDate,omitempty"`
}

// AppSetting is a key/value preference synced across devices.
type AppSetting struct {
	store.Record
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Collections groups the typed views of every collection.
type Collections struct {
	Households      *store.Collection[Household]
	Participants    *store.Collection[Participant]
	Samples         *store.Collection[Sample]
	Surveys         *store.Collection[Survey]
	LabResults      *store.Collection[LabResult]
	SampleTypes     *store.Collection[SampleType]
	TeamMembers     *store.Collection[TeamMember]
	ProjectMetadata *store.Collection[ProjectMetadata]
	AppSettings     *store.Collection[AppSetting]
}

// Bind returns typed views over db. The collection names are the store's
// declared constants, so Bind only fails if those drift apart.
func Bind(db *store.DB) (*Collections, error) {
	var (
		c   Collections
		err error
	)
	if c.Households, err = store.Bind[Household](db, store.Households); err != nil {
		return nil, err
	}
	if c.Participants, err = store.Bind[Participant](db, store.Participants); err != nil {
		return nil, err
	}
	if c.Samples, err = store.Bind[Sample](db, store.Samples); err != nil {
		return nil, err
	}
	if c.Surveys, err = store.Bind[Survey](db, store.Surveys); err != nil {
		return nil, err
	}
	if c.LabResults, err = store.Bind[LabResult](db, store.LabResults); err != nil {
		return nil, err
	}
	if c.SampleTypes, err = store.Bind[SampleType](db, store.SampleTypes); err != nil {
		return nil, err
	}
	if c.TeamMembers, err = store.Bind[TeamMember](db, store.TeamMembers); err != nil {
		return nil, err
	}
	if c.ProjectMetadata, err = store.Bind[ProjectMetadata](db, store.ProjectMetadata); err != nil {
		return nil, err
	}
	if c.AppSettings, err = store.Bind[AppSetting](db, store.AppSettings); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParticipantsOf returns the participants enrolled in a household.
func (c *Collections) ParticipantsOf(ctx context.Context, householdID string) ([]*Participant, error) {
	all, err := c.Participants.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Participant
	for _, p := range all {
		if p.HouseholdID == householdID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Setting returns the value of an app setting, or nil when unset.
func (c *Collections) Setting(ctx context.Context, key string) (any, error) {
	all, err := c.AppSettings.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Key == key {
			return s.Value, nil
		}
	}
	return nil, nil
}
