package store

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strconv"
	"time"
)

// Collection names declared by the store. The set is fixed at compile time;
// there is no runtime schema creation.
const (
	Households      = "households"
	Participants    = "participants"
	Samples         = "samples"
	Surveys         = "surveys"
	LabResults      = "lab_results"
	SampleTypes     = "sample_types"
	TeamMembers     = "team_members"
	ProjectMetadata = "project_metadata"
	AppSettings     = "app_settings"
)

var collections = []string{
	Households,
	Participants,
	Samples,
	Surveys,
	LabResults,
	SampleTypes,
	TeamMembers,
	ProjectMetadata,
	AppSettings,
}

// Collections returns the declared collection names in a stable order.
func Collections() []string {
	return slices.Clone(collections)
}

// ValidateCollection returns an UnknownCollectionError for undeclared names.
func ValidateCollection(name string) error {
	if !slices.Contains(collections, name) {
		return &UnknownCollectionError{Collection: name}
	}
	return nil
}

// NewRecordID returns a client-side id: the creation time in base36
// milliseconds followed by a random hex suffix.
func NewRecordID(now time.Time) string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + hex.EncodeToString(b[:])
}
