package manifest

// Package manifest describes the per-vehicle document held in object storage.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAccessDenied reports that object storage refused the manifest because the
// caller lacks the required entitlements.
var ErrAccessDenied = errors.New("manifest access denied")

// Manifest is the decoded manifest document. Only the fields the operator view
// uses are typed; the full document is kept in Raw.
type Manifest struct {
	DocumentControl DocumentControl `json:"documentControl"`
	Vehicle         Vehicle         `json:"vehicle"`
	Mission         Mission         `json:"mission"`
	Intelligence    Intelligence    `json:"intelligence"`

	Summary Summary        `json:"summary"`
	Raw     map[string]any `json:"raw,omitempty"`
}

// DocumentControl carries the marking and provenance of a manifest.
type DocumentControl struct {
	ManifestID        string   `json:"manifestId"`
	Classification    string   `json:"classification"`
	Caveats           []string `json:"caveats"`
	OriginatingAgency string   `json:"originatingAgency"`
	CreatedBy         string   `json:"createdBy"`
	CreatedAt         string   `json:"createdAt"`
	DeclassifyOn      string   `json:"declassifyOn"`
}

// Platform identifies the airframe type.
type Platform struct {
	Designation string `json:"designation"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Service     string `json:"service"`
}

// Vehicle identifies the individual airframe and its operator.
type Vehicle struct {
	Platform          Platform `json:"platform"`
	Registration      string   `json:"registration"`
	TailNumber        string   `json:"tailNumber"`
	Operator          string   `json:"operator"`
	HomeStation       string   `json:"homeStation"`
	ICAOHex           string   `json:"icaoHex"`
	Mode5Interrogator string   `json:"mode5Interrogator"`
}

// Timeline holds the planned mission times as sent by the gateway, unparsed.
type Timeline struct {
	Takeoff          string `json:"takeoff"`
	OnStation        string `json:"onStation"`
	OffStation       string `json:"offStation"`
	ExpectedRecovery string `json:"expectedRecovery"`
}

// Airspace describes where the mission is cleared to operate.
type Airspace struct {
	OperatingArea   string   `json:"operatingArea"`
	AltitudeBlock   string   `json:"altitudeBlock"`
	RestrictedAreas []string `json:"restrictedAreas"`
}

// Mission is the tasking the vehicle is flying.
type Mission struct {
	MissionID        string   `json:"missionId"`
	MissionType      string   `json:"missionType"`
	Priority         string   `json:"priority"`
	MissionStatus    string   `json:"missionStatus"`
	OperationName    string   `json:"operationName"`
	CommandAuthority string   `json:"commandAuthority"`
	TaskingOrder     string   `json:"taskingOrder"`
	Timeline         Timeline `json:"timeline"`
	Airspace         Airspace `json:"airspace"`
}

// Intelligence lists collection requirements. Target deck entries are free-form.
type Intelligence struct {
	CollectionDiscipline  []string         `json:"collectionDiscipline"`
	TargetDeck            []map[string]any `json:"targetDeck"`
	ReportingInstructions string           `json:"reportingInstructions"`
}

// Summary is the short vehicle identity shown next to a trail.
// Nil means the manifest did not carry the field.
type Summary struct {
	Registration *string `json:"registration"`
	Operator     *string `json:"operator"`
}

// Location is a parsed s3://bucket/key URI.
type Location struct {
	Bucket string
	Key    string
}

// ParseURI splits an s3://bucket/key URI.
func ParseURI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return Location{}, fmt.Errorf("invalid S3 URI: %q", uri)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid S3 URI: %q", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}
