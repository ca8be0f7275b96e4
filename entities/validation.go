package entities

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// DeviceTestInput is the user-supplied shape of a device test, as staged by
// the add and edit forms before it is committed.
type DeviceTestInput struct {
	SerialNumber    string     `json:"serial_number"`
	IMEI            string     `json:"imei"`
	SoftwareVersion string     `json:"software_version"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	TotalHours      float64    `json:"total_hours"`
	BeforeBattery   int        `json:"before_battery"`
	AfterBattery    int        `json:"after_battery"`
	Status          Status     `json:"status"`
	Remarks         string     `json:"remarks"`
	Notes           string     `json:"notes"`
}

// NewInput returns the defaults of a fresh add form.
func NewInput() DeviceTestInput {
	return DeviceTestInput{BeforeBattery: 100, Status: StatusPending}
}

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// Validator is the single gate for constructing a DeviceTest from input.
// An empty AllowedVersions accepts any software version (free-text variant).
type Validator struct {
	AllowedVersions []string
}

// NewValidator returns a validator restricted to the given versions.
func NewValidator(versions []string) Validator {
	return Validator{AllowedVersions: versions}
}

// Validate checks and normalizes in. Battery levels are clamped to [0,100];
// everything else that is wrong is reported through *ValidationError.
func (v Validator) Validate(in DeviceTestInput) (*DeviceTest, error) {
	verr := &ValidationError{}

	sn := strings.TrimSpace(in.SerialNumber)
	if sn == "" {
		verr.add("serial_number", "is required")
	}
	imei := strings.TrimSpace(in.IMEI)
	if imei == "" {
		verr.add("imei", "is required")
	}

	version := strings.TrimSpace(in.SoftwareVersion)
	if version != "" && len(v.AllowedVersions) > 0 && !slices.Contains(v.AllowedVersions, version) {
		verr.add("software_version", fmt.Sprintf("must be one of %s", strings.Join(v.AllowedVersions, ", ")))
	}

	status := Status(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		verr.add("status", fmt.Sprintf("unknown status %q", in.Status))
	}

	if in.TotalHours < 0 {
		verr.add("total_hours", "must not be negative")
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		verr.add("end_time", "must not be before start_time")
	}
	if status == StatusCompleted && in.EndTime == nil {
		verr.add("end_time", "is required when status is completed")
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	return &DeviceTest{
		SerialNumber:    sn,
		IMEI:            imei,
		SoftwareVersion: version,
		StartTime:       copyTime(in.StartTime),
		EndTime:         copyTime(in.EndTime),
		TotalHours:      in.TotalHours,
		BeforeBattery:   ClampBattery(in.BeforeBattery),
		AfterBattery:    ClampBattery(in.AfterBattery),
		Status:          status,
		Remarks:         strings.TrimSpace(in.Remarks),
		Notes:           in.Notes,
	}, nil
}

// ClampBattery pins a battery percentage to [0,100].
func ClampBattery(level int) int {
	return min(max(level, 0), 100)
}
