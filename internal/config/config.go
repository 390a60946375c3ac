// Package config implements the validated, hot-reloadable configuration
// tree: a JSON root document the orchestrator owns exclusively, mutated
// through a validating update API and persisted to disk on every
// successful mutation.
package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Position identifies which physical thing a tracker is pointed at.
type Position string

const (
	PositionLeftEye   Position = "left_eye"
	PositionRightEye  Position = "right_eye"
	PositionMouth     Position = "mouth"
	PositionUndefined Position = "undefined"
)

func validPosition(p Position) bool {
	switch p {
	case PositionLeftEye, PositionRightEye, PositionMouth, PositionUndefined:
		return true
	}
	return false
}

// Algorithm names the closed set of detection strategies a tracker's
// algorithm chain may reference.
type Algorithm string

const (
	AlgorithmHSF    Algorithm = "HSF"
	AlgorithmBlob   Algorithm = "BLOB"
	AlgorithmLEAP   Algorithm = "LEAP"
	AlgorithmAHSF   Algorithm = "AHSF"
	AlgorithmHSRAC  Algorithm = "HSRAC"
	AlgorithmRANSAC Algorithm = "RANSAC"
)

func validAlgorithm(a Algorithm) bool {
	switch a {
	case AlgorithmHSF, AlgorithmBlob, AlgorithmLEAP, AlgorithmAHSF, AlgorithmHSRAC, AlgorithmRANSAC:
		return true
	}
	return false
}

// HSFParams holds the Haar Surround Feature tunables.
type HSFParams struct {
	Radius             int     `json:"radius"`
	StepX              int     `json:"step_x"`
	StepY              int     `json:"step_y"`
	RatioOuter         float64 `json:"ratio_outer"`
	KF                 float64 `json:"kf"`
	SkipAutoRadius     bool    `json:"skip_auto_radius"`
	SkipBlinkDetection bool    `json:"skip_blink_detection"`
	BlinkStatFrames    int     `json:"blink_stat_frames"`
}

func defaultHSFParams() HSFParams {
	return HSFParams{
		Radius:          20,
		StepX:           5,
		StepY:           5,
		RatioOuter:      3.0,
		KF:              1.0,
		BlinkStatFrames: 60,
	}
}

// AHSFParams configures the adaptive-HSF ellipse-fitting pass; it shares
// the coarse HSF tunables and adds the search-box expansion factor.
type AHSFParams struct {
	HSFParams
	ExpansionRatio float64 `json:"expansion_ratio"`
}

func defaultAHSFParams() AHSFParams {
	return AHSFParams{HSFParams: defaultHSFParams(), ExpansionRatio: 1.2}
}

// BlobParams configures the simple threshold-and-contour detector.
type BlobParams struct {
	Threshold int `json:"threshold"`
	MinSize   int `json:"min_size"`
	MaxSize   int `json:"max_size"`
}

func defaultBlobParams() BlobParams {
	return BlobParams{Threshold: 65, MinSize: 2, MaxSize: 25}
}

// LEAPParams configures the ONNX landmark detector.
type LEAPParams struct {
	ModelPath      string  `json:"model_path"`
	BlinkThreshold float64 `json:"blink_threshold"`
}

func defaultLEAPParams() LEAPParams {
	return LEAPParams{ModelPath: "models/leap.onnx", BlinkThreshold: 0.0}
}

// AlgorithmConfig is the per-tracker ordered detector chain plus each
// algorithm's sub-config.
type AlgorithmConfig struct {
	Order []Algorithm `json:"algorithm_order"`
	HSF   HSFParams   `json:"hsf"`
	Blob  BlobParams  `json:"blob"`
	LEAP  LEAPParams  `json:"leap"`
	AHSF  AHSFParams  `json:"ahsf"`
}

func defaultAlgorithmConfig() AlgorithmConfig {
	return AlgorithmConfig{
		Order: []Algorithm{AlgorithmHSF, AlgorithmBlob},
		HSF:   defaultHSFParams(),
		Blob:  defaultBlobParams(),
		LEAP:  defaultLEAPParams(),
		AHSF:  defaultAHSFParams(),
	}
}

func (a AlgorithmConfig) validate() error {
	if len(a.Order) == 0 {
		return fieldError("algorithm.algorithm_order", "must not be empty")
	}
	seen := make(map[Algorithm]bool, len(a.Order))
	for _, alg := range a.Order {
		if !validAlgorithm(alg) {
			return fieldError("algorithm.algorithm_order", fmt.Sprintf("unknown algorithm %q", alg))
		}
		if seen[alg] {
			return fieldError("algorithm.algorithm_order", fmt.Sprintf("duplicate algorithm %q", alg))
		}
		seen[alg] = true
	}
	return nil
}

// serialSourcePattern matches platform-dependent serial device identifiers:
// POSIX tty devices and Windows COM ports.
var serialSourcePattern = regexp.MustCompile(`^(/dev/(tty|cu)\.?\S+|COM\d+)$`)

// networkSourcePattern matches a scheme+host+port camera stream URL,
// "localhost" or a bare IPv4 address (optionally with port), or a local
// camera device index. Other bare hostnames are not matched.
var networkSourcePattern = regexp.MustCompile(`^(https?|rtsp)://[\w.\-]+(:\d+)?(/.*)?$|^(localhost|(\d{1,3}\.){3}\d{1,3})(:\d+)?$|^\d+$`)

func isSerialSource(s string) bool { return serialSourcePattern.MatchString(s) }

// IsSerialSource reports whether a capture_source string names a serial
// device rather than a local webcam index or network stream URL, so
// callers building a capture.Source know which implementation to use.
func IsSerialSource(s string) bool { return isSerialSource(s) }

// CameraConfig holds webcam/capture-source settings.
type CameraConfig struct {
	CaptureSource string  `json:"capture_source"`
	Rotation      float64 `json:"rotation"`
	Threshold     int     `json:"threshold"`
	FocalLength   float64 `json:"focal_length"`
	FlipX         bool    `json:"flip_x"`
	FlipY         bool    `json:"flip_y"`
	ROIX          int     `json:"roi_x"`
	ROIY          int     `json:"roi_y"`
	ROIW          int     `json:"roi_w"`
	ROIH          int     `json:"roi_h"`
}

func defaultCameraConfig() CameraConfig {
	return CameraConfig{Threshold: 65}
}

func (c CameraConfig) validate(path string) error {
	if c.ROIX < 0 || c.ROIY < 0 || c.ROIW < 0 || c.ROIH < 0 {
		return fieldError(path+".roi", "ROI fields must be non-negative")
	}
	if c.CaptureSource == "" {
		return nil
	}
	if isSerialSource(c.CaptureSource) {
		return nil
	}
	if networkSourcePattern.MatchString(c.CaptureSource) {
		return nil
	}
	return fieldError(path+".capture_source", fmt.Sprintf("unrecognized capture source %q", c.CaptureSource))
}

// OSCEndpoints holds the literal OSC address strings the transmitter and
// listener dispatch on.
type OSCEndpoints struct {
	EyesY         string `json:"eyes_y"`
	LeftEyeX      string `json:"left_eye_x"`
	RightEyeX     string `json:"right_eye_x"`
	LeftEyeBlink  string `json:"left_eye_blink"`
	RightEyeBlink string `json:"right_eye_blink"`
	Recenter      string `json:"recenter"`
	Recalibrate   string `json:"recalibrate"`
	SyncBlink     string `json:"sync_blink"`
}

func defaultOSCEndpoints() OSCEndpoints {
	return OSCEndpoints{
		EyesY:         "/avatar/parameters/EyesY",
		LeftEyeX:      "/avatar/parameters/LeftEyeX",
		RightEyeX:     "/avatar/parameters/RightEyeX",
		LeftEyeBlink:  "/avatar/parameters/LeftEyeLidExpandedSqueeze",
		RightEyeBlink: "/avatar/parameters/RightEyeLidExpandedSqueeze",
		Recenter:      "/avatar/parameters/etvr_recenter",
		Recalibrate:   "/avatar/parameters/etvr_recalibrate",
		SyncBlink:     "/avatar/parameters/etvr_sync_blink",
	}
}

// OSCConfig controls the OSC transmitter/listener pair.
type OSCConfig struct {
	Address              string       `json:"address"`
	SendingPort          int          `json:"sending_port"`
	ReceiverPort         int          `json:"receiver_port"`
	MirrorEyes           bool         `json:"mirror_eyes"`
	SyncBlink            bool         `json:"sync_blink"`
	EnableSending        bool         `json:"enable_sending"`
	EnableReceiving      bool         `json:"enable_receiving"`
	VRChatNativeTracking bool         `json:"vrchat_native_tracking"`
	Endpoints            OSCEndpoints `json:"endpoints"`
}

func defaultOSCConfig() OSCConfig {
	return OSCConfig{
		Address:       "127.0.0.1",
		SendingPort:   9000,
		ReceiverPort:  9001,
		EnableSending: true,
		Endpoints:     defaultOSCEndpoints(),
	}
}

var addressPattern = regexp.MustCompile(`^(localhost|(\d{1,3}\.){3}\d{1,3}|[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?)*)$`)

func (o OSCConfig) validate() error {
	if !addressPattern.MatchString(o.Address) {
		return fieldError("osc.address", fmt.Sprintf("invalid address %q", o.Address))
	}
	if o.SendingPort < 1 || o.SendingPort > 65535 {
		return fieldError("osc.sending_port", "must be in [1, 65535]")
	}
	if o.ReceiverPort < 1 || o.ReceiverPort > 65535 {
		return fieldError("osc.receiver_port", "must be in [1, 65535]")
	}
	return nil
}

// TrackerConfig is one end-to-end pipeline definition for a single
// position: a capture source, an algorithm chain, and the bookkeeping
// needed to address it from the outside (uuid) and the UI (name).
type TrackerConfig struct {
	Enabled   bool            `json:"enabled"`
	Name      string          `json:"name"`
	UUID      string          `json:"uuid"`
	Position  Position        `json:"position"`
	Camera    CameraConfig    `json:"camera"`
	Algorithm AlgorithmConfig `json:"algorithm"`
}

func newTrackerConfig(name string, position Position) TrackerConfig {
	return TrackerConfig{
		Enabled:   false,
		Name:      name,
		UUID:      uuid.NewString(),
		Position:  position,
		Camera:    defaultCameraConfig(),
		Algorithm: defaultAlgorithmConfig(),
	}
}

// RootConfig is the configuration document root: version, debug, affinity
// mask, the OSC pair, and the ordered tracker list.
type RootConfig struct {
	Version      int             `json:"version"`
	Debug        bool            `json:"debug"`
	AffinityMask uint64          `json:"affinity_mask"`
	OSC          OSCConfig       `json:"osc"`
	Trackers     []TrackerConfig `json:"trackers"`
}

const currentVersion = 1

// Default returns the default root configuration: one left-eye and one
// right-eye tracker, both disabled until a capture source is assigned.
func Default() *RootConfig {
	return &RootConfig{
		Version: currentVersion,
		OSC:     defaultOSCConfig(),
		Trackers: []TrackerConfig{
			newTrackerConfig("left_eye", PositionLeftEye),
			newTrackerConfig("right_eye", PositionRightEye),
		},
	}
}

// Clone returns a deep copy so callers (workers) can hold a private
// snapshot that the store will never mutate underneath them.
func (r *RootConfig) Clone() *RootConfig {
	clone := *r
	clone.Trackers = make([]TrackerConfig, len(r.Trackers))
	copy(clone.Trackers, r.Trackers)
	for i := range clone.Trackers {
		clone.Trackers[i].Algorithm.Order = append([]Algorithm(nil), r.Trackers[i].Algorithm.Order...)
	}
	return &clone
}

// ValidationError names the offending field path so callers (and the
// REST control plane, eventually) can report precisely what was wrong.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ErrNotFound is returned by GetTrackerByUUID/UpdateTracker/DeleteTracker
// when no tracker matches the given uuid.
var ErrNotFound = errors.New("tracker not found")

// normalizeAndValidate repairs auto-fixable invariant violations (empty
// uuids, duplicate uuids, duplicate enabled positions, undefined-position
// trackers left enabled) and then validates everything else, returning the
// repair warnings so the caller can log them.
func normalizeAndValidate(r *RootConfig) (warnings []string, err error) {
	if r.Version == 0 {
		r.Version = currentVersion
	}

	seenUUID := make(map[string]int) // uuid -> index of first owner
	seenPosition := make(map[Position]bool)

	for i := range r.Trackers {
		t := &r.Trackers[i]

		if t.UUID == "" {
			t.UUID = uuid.NewString()
			warnings = append(warnings, fmt.Sprintf("tracker %d: generated missing uuid", i))
		}
		if owner, dup := seenUUID[t.UUID]; dup {
			old := t.UUID
			t.UUID = uuid.NewString()
			warnings = append(warnings, fmt.Sprintf("tracker %d: duplicate uuid %q (shared with tracker %d), regenerated to %q", i, old, owner, t.UUID))
		}
		seenUUID[t.UUID] = i

		if !validPosition(t.Position) {
			t.Position = PositionUndefined
		}

		if t.Position == PositionUndefined && t.Enabled {
			t.Enabled = false
			warnings = append(warnings, fmt.Sprintf("tracker %d: forced disabled, position is undefined", i))
		}

		if t.Enabled && t.Position != PositionUndefined {
			if seenPosition[t.Position] {
				t.Enabled = false
				warnings = append(warnings, fmt.Sprintf("tracker %d: disabled, another enabled tracker already owns position %q", i, t.Position))
			} else {
				seenPosition[t.Position] = true
			}
		}

		if len(t.Algorithm.Order) == 0 {
			t.Algorithm = defaultAlgorithmConfig()
		}
	}

	if err := validate(r); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// validate runs every structural invariant without attempting repairs; used
// by mutation paths that must reject an invalid partial update wholesale
// rather than silently fixing it.
func validate(r *RootConfig) error {
	if err := r.OSC.validate(); err != nil {
		return err
	}

	uuids := make(map[string]bool, len(r.Trackers))
	positions := make(map[Position]bool)
	for i, t := range r.Trackers {
		path := fmt.Sprintf("trackers[%d]", i)
		if t.UUID == "" {
			return fieldError(path+".uuid", "must not be empty")
		}
		if uuids[t.UUID] {
			return fieldError(path+".uuid", fmt.Sprintf("duplicate uuid %q", t.UUID))
		}
		uuids[t.UUID] = true

		if !validPosition(t.Position) {
			return fieldError(path+".position", fmt.Sprintf("unknown position %q", t.Position))
		}
		if t.Position == PositionUndefined && t.Enabled {
			return fieldError(path+".enabled", "a tracker with position=undefined must be disabled")
		}
		if t.Enabled && t.Position != PositionUndefined {
			if positions[t.Position] {
				return fieldError(path+".position", fmt.Sprintf("position %q already has an enabled tracker", t.Position))
			}
			positions[t.Position] = true
		}

		if err := t.Camera.validate(path + ".camera"); err != nil {
			return err
		}
		if err := t.Algorithm.validate(); err != nil {
			return err
		}
	}
	return nil
}
