package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != currentVersion {
		t.Errorf("expected version %d, got %d", currentVersion, cfg.Version)
	}
	if len(cfg.Trackers) != 2 {
		t.Fatalf("expected 2 default trackers, got %d", len(cfg.Trackers))
	}
	if cfg.Trackers[0].Position != PositionLeftEye {
		t.Errorf("expected first tracker position left_eye, got %s", cfg.Trackers[0].Position)
	}
	if cfg.Trackers[1].Position != PositionRightEye {
		t.Errorf("expected second tracker position right_eye, got %s", cfg.Trackers[1].Position)
	}
	if cfg.Trackers[0].UUID == "" || cfg.Trackers[0].UUID == cfg.Trackers[1].UUID {
		t.Error("expected distinct non-empty uuids")
	}
	if cfg.Trackers[0].Enabled {
		t.Error("expected default trackers to start disabled")
	}
	if err := validate(cfg); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestOpen_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("expected config file to be written, stat error: %v", statErr)
	}
	if len(s.Current().Trackers) != 2 {
		t.Errorf("expected 2 trackers from defaults")
	}
}

func TestOpen_CorruptFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(path + ".backup"); statErr != nil {
		t.Errorf("expected corrupt file to be quarantined to .backup, stat error: %v", statErr)
	}
	if len(s.Current().Trackers) != 2 {
		t.Error("expected defaults after quarantine")
	}
}

func TestOpen_RepairsDuplicateUUID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	root := Default()
	root.Trackers[1].UUID = root.Trackers[0].UUID
	writeRoot(t, path, root)

	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cur := s.Current()
	if cur.Trackers[0].UUID == cur.Trackers[1].UUID {
		t.Error("expected duplicate uuid to be repaired")
	}
}

func TestOpen_RepairsUndefinedPositionEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	root := Default()
	root.Trackers[0].Position = PositionUndefined
	root.Trackers[0].Enabled = true
	writeRoot(t, path, root)

	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Current().Trackers[0].Enabled {
		t.Error("expected tracker with undefined position to be forced disabled")
	}
}

func TestStore_UpdateRejectsInvalidMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := s.Current()

	err = s.Update(func(r *RootConfig) {
		r.OSC.SendingPort = 0
	})
	if err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}

	after := s.Current()
	if after.OSC.SendingPort != before.OSC.SendingPort {
		t.Error("expected document to remain unchanged after a rejected update")
	}
}

func TestStore_UpdateTrackerPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := s.Current().Trackers[0].UUID
	if err := s.UpdateTracker(id, func(t *TrackerConfig) {
		t.Camera.CaptureSource = "0"
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	tr, err := reopened.GetTrackerByUUID(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Camera.CaptureSource != "0" {
		t.Errorf("expected persisted capture_source '0', got %q", tr.Camera.CaptureSource)
	}
}

func TestStore_DeleteTrackerNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DeleteTracker("does-not-exist"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestValidate_EnabledPositionConflict(t *testing.T) {
	root := Default()
	root.Trackers[0].Position = PositionLeftEye
	root.Trackers[0].Enabled = true
	root.Trackers[1].Position = PositionLeftEye
	root.Trackers[1].Enabled = true

	if err := validate(root); err == nil {
		t.Error("expected error for two enabled trackers sharing a position")
	}
}

func TestValidate_AlgorithmOrderRejectsUnknownAndDuplicate(t *testing.T) {
	root := Default()
	root.Trackers[0].Algorithm.Order = []Algorithm{"NOT_REAL"}
	if err := validate(root); err == nil {
		t.Error("expected error for unknown algorithm")
	}

	root = Default()
	root.Trackers[0].Algorithm.Order = []Algorithm{AlgorithmHSF, AlgorithmHSF}
	if err := validate(root); err == nil {
		t.Error("expected error for duplicate algorithm")
	}

	root = Default()
	root.Trackers[0].Algorithm.Order = nil
	if err := validate(root); err == nil {
		t.Error("expected error for empty algorithm order")
	}
}

func TestCameraConfig_ValidateCaptureSource(t *testing.T) {
	cases := []struct {
		source string
		wantOK bool
	}{
		{"", true},
		{"0", true},
		{"/dev/ttyUSB0", true},
		{"COM3", true},
		{"192.168.1.50", true},
		{"rtsp://192.168.1.50:554/stream", true},
		{"not a valid source!!", false},
	}
	for _, tc := range cases {
		c := CameraConfig{CaptureSource: tc.source}
		err := c.validate("camera")
		if tc.wantOK && err != nil {
			t.Errorf("source %q: expected valid, got error: %v", tc.source, err)
		}
		if !tc.wantOK && err == nil {
			t.Errorf("source %q: expected error, got nil", tc.source)
		}
	}
}

func writeRoot(t *testing.T, path string, root *RootConfig) {
	t.Helper()
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
