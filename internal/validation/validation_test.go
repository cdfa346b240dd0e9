package validation

import (
	"testing"
)

func TestValidateUUID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid UUID", "550e8400-e29b-41d4-a716-446655440000", false},
		{"valid UUID uppercase", "550E8400-E29B-41D4-A716-446655440000", false},
		{"empty", "", true},
		{"not a UUID", "not-a-uuid", true},
		{"path traversal attempt", "../../../etc/passwd", true},
		{"SQL injection attempt", "'; DROP TABLE sessions; --", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUUID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUUID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Short prefixed format
		{"valid session", "sess_a1b2c3d4", false},
		{"valid session uppercase hex", "sess_A1B2C3D4", false},
		// UUID format also accepted
		{"valid UUID session", "550e8400-e29b-41d4-a716-446655440000", false},
		// Invalid formats
		{"empty", "", true},
		{"prefix only", "sess_", true},
		{"short suffix", "sess_a1b2", true},
		{"long suffix", "sess_a1b2c3d4e5", true},
		{"non-hex suffix", "sess_ghijklmn", true},
		{"not a valid ID", "not-valid", true},
		{"path traversal attempt", "sess_../../etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateScheduleID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid schedule", "sched_deadbeef", false},
		{"valid uppercase hex", "sched_DEADBEEF", false},
		{"empty", "", true},
		{"prefix only", "sched_", true},
		{"wrong prefix", "sess_deadbeef", true},
		{"short suffix", "sched_abc", true},
		{"non-hex suffix", "sched_zzzzzzzz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScheduleID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScheduleID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"simple path", "foo/bar", "foo/bar", false},
		{"single component", "filename.txt", "filename.txt", false},
		{"with underscore", "my_file.txt", "my_file.txt", false},
		{"with dash", "my-file.txt", "my-file.txt", false},
		{"trailing slash", "foo/bar/", "foo/bar/", false},
		{"empty", "", "", true},
		{"path traversal", "../../../etc/passwd", "", true},
		{"path traversal in middle", "foo/../../../etc/passwd", "", true},
		{"absolute path", "/etc/passwd", "", true},
		{"unsafe chars semicolon", "foo;rm -rf /", "", true},
		{"unsafe chars space", "foo bar", "", true},
		{"unsafe chars ampersand", "foo&bar", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizePath() = %v, want %v", got, tt.want)
			}
		})
	}
}
