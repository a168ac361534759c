package app

import (
	"io"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{args: nil, want: CommandServe},
		{args: []string{"serve"}, want: CommandServe},
		{args: []string{"migrate"}, want: CommandMigrate},
		{args: []string{"set-admin", "--email", "a@example.com"}, want: CommandSetAdmin},
		{args: []string{"set:admin", "a@example.com"}, want: CommandSetAdmin},
		{args: []string{"healthcheck"}, want: CommandHealthcheck},
		{args: []string{"worker"}, want: CommandServe},
		{args: []string{"migrate", "extra"}, want: CommandMigrate},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseSetAdminFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "long flag", args: []string{"--email", "admin@example.com"}, want: "admin@example.com"},
		{name: "short flag", args: []string{"-e", "admin@example.com"}, want: "admin@example.com"},
		{name: "equals form", args: []string{"--email= admin@example.com "}, want: "admin@example.com"},
		{name: "positional", args: []string{"admin@example.com"}, want: "admin@example.com"},
		{name: "missing", args: nil, wantErr: true},
		{name: "unknown flag", args: []string{"--name", "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSetAdminFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSetAdminFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSetAdminFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseMigrateFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    MigrateOptions
		wantErr bool
	}{
		{name: "default is up", args: nil, want: MigrateOptions{Steps: 1}},
		{name: "explicit up", args: []string{"up"}, want: MigrateOptions{Steps: 1}},
		{name: "down one step", args: []string{"down"}, want: MigrateOptions{Down: true, Steps: 1}},
		{name: "down with steps", args: []string{"down", "--steps", "3"}, want: MigrateOptions{Down: true, Steps: 3}},
		{name: "invalid steps", args: []string{"down", "-n", "0"}, wantErr: true},
		{name: "unknown direction", args: []string{"sideways"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMigrateFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMigrateFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMigrateFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
