package main

import "testing"

func TestRootCmdDefaults(t *testing.T) {
	cmd := newRootCmd()

	host, err := cmd.Flags().GetString("host")
	if err != nil || host != "localhost" {
		t.Fatalf("unexpected host default: %q, err=%v", host, err)
	}

	port, err := cmd.Flags().GetInt("port")
	if err != nil || port != 8080 {
		t.Fatalf("unexpected port default: %d, err=%v", port, err)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		verbosity int
		want      string
	}{
		{0, "warning"},
		{1, "info"},
		{2, "debug"},
		{5, "debug"},
	}
	for _, c := range cases {
		log := newLogger(c.verbosity)
		if log.GetLevel().String() != c.want {
			t.Fatalf("verbosity %d: got level %q, want %q", c.verbosity, log.GetLevel().String(), c.want)
		}
	}
}
