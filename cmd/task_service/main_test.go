package main

import "testing"

func TestSetupLogger(t *testing.T) {
	for _, env := range []string{envLocal, envDev, envProd, "staging", ""} {
		if setupLogger(env) == nil {
			t.Fatalf("setupLogger(%q) returned nil", env)
		}
	}
}
