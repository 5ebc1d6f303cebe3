// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package git

import (
	"path/filepath"
	"testing"
)

func TestVerifyHostKeyMissingKnownHostsFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	if err := VerifyHostKey("github.com", missing); err == nil {
		t.Fatal("expected an error loading a nonexistent known_hosts file")
	}
}
