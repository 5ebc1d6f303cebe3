// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package git

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// VerifyHostKey dials host:22 and checks its presented host key against
// knownHostsPath, used before a project configured with an ssh:// remote is
// cloned for the first time. Projects cloned over HTTPS (the default, via
// CloneOrPull's x-access-token auth) never need this.
func VerifyHostKey(host, knownHostsPath string) error {
	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return fmt.Errorf("git: load known_hosts %s: %w", knownHostsPath, err)
	}

	addr := net.JoinHostPort(host, "22")
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("git: dial %s: %w", addr, err)
	}
	defer conn.Close()

	clientConn, _, _, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            "git",
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: callback,
		Timeout:         10 * time.Second,
	})
	if err != nil {
		// Auth always fails (no credentials offered); what matters is
		// whether the host key callback rejected the server's key first.
		if _, ok := err.(*knownhosts.KeyError); ok {
			return fmt.Errorf("git: host key verification failed for %s: %w", host, err)
		}
		return nil
	}
	clientConn.Close()
	return nil
}
