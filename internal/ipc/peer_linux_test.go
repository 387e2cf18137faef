//go:build linux

package ipc

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerCredentialsSameUser(t *testing.T) {
	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()

	client, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer client.Close()

	conn, ok := <-accepted
	require.True(t, ok)
	defer conn.Close()

	cred, err := GetPeerCredentials(conn)
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), cred.UID)
	assert.Equal(t, os.Getpid(), cred.PID)
	assert.NoError(t, verifyPeer(conn))
}

func TestPeerCredentialsNotUnix(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	_, err := GetPeerCredentials(a)
	assert.Error(t, err)
}
