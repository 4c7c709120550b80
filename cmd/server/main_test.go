package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"dev.c0redev.chalresp/internal/config"
	"dev.c0redev.chalresp/internal/crypto"
	"dev.c0redev.chalresp/internal/store"
)

func testConfig(t *testing.T) *config.ServerConfig {
	t.Helper()
	t.Setenv("CHALRESP_DB", "")
	cfg, err := config.LoadServer([]byte("[Listener]\nAddress = \"127.0.0.1:0\"\n[Logging]\nDisable = true\n"))
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "chalresp.db")
	return cfg
}

func TestParseKey(t *testing.T) {
	raw, err := parseKey("Jw0vMS6vG6kka0gl")
	require.NoError(t, err)
	require.Equal(t, crypto.Key{'J', 'w', '0', 'v', 'M', 'S', '6', 'v', 'G', '6', 'k', 'k', 'a', '0', 'g', 'l'}, raw)

	hex, err := parseKey("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	require.Equal(t, crypto.Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, hex)

	_, err = parseKey("short")
	require.Error(t, err)
	_, err = parseKey("zz0102030405060708090a0b0c0d0e0f")
	require.Error(t, err)
}

func TestAddUserAndAttempts(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, addUser(cfg, "alice", "Jw0vMS6vG6kka0gl"))
	require.NoError(t, addUser(cfg, "alice", "000102030405060708090a0b0c0d0e0f"))
	require.Error(t, addUser(cfg, "", "Jw0vMS6vG6kka0gl"))
	require.Error(t, addUser(cfg, "averyverylongname", "Jw0vMS6vG6kka0gl"))
	require.Error(t, addUser(cfg, "bob", "short"))

	db, err := store.Open(cfg.Database.Path)
	require.NoError(t, err)
	k, ok, err := db.KeyFor("alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, crypto.Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, k)
	require.NoError(t, db.RecordAttempt(&store.Attempt{Login: "alice", Op: "*", Left: 6, Right: 7, Expected: 42, Verdict: "success"}))
	require.NoError(t, db.Close())

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, listAttempts(cmd, cfg, "alice", 10))
	require.Contains(t, out.String(), "VERDICT")
	require.Contains(t, out.String(), "6 * 7")
	require.Contains(t, out.String(), "42")
	require.Contains(t, out.String(), "success")
}

func TestServeShutdown(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeMetricsListenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Address = "127.0.0.1:-1"
	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), cfg) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return on a listener error")
	}
}
