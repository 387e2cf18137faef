//go:build linux

package main

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type componentDoc struct {
	Name    string `xml:"name"`
	Exec    string `xml:"exec"`
	Version string `xml:"version"`
	Engines []struct {
		Name     string `xml:"name"`
		Language string `xml:"language"`
	} `xml:"engines>engine"`
}

func TestComponentXML(t *testing.T) {
	out := componentXML("org.freedesktop.IBus.Kanaime", "kanaime", "/opt/kana & co/kanaime-ibus -ibus")

	var doc componentDoc
	require.NoError(t, xml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "org.freedesktop.IBus.Kanaime", doc.Name)
	assert.Equal(t, "/opt/kana & co/kanaime-ibus -ibus", doc.Exec)
	assert.Equal(t, version, doc.Version)
	require.Len(t, doc.Engines, 1)
	assert.Equal(t, "kanaime", doc.Engines[0].Name)
	assert.Equal(t, "ja", doc.Engines[0].Language)
}

func TestInstallUninstallComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ibus", "component", "kanaime.xml")

	require.NoError(t, installComponent(path, "bus", "engine", "/bin/true"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<exec>/bin/true</exec>")

	require.NoError(t, uninstallComponent(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, uninstallComponent(path), "removing twice is not an error")
}
