//go:build linux

package main

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

const version = "0.3.0"

const componentTemplate = `<?xml version="1.0" encoding="utf-8"?>
<component>
    <name>%s</name>
    <description>Kanaime Japanese Input Method</description>
    <exec>%s</exec>
    <version>%s</version>
    <author>Kanaime</author>
    <license>MIT</license>
    <textdomain>kanaime</textdomain>
    <engines>
        <engine>
            <name>%s</name>
            <language>ja</language>
            <license>MIT</license>
            <author>Kanaime</author>
            <icon>kanaime</icon>
            <layout>jp</layout>
            <longname>Kanaime</longname>
            <description>Romaji to kana-kanji conversion</description>
            <rank>80</rank>
            <symbol>あ</symbol>
        </engine>
    </engines>
</component>
`

func escape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// componentXML renders the IBus component description.
func componentXML(busName, engineName, exec string) string {
	return fmt.Sprintf(componentTemplate, escape(busName), escape(exec), escape(version), escape(engineName))
}

func installComponent(path, busName, engineName, exec string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(componentXML(busName, engineName, exec)), 0644)
}

func uninstallComponent(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
