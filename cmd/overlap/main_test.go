package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, envFile, logLevel, logFormat = "", "", "", ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestKeysCommand(t *testing.T) {
	out, err := execute(t, "keys", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "FullName")
	assert.Contains(t, out, "first_name + surname")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 15)
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "ID,FirstName,Surname\n1,Jane,Doe\n2,John,Smith\n")
	b := writeFile(t, dir, "b.csv", "adId,given_name_1,surname\n10,JANE,doe\n")
	cfg := writeFile(t, dir, "analysis.yaml", `
keys:
  - name: FullName
    fields: [first_name, surname]
  - name: email
    fields: [email]
engine:
  backend: memory
log:
  level: error
`)
	jsonOut := filepath.Join(dir, "out.json")

	out, err := execute(t, "run", "--config", cfg, "--a", a, "--b", b, "--json", jsonOut, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "FullName")
	assert.Contains(t, out, "unavailable")
	assert.FileExists(t, jsonOut)
}

func TestRunCommandMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "run", "--backend", "memory", "--log-level", "error",
		"--a", filepath.Join(dir, "a.csv"), "--b", filepath.Join(dir, "b.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "FirstName,Surname,EmailStd\nJane,Doe,j@x.com\n")
	b := writeFile(t, dir, "b.csv", "adId,given_name_1,surname,email,email_sha256\n10,JANE,doe,j@x.com,\n")

	out, err := execute(t, "validate", "--log-level", "error", "--a", a, "--b", b)
	require.NoError(t, err)
	assert.Contains(t, out, "no id column")
	assert.Contains(t, out, "ok           FullName(first_name+surname)")
	assert.Contains(t, out, "4 of 15 keys available")
	assert.Contains(t, out, "Hash check: ready (stored hash column on A: false, B: true)")
}
