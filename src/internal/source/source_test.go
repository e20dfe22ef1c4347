package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOnlyBytecode(t *testing.T) {
	assert.True(t, IsOnlyBytecode("0x6080604052348015600f57600080fd5b50"))
	assert.True(t, IsOnlyBytecode("  0x60806040ABCDEF1234  "))
	assert.True(t, IsOnlyBytecode("0x"))
	assert.True(t, IsOnlyBytecode(""))

	assert.False(t, IsOnlyBytecode("pragma solidity ^0.8.0; contract V {}"))
	assert.False(t, IsOnlyBytecode("0x6080 // with a comment"))
}

func TestReadCodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Vault.sol")
	require.NoError(t, os.WriteFile(path, []byte("  contract Vault {}\n"), 0644))

	code, err := ReadCodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "contract Vault {}", code)
}

func TestReadCodeFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.sol")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0644))

	_, err := ReadCodeFile(path)
	assert.Error(t, err)
}

func TestReadCodeFileMissing(t *testing.T) {
	_, err := ReadCodeFile(filepath.Join(t.TempDir(), "nope.sol"))
	assert.Error(t, err)
}
