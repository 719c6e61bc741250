package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// MasterKeyEnv names the environment variable holding the master key.
const MasterKeyEnv = "MEDIAVAULT_MASTER_KEY"

// PromptPassword prompts the user for a password with hidden input
func PromptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("interactive password prompting requires a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(password), nil
}

// PromptYesNo prompts the user for a yes/no response
func PromptYesNo(prompt string) (bool, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return false, fmt.Errorf("interactive prompting requires a terminal")
	}

	fmt.Fprint(os.Stderr, prompt+" (y/n): ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

// ReadMasterKey returns the server master key. It is taken from MasterKeyEnv
// first, then from keyFile, and finally prompted for with hidden input.
func ReadMasterKey(keyFile string) ([]byte, error) {
	if key := strings.TrimSpace(os.Getenv(MasterKeyEnv)); key != "" {
		return []byte(key), nil
	}

	if keyFile != "" {
		info, err := os.Stat(keyFile)
		if err != nil {
			return nil, WrapErrorWithSuggestion(
				fmt.Errorf("failed to read master key file: %w", err),
				"Set "+MasterKeyEnv+" or point vault.master_key_file at an existing file")
		}
		if info.Mode().Perm()&0077 != 0 {
			return nil, WrapErrorWithSuggestion(
				fmt.Errorf("master key file %s is accessible by other users", keyFile),
				"Restrict it with 'chmod 600 "+keyFile+"'")
		}

		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return nil, fmt.Errorf("master key file %s is empty", keyFile)
		}
		return []byte(key), nil
	}

	key, err := PromptPassword("Master key: ")
	if err != nil {
		return nil, WrapErrorWithSuggestion(err, "Set "+MasterKeyEnv+" when running without a terminal")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("master key cannot be empty")
	}
	return []byte(key), nil
}
