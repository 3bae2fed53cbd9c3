package internal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// PassphraseSource names where a passphrase is read from. At most one field
// may be set.
type PassphraseSource struct {
	Value string
	File  string
	Env   string
}

// ReadPassphraseFile returns the first line of filename without its line
// terminator. Other whitespace is part of the passphrase.
func ReadPassphraseFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

// Resolve returns the passphrase from the configured source, or "" when no
// source is set.
func (s PassphraseSource) Resolve() (string, error) {
	set := 0
	for _, v := range []string{s.Value, s.File, s.Env} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return "", errors.New("use only one of --passphrase, --passphrase-file and --passphrase-env")
	}

	switch {
	case s.File != "":
		p, err := ReadPassphraseFile(s.File)
		if err != nil {
			return "", fmt.Errorf("reading passphrase file: %w", err)
		}
		return p, nil
	case s.Env != "":
		p, ok := os.LookupEnv(s.Env)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", s.Env)
		}
		return p, nil
	default:
		return s.Value, nil
	}
}
