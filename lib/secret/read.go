// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ReadFromPath reads a secret from a file path, or from stdin when
// path is "-". Leading and trailing whitespace is trimmed. The
// returned Buffer must be closed by the caller.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("secret: reading stdin: %w", err)
			}
			return nil, fmt.Errorf("secret: stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("secret: reading %s: %w", path, err)
		}
	}

	return fromTrimmed(data)
}

// ReadFromTerminal prompts on stderr and reads a secret from the
// controlling terminal with echo disabled. Fails if stdin is not a
// terminal — callers should fall back to ReadFromPath("-") for piped
// input. The returned Buffer must be closed by the caller.
func ReadFromTerminal(prompt string) (*Buffer, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("secret: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("secret: reading from terminal: %w", err)
	}

	return fromTrimmed(data)
}

// fromTrimmed trims whitespace, moves the result into a Buffer, and
// zeros every heap copy.
func fromTrimmed(data []byte) (*Buffer, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret: secret is empty")
	}

	buffer, err := NewFromBytes(trimmed)
	// NewFromBytes zeroed trimmed; clear any surrounding whitespace too.
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
