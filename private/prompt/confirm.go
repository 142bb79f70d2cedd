// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package prompt implements asking input from the command line.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the default error class for the prompt package.
var Error = errs.Class("prompt")

// Confirm asks a yes/no question on stdout and reads the answer from stdin.
// It keeps asking until the answer is recognizable.
func Confirm(question string) (bool, error) {
	return ConfirmReader(os.Stdin, os.Stdout, question)
}

// ConfirmReader asks a yes/no question on w and reads the answer from r.
func ConfirmReader(r io.Reader, w io.Writer, question string) (bool, error) {
	scanner := bufio.NewScanner(r)
	for {
		_, err := fmt.Fprint(w, question+" [y/n]: ")
		if err != nil {
			return false, Error.Wrap(err)
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, Error.Wrap(err)
			}
			return false, Error.New("input closed")
		}

		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "yes", "y", "true":
			return true, nil
		case "no", "n", "false":
			return false, nil
		}
	}
}
