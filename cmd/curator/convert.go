package main

import (
	"flag"
	"fmt"
	"os"

	"curator/pkg/codec"
)

// runEncode converts a JSON document to compact text.
func runEncode(args []string) error {
	fs := flag.NewFlagSet("curator encode", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := ""
	if fs.NArg() > 0 {
		input = fs.Arg(0)
	}
	text, err := readInput(input)
	if err != nil {
		return err
	}

	value, err := codec.DecodeJSON([]byte(text))
	if err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return writeOutput(*out, codec.Encode(value))
}

// runDecode converts compact text to a JSON document.
func runDecode(args []string) error {
	fs := flag.NewFlagSet("curator decode", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := ""
	if fs.NArg() > 0 {
		input = fs.Arg(0)
	}
	text, err := readInput(input)
	if err != nil {
		return err
	}

	value, err := codec.Decode(text)
	if err != nil {
		return fmt.Errorf("failed to parse compact text: %w", err)
	}
	data, err := codec.EncodeJSON(value)
	if err != nil {
		return err
	}
	return writeOutput(*out, string(data))
}

func writeOutput(path, content string) error {
	if len(content) == 0 || content[len(content)-1] != '\n' {
		content += "\n"
	}
	if path == "" || path == "-" {
		fmt.Print(content)
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
