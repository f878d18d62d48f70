package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"rvcc/pkg/compiler"
)

var (
	outPath string
	verbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rvcc [flags] <input>",
		Short:   "rvcc compiles a C subset to RISC-V 64-bit assembly",
		Version: compiler.Version.String(),
		Args:    cobra.ExactArgs(1),
		RunE:    runCompile,
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "output path, - for stdout")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print compile statistics to stderr")
	cmd.SetVersionTemplate(compiler.Version.String() + "\n")
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	inPath := args[0]

	var src []byte
	var err error
	if inPath == "-" {
		src, err = io.ReadAll(os.Stdin)
		inPath = "<stdin>"
	} else {
		src, err = os.ReadFile(inPath)
	}
	if err != nil {
		return fmt.Errorf("rvcc: %w", err)
	}

	out := os.Stdout
	if outPath != "-" && outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("rvcc: %w", err)
		}
		defer f.Close()
		out = f
	}

	diag := compiler.NewDiag(inPath, src, os.Stderr)
	toks := compiler.Lex(src, diag)
	tokCount := 0
	for t := toks; t != nil; t = t.Next {
		tokCount++
	}
	globals := compiler.Parse(src, toks, diag)
	asm := compiler.Generate(src, globals, diag, inPath)

	if _, err := io.WriteString(out, asm); err != nil {
		return fmt.Errorf("rvcc: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "rvcc: %s bytes source, %s tokens, %s bytes assembly\n",
			humanize.Comma(int64(len(src))),
			humanize.Comma(int64(tokCount)),
			humanize.Bytes(uint64(len(asm))),
		)
	}
	return nil
}
