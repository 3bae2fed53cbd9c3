package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sensiblebit/efirma/internal"
)

// completionInput holds the parameters for registering a shell completion
// function on a command flag.
type completionInput struct {
	flagName     string
	completeFunc func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)
}

// registerCompletion registers a shell completion function for a flag on a
// command. It panics if the flag does not exist (programmer error).
func registerCompletion(cmd *cobra.Command, in completionInput) {
	if err := cmd.RegisterFlagCompletionFunc(in.flagName, in.completeFunc); err != nil {
		panic(fmt.Sprintf("%s --%s: %v", cmd.Name(), in.flagName, err))
	}
}

// fixedCompletion returns a shell completion function that suggests the given
// values with no file completion fallback.
func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// fileCompletion is a shell completion function that suggests files using the
// shell's default file completion behavior.
func fileCompletion(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveDefault
}

// addPassphraseFlags registers --passphrase, --passphrase-file and
// --passphrase-env on fs, filling src.
func addPassphraseFlags(fs *pflag.FlagSet, src *internal.PassphraseSource, usage string) {
	fs.StringVarP(&src.Value, "passphrase", "p", "", usage+" (visible in the process list, prefer --passphrase-file)")
	fs.StringVar(&src.File, "passphrase-file", "", "File whose first line is the "+usage)
	fs.StringVar(&src.Env, "passphrase-env", "", "Environment variable holding the "+usage)
}

// addOutputFormatFlag registers --format for text, json and yaml output.
func addOutputFormatFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "format", "text", "Output format: text, json or yaml")
	registerCompletion(cmd, completionInput{"format", fixedCompletion("text", "json", "yaml")})
}
