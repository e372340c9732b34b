// Package cli implements the fstoken client's command surface: a single
// root command whose flag combination selects the operation, rather than
// the teacher's verb-per-subcommand tree (encrypt/decrypt) — this spec's
// dispatcher already does that selection from flags, so one command is
// the idiomatic shape here.
package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"fstokend/internal/acl"
	"fstokend/internal/client"
	"fstokend/internal/config"
	"fstokend/internal/editor"
	"fstokend/internal/identity"
	"fstokend/internal/kind"
	"fstokend/internal/log"
)

// Version is set by main.go.
var Version = "dev"

// fstokenPrincipal is the account the broker process runs as; the client
// grants/revokes this principal's ACL access on the client's behalf.
const fstokenPrincipal = "fstoken"

var rootCmd = &cobra.Command{
	Use:     "fstoken <file>",
	Short:   "Local file access control via signed capability tokens",
	Version: Version,
	Args:    cobra.ExactArgs(1),
	RunE:    runRoot,
}

var initCmd = &cobra.Command{
	Use:    "init",
	Short:  "Generate the client's signing identity if it does not exist",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runInit,
}

var (
	flagEncrypt bool
	flagRotate  bool
	flagDelete  bool
	flagGrant   string
	flagSubject string
	flagToken   string
	flagVerbose bool
)

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().BoolVarP(&flagEncrypt, "encrypt", "e", false, "Encrypt the file under the catalog's key")
	rootCmd.Flags().BoolVarP(&flagRotate, "rotate", "r", false, "Rotate the file's key, revoking previously issued tokens")
	rootCmd.Flags().BoolVarP(&flagDelete, "delete", "d", false, "Remove the file's catalog entry, restoring it to plaintext")
	rootCmd.Flags().StringVarP(&flagGrant, "grant", "g", "", "Grant to delegate: READ or READ/WRITE")
	rootCmd.Flags().StringVarP(&flagSubject, "subject", "s", "", "Subject name to delegate the grant to")
	rootCmd.Flags().StringVarP(&flagToken, "token", "t", "", "Capability token to invoke")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging to standard error")

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging to standard error")
}

// Execute runs the CLI, returning the error to report (if any). main.go
// maps a non-nil error to exit code 1.
func Execute(version string) error {
	Version = version
	rootCmd.Version = version
	return rootCmd.Execute()
}

func runInit(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		log.EnableDebugLogging()
	}
	cfg, err := config.Load(false)
	if err != nil {
		return err
	}
	return identity.New(cfg.IdentityDir).Init(flagVerbose)
}

func runRoot(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		log.EnableDebugLogging()
	}

	cfg, err := config.Load(false)
	if err != nil {
		return err
	}

	c := client.New(cfg, acl.New(fstokenPrincipal), &editor.TempFileSession{Launch: launchEditor})

	resp, err := c.Run(client.Request{
		Path:    args[0],
		Encrypt: flagEncrypt,
		Rotate:  flagRotate,
		Delete:  flagDelete,
		Grant:   flagGrant,
		Subject: flagSubject,
		Token:   flagToken,
	})
	if err != nil {
		return err
	}
	if !resp.Hidden && len(resp.Payload) > 0 {
		fmt.Fprintln(os.Stdout, string(resp.Payload))
	}
	return nil
}

// launchEditor opens $EDITOR (falling back to vi) against path and waits
// for it to exit. A read-only round-trip still opens the editor so the
// user can view the content; the temp file's mode (0400) keeps them from
// saving changes to it.
func launchEditor(path string, writable bool) error {
	editorBin := os.Getenv("EDITOR")
	if editorBin == "" {
		editorBin = "vi"
	}
	cmd := exec.Command(editorBin, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return kind.Wrap(kind.Unexpected, "running "+editorBin, err)
	}
	return nil
}
