package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/keyring"
)

func newRemoteCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage remote store credentials",
	}
	cmd.AddCommand(newRemoteLoginCmd(o), newRemoteLogoutCmd(o))
	return cmd
}

func newRemoteLoginCmd(o *rootOptions) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the PostgreSQL password in the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd, fromStdin)
			if err != nil {
				return err
			}
			creds := o.credentials()
			if err := creds.Store(keyring.PostgresPasswordKey, password); err != nil {
				return err
			}
			where := "system keyring"
			if creds.UsesFile() {
				where = "encrypted credentials file"
			}
			newPrinter(cmd.OutOrStdout()).done("Password saved to the %s", where)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from standard input")
	return cmd
}

func newRemoteLogoutCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored PostgreSQL password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.credentials().Delete(keyring.PostgresPasswordKey); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).done("Password removed")
			return nil
		},
	}
}

// readPassword reads a password from the terminal without echo, or a single
// line from standard input.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return checkPassword(string(data))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return checkPassword(strings.TrimRight(line, "\r\n"))
}

func checkPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", common.ErrCredentialStorage)
	}
	return password, nil
}
