/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/voxscribe/apiserver/internal/client"
	"github.com/voxscribe/apiserver/internal/gate"
	"golang.org/x/term"
)

const defaultServerURL = "http://localhost:8080"

var (
	serverURL   string
	sessionFile string
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to a voxscribe server",
	Long: `Command line client for a voxscribe server. The signed-in session is cached
in the user config directory between invocations.`,
}

func init() {
	rootCmd.AddCommand(clientCmd)

	url := os.Getenv("VOXSCRIBE_URL")
	if url == "" {
		url = defaultServerURL
	}
	clientCmd.PersistentFlags().StringVar(&serverURL, "server", url, "server base URL (env VOXSCRIBE_URL)")
	clientCmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "session cache path (default <config dir>/voxscribe/session.json)")
}

func newAPIClient() (*client.Client, error) {
	path := sessionFile
	if path == "" {
		var err error
		if path, err = client.DefaultSessionPath(); err != nil {
			return nil, err
		}
	}
	return client.New(serverURL, client.NewFileSessionStore(path), nil)
}

// requireSignedIn runs the authentication gate before a command touches the server.
func requireSignedIn(c *client.Client) error {
	_, err := c.RequireAuthenticated()
	return explainDenied(err)
}

func explainDenied(err error) error {
	var denied *gate.DeniedError
	if !errors.As(err, &denied) {
		return err
	}
	switch denied.Redirect {
	case gate.LoginPath:
		return fmt.Errorf("%s Run `voxscribe client login` first", denied.Message)
	default:
		return errors.New(denied.Message)
	}
}

func promptLine(in *bufio.Reader, w io.Writer, label string) (string, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return "", err
	}
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(w io.Writer, label string) (string, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
