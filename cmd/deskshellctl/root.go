package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/httpclient"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// localOrigin is sent on every request so privileged commands are accepted.
const localOrigin = "http://localhost"

type options struct {
	addr    string
	timeout time.Duration
}

type reply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "deskshellctl",
		Short:         "Control a running desktop shell daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addr := os.Getenv("DESKSHELL_ADDR")
	if addr == "" {
		addr = "http://127.0.0.1:7860"
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "daemon address")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "request timeout")

	simple := []struct {
		use, cmd, short string
	}{
		{"status", command.ServerStatus, "Print the server status"},
		{"start", command.ServerStart, "Start the server"},
		{"stop", command.ServerStop, "Stop the server"},
		{"url", command.ServerURL, "Print the server URL"},
		{"install", command.Install, "Install the backend and start it"},
		{"installed", command.InstallStatus, "Report whether the backend is installed"},
		{"remove", command.Remove, "Remove the backend"},
		{"info", command.Info, "Print platform and version information"},
	}
	for _, s := range simple {
		name := s.cmd
		root.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return call(cmd, opts, name, nil)
			},
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "call <command> [payload-json]",
		Short: "Send an arbitrary command",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("payload is not valid JSON")
				}
				payload = json.RawMessage(args[1])
			}
			return call(cmd, opts, args[0], payload)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "events",
		Short: "Stream lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return stream(cmd, opts, "/ws/events")
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "logs",
		Short: "Stream backend output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return stream(cmd, opts, "/ws/logs")
		},
	})

	return root
}

func call(cmd *cobra.Command, opts *options, name string, payload json.RawMessage) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	client := httpclient.New(httpclient.Options{
		BaseURL: strings.TrimRight(opts.addr, "/"),
		Timeout: opts.timeout,
		Headers: map[string]string{"Origin": localOrigin},
	})
	req, err := client.Request(ctx)
	if err != nil {
		return err
	}

	var out reply
	resp, err := req.
		SetBody(command.Request{Command: name, Payload: payload}).
		SetResult(&out).
		SetError(&out).
		Post("/api/command")
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", opts.addr, err)
	}
	if resp.IsError() {
		if out.Error == "" {
			out.Error = resp.Status()
		}
		return errors.New(out.Error)
	}

	return printResult(cmd.OutOrStdout(), out.Result)
}

func printResult(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}

func stream(cmd *cobra.Command, opts *options, path string) error {
	u, err := url.Parse(opts.addr)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path

	header := http.Header{}
	header.Set("Origin", localOrigin)
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), u.String(), header)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u, err)
	}
	defer conn.Close()

	go func() {
		<-cmd.Context().Done()
		conn.Close()
	}()

	out := cmd.OutOrStdout()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if cmd.Context().Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if _, err := fmt.Fprintln(out, string(msg)); err != nil {
			return err
		}
	}
}
