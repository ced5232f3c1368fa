package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluesky-social/rolodex/pkg/robusthttp"

	cli "github.com/urfave/cli/v2"
)

var hostFlag = &cli.StringFlag{
	Name:    "host",
	Usage:   "rolodex server to send request to",
	Value:   "http://localhost:5000",
	EnvVars: []string{"ROLODEX_HOST"},
}

var userCmd = &cli.Command{
	Name:      "user",
	ArgsUsage: `<user-id>`,
	Usage:     "query service for a user profile",
	Flags:     []cli.Flag{hostFlag},
	Action: func(cctx *cli.Context) error {
		userID := cctx.Args().First()
		if userID == "" {
			return fmt.Errorf("need to provide user ID")
		}
		return apiCall(cctx, http.MethodGet, "/api/users/"+url.PathEscape(userID), nil)
	},
}

var usernameCmd = &cli.Command{
	Name:      "username",
	ArgsUsage: `<username>`,
	Usage:     "query service to resolve a username to a user ID",
	Flags:     []cli.Flag{hostFlag},
	Action: func(cctx *cli.Context) error {
		username := cctx.Args().First()
		if username == "" {
			return fmt.Errorf("need to provide username")
		}
		return apiCall(cctx, http.MethodPost, "/api/users/by-username", UsernameRequest{Username: username})
	},
}

var statusCmd = &cli.Command{
	Name:      "status",
	ArgsUsage: `<user-id>`,
	Usage:     "query service for a user's status message",
	Flags:     []cli.Flag{hostFlag},
	Action: func(cctx *cli.Context) error {
		userID := cctx.Args().First()
		if userID == "" {
			return fmt.Errorf("need to provide user ID")
		}
		return apiCall(cctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/status", nil)
	},
}

var statsCmd = &cli.Command{
	Name:      "stats",
	ArgsUsage: `<user-id>`,
	Usage:     "query service for a user's social counters",
	Flags:     []cli.Flag{hostFlag},
	Action: func(cctx *cli.Context) error {
		userID := cctx.Args().First()
		if userID == "" {
			return fmt.Errorf("need to provide user ID")
		}
		return apiCall(cctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/stats", nil)
	},
}

var historyCmd = &cli.Command{
	Name:  "history",
	Usage: "list recent username searches",
	Flags: []cli.Flag{
		hostFlag,
		&cli.IntFlag{
			Name:  "limit",
			Usage: "number of entries to return",
			Value: 10,
		},
	},
	Action: func(cctx *cli.Context) error {
		return apiCall(cctx, http.MethodGet, fmt.Sprintf("/api/search-history?limit=%d", cctx.Int("limit")), nil)
	},
}

// apiCall sends one request to a running daemon and pretty-prints the JSON
// response. Non-2xx responses are returned as errors.
func apiCall(cctx *cli.Context, method, path string, body any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(cctx.Context, method, strings.TrimSuffix(cctx.String("host"), "/")+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := robusthttp.NewClient(robusthttp.WithTimeout(30 * time.Second))
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBytes, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(respBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(pretty.String()))
	}
	fmt.Fprintln(cctx.App.Writer, pretty.String())
	return nil
}
