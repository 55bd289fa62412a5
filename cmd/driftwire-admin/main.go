package main

// A very simple CLI tool for the administration of driftwire rooms and users,
// driving the admin HTTP API of a running instance.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/driftwire/driftwire/types"
	"github.com/spf13/cobra"
)

var (
	serverUrl  string
	adminToken string
)

func request(method, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, serverUrl+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Token", adminToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err == nil {
			fmt.Println(out.String())
		} else {
			fmt.Println(string(raw))
		}
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "driftwire-admin",
		Short:         "administer rooms and users of a running driftwire instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&serverUrl, "server", "s", "http://localhost:8000", "base url of the driftwire instance")
	rootCmd.PersistentFlags().StringVarP(&adminToken, "token", "t", "", "admin api token")

	roomCmd := &cobra.Command{Use: "room", Short: "manage room policies"}

	var isPrivate, isAdminOnly bool
	var maxMembers int
	var allowedUsers []string
	var checkExpr string
	roomSetCmd := &cobra.Command{
		Use:   "set <room>",
		Short: "create or replace a room policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := types.RoomPolicy{
				IsPrivate:    isPrivate,
				IsAdminOnly:  isAdminOnly,
				AllowedUsers: allowedUsers,
				MaxMembers:   maxMembers,
				CheckExpr:    checkExpr,
			}
			return request(http.MethodPut, "/admin/rooms/"+args[0], policy)
		},
	}
	roomSetCmd.Flags().BoolVar(&isPrivate, "private", false, "only authenticated users may join")
	roomSetCmd.Flags().BoolVar(&isAdminOnly, "admin-only", false, "only elevated roles may join")
	roomSetCmd.Flags().IntVar(&maxMembers, "max-members", 0, "member limit, 0 = unlimited")
	roomSetCmd.Flags().StringSliceVar(&allowedUsers, "allow", nil, "allow-listed user ids")
	roomSetCmd.Flags().StringVar(&checkExpr, "check-expr", "", "expr expression overriding the built-in rules")

	roomRemoveCmd := &cobra.Command{
		Use:   "remove <room>",
		Short: "remove a room policy (room becomes public)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodDelete, "/admin/rooms/"+args[0], nil)
		},
	}
	roomAllowCmd := &cobra.Command{
		Use:   "allow <room> <user>",
		Short: "add a user to the room allow-list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/admin/rooms/"+args[0]+"/allow", map[string]string{"user_id": args[1]})
		},
	}
	roomDisallowCmd := &cobra.Command{
		Use:   "disallow <room> <user>",
		Short: "remove a user from the room allow-list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/admin/rooms/"+args[0]+"/disallow", map[string]string{"user_id": args[1]})
		},
	}
	roomClearCmd := &cobra.Command{
		Use:   "clear <room>",
		Short: "remove every member from a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/admin/rooms/"+args[0]+"/clear", nil)
		},
	}
	roomListCmd := &cobra.Command{
		Use:   "list",
		Short: "list configured room policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodGet, "/admin/rooms", nil)
		},
	}
	roomCmd.AddCommand(roomSetCmd, roomRemoveCmd, roomAllowCmd, roomDisallowCmd, roomClearCmd, roomListCmd)

	userCmd := &cobra.Command{Use: "user", Short: "manage users"}
	userStatusCmd := &cobra.Command{
		Use:   "status <user>",
		Short: "show presence and connection count of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodGet, "/admin/users/"+args[0]+"/status", nil)
		},
	}
	userDisconnectCmd := &cobra.Command{
		Use:   "disconnect <user>",
		Short: "force-disconnect all connections of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/admin/users/"+args[0]+"/disconnect", nil)
		},
	}
	var notifyType, notifyTitle, notifyMessage string
	userNotifyCmd := &cobra.Command{
		Use:   "notify <user>",
		Short: "push a notification to all connections of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notification := types.Notification{
				Type:    notifyType,
				Title:   notifyTitle,
				Message: notifyMessage,
			}
			return request(http.MethodPost, "/admin/users/"+args[0]+"/notify", notification)
		},
	}
	userNotifyCmd.Flags().StringVar(&notifyType, "type", "info", "notification type")
	userNotifyCmd.Flags().StringVar(&notifyTitle, "title", "", "notification title")
	userNotifyCmd.Flags().StringVar(&notifyMessage, "message", "", "notification message")
	userCmd.AddCommand(userStatusCmd, userDisconnectCmd, userNotifyCmd)

	onlineCmd := &cobra.Command{
		Use:   "online",
		Short: "list online user ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodGet, "/admin/online", nil)
		},
	}

	rootCmd.AddCommand(roomCmd, userCmd, onlineCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
