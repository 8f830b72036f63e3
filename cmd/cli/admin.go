package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin operations (requires an admin token)",
}

var adminQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the moderation queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showModerationQueue()
	},
}

var adminEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent security events",
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		return showSecurityEvents(eventType, limit)
	},
}

var adminBlocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Manage IP blocks",
}

var adminBlocksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List IP blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listBlocks()
	},
}

var adminBlocksAddCmd = &cobra.Command{
	Use:   "add <ip>",
	Short: "Block an IP address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		hours, _ := cmd.Flags().GetInt("hours")
		return addBlock(args[0], reason, hours)
	},
}

var adminBlocksRemoveCmd = &cobra.Command{
	Use:   "remove <block-id>",
	Short: "Lift an IP block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeBlock(args[0])
	},
}

func init() {
	adminCmd.AddCommand(adminQueueCmd)
	adminCmd.AddCommand(adminEventsCmd)
	adminCmd.AddCommand(adminBlocksCmd)
	adminBlocksCmd.AddCommand(adminBlocksListCmd)
	adminBlocksCmd.AddCommand(adminBlocksAddCmd)
	adminBlocksCmd.AddCommand(adminBlocksRemoveCmd)

	adminEventsCmd.Flags().StringP("type", "t", "", "Filter by event type (e.g. login_failed)")
	adminEventsCmd.Flags().IntP("limit", "l", 50, "Maximum number of events")

	adminBlocksAddCmd.Flags().StringP("reason", "r", "manual block", "Reason for the block")
	adminBlocksAddCmd.Flags().Int("hours", 0, "Block duration in hours (0 = permanent)")
}

func showModerationQueue() error {
	result, body, err := apiRequest("GET", "/api/v1/admin/moderation/queue", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	posts, _ := result["posts"].([]interface{})
	reports, _ := result["reports"].([]interface{})

	fmt.Printf("Posts awaiting review: %d\n", len(posts))
	for _, raw := range posts {
		post, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  %s  %s\n", post["id"], truncate(fmt.Sprint(post["content"]), 60))
	}

	fmt.Printf("Open reports: %d\n", len(reports))
	for _, raw := range reports {
		report, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  %s  [%s] %s\n", report["id"], report["reason"], report["target_type"])
	}
	return nil
}

func showSecurityEvents(eventType string, limit int) error {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if eventType != "" {
		params.Set("type", eventType)
	}

	result, body, err := apiRequest("GET", "/api/v1/admin/security/events?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	events, _ := result["events"].([]interface{})
	for _, raw := range events {
		event, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("%s  %-20s %-8s %s\n",
			event["created_at"], event["event_type"], event["severity"], event["ip_address"])
	}
	fmt.Printf("%d events\n", len(events))
	return nil
}

func listBlocks() error {
	result, body, err := apiRequest("GET", "/api/v1/admin/security/blocks", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	blocks, _ := result["blocks"].([]interface{})
	for _, raw := range blocks {
		block, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		state := "inactive"
		if active, _ := block["is_active"].(bool); active {
			state = "active"
		}
		expires := "never"
		if exp, ok := block["expires_at"].(string); ok && exp != "" {
			expires = exp
		}
		fmt.Printf("%s  %-15s %-8s expires=%s  %s\n",
			block["id"], block["ip_address"], state, expires, block["reason"])
	}
	fmt.Printf("%d blocks\n", len(blocks))
	return nil
}

func addBlock(ip, reason string, hours int) error {
	payload := map[string]interface{}{
		"ip_address":     ip,
		"reason":         reason,
		"duration_hours": hours,
	}
	result, body, err := apiRequest("POST", "/api/v1/admin/security/blocks", payload)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}
	fmt.Printf("Blocked %s (block id %s)\n", ip, result["id"])
	return nil
}

func removeBlock(blockID string) error {
	_, body, err := apiRequest("DELETE", "/api/v1/admin/security/blocks/"+blockID, nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}
	fmt.Printf("Block %s removed\n", blockID)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
