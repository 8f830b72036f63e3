package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show your personalized feed",
	Long: `Fetch your probability-sampled feed from the API.

Examples:
  uwr feed
  uwr feed --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return showFeed(limit)
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Show trending discussion topics",
	Long: `Fetch trending topics with stance breakdowns, optionally scoped
to a congressional district.

Examples:
  uwr topics
  uwr topics --district IL-13`,
	RunE: func(cmd *cobra.Command, args []string) error {
		district, _ := cmd.Flags().GetString("district")
		return showTopics(district)
	},
}

func init() {
	feedCmd.Flags().IntP("limit", "l", 20, "Maximum number of posts")
	topicsCmd.Flags().StringP("district", "d", "", "Congressional district (e.g. IL-13)")
}

func showFeed(limit int) error {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	result, body, err := apiRequest("GET", "/api/v1/feed?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	posts, _ := result["posts"].([]interface{})
	if len(posts) == 0 {
		fmt.Println("Your feed is empty.")
		return nil
	}

	for _, raw := range posts {
		post, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		author := "unknown"
		if user, ok := post["user"].(map[string]interface{}); ok {
			if username, ok := user["username"].(string); ok {
				author = username
			}
		}
		likes, _ := post["like_count"].(float64)
		comments, _ := post["comment_count"].(float64)
		fmt.Printf("@%s  (%d likes, %d comments)\n", author, int(likes), int(comments))
		fmt.Printf("  %s\n\n", post["content"])
	}
	return nil
}

func showTopics(district string) error {
	path := "/api/v1/topics/trending"
	if district != "" {
		params := url.Values{}
		params.Set("district", district)
		path += "?" + params.Encode()
	}

	result, body, err := apiRequest("GET", path, nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	topics, _ := result["topics"].([]interface{})
	if len(topics) == 0 {
		fmt.Println("No trending topics right now.")
		return nil
	}

	for i, raw := range topics {
		topic, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		count, _ := topic["post_count"].(float64)
		support, _ := topic["support_percent"].(float64)
		oppose, _ := topic["oppose_percent"].(float64)
		fmt.Printf("%d. %s (%d posts)\n", i+1, topic["title"], int(count))
		fmt.Printf("   support %.0f%% / oppose %.0f%%\n", support, oppose)
		if summary, ok := topic["summary"].(string); ok && summary != "" {
			fmt.Printf("   %s\n", summary)
		}
		fmt.Println()
	}
	return nil
}
