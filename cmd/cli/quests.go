package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var questsCmd = &cobra.Command{
	Use:   "quests",
	Short: "Daily civic quests and streaks",
}

var questsTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's quests and your progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showTodayQuests()
	},
}

var questsStreakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show your quest completion streak",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStreak()
	},
}

func init() {
	questsCmd.AddCommand(questsTodayCmd)
	questsCmd.AddCommand(questsStreakCmd)
}

func showTodayQuests() error {
	result, body, err := apiRequest("GET", "/api/v1/quests/today", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	quests, _ := result["quests"].([]interface{})
	if len(quests) == 0 {
		fmt.Println("No quests available today.")
		return nil
	}

	for _, raw := range quests {
		status, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		quest, _ := status["quest"].(map[string]interface{})
		progress, _ := status["progress"].(float64)
		required, _ := quest["requirement_count"].(float64)

		mark := " "
		if completed, _ := status["completed"].(bool); completed {
			mark = "x"
		}
		fmt.Printf("[%s] %s (%d/%d)\n", mark, quest["title"], int(progress), int(required))
		if desc, ok := quest["description"].(string); ok && desc != "" {
			fmt.Printf("    %s\n", desc)
		}
	}
	return nil
}

func showStreak() error {
	result, body, err := apiRequest("GET", "/api/v1/quests/streak", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	current, _ := result["current_streak"].(float64)
	longest, _ := result["longest_streak"].(float64)
	fmt.Printf("Current streak: %d days\n", int(current))
	fmt.Printf("Longest streak: %d days\n", int(longest))
	if last, ok := result["last_completed_at"].(string); ok && last != "" {
		fmt.Printf("Last completion: %s\n", last)
	}
	return nil
}
