package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/sentinelops/internal/config"
	"github.com/user/sentinelops/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("SentinelOps Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Stripe.WebhookSecret = promptSecret(scanner, "Stripe webhook signing secret", cfg.Stripe.WebhookSecret)
		cfg.Slack.WebhookURL = promptSecret(scanner, "Slack incoming webhook URL (optional)", cfg.Slack.WebhookURL)
		cfg.Telegram.Token = promptSecret(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if cfg.Telegram.Token != "" {
			chat := prompt(scanner, "Telegram chat id", formatChatID(cfg.Telegram.ChatID))
			if n, err := strconv.ParseInt(chat, 10, 64); err == nil {
				cfg.Telegram.ChatID = n
			}
		}

		cfg.AI.BaseURL = prompt(scanner, "OpenAI-compatible base URL", cfg.AI.BaseURL)
		cfg.AI.APIKey = promptSecret(scanner, "AI API key (optional)", cfg.AI.APIKey)
		cfg.AI.Model = prompt(scanner, "AI summary model (empty disables AI)", cfg.AI.Model)

		cfg.Schedule.DailySummary = prompt(scanner, "Daily summary cron (UTC)", cfg.Schedule.DailySummary)
		if cfg.Schedule.DailySummary != "" {
			if err := scheduler.Validate(cfg.Schedule.DailySummary); err != nil {
				return err
			}
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if cfg.NotifyTarget() == "" {
			fmt.Println("No notification channel configured; anomalies and summaries will not be sent.")
		}
		return nil
	},
}

func formatChatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	return ask(scanner, label, defaultVal, defaultVal)
}

// promptSecret is prompt with the default shown masked.
func promptSecret(scanner *bufio.Scanner, label, defaultVal string) string {
	display := defaultVal
	if len(display) > 4 {
		display = "***" + display[len(display)-4:]
	}
	return ask(scanner, label, display, defaultVal)
}

func ask(scanner *bufio.Scanner, label, display, defaultVal string) string {
	if display != "" {
		fmt.Printf("%s [%s]: ", label, display)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
