package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfactory/huddle/cmd/huddle/servecmd"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "huddle",
		Short:   "Conversational Slack assistant",
		Version: version,
	}
	root.PersistentFlags().String("config", "", "config file path")
	cobra.OnInitialize(func() { initConfig(root) })

	root.AddCommand(servecmd.NewCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(root *cobra.Command) {
	if path, _ := root.PersistentFlags().GetString("config"); strings.TrimSpace(path) != "" {
		viper.SetConfigFile(strings.TrimSpace(path))
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "read config:", err)
		}
	}

	bindings := map[string]string{
		"slack.signing_secret":    "SLACK_SIGNING_SECRET",
		"slack.bot_token":         "SLACK_BOT_TOKEN",
		"llm.api_key":             "OPENAI_API_KEY",
		"llm.base_url":            "OPENAI_BASE_URL",
		"llm.model":               "OPENAI_MODEL",
		"mongo.connection_string": "MONGO_CONNECTION_STRING",
		"mongo.db_name":           "MONGO_DB_NAME",
		"mongo.collection_name":   "MONGO_COLLECTION_NAME",
		"server.port":             "PORT",
		"tools.gateway_url":       "TOOL_GATEWAY_URL",
		"roster.url":              "TEAM_ROSTER_URL",
		"rag.enabled":             "RAG_ENABLED",
		"log.level":               "LOG_LEVEL",
		"log.file":                "LOG_FILE",
	}
	for key, env := range bindings {
		_ = viper.BindEnv(key, env)
	}
}
