// Package servecmd runs the bot: it wires the Slack client, the
// completion pipeline, the command interpreter, and the event server,
// then blocks until the process is told to stop.
package servecmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfactory/huddle/internal/chathistory"
	"github.com/openfactory/huddle/internal/command"
	"github.com/openfactory/huddle/internal/configutil"
	"github.com/openfactory/huddle/internal/conversation"
	"github.com/openfactory/huddle/internal/eventserver"
	"github.com/openfactory/huddle/internal/llm"
	"github.com/openfactory/huddle/internal/logging"
	"github.com/openfactory/huddle/internal/orchestrator"
	"github.com/openfactory/huddle/internal/prompt"
	"github.com/openfactory/huddle/internal/rag"
	"github.com/openfactory/huddle/internal/toollist"
)

const defaultPort = "3000"

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack event server and completion pipeline",
		RunE:  run,
	}

	cmd.Flags().String("port", "", "HTTP listen port")
	cmd.Flags().String("slack-bot-token", "", "Slack bot token")
	cmd.Flags().String("slack-signing-secret", "", "Slack request signing secret")
	cmd.Flags().String("llm-api-key", "", "completion service API key")
	cmd.Flags().String("llm-base-url", "", "completion service base URL override")
	cmd.Flags().String("llm-model", "", "completion model name")
	cmd.Flags().Bool("rag-enabled", false, "augment prompts with document retrieval")
	cmd.Flags().String("tool-gateway-url", "", "workflow gateway base URL for the tool list")
	cmd.Flags().String("roster-url", "", "team roster URL for the ticklist command")
	cmd.Flags().Int("max-turns", 0, "per-conversation turn cap")
	cmd.Flags().Duration("exchange-timeout", 0, "per-exchange deadline")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", "", "JSON log file path")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(configutil.FlagOrViperString(cmd, "log-level", "log.level"))
	if err != nil {
		return err
	}
	logger, closeLog := logging.Setup(configutil.FlagOrViperString(cmd, "log-file", "log.file"), level)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
	if botToken == "" {
		return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or SLACK_BOT_TOKEN)")
	}
	apiKey := strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-api-key", "llm.api_key"))
	if apiKey == "" {
		return fmt.Errorf("missing llm.api_key (set via --llm-api-key or OPENAI_API_KEY)")
	}
	signingSecret := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-signing-secret", "slack.signing_secret"))
	if signingSecret == "" {
		logger.Warn("signing_secret_missing", "detail", "slack request signatures will not be verified")
	}

	api := slack.New(botToken)
	identCtx, cancelIdent := context.WithTimeout(cmd.Context(), 10*time.Second)
	auth, err := api.AuthTestContext(identCtx)
	cancelIdent()
	if err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	logger.Info("bot_identity", "user_id", auth.UserID, "user", auth.User)

	completer, err := llm.NewClient(llm.Config{
		APIKey:  apiKey,
		BaseURL: configutil.FlagOrViperString(cmd, "llm-base-url", "llm.base_url"),
		Model:   configutil.FlagOrViperString(cmd, "llm-model", "llm.model"),
	})
	if err != nil {
		return err
	}

	poster, err := orchestrator.NewSlackPoster(api)
	if err != nil {
		return err
	}

	store := conversation.NewStore(configutil.FlagOrViperInt(cmd, "max-turns", "conversation.max_turns"))
	adapter := chathistory.NewAdapter(api, logger)

	var tools orchestrator.ToolSource
	if gatewayURL := strings.TrimSpace(configutil.FlagOrViperString(cmd, "tool-gateway-url", "tools.gateway_url")); gatewayURL != "" {
		tools = toollist.NewClient(nil, gatewayURL)
		logger.Info("tool_gateway_enabled", "url", gatewayURL)
	}

	var retriever orchestrator.Retriever
	if configutil.FlagOrViperBool(cmd, "rag-enabled", "rag.enabled") {
		r, err := buildRetriever(cmd, apiKey, logger)
		if err != nil {
			logger.Warn("rag_disabled", "error", err.Error())
		} else {
			retriever = r
			logger.Info("rag_enabled")
		}
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Store:     store,
		History:   adapter,
		Prompt:    prompt.NewBuilder(),
		Completer: completer,
		Poster:    poster,
		Tools:     tools,
		Retriever: retriever,
		BotUserID: auth.UserID,
		Timeout:   configutil.FlagOrViperDuration(cmd, "exchange-timeout", "exchange.timeout"),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	interpreter, err := buildInterpreter(cmd, api, store, logger)
	if err != nil {
		return err
	}
	ticklists := registerTicklist(cmd, interpreter, api, logger)

	srv, err := eventserver.StartServer(cmd.Context(), logger, eventserver.ServerOptions{
		Listen: ":" + listenPort(cmd),
		Routes: eventserver.RoutesOptions{
			SigningSecret: signingSecret,
			BotUserID:     auth.UserID,
			Logger:        logger,
			Handle: func(ctx context.Context, ev eventserver.Event) {
				if interpreter.Interpret(ctx, ev.Text, command.Request{
					UserID:    ev.UserID,
					ChannelID: ev.ChannelID,
					ThreadTS:  ev.ThreadTS,
				}) {
					return
				}
				err := orch.Handle(ctx, orchestrator.Request{
					UserID:    ev.UserID,
					ChannelID: ev.ChannelID,
					Text:      ev.Text,
					ThreadTS:  ev.ThreadTS,
					Mention:   ev.Mention,
				})
				if err != nil {
					logger.Error("exchange_error", "error", err.Error())
				}
			},
			HandleAction: func(ctx context.Context, actionID, value, channelID, messageTS, threadTS string) {
				if ticklists != nil {
					ticklists.HandleAction(ctx, actionID, value, channelID, messageTS, threadTS)
				}
			},
		},
	})
	if err != nil {
		return err
	}

	<-cmd.Context().Done()
	logger.Info("shutdown", "reason", "context_canceled")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func listenPort(cmd *cobra.Command) string {
	port := strings.TrimSpace(configutil.FlagOrViperString(cmd, "port", "server.port"))
	if port == "" {
		port = defaultPort
	}
	return strings.TrimPrefix(port, ":")
}

func buildRetriever(cmd *cobra.Command, apiKey string, logger *slog.Logger) (*rag.Retriever, error) {
	embedder, err := llm.NewEmbedder(llm.Config{
		APIKey:  apiKey,
		BaseURL: configutil.FlagOrViperString(cmd, "llm-base-url", "llm.base_url"),
	})
	if err != nil {
		return nil, err
	}
	return rag.NewRetriever(rag.Config{
		ConnectionString: viper.GetString("mongo.connection_string"),
		Database:         viper.GetString("mongo.db_name"),
		Collection:       viper.GetString("mongo.collection_name"),
	}, embedder, logger)
}

func buildInterpreter(cmd *cobra.Command, api *slack.Client, store *conversation.Store, logger *slog.Logger) (*command.Interpreter, error) {
	interpreter, err := command.NewInterpreter(api, logger)
	if err != nil {
		return nil, err
	}
	err = interpreter.Register(command.Command{
		Name:        "clear",
		Description: "Forget your stored conversation history",
		Execute: func(ctx context.Context, args []string, req command.Request) error {
			store.ClearUser(req.UserID)
			_, _, err := api.PostMessageContext(ctx, req.ChannelID,
				slack.MsgOptionText("Cleared your conversation history.", false))
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return interpreter, nil
}

func registerTicklist(cmd *cobra.Command, interpreter *command.Interpreter, api *slack.Client, logger *slog.Logger) *command.TicklistManager {
	rosterURL := strings.TrimSpace(configutil.FlagOrViperString(cmd, "roster-url", "roster.url"))
	if rosterURL == "" {
		return nil
	}
	roster, err := command.NewHTTPRoster(rosterURL, nil)
	if err != nil {
		logger.Warn("ticklist_disabled", "error", err.Error())
		return nil
	}
	manager, err := command.NewTicklistManager(roster, api, logger)
	if err != nil {
		logger.Warn("ticklist_disabled", "error", err.Error())
		return nil
	}
	if err := interpreter.Register(manager.Command()); err != nil {
		logger.Warn("ticklist_disabled", "error", err.Error())
		return nil
	}
	logger.Info("ticklist_enabled", "roster_url", rosterURL)
	return manager
}
