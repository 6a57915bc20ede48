package handlers

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"persona-chat/internal/ai"
	"persona-chat/internal/chat"
	"persona-chat/internal/config"
	"persona-chat/internal/persona"
	"persona-chat/internal/store/rabbitmq"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	ChatSvc  *chat.Service
	Personas *persona.Registry
	Rabbit   *rabbitmq.Publisher
	Log      *zap.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, locks chat.SessionLocker, rabbit *rabbitmq.Publisher, log *zap.Logger) *Handler {
	personas := persona.Default()

	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.MaxTokens, cfg.Temperature), nil
	})
	reg.Register("ollama", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	})

	svc := chat.NewService(chat.NewRepo(db), personas, reg, locks, log, chat.Options{
		ProviderName:        cfg.AIProvider,
		FreeMessageQuota:    cfg.FreeMessageQuota,
		DailySessionLimit:   cfg.DailySessionLimit,
		ReactivationWindow:  cfg.ReactivationWindow,
		HistoryMessageLimit: cfg.HistoryMessageLimit,
	})

	return &Handler{
		DB:       db,
		Cfg:      cfg,
		ChatSvc:  svc,
		Personas: personas,
		Rabbit:   rabbit,
		Log:      log,
	}
}
