package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sellwise/sellwise/internal/profile"
	"github.com/sellwise/sellwise/server/assistant"
	"github.com/sellwise/sellwise/server/finops"
	"github.com/sellwise/sellwise/server/llm"
	apiv1 "github.com/sellwise/sellwise/server/router/api/v1"
	"github.com/sellwise/sellwise/store"
	"github.com/sellwise/sellwise/store/db"
)

const greetingBanner = `sellwise - business assistant for marketplace sellers`

var rootCmd = &cobra.Command{
	Use:   "sellwise",
	Short: greetingBanner,
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: "0.1.0",
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}
		return run(instanceProfile)
	},
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("driver", "memory")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the server, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("driver", "memory", "context storage driver, memory or sqlite")
	rootCmd.PersistentFlags().String("dsn", "", "database source name for the sqlite driver")

	for _, flag := range []string{"mode", "addr", "port", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("sellwise")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func run(p *profile.Profile) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	driver, err := db.NewDriver(p)
	if err != nil {
		return err
	}
	st := store.New(driver)
	defer st.Close()

	registry := llm.NewRegistry()
	if p.OpenAIAPIKey != "" {
		openai, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  p.OpenAIAPIKey,
			BaseURL: p.OpenAIBaseURL,
			Model:   p.OpenAIModel,
		})
		if err != nil {
			return err
		}
		if err := registry.Register(llm.ProviderConfig{
			Name:       "openai",
			Enabled:    true,
			CostWeight: 1.0,
			Capabilities: llm.Capabilities{
				MaxTokens:         4096,
				SupportsTools:     true,
				SupportsStreaming: true,
			},
		}, openai); err != nil {
			return err
		}
	} else {
		slog.Warn("no provider API key configured, chat requests will degrade")
	}

	balancer, err := llm.NewLoadBalancer(registry, llm.BalancerConfig{
		Strategy:   llm.Strategy(p.BalancerStrategy),
		MaxRetries: p.BalancerRetries,
		RetryDelay: p.BalancerDelay,
	}, nil)
	if err != nil {
		return err
	}

	monitor := llm.NewHealthMonitor(registry)
	if registry.Size() > 0 {
		if err := monitor.StartMonitoring(llm.HealthMonitorConfig{
			CheckInterval: p.HealthCheckInterval,
			Timeout:       p.HealthCheckTimeout,
			RetryAttempts: p.HealthRetryAttempts,
		}); err != nil {
			return err
		}
		defer monitor.StopMonitoring()
	}

	manager := assistant.NewManager(st, nil, assistant.ManagerConfig{
		BusinessDataTTL:          p.BusinessDataTTL,
		RecommendationsTTL:       p.RecommendationsTTL,
		ConversationHistoryLimit: p.ConversationHistoryLimit,
		AutoRefreshEnabled:       p.AutoRefreshEnabled,
		CompressionEnabled:       p.CompressionEnabled,
		CacheSize:                p.MaxContextCacheSize,
	})
	defer manager.Close()

	costs := finops.NewCostMonitor(map[string]finops.CostRate{
		p.OpenAIModel: {PromptPer1K: 0.00015, OutputPer1K: 0.0006},
	})
	pipeline := assistant.NewPipeline(manager, balancer, costs, slog.Default())

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomw.Recover())

	apiService := apiv1.NewAPIV1Service(p, pipeline, manager, monitor, balancer, costs)
	apiService.Register(echoServer)

	address := fmt.Sprintf("%s:%d", p.Addr, p.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- echoServer.Start(address)
	}()
	slog.Info("server started", "address", address, "mode", p.Mode, "driver", p.Driver)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := echoServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
