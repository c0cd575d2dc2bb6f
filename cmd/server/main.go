package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/config"
	"github.com/hypecasthq/hypecast/internal/server"
	"github.com/hypecasthq/hypecast/internal/service"
	"github.com/hypecasthq/hypecast/internal/service/handler"
	"github.com/hypecasthq/hypecast/internal/service/handler/tiktok"
	"github.com/hypecasthq/hypecast/internal/storage"
	"github.com/hypecasthq/hypecast/pkg/logger"
	"github.com/hypecasthq/hypecast/pkg/util"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "hypecast",
	Short: "Hypecast - Automated short-video posting pipeline",
	Long:  `Hypecast builds posting calendars for generated marketing videos and delivers them to social platforms on schedule.`,
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Hypecast %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

var (
	scheduleVideos    string
	schedulePlatforms string
	scheduleFrequency string
	scheduleStartDate string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Build a posting calendar for finished videos",
	RunE:  runSchedule,
}

var (
	postVideo    string
	postPlatform string
	postCaption  string
	postAvatar   string
	postAccount  string
	postHashtags string
	postSchedule string
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a single video immediately or at a given time",
	RunE:  runPost,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Dump the current posting status as JSON",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")

	scheduleCmd.Flags().StringVar(&scheduleVideos, "videos", "", "comma-separated video file paths (required)")
	scheduleCmd.Flags().StringVar(&schedulePlatforms, "platforms", "", "comma-separated platforms (default from config)")
	scheduleCmd.Flags().StringVar(&scheduleFrequency, "frequency", "", "posting frequency (default from config)")
	scheduleCmd.Flags().StringVar(&scheduleStartDate, "start-date", "", "first schedule day, YYYY-MM-DD")
	scheduleCmd.MarkFlagRequired("videos")

	postCmd.Flags().StringVar(&postVideo, "video", "", "video file path (required)")
	postCmd.Flags().StringVar(&postPlatform, "platform", "", "target platform (required)")
	postCmd.Flags().StringVar(&postCaption, "caption", "", "caption text")
	postCmd.Flags().StringVar(&postAvatar, "avatar", "", "avatar persona")
	postCmd.Flags().StringVar(&postAccount, "account", "", "explicit account username")
	postCmd.Flags().StringVar(&postHashtags, "hashtags", "", "comma-separated hashtags")
	postCmd.Flags().StringVar(&postSchedule, "schedule", "", "post at this time instead of now (RFC 3339)")
	postCmd.MarkFlagRequired("video")
	postCmd.MarkFlagRequired("platform")

	rootCmd.AddCommand(versionCmd, scheduleCmd, postCmd, statusCmd)
}

// pipeline holds the explicitly wired components. No global singletons:
// everything is constructed here once and passed down.
type pipeline struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *storage.StatusStore
	accounts  *service.AccountRegistry
	registry  *handler.Registry
	scheduler *service.PostScheduler
	manager   *service.PostManager
}

func buildPipeline() (*pipeline, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	accountsCfg, err := config.LoadAccounts(cfg.Storage.AccountsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	store, err := storage.NewStatusStore(cfg.Storage.StatusFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open status database: %w", err)
	}

	history, err := storage.NewHistoryStore(cfg.Storage.HistoryDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	accounts := service.NewAccountRegistry(accountsCfg, appLogger)
	captions := service.NewCaptionGenerator(&cfg.Posting, cfg.Storage.ScriptsDir)

	// Handlers register only for platforms we can actually serve.
	registry := handler.NewRegistry(appLogger)
	if err := registry.Register(tiktok.NewHandler(appLogger, cfg.Storage.CookiesDir)); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to register tiktok handler: %w", err)
	}

	scheduler := service.NewPostScheduler(&cfg.Posting, appLogger, store, registry, accounts, captions)
	manager := service.NewPostManager(appLogger, registry, accounts, captions, scheduler, history)

	return &pipeline{
		cfg:       cfg,
		logger:    appLogger,
		store:     store,
		accounts:  accounts,
		registry:  registry,
		scheduler: scheduler,
		manager:   manager,
	}, nil
}

func (p *pipeline) close() {
	p.store.Close()
	p.logger.Sync()
}

func runServer(*cobra.Command, []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	p.logger.Info("Starting Hypecast server", zap.String("version", version))

	srv := server.NewServer(p.cfg, p.logger, p.scheduler, p.manager, p.accounts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil {
			p.logger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		p.logger.Info("Shutting down server...")
	case <-ctx.Done():
		p.logger.Info("Server context cancelled")
	}

	if err := srv.Shutdown(ctx); err != nil {
		p.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	p.logger.Info("Server exited")
	return nil
}

func runSchedule(*cobra.Command, []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	videos := util.ParseCommaList(scheduleVideos)

	opts := service.ScheduleOptions{
		Platforms: util.ParseCommaList(schedulePlatforms),
		Frequency: scheduleFrequency,
	}
	if scheduleStartDate != "" {
		start, err := time.ParseInLocation("2006-01-02", scheduleStartDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --start-date, expected YYYY-MM-DD: %w", err)
		}
		opts.StartDate = &start
	}

	result, err := p.scheduler.SchedulePosts(videos, opts)
	if err != nil {
		return err
	}
	// One-shot invocation: the server delivers the posts later
	p.scheduler.Stop()

	fmt.Printf("Scheduled %d of %d videos (batch %s)\n", result.TotalScheduled, len(videos), result.BatchID)
	for _, post := range result.ScheduledPosts {
		fmt.Printf("  %s  %-10s %-16s %s\n",
			post.ScheduledTime.Format("2006-01-02 15:04"), post.Platform, post.Account, post.VideoPath)
	}
	if result.TotalScheduled < len(videos) {
		fmt.Printf("Warning: %d videos skipped (no account available)\n", len(videos)-result.TotalScheduled)
	}

	return nil
}

func runPost(*cobra.Command, []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	req := service.PostNowRequest{
		VideoPath:       postVideo,
		Platform:        postPlatform,
		Caption:         postCaption,
		Avatar:          postAvatar,
		AccountUsername: postAccount,
		Hashtags:        util.ParseCommaList(postHashtags),
	}

	if postSchedule != "" {
		at, err := time.Parse(time.RFC3339, postSchedule)
		if err != nil {
			return fmt.Errorf("invalid --schedule, expected RFC 3339 timestamp: %w", err)
		}
		post, err := p.manager.SchedulePost(req, at)
		if err != nil {
			return err
		}
		p.scheduler.Stop()
		fmt.Printf("Scheduled %s for %s on %s\n", post.ID, at.Format(time.RFC3339), post.Platform)
		return nil
	}

	result := p.manager.PostNow(context.Background(), req)
	if !result.Success {
		return fmt.Errorf("post failed: %s", result.Error)
	}

	fmt.Printf("Posted successfully")
	if result.PostURL != "" {
		fmt.Printf(": %s", result.PostURL)
	}
	fmt.Println()
	return nil
}

func runStatus(*cobra.Command, []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	summary := p.scheduler.Status()
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	fmt.Printf("\nscheduled=%d posted=%d failed=%d\n",
		len(summary.Scheduled), len(summary.Posted), len(summary.Failed))
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
