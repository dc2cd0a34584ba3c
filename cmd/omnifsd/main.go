package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnifs/omnifs/internal/config"
	delivery "github.com/omnifs/omnifs/internal/delivery/http"
	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/fs"
	"github.com/omnifs/omnifs/internal/logger"
)

var configPath string

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func main() {
	root := &cobra.Command{
		Use:           "omnifsd",
		Short:         "Single-file virtual filesystem daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	format := &cobra.Command{
		Use:   "format <container.omni>",
		Short: "Write a fresh container, destroying any existing content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return fs.Format(args[0], cfg)
		},
	}

	serve := &cobra.Command{
		Use:   "serve <container.omni>",
		Short: "Mount a container and serve the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Dump()

			inst, err := fs.Init(args[0], cfg)
			if err != nil {
				return err
			}

			router := delivery.SetupRouter(delivery.NewHandler(inst))
			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Port),
				Handler: router,
			}

			go func() {
				logger.Info("listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("http server: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.QueueTimeout)*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown: %v", err)
			}
			return inst.Shutdown()
		},
	}

	stats := &cobra.Command{
		Use:   "stats <container.omni>",
		Short: "Mount a container and print its statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			inst, err := fs.Init(args[0], cfg)
			if err != nil {
				return err
			}
			defer inst.Shutdown()

			sid, err := inst.Login(cfg.AdminUsername, cfg.AdminPassword)
			if err != nil {
				return err
			}
			st, err := inst.Stats(sid)
			if err != nil {
				return err
			}

			fmt.Printf("Total size:      %d bytes\n", st.TotalSize)
			fmt.Printf("Used space:      %d bytes\n", st.UsedSpace)
			fmt.Printf("Free space:      %d bytes\n", st.FreeSpace)
			fmt.Printf("Files:           %d\n", st.TotalFiles)
			fmt.Printf("Directories:     %d\n", st.TotalDirectories)
			fmt.Printf("Users:           %d\n", st.TotalUsers)
			fmt.Printf("Active sessions: %d\n", st.ActiveSessions)
			fmt.Printf("Fragmentation:   %.2f%%\n", st.Fragmentation)
			return nil
		},
	}

	root.AddCommand(format, serve, stats)

	if err := root.Execute(); err != nil {
		code := domain.Code(err)
		fmt.Fprintf(os.Stderr, "omnifsd: %s (%v)\n", code.Message(), err)
		os.Exit(1)
	}
}
