// Package app provides the RAG query server command.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kart-io/rag-query/internal/ragquery"
)

const commandDesc = `RAG Query Service

Answers questions over an indexed knowledge base:
  - Embeds the question and searches the Milvus vector store
  - Builds a context-grounded prompt within a token budget
  - Generates answers through a pluggable LLM provider (sync and streaming)
  - Caches results in Redis`

// NewCommand creates the root cobra command for the service.
func NewCommand() *cobra.Command {
	opts := ragquery.NewOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          ragquery.Name,
		Short:        "RAG query service",
		Long:         commandDesc,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd, configFile, opts); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	opts.AddFlags(fs)

	return cmd
}

// loadConfig merges the config file, environment variables and flags into
// opts. Flags take precedence over the environment, which takes precedence
// over the file.
func loadConfig(cmd *cobra.Command, configFile string, opts *ragquery.Options) error {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ragquery.Name)
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/" + ragquery.Name)
	}

	v.SetEnvPrefix("RAG_QUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		// 未显式指定配置文件时，找不到文件不是错误
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return err
		}
	}

	return v.Unmarshal(opts)
}

// run builds the server and blocks until a termination signal.
func run(opts *ragquery.Options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server, err := ragquery.NewServer(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Run(ctx)
}
