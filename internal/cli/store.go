package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArcanaFramework/frametree-flywheel/internal/config"
)

// StoreEntry is one registered store in command output.
type StoreEntry struct {
	Nickname string `json:"nickname"`
	config.StoreConfig
}

// NewStoreCommand creates the store command group.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage registered stores",
	}
	cmd.AddCommand(newStoreAddCommand(rootOpts))
	cmd.AddCommand(newStoreListCommand(rootOpts))
	cmd.AddCommand(newStoreRemoveCommand(rootOpts))
	return cmd
}

func newStoreAddCommand(rootOpts *RootOptions) *cobra.Command {
	var sc config.StoreConfig

	cmd := &cobra.Command{
		Use:   "add <nickname>",
		Short: "Register a store under a nickname",
		Long: `Register a store under a nickname in the store registry.

Local stores hold datasets as directory trees and take no further options.
Remote stores need --server and --user; downloaded files are cached in
--cache-dir.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreAdd(rootOpts, args[0], sc, cmd)
		},
	}

	cmd.Flags().StringVar(&sc.Type, "type", config.TypeLocal, "store type (local|remote)")
	cmd.Flags().StringVar(&sc.Server, "server", "", "remote service address")
	cmd.Flags().StringVar(&sc.User, "user", "", "remote service user")
	cmd.Flags().StringVar(&sc.Password, "password", "", "remote service password")
	cmd.Flags().StringVar(&sc.CacheDir, "cache-dir", "", "download cache for remote files")

	return cmd
}

func runStoreAdd(opts *RootOptions, nickname string, sc config.StoreConfig, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(formatter)
	if err != nil {
		return err
	}
	if err := cfg.Add(nickname, sc); err != nil {
		return fail(formatter, ErrCodeInvalidArgs, "cannot register store", err)
	}
	if err := cfg.Save(); err != nil {
		return fail(formatter, ErrCodeConfig, "cannot save store registry", err)
	}

	return formatter.Success(StoreEntry{Nickname: nickname, StoreConfig: sc},
		fmt.Sprintf("✓ Registered %s store %q\n", sc.Type, nickname))
}

func newStoreListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "ls",
		Short:         "List registered stores",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreList(rootOpts, cmd)
		},
	}
}

func runStoreList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(formatter)
	if err != nil {
		return err
	}

	entries := make([]StoreEntry, 0, len(cfg.Stores))
	var text strings.Builder
	for _, name := range cfg.Names() {
		sc := cfg.Stores[name]
		entries = append(entries, StoreEntry{Nickname: name, StoreConfig: sc})
		fmt.Fprintf(&text, "%s\t%s", name, sc.Type)
		if sc.Server != "" {
			fmt.Fprintf(&text, "\t%s@%s", sc.User, sc.Server)
		}
		text.WriteString("\n")
	}
	return formatter.Success(entries, text.String())
}

func newStoreRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <nickname>",
		Short:         "Unregister a store",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			cfg, err := loadConfig(formatter)
			if err != nil {
				return err
			}
			if err := cfg.Remove(args[0]); err != nil {
				return fail(formatter, ErrCodeNotFound, "cannot unregister store", err)
			}
			if err := cfg.Save(); err != nil {
				return fail(formatter, ErrCodeConfig, "cannot save store registry", err)
			}
			return formatter.Success(map[string]string{"nickname": args[0]},
				fmt.Sprintf("✓ Removed store %q\n", args[0]))
		},
	}
}
