// Command pugbin indexes binary postings of Usenet newsgroups
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	prof "github.com/go-while/go-cpu-mem-profiler"
	"github.com/spf13/cobra"

	"github.com/go-while/go-pugbin/internal/config"
)

var appVersion = "-unset-"

var Prof *prof.Profiler

var (
	configFile     string
	scanLimit      int64
	parallel       int
	pprofAddr      string
	passwordPrompt bool
)

var rootCmd = &cobra.Command{
	Use:           "pugbin",
	Short:         "Index binary postings of Usenet newsgroups",
	Long:          `pugbin scans newsgroups over NNTP, assembles multi-segment binary posts into parts and keeps a per-group watermark so every run resumes where the last one stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if pprofAddr != "" {
			Prof = prof.NewProf()
			go Prof.PprofWeb(pprofAddr)
			log.Printf("[PUGBIN] pprof listening on %s", pprofAddr)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (default: $PUGBIN_CONFIG)")
	rootCmd.PersistentFlags().Int64Var(&scanLimit, "limit", 0, "Override scan.message_scan_limit (articles per batch window)")
	rootCmd.PersistentFlags().IntVar(&parallel, "parallel", 0, "Override scan.parallel (groups processed concurrently)")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof", "", "Serve pprof on this address, e.g. 127.0.0.1:51111")
	rootCmd.PersistentFlags().BoolVar(&passwordPrompt, "password-prompt", false, "Read the NNTP provider password from the terminal")

	rootCmd.AddCommand(migrateCmd, groupCmd, blacklistCmd, updateCmd, backfillCmd, serveCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.AppVersion)
	},
}

func main() {
	config.AppVersion = appVersion
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
