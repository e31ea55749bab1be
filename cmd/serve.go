package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datastory/internal/server"
)

var (
	serveAddr      string
	serveNoAI      bool
	serveMaxUpload int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve uploads, digests and narratives over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(!serveNoAI)
		if err != nil {
			return err
		}
		defer a.Close()
		addr := cfg.ListenAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		s := server.New(a.pipe, logger)
		if serveMaxUpload > 0 {
			s.MaxUploadBytes = serveMaxUpload << 20
		}
		if cfg.HTTPTimeoutSec > 0 {
			s.NarrateTimeout = 10 * time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return s.ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoAI, "no-ai", false, "serve digests and Q&A only, without generation endpoints")
	serveCmd.Flags().Int64Var(&serveMaxUpload, "max-upload-mb", 0, "maximum upload size in MiB")
}
