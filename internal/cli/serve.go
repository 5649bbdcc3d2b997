package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ashish-dwi99/FadeMem/internal/logger"
	"github.com/Ashish-dwi99/FadeMem/internal/server"
)

var serveSweepMinutes int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveSweepMinutes, "sweep-interval", 60,
		"Minutes between background decay sweeps (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, cleanup, err := buildRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	if serveSweepMinutes > 0 {
		rt.eng.StartSweeper(time.Duration(serveSweepMinutes) * time.Minute)
	}

	srv := server.New(rt.db, rt.eng, VersionString(), logger.New("server"))
	addr := rt.cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "fadem serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", rt.db.Path)
		fmt.Fprintf(os.Stderr, "  llm: %s\n", rt.cfg.LLM.Provider)
		fmt.Fprintf(os.Stderr, "  embedder: %s (%d dims)\n", rt.cfg.Embed.Provider, rt.cfg.Embed.Dimensions)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
