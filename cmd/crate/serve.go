package main

import (
	"github.com/franz/crate/internal/server"
	"github.com/franz/crate/internal/service"
	"github.com/franz/crate/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the collection API to the kiosk front end",
	Long: `Start the kiosk HTTP API.

The cached snapshot is served immediately. A background sync then loads
the collection (fetching it if the snapshot is stale) and prewarms the
first covers. Progress is posted to /api/messages. The server shuts down
gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", defaultListen, "address to listen on")
	serveCmd.Flags().Bool("no-sync", false, "do not sync on startup")
	serveCmd.Flags().Int("queue-size", service.DefaultQueueSize, "message queue capacity")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.lockCache(cacheDir()); err != nil {
		return err
	}

	noSync, _ := cmd.Flags().GetBool("no-sync")
	queueSize, _ := cmd.Flags().GetInt("queue-size")
	prewarm := GetConfigInt("prewarm", defaultPrewarm)
	ctx := cmd.Context()

	if a.svc.LoadCached() {
		util.InfoLog("Serving %d cached releases", len(a.svc.Items()))
	}

	worker := service.NewWorker(a.svc, queueSize)
	if !noSync {
		if err := worker.Sync(ctx, false, prewarm); err != nil {
			util.WarnLog("Startup sync not started: %v", err)
		}
	}

	srv := server.New(&server.Config{
		Service: a.svc,
		Worker:  worker,
		Prewarm: prewarm,
	})

	err = srv.ListenAndServe(ctx, GetConfigString("listen", defaultListen))

	util.DebugLog("Waiting for background work to stop...")
	drainUntilIdle(worker)
	return err
}

// drainUntilIdle empties the message queue until the worker is done, so a
// job blocked on a full queue can finish
func drainUntilIdle(worker *service.Worker) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			return
		case <-worker.Messages():
		}
	}
}
