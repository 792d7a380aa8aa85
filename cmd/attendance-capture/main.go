package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"face-attendance-backend/internal/capture"
	"face-attendance-backend/internal/embedder"
)

var (
	endpoint    string
	sourceDir   string
	snapshotURL string
	detectorURL string
	localModels string
	fps         float64
	loopFrames  bool
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "attendance-capture",
	Short: "Submit camera frames with faces to the attendance server",
	Long: `Reads frames from a directory or an IP camera snapshot URL, detects faces
locally and submits at most one frame at a time to the attendance server.`,
	SilenceUsage: true,
	RunE:         run,
}

func initFlags() {
	rootCmd.Flags().StringVar(&endpoint, "endpoint", envOr("ATTENDANCE_ENDPOINT", capture.DefaultEndpoint), "attendance submission endpoint")
	rootCmd.Flags().StringVar(&sourceDir, "dir", "", "directory of image frames to replay")
	rootCmd.Flags().StringVar(&snapshotURL, "snapshot-url", os.Getenv("CAMERA_SNAPSHOT_URL"), "IP camera JPEG snapshot URL")
	rootCmd.Flags().StringVar(&detectorURL, "detector-url", os.Getenv("EMBEDDING_URL"), "embedding server used for local face detection (empty submits every frame)")
	rootCmd.Flags().StringVar(&localModels, "models", "", "dlib model directory for in-process detection")
	rootCmd.Flags().Float64Var(&fps, "fps", 2, "frames read per second")
	rootCmd.Flags().BoolVar(&loopFrames, "loop", false, "restart the frame directory when exhausted")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	rootCmd.MarkFlagsMutuallyExclusive("dir", "snapshot-url")
	rootCmd.MarkFlagsMutuallyExclusive("detector-url", "models")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(cmd *cobra.Command, args []string) error {
	var src capture.Source
	switch {
	case sourceDir != "":
		dirSource, err := capture.NewDirSource(sourceDir, loopFrames)
		if err != nil {
			return err
		}
		src = dirSource
	case snapshotURL != "":
		src = capture.NewSnapshotSource(snapshotURL, timeout)
	default:
		return fmt.Errorf("one of --dir or --snapshot-url is required")
	}

	var det capture.Detector = capture.EveryFrame{}
	switch {
	case localModels != "":
		local, err := embedder.NewLocal(localModels)
		if err != nil {
			return err
		}
		defer local.Close()
		det = local
	case detectorURL != "":
		det = embedder.NewClient(detectorURL, timeout)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := capture.NewLoop(src, det, capture.NewHTTPSubmitter(endpoint, timeout), fps, nil)
	log.Printf("Capturing at %.1f fps, submitting to %s", fps, endpoint)
	err := loop.Run(ctx)

	s := loop.Stats()
	log.Printf("Processed %d frames: %d submitted, %d skipped while busy", s.Frames, s.Submitted, s.Skipped)
	return err
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}
	// Flag defaults read the environment, so bind them after .env is loaded.
	initFlags()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
