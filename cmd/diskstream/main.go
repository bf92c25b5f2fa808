// Simulated device streaming: a producer emits fixed-size frames into a
// bytering channel at a configurable rate while a consumer drains the
// committed stream to a file. The channel's backpressure keeps the producer
// honest when the disk falls behind.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bytering-platform/bytering/channel"
	"github.com/bytering-platform/bytering/common/go/logging"
	"github.com/bytering-platform/bytering/common/go/xcmd"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Duration bounds the run.
	Duration time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "bytering-diskstream",
	Short: "Stream frames through a bytering channel to a file",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			var interrupted xcmd.Interrupted
			if errors.As(err, &interrupted) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().DurationVarP(&cmd.Duration, "duration", "d", 2*time.Second, "How long to produce")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func produce(ctx context.Context, tx *channel.Sender, cfg *Config, log *zap.SugaredLogger) int {
	frameSize := int(cfg.FrameSize.Bytes())
	var ticker *time.Ticker
	if cfg.FrameInterval > 0 {
		ticker = time.NewTicker(cfg.FrameInterval)
		defer ticker.Stop()
	}

	written := 0
	for frame := uint64(0); ; frame++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return written
			case <-ticker.C:
			}
		}

		reg := tx.Reserve(frameSize)
		if reg == nil {
			return written
		}
		// Frame header: index, then a fill byte derived from it.
		buf := reg.Bytes()
		binary.LittleEndian.PutUint64(buf, frame)
		for i := 8; i < len(buf); i++ {
			buf[i] = byte(frame)
		}
		reg.Release()
		written += frameSize
		log.Debugw("produced frame", "frame", frame)
	}
}

func drainToFile(rx *channel.Receiver, path string, log *zap.SugaredLogger) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	// Poll with exponential backoff while the channel is open but empty.
	pollBackoff := backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Microsecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Millisecond,
	}
	pollBackoff.Reset()

	read := 0
	for rx.IsOpen() {
		reg := rx.Next()
		if reg == nil {
			time.Sleep(pollBackoff.NextBackOff())
			continue
		}
		pollBackoff.Reset()

		n, err := f.Write(reg.Bytes())
		reg.Release()
		if err != nil {
			return read, fmt.Errorf("failed to write output: %w", err)
		}
		read += n
	}
	return read, f.Sync()
}

func run(cmd Cmd) error {
	cfg, err := LoadConfig(cmd.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.FrameSize.Bytes() < 8 || cfg.FrameSize > cfg.Capacity {
		return fmt.Errorf("frame size %s must be within [8b, %s]", cfg.FrameSize, cfg.Capacity)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	ch, err := channel.New(int(cfg.Capacity.Bytes()), channel.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	tx := ch.Sender()
	rx := ch.Receiver()

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Duration)
	defer cancel()

	var written, read int
	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		written = produce(ctx, tx, cfg, log.With("role", "producer"))
		return nil
	})
	wg.Go(func() error {
		var err error
		read, err = drainToFile(rx, cfg.Output, log.With("role", "consumer"))
		return err
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		ch.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if err := wg.Wait(); err != nil {
		return err
	}
	if read != written {
		return fmt.Errorf("drained %d bytes of %d written", read, written)
	}

	log.Infof("streamed %s to %s", datasize.ByteSize(read).HumanReadable(), cfg.Output)
	return nil
}
