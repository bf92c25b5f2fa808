package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/bytering-platform/bytering/channel"
	"github.com/bytering-platform/bytering/common/go/logging"
	"github.com/bytering-platform/bytering/common/go/xcmd"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// Capacity is the channel buffer capacity, e.g. "64kb".
	Capacity string
	// Chunk is the size of each reserved region in bytes.
	Chunk int
	// Duration bounds the run.
	Duration time.Duration
	// Debug enables debug-level channel tracing.
	Debug bool
}

var rootCmd = &cobra.Command{
	Use:   "bytering-basic",
	Short: "Stream bytes from one producer to one consumer over a bytering channel",
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
	rootCmd.Flags().StringVarP(&cmd.Capacity, "capacity", "c", "64kb", "Channel capacity")
	rootCmd.Flags().IntVarP(&cmd.Chunk, "chunk", "n", 13, "Bytes per reservation")
	rootCmd.Flags().DurationVarP(&cmd.Duration, "duration", "d", time.Second, "How long to produce")
	rootCmd.Flags().BoolVar(&cmd.Debug, "debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	level := zapcore.InfoLevel
	if cmd.Debug {
		level = zapcore.DebugLevel
	}
	log, _, err := logging.Init(&logging.Config{Level: level})
	if err != nil {
		return err
	}
	defer log.Sync()

	capacity, err := datasize.ParseString(cmd.Capacity)
	if err != nil {
		return fmt.Errorf("failed to parse capacity: %w", err)
	}

	ch, err := channel.New(int(capacity.Bytes()), channel.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	tx := ch.Sender()
	rx := ch.Receiver()

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Duration)
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		written := 0
		var next byte
		for reg := tx.Reserve(cmd.Chunk); reg != nil; reg = tx.Reserve(cmd.Chunk) {
			for i := range reg.Bytes() {
				reg.Bytes()[i] = next
				next++
			}
			written += reg.Len()
			reg.Release()
		}
		log.Infof("producer done: %d bytes (%s)", written, datasize.ByteSize(written).HumanReadable())
		return nil
	})

	wg.Go(func() error {
		read := 0
		var want byte
		for rx.IsOpen() {
			drained := false
			for reg := rx.Next(); reg != nil; reg = rx.Next() {
				for _, b := range reg.Bytes() {
					if b != want {
						reg.Release()
						return fmt.Errorf("stream corrupted at byte %d: got %d, want %d", read, b, want)
					}
					want++
					read++
				}
				reg.Release()
				drained = true
			}
			if !drained {
				time.Sleep(time.Millisecond)
			}
		}
		log.Infof("consumer done: %d bytes (%s)", read, datasize.ByteSize(read).HumanReadable())
		return nil
	})

	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		ch.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	return wg.Wait()
}
