package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/bytering-platform/bytering/channel"
	"github.com/bytering-platform/bytering/common/go/logging"
	"github.com/bytering-platform/bytering/common/go/xcmd"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	Capacity string
	Chunk    int
	Duration time.Duration
	Debug    bool
}

var rootCmd = &cobra.Command{
	Use:   "bytering-tworeader",
	Short: "Broadcast one producer's byte stream to two independent receivers",
	Long: `Demonstrates broadcast fanout: every receiver observes every byte the
producer commits, each at its own pace. After the channel closes both
receivers must report identical totals.`,
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
	rootCmd.Flags().StringVarP(&cmd.Capacity, "capacity", "c", "4kb", "Channel capacity")
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

func consume(rx *channel.Receiver, pace time.Duration, log *zap.SugaredLogger) int {
	read := 0
	for rx.IsOpen() {
		drained := false
		for reg := rx.Next(); reg != nil; reg = rx.Next() {
			read += reg.Len()
			reg.Release()
			drained = true
			if pace > 0 {
				time.Sleep(pace)
			}
		}
		if !drained {
			time.Sleep(time.Millisecond)
		}
	}
	log.Infof("done: %d bytes (%s)", read, datasize.ByteSize(read).HumanReadable())
	return read
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
	rx0 := ch.Receiver()
	rx1 := ch.Receiver()

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Duration)
	defer cancel()

	var read0, read1, written int
	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		var next byte
		for reg := tx.Reserve(cmd.Chunk); reg != nil; reg = tx.Reserve(cmd.Chunk) {
			for i := range reg.Bytes() {
				reg.Bytes()[i] = next
				next++
			}
			written += reg.Len()
			reg.Release()
		}
		log.Infof("producer done: %d bytes", written)
		return nil
	})

	// The second receiver runs deliberately slower; backpressure paces the
	// producer to the slowest party without dropping a byte for either.
	wg.Go(func() error {
		read0 = consume(rx0, 0, log.With("reader", "R0"))
		return nil
	})
	wg.Go(func() error {
		read1 = consume(rx1, 100*time.Microsecond, log.With("reader", "R1"))
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

	if err := wg.Wait(); err != nil {
		return err
	}

	if read0 != written || read1 != written {
		return fmt.Errorf("fanout mismatch: wrote %d, R0 read %d, R1 read %d", written, read0, read1)
	}
	log.Infof("both readers observed all %d bytes", written)
	return nil
}
