// Packet capture pipeline over a bytering channel: a producer serializes
// synthetic UDP packets into reserved regions as length-prefixed frames, a
// capture consumer reassembles them and writes a pcap file, and a second
// receiver independently counts bytes to demonstrate broadcast fanout.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/cenkalti/backoff/v5"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bytering-platform/bytering/channel"
	"github.com/bytering-platform/bytering/common/go/logging"
	"github.com/bytering-platform/bytering/common/go/xcmd"
)

const (
	// lenPrefixSize frames each packet in the byte stream.
	lenPrefixSize = 4
	snaplen       = 65536
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	Capacity string
	Count    int
	Payload  int
	Output   string
	Debug    bool
}

var rootCmd = &cobra.Command{
	Use:   "bytering-pktstream",
	Short: "Stream synthetic packets through a bytering channel into a pcap file",
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
	rootCmd.Flags().IntVarP(&cmd.Count, "count", "n", 1000, "Packets to produce")
	rootCmd.Flags().IntVarP(&cmd.Payload, "payload", "p", 64, "UDP payload size in bytes")
	rootCmd.Flags().StringVarP(&cmd.Output, "output", "o", "stream.pcap", "Output pcap path")
	rootCmd.Flags().BoolVar(&cmd.Debug, "debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

// buildPacket serializes one synthetic Ethernet/IPv4/UDP packet whose
// payload starts with the packet sequence number.
func buildPacket(seq uint64, payloadSize int) ([]byte, error) {
	payload := make([]byte, payloadSize)
	binary.LittleEndian.PutUint64(payload, seq)

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 4242, DstPort: 4243}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func produce(tx *channel.Sender, count, payloadSize int, log *zap.SugaredLogger) error {
	for seq := range count {
		pkt, err := buildPacket(uint64(seq), payloadSize)
		if err != nil {
			return fmt.Errorf("failed to serialize packet %d: %w", seq, err)
		}

		reg := tx.Reserve(lenPrefixSize + len(pkt))
		if reg == nil {
			log.Warnf("channel closed after %d packets", seq)
			return nil
		}
		buf := reg.Bytes()
		binary.LittleEndian.PutUint32(buf, uint32(len(pkt)))
		copy(buf[lenPrefixSize:], pkt)
		reg.Release()
	}
	log.Infof("produced %d packets", count)
	return nil
}

// capture reassembles length-prefixed packets from the byte stream and
// writes them to a pcap file. Frames may span region boundaries, so partial
// bytes are carried over between polls.
func capture(rx *channel.Receiver, path string, log *zap.SugaredLogger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pcap: %w", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	pollBackoff := backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Microsecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Millisecond,
	}
	pollBackoff.Reset()

	var pending []byte
	packets := 0
	for rx.IsOpen() {
		reg := rx.Next()
		if reg == nil {
			time.Sleep(pollBackoff.NextBackOff())
			continue
		}
		pollBackoff.Reset()

		pending = append(pending, reg.Bytes()...)
		reg.Release()

		for len(pending) >= lenPrefixSize {
			n := int(binary.LittleEndian.Uint32(pending))
			if len(pending) < lenPrefixSize+n {
				break
			}
			pkt := pending[lenPrefixSize : lenPrefixSize+n]
			ci := gopacket.CaptureInfo{
				Timestamp:     time.Now(),
				CaptureLength: n,
				Length:        n,
			}
			if err := w.WritePacket(ci, pkt); err != nil {
				return fmt.Errorf("failed to write packet: %w", err)
			}
			packets++
			pending = pending[lenPrefixSize+n:]
		}
	}
	if len(pending) != 0 {
		return fmt.Errorf("stream ended mid-frame with %d bytes pending", len(pending))
	}

	log.Infof("captured %d packets to %s", packets, path)
	return nil
}

func count(rx *channel.Receiver, log *zap.SugaredLogger) int {
	read := 0
	for rx.IsOpen() {
		reg := rx.Next()
		if reg == nil {
			time.Sleep(time.Millisecond)
			continue
		}
		read += reg.Len()
		reg.Release()
	}
	log.Infof("observed %s", datasize.ByteSize(read).HumanReadable())
	return read
}

func run(cmd Cmd) error {
	level := zap.InfoLevel
	if cmd.Debug {
		level = zap.DebugLevel
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
	capRx := ch.Receiver()
	cntRx := ch.Receiver()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A signal closes the channel; producers stop and consumers drain what
	// was already committed, so the pcap stays frame-complete.
	go func() {
		if err := xcmd.WaitInterrupted(ctx); !errors.Is(err, context.Canceled) {
			log.Infof("caught signal: %v", err)
			ch.Close()
		}
	}()

	wg, _ := errgroup.WithContext(ctx)
	wg.Go(func() error {
		defer ch.Close()
		return produce(tx, cmd.Count, cmd.Payload, log.With("role", "producer"))
	})
	wg.Go(func() error {
		return capture(capRx, cmd.Output, log.With("role", "capture"))
	})
	wg.Go(func() error {
		count(cntRx, log.With("role", "counter"))
		return nil
	})

	return wg.Wait()
}
