// Command jnetemu-demo exercises a single emulator instance end to end:
// it opens two throwaway UDP sockets standing in for peer A and peer B,
// starts an Instance relaying between them, sends a handful of
// datagrams from peer A, and reports what peer B receives.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mucaho/jnetemu/impair"
	"github.com/mucaho/jnetemu/internal/logging"
	"github.com/mucaho/jnetemu/netem"
)

func main() {
	if err := newDemoCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDemoCmd() *cobra.Command {
	var (
		loss        float64
		duplication float64
		delayMs     int64
		jitterMs    int64
		count       int
	)

	cmd := &cobra.Command{
		Use:   "jnetemu-demo",
		Short: "Send a batch of datagrams through a local emulator instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), demoOptions{
				loss: loss, duplication: duplication,
				delayMs: delayMs, jitterMs: jitterMs,
				count: count,
			})
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&loss, "loss", impair.DefaultLoss, "probability a datagram is dropped")
	flags.Float64Var(&duplication, "duplication", impair.DefaultDuplication, "probability a datagram is duplicated again")
	flags.Int64Var(&delayMs, "delay-ms", impair.DefaultDelayMs, "base one-way delay in milliseconds")
	flags.Int64Var(&jitterMs, "jitter-ms", impair.DefaultJitterMs, "uniform jitter applied around the base delay")
	flags.IntVar(&count, "count", 10, "number of datagrams to send")
	flags.SortFlags = false
	flags.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	return cmd
}

type demoOptions struct {
	loss, duplication float64
	delayMs, jitterMs int64
	count             int
}

func runDemo(ctx context.Context, opts demoOptions) error {
	peerA, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return fmt.Errorf("jnetemu-demo: peer A listen: %w", err)
	}
	defer peerA.Close()

	peerB, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return fmt.Errorf("jnetemu-demo: peer B listen: %w", err)
	}
	defer peerB.Close()

	emulatorAddr, err := freeUDPAddr()
	if err != nil {
		return fmt.Errorf("jnetemu-demo: reserving emulator port: %w", err)
	}
	emulatorEndpoint, err := netem.ResolveEndpoint(emulatorAddr.String())
	if err != nil {
		return err
	}
	peerAEndpoint, err := netem.ResolveEndpoint(peerA.LocalAddr().String())
	if err != nil {
		return err
	}
	peerBEndpoint, err := netem.ResolveEndpoint(peerB.LocalAddr().String())
	if err != nil {
		return err
	}

	logger := logging.New()

	params := impair.NewParams()
	params.SetLoss(opts.loss)
	params.SetDuplication(opts.duplication)
	params.SetDelayMs(opts.delayMs)
	params.SetJitterMs(opts.jitterMs)

	inst, err := netem.New(netem.Config{
		Emulator: emulatorEndpoint,
		PeerA:    peerAEndpoint,
		PeerB:    peerBEndpoint,
		Logger:   logger,
	}, impair.New(params))
	if err != nil {
		return err
	}

	if err := inst.Start(ctx); err != nil {
		return fmt.Errorf("jnetemu-demo: starting instance: %w", err)
	}
	defer inst.Stop(context.Background())

	received := make(chan []byte, opts.count*4)
	go func() {
		buf := make([]byte, 2048)
		for {
			n, _, err := peerB.ReadFrom(buf)
			if err != nil {
				return
			}
			body := make([]byte, n)
			copy(body, buf[:n])
			received <- body
		}
	}()

	for i := 0; i < opts.count; i++ {
		if _, err := peerA.WriteTo([]byte{byte(i)}, emulatorAddr); err != nil {
			return fmt.Errorf("jnetemu-demo: send %d: %w", i, err)
		}
	}

	deadline := time.After(2*time.Second + time.Duration(opts.delayMs+opts.jitterMs)*time.Millisecond)
	var got int
collect:
	for {
		select {
		case <-received:
			got++
		case <-deadline:
			break collect
		}
	}

	fmt.Printf("sent %d datagrams, peer B observed %d (loss=%.2f duplication=%.2f)\n", opts.count, got, opts.loss, opts.duplication)
	return nil
}

// freeUDPAddr reserves an ephemeral UDP port by briefly opening and
// immediately closing a socket on it, so the instance's raw, non-blocking
// socket (opened separately by Instance.Start) can bind the same port.
// This is inherently racy against another process grabbing the port
// first; acceptable for a demo harness, not for production use.
func freeUDPAddr() (*net.UDPAddr, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	addr := conn.LocalAddr().(*net.UDPAddr)
	if err := conn.Close(); err != nil {
		return nil, err
	}
	return addr, nil
}
