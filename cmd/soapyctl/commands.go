package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rjboer/gosoapy/internal/discovery"
	"github.com/rjboer/gosoapy/internal/dsp"
	"github.com/rjboer/gosoapy/internal/iq"
	"github.com/rjboer/gosoapy/internal/logging"
	"github.com/rjboer/gosoapy/internal/soapy"
	"github.com/rjboer/gosoapy/internal/telemetry"
	"github.com/rjboer/gosoapy/internal/worker"
)

type app struct {
	cfg         persistentConfig
	configPath  string
	save        bool
	showStatus  bool
	sshPassword string
	log         logging.Logger
}

func newRootCmd(lookup func(string) (string, bool), defaults persistentConfig, configPath string) *cobra.Command {
	a := &app{configPath: configPath, sshPassword: envString(lookup, "SOAPY_SSH_PASSWORD", "")}

	root := &cobra.Command{
		Use:          "soapyctl",
		Short:        "Control and stream SoapySDR devices through a worker process",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.Parse(a.cfg.LogLevel, "text", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.log = logger
			logging.SetDefault(logger)
			if a.save {
				if err := saveConfig(a.configPath, a.cfg); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	c := &a.cfg
	f.StringVar(&c.Transport, "transport", envString(lookup, "SOAPY_TRANSPORT", defaults.Transport), "Worker transport (inproc|local|ssh)")
	f.StringVar(&c.WorkerPath, "worker", envString(lookup, "SOAPY_WORKER", defaults.WorkerPath), "soapyworker executable for local and ssh transports")
	f.StringVar(&c.Driver, "driver", envString(lookup, "SOAPY_DRIVER", defaults.Driver), "Device driver (sim|native)")
	f.StringVar(&c.Identifier, "identifier", envString(lookup, "SOAPY_IDENTIFIER", defaults.Identifier), "Device identifier (SoapySDR args); first device when empty")
	f.StringVar(&c.Subdevice, "subdevice", envString(lookup, "SOAPY_SUBDEVICE", defaults.Subdevice), "Frontend mapping")
	f.IntVar(&c.AntennaIndex, "antenna", envInt(lookup, "SOAPY_ANTENNA", defaults.AntennaIndex), "Antenna index")
	f.Float64Var(&c.Frequency, "frequency", envFloat(lookup, "SOAPY_FREQUENCY", defaults.Frequency), "Center frequency in Hz")
	f.Float64Var(&c.SampleRate, "sample-rate", envFloat(lookup, "SOAPY_SAMPLE_RATE", defaults.SampleRate), "Sample rate in Hz")
	f.Float64Var(&c.Bandwidth, "bandwidth", envFloat(lookup, "SOAPY_BANDWIDTH", defaults.Bandwidth), "Bandwidth in Hz")
	f.Float64Var(&c.Gain, "gain", envFloat(lookup, "SOAPY_GAIN", defaults.Gain), "Gain, 0-100")
	f.IntVar(&c.OpenRetries, "open-retries", envInt(lookup, "SOAPY_OPEN_RETRIES", defaults.OpenRetries), "Open retries with exponential back-off")
	f.StringVar(&c.SSHHost, "ssh-host", envString(lookup, "SOAPY_SSH_HOST", defaults.SSHHost), "Host running the worker (ssh transport)")
	f.StringVar(&c.SSHUser, "ssh-user", envString(lookup, "SOAPY_SSH_USER", defaults.SSHUser), "SSH user")
	f.StringVar(&c.SSHKeyPath, "ssh-key", envString(lookup, "SOAPY_SSH_KEY", defaults.SSHKeyPath), "SSH private key file")
	f.IntVar(&c.SSHPort, "ssh-port", envInt(lookup, "SOAPY_SSH_PORT", defaults.SSHPort), "SSH port")
	f.StringVar(&c.WebAddr, "web-addr", envString(lookup, "SOAPY_WEB_ADDR", defaults.WebAddr), "Optional status web listen address (e.g. :8080)")
	f.IntVar(&c.HistoryLimit, "history-limit", envInt(lookup, "SOAPY_HISTORY_LIMIT", defaults.HistoryLimit), "Status lines kept for the web view")
	f.StringVar(&c.LogLevel, "log-level", envString(lookup, "SOAPY_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	f.BoolVar(&a.save, "save", false, "Write the effective settings back to the config file")
	f.BoolVar(&a.showStatus, "show-status", false, "Print worker status lines to stderr")

	root.AddCommand(a.listCmd(), a.discoverCmd(), a.paramsCmd(), a.rxCmd(), a.txCmd())
	return root
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the devices the worker can see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := connect(cmd.Context(), a.cfg, a.sshPassword, a.log)
			if err != nil {
				return err
			}
			client := worker.NewClient(conn, nil, a.log)
			devices, err := client.ListDevices()
			if cerr := client.Close(); cerr != nil {
				a.log.Warn("close worker", logging.Err(cerr))
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "no devices found")
			}
			for _, d := range devices {
				fmt.Fprintln(out, d)
			}
			return nil
		},
	}
}

func (a *app) discoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the network for SoapyRemote servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hosts, err := discovery.Discover(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hosts) == 0 {
				fmt.Fprintln(out, "no SoapyRemote servers found")
			}
			for _, h := range hosts {
				fmt.Fprintf(out, "%s\t%s\n", h.Instance, h.Identifier())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "Browse duration")
	return cmd
}

func (a *app) paramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the device parameters sent on configure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := json.MarshalIndent(a.cfg.settings().DeviceParameters(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

// withSession opens a device for the given direction and runs body next to
// the optional status web view. The web view stops when body returns; a web
// view failure cancels the context body receives.
func (a *app) withSession(cmd *cobra.Command, tx bool, body func(context.Context, *telemetry.Hub, *session) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	hub := telemetry.NewHub(a.cfg.HistoryLimit)
	if a.cfg.WebAddr != "" {
		web := telemetry.NewWebServer(a.cfg.WebAddr, hub, a.log)
		g.Go(func() error { return web.Start(gctx) })
	}
	status := telemetry.MultiReporter{hub, telemetry.NewLogReporter(a.log)}
	if a.showStatus {
		status = append(status, newConsoleReporter(cmd.ErrOrStderr()))
	}

	g.Go(func() error {
		defer cancel()
		s, err := openSession(gctx, a.cfg, a.sshPassword, tx, status, a.log)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil {
				a.log.Warn("close session", logging.Err(err))
			}
		}()
		hub.SetParams(s.settings.DeviceParameters)
		return body(gctx, hub, s)
	})
	return g.Wait()
}

func (a *app) progress(cmd *cobra.Command, max int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (a *app) rxCmd() *cobra.Command {
	var (
		chunks int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "rx",
		Short: "Receive chunks and summarize their spectrum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if chunks <= 0 {
				return fmt.Errorf("chunks must be positive")
			}
			var sink io.Writer = io.Discard
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				sink = f
			}
			return a.withSession(cmd, false, func(ctx context.Context, hub *telemetry.Hub, s *session) error {
				return a.receive(ctx, cmd, hub, s, sink, chunks)
			})
		},
	}
	cmd.Flags().IntVar(&chunks, "chunks", 10, "Chunks to receive")
	cmd.Flags().StringVar(&out, "out", "", "Write raw CF32 samples to this file")
	return cmd
}

func (a *app) receive(ctx context.Context, cmd *cobra.Command, hub *telemetry.Hub, s *session, sink io.Writer, chunks int) error {
	chunk, err := s.client.PrepareReceive()
	if err != nil {
		return err
	}
	bar := a.progress(cmd, int64(chunks), "receiving")
	var last dsp.Spectrum
	var power float64
	for i := 0; i < chunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := s.client.ReceiveRaw()
		if err != nil {
			return err
		}
		if _, err := sink.Write(frame); err != nil {
			return fmt.Errorf("write capture: %w", err)
		}
		samples, err := iq.BytesToIQ(frame)
		if err != nil {
			return err
		}
		last = dsp.Compute(samples, s.settings.SampleRate)
		power = dsp.MeanPower(samples)
		hub.UpdateSpectrum(last, power)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	offset, level := last.Peak()
	fmt.Fprintf(cmd.OutOrStdout(), "received %d chunks of %d samples\n", chunks, chunk)
	fmt.Fprintf(cmd.OutOrStdout(), "peak %+.0f Hz at %.1f dBFS, mean power %.1f dBFS\n", offset, level, power)
	return nil
}

func (a *app) txCmd() *cobra.Command {
	var (
		total      int
		batch      int
		tone       float64
		amplitude  float64
		continuous bool
	)
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Transmit a test tone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch <= 0 || total <= 0 {
				return fmt.Errorf("samples and batch must be positive")
			}
			return a.withSession(cmd, true, func(ctx context.Context, _ *telemetry.Hub, s *session) error {
				if err := s.client.PrepareSend(continuous); err != nil {
					return err
				}
				bar := a.progress(cmd, int64(total), "transmitting")
				step := 2 * math.Pi * tone / s.settings.SampleRate
				phase := 0.0
				for sent := 0; sent < total; {
					if err := ctx.Err(); err != nil {
						return err
					}
					n := min(batch, total-sent)
					samples := make([]complex64, n)
					for i := range samples {
						samples[i] = complex64(complex(amplitude*math.Cos(phase), amplitude*math.Sin(phase)))
						phase = math.Mod(phase+step, 2*math.Pi)
					}
					if err := s.client.Send(samples); err != nil {
						return err
					}
					sent += n
					_ = bar.Add(n)
				}
				_ = bar.Finish()
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d samples\n", total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&total, "samples", 1_000_000, "Samples to transmit")
	cmd.Flags().IntVar(&batch, "batch", soapy.TXChunkSize*2, "Samples per send")
	cmd.Flags().Float64Var(&tone, "tone", 100e3, "Tone offset in Hz")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 0.7, "Tone amplitude, 0-1")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Forward each batch unchunked")
	return cmd
}
