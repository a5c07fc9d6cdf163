package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/gainlink/internal/config"
	"github.com/justyntemme/gainlink/pkg/dsp/signal"
	"github.com/justyntemme/gainlink/pkg/framework/metrics"
	"github.com/justyntemme/gainlink/pkg/framework/plugin"
	"github.com/justyntemme/gainlink/pkg/gainstage"
	"github.com/justyntemme/gainlink/pkg/shared"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a coordinator and participants on synthetic tracks",
	Long: `Run one coordinator and a number of participants in this process, each
with its own registry handle, feeding them synthetic material in real time.
The participants' outputs are summed into the coordinator's input the way a
mix bus would. When the run ends the session is printed like status does.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	flags := simulateCmd.Flags()
	flags.IntP("participants", "n", 0, "number of participant tracks")
	flags.DurationP("duration", "d", 0, "how long to run")
	flags.String("metrics-address", "", "serve Prometheus metrics on this address while running")
	flags.Bool("memory", false, "keep the registry in memory instead of the registry file")
	flags.Bool("auto-gain-all", false, "level every track to the coordinator target after one second")
	flags.StringP("output", "o", formatTable, "output format: table, json or yaml")

	_ = viper.BindPFlag("simulate.participants", flags.Lookup("participants"))
	_ = viper.BindPFlag("simulate.duration", flags.Lookup("duration"))
	_ = viper.BindPFlag("metrics.address", flags.Lookup("metrics-address"))
	rootCmd.AddCommand(simulateCmd)
}

// track is one synthetic participant.
type track struct {
	name   string
	source gainstage.SourceType
	signal signal.Config
}

var tracks = []track{
	{"Lead Vox", gainstage.SourceLeadVocal, signal.Config{Kind: signal.Noise, LevelDB: -30, DriftDB: 6, DriftRate: 0.25, Width: 0.1}},
	{"Kick", gainstage.SourceKick, signal.Config{Kind: signal.Pulse, LevelDB: -16, Frequency: 55, Rate: 2}},
	{"Bass", gainstage.SourceBass, signal.Config{Kind: signal.Tone, LevelDB: -24, Frequency: 55}},
	{"Keys", gainstage.SourceKeys, signal.Config{Kind: signal.Noise, LevelDB: -32, Width: 0.8}},
	{"Guitar", gainstage.SourceElectricGuitar, signal.Config{Kind: signal.Noise, LevelDB: -26, DriftDB: 4, DriftRate: 0.5, Width: 0.5}},
	{"Strings", gainstage.SourceStrings, signal.Config{Kind: signal.Tone, LevelDB: -36, Frequency: 440, DriftDB: 3, DriftRate: 0.1}},
	{"Snare", gainstage.SourceSnare, signal.Config{Kind: signal.Pulse, LevelDB: -20, Frequency: 180, Rate: 1}},
	{"Pad", gainstage.SourceSynth, signal.Config{Kind: signal.Noise, LevelDB: -38, Width: 1}},
}

// trackFor returns the i-th synthetic track, cycling through tracks.
func trackFor(i int) track {
	t := tracks[i%len(tracks)]
	if round := i / len(tracks); round > 0 {
		t.name = fmt.Sprintf("%s %d", t.name, round+1)
	}
	t.signal.Seed = int64(i + 1)
	return t
}

// session is a coordinator with its participants, driven block by block.
type session struct {
	cfg *config.Config

	coordinator *gainstage.Coordinator
	coordHost   *plugin.Host

	participants []*gainstage.Participant
	hosts        []*plugin.Host
	generators   []*signal.Generator

	registries []*shared.Registry

	left, right, mixL, mixR []float32
}

// newSession creates the instances. Each gets its own registry handle on
// its own backing, as separate plugin instances would; with memory set they
// share one in-memory region instead of the registry file.
func newSession(c *config.Config, n int, memory bool) (*session, error) {
	s := &session{cfg: c}

	mem := shared.NewMemoryBacking()
	newReg := func() *shared.Registry {
		var b shared.Backing = mem
		if !memory {
			b = shared.NewFileBacking(c.Registry.Path)
		}
		reg := newRegistry(c, b)
		s.registries = append(s.registries, reg)
		return reg
	}

	sr, block := c.Simulate.SampleRate, c.Simulate.BlockSize
	opts := instanceOptions(c)

	s.coordinator = gainstage.NewCoordinator(newReg(), opts...)
	host, err := plugin.NewHost(s.coordinator, sr, block)
	if err != nil {
		return nil, multierr.Append(err, s.close())
	}
	s.coordHost = host

	for i := 0; i < n; i++ {
		t := trackFor(i)
		p := gainstage.NewParticipant(newReg(), append(slices.Clip(opts),
			gainstage.WithLabel(t.name),
			gainstage.WithSourceType(t.source),
		)...)
		s.participants = append(s.participants, p)
		host, err := plugin.NewHost(p, sr, block)
		if err != nil {
			return nil, multierr.Append(err, s.close())
		}
		s.hosts = append(s.hosts, host)
		s.generators = append(s.generators, signal.New(sr, t.signal))
	}

	s.left = make([]float32, block)
	s.right = make([]float32, block)
	s.mixL = make([]float32, block)
	s.mixR = make([]float32, block)
	return s, nil
}

// process runs one block through every participant and the summed output
// through the coordinator.
func (s *session) process() {
	clear(s.mixL)
	clear(s.mixR)
	for i, h := range s.hosts {
		s.generators[i].Process(s.left, s.right)
		h.Process([][]float32{s.left, s.right})
		for j := range s.mixL {
			s.mixL[j] += s.left[j]
			s.mixR[j] += s.right[j]
		}
	}
	s.coordHost.Process([][]float32{s.mixL, s.mixR})
}

// run processes blocks in real time until ctx is done.
func (s *session) run(ctx context.Context, autoGainAll bool) error {
	blockDur := time.Duration(float64(s.cfg.Simulate.BlockSize) / s.cfg.Simulate.SampleRate * float64(time.Second))
	ticker := time.NewTicker(blockDur)
	defer ticker.Stop()

	levelAt := int(s.cfg.Simulate.SampleRate) / s.cfg.Simulate.BlockSize
	for blocks := 0; ; blocks++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s.process()
		if autoGainAll && blocks == levelAt {
			target := s.coordinator.Parameters().Plain(gainstage.ParamTarget)
			n := s.coordinator.AutoGainAll(target)
			log.Info("Levelled all tracks", "target", target, "participants", n)
		}
	}
}

// hostEdits totals the parameter changes participants reported to their
// hosts, mostly adopted broadcast values.
func (s *session) hostEdits() uint64 {
	var n uint64
	for _, h := range s.hosts {
		n += h.Edits()
	}
	return n
}

// close releases every slot and registry handle.
func (s *session) close() error {
	var err error
	for _, p := range s.participants {
		err = multierr.Append(err, p.Close())
	}
	for _, reg := range s.registries {
		err = multierr.Append(err, reg.Close())
	}
	return err
}

func runSimulate(cmd *cobra.Command, _ []string) (err error) {
	flags := cmd.Flags()
	format, _ := flags.GetString("output")
	if err := validFormat(format); err != nil {
		return err
	}
	memory, _ := flags.GetBool("memory")
	autoGainAll, _ := flags.GetBool("auto-gain-all")

	s, err := newSession(cfg, cfg.Simulate.Participants, memory)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.close()) }()
	if s.coordinator.Standalone() {
		return fmt.Errorf("registry %s could not be opened", cfg.Registry.Path)
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Simulate.Duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Address != "" {
		serveMetrics(gctx, g, cfg.Metrics.Address)
	}
	for _, p := range s.participants {
		g.Go(func() error {
			p.Run(gctx)
			return nil
		})
	}
	g.Go(func() error { return s.run(gctx, autoGainAll) })

	log.Info("Simulating", "participants", len(s.participants), "duration", cfg.Simulate.Duration)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Simulation finished", "hostEdits", s.hostEdits())
	return renderContext(cmd.OutOrStdout(), s.coordinator.Context(), format)
}

// serveMetrics exposes the gainlink metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string) {
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	log.Info("Serving metrics", "address", addr)
}
