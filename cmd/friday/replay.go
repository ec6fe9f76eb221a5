package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/friday-ai/friday/internal/agent"
	"github.com/friday-ai/friday/internal/config"
	fctx "github.com/friday-ai/friday/internal/context"
	"github.com/friday-ai/friday/internal/llm"
	"github.com/friday-ai/friday/internal/logging"
	"github.com/friday-ai/friday/internal/session"
	"github.com/friday-ai/friday/internal/ui"
)

type replayOptions struct {
	configPath string
	soft       int
	hard       int
	save       bool
	resume     string
	statsOnly  bool
	prompt     bool
	debug      bool
}

func (o *replayOptions) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.configPath, "config", "", "config file path")
	flagSet.IntVar(&o.soft, "soft", 0, "override the soft token limit")
	flagSet.IntVar(&o.hard, "hard", 0, "override the hard token limit")
	flagSet.BoolVar(&o.save, "save", false, "save the final session")
	flagSet.StringVar(&o.resume, "resume", "", "restore a saved session before replaying")
	flagSet.BoolVar(&o.statsOnly, "stats-only", false, "print only the final statistics")
	flagSet.BoolVar(&o.prompt, "prompt", false, "print the final prompt with old tool results masked")
	flagSet.BoolVar(&o.debug, "debug", false, "enable debug logging and event tracing")
}

func runReplay(args []string, stdout, stderr io.Writer) error {
	var opts replayOptions
	flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	opts.addFlags(flagSet)
	if helped, err := parseFlags(flagSet, args, "friday replay [flags] transcript.yaml", stderr); helped || err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("replay takes exactly one transcript file")
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	script, err := loadTranscript(flagSet.Arg(0))
	if err != nil {
		return err
	}

	logCfg := logging.ConfigFromEnv()
	if opts.debug {
		logCfg = logCfg.WithDebugMode(true)
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return replay(ctx, cfg, script, opts, ui.NewOutput(stdout, stderr), logger)
}

func loadConfig(opts replayOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.soft > 0 {
		cfg.Context.SoftTokenLimit = opts.soft
	}
	if opts.hard > 0 {
		cfg.Context.HardTokenLimit = opts.hard
	}
	if opts.soft > 0 || opts.hard > 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// replay drives the transcript through a manager and dispatcher, printing
// each decision as it happens. The session is saved when requested even if
// the replay stops early; every stored snapshot is pairing-valid.
func replay(ctx context.Context, cfg *config.Config, script *transcript, opts replayOptions, out *ui.Output, logger *logging.Logger) error {
	summarizer, err := llm.NewFromConfig(cfg.Summarizer, logger, ui.NewSpinner(out).WaitCallback())
	if err != nil {
		return err
	}

	registry := script.registry()
	cm, err := fctx.NewContextManager(cfg.ManagerConfig(),
		fctx.WithSummarizer(summarizer),
		fctx.WithSchemaSource(registry),
		fctx.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	var store *session.Store
	if opts.save || opts.resume != "" {
		store, err = openStore(cfg, logger)
		if err != nil {
			return err
		}
	}
	if opts.resume != "" {
		sess, err := store.Restore(cm, opts.resume)
		if err != nil {
			return err
		}
		if !opts.statsOnly {
			out.Info(fmt.Sprintf("resumed session %s (%d turns)", sess.ID, len(sess.Turns)))
		}
	}

	dispatcher := agent.NewDispatcher(cm, registry,
		agent.WithMaxConcurrency(cfg.Agent.MaxConcurrency),
		agent.WithWorkingDirectory(cfg.Agent.WorkingDirectory),
		agent.WithLogger(logger),
	)

	p := &player{cm: cm, dispatcher: dispatcher, out: out, quiet: opts.statsOnly}
	runErr := p.play(ctx, script)

	if opts.prompt {
		out.Header("prompt")
		for _, turn := range cm.Snapshot().Masked(cfg.Context.MaskPreserveRecent) {
			out.Turn(turn)
		}
	}
	out.Stats(cm.Stats())
	if opts.save {
		id, err := store.Save(opts.resume, cm.Snapshot())
		if err != nil {
			return err
		}
		out.Success("saved session " + id)
	}
	return runErr
}

func openStore(cfg *config.Config, logger *logging.Logger) (*session.Store, error) {
	codec, err := session.CodecFor(cfg.Session.Format)
	if err != nil {
		return nil, err
	}
	return session.NewStore(cfg.Session.Dir, codec, cfg.Session.MaxSessions, logger)
}

// player feeds transcript steps to the runtime.
type player struct {
	cm         *fctx.ContextManager
	dispatcher *agent.Dispatcher
	out        *ui.Output
	quiet      bool
}

func (p *player) play(ctx context.Context, script *transcript) error {
	if script.System != "" && p.cm.Stats().TurnCount == 0 {
		if err := p.appendTurn(fctx.SystemTurn(script.System)); err != nil {
			return err
		}
	}

	for _, s := range script.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch {
		case s.Usage > 0:
			p.cm.RecordUsage(s.Usage)
		case s.User != "":
			err = p.user(ctx, s.User)
		default:
			err = p.assistant(ctx, s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *player) appendTurn(turn fctx.Turn) error {
	if err := p.cm.AppendTurn(turn); err != nil {
		return err
	}
	if !p.quiet {
		p.out.Turn(turn)
	}
	return nil
}

func (p *player) user(ctx context.Context, content string) error {
	if err := p.appendTurn(fctx.UserTurn(content)); err != nil {
		return err
	}
	res, err := p.cm.CompactIfNeeded(ctx)
	if err != nil {
		return err
	}
	if !p.quiet {
		p.out.Compaction(res)
	}
	return nil
}

func (p *player) assistant(ctx context.Context, s step) error {
	calls := make([]fctx.ToolCall, len(s.Calls))
	for i, c := range s.Calls {
		calls[i] = c.toolCall()
	}
	turn := fctx.AssistantTurn(s.Assistant, calls...)

	stepResult, err := p.dispatcher.Dispatch(ctx, turn)
	if stepResult == nil {
		return err
	}
	if !p.quiet {
		p.out.Turn(turn)
		for i, gate := range stepResult.Gates {
			p.out.Gate(calls[i], gate)
		}
		for _, rt := range stepResult.Results {
			p.out.ToolResult(rt)
		}
		if stepResult.Guidance != nil {
			p.out.Turn(*stepResult.Guidance)
		}
		p.out.Compaction(stepResult.Compaction)
	}
	return err
}
