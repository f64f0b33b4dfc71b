package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/notelo/internal/app"
	"github.com/hyperifyio/notelo/internal/source"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitExtraction = 2
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.DefaultContextLogger = &log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	cfg, showVersion, err := parseConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		log.Error().Err(err).Msg("configuration")
		return exitFailure
	}
	if showVersion {
		fmt.Fprintln(stdout, app.VersionString())
		return exitOK
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	ctx = log.Logger.WithContext(ctx)

	a, err := app.New(ctx, cfg, app.WithIO(os.Stdin, stdout))
	if err != nil {
		log.Error().Err(err).Msg("init app")
		return exitFailure
	}
	if err := a.Run(ctx); err != nil {
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps extraction failures to 2 with a user facing message and
// everything else to 1.
func exitCode(err error) int {
	if kind, ok := source.KindOf(err); ok {
		log.Error().Err(err).Str("error_kind", kind.String()).Msg(source.UserMessage(err))
		return exitExtraction
	}
	log.Error().Err(err).Msg("run failed")
	return exitFailure
}

// parseConfig layers defaults, the config file, the environment (after
// loading dotenv files) and finally flags that were set explicitly.
func parseConfig(args []string) (app.Config, bool, error) {
	fs := flag.NewFlagSet("notelo", flag.ContinueOnError)
	var (
		kind        = fs.String("kind", "", "Source kind: text, url, pdf or youtube (default: detect)")
		src         = fs.String("source", "", "Text, URL, or file path for pdf/text; - reads stdin")
		out         = fs.String("out", "", "Output file (default stdout)")
		asJSON      = fs.Bool("json", false, "Write JSON instead of Markdown")
		pdfOut      = fs.String("pdf.out", "", "Also write a study sheet PDF to this path")
		chunkMax    = fs.Int("chunk.max", 0, "Maximum chunk length in characters (0 derives it from the model)")
		preview     = fs.Bool("preview", false, "Summarize only the first chunk")
		generate    = fs.String("generate", "", "Comma list of study artifacts: summary,quiz,flashcards")
		questions   = fs.Int("quiz.n", 0, "Number of quiz questions")
		cards       = fs.Int("flashcards.n", 0, "Number of flashcards")
		llmBase     = fs.String("llm.base", "", "OpenAI-compatible base URL")
		llmModel    = fs.String("llm.model", "", "Model name")
		llmKey      = fs.String("llm.key", "", "API key for the model endpoint")
		aiRate      = fs.Int("ai.rate", 0, "Model calls per minute")
		proxies     = fs.String("proxies", "", "Comma list of proxy URL templates, or off")
		lang        = fs.String("transcript.lang", "", "Caption language for YouTube sources")
		userAgent   = fs.String("ua", "", "User-Agent for fetches")
		cacheDir    = fs.String("cache.dir", "", "Cache directory path")
		cacheMaxAge = fs.Duration("cache.maxAge", 0, "Purge cache entries older than this (e.g. 24h); 0 disables")
		cacheClear  = fs.Bool("cache.clear", false, "Clear the cache directory before running")
		cacheStrict = fs.Bool("cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
		cachePurge  = fs.String("cache.purge", "", "Comma list of entry kinds cache.maxAge purges: pages,summary,quiz,flashcards (default all)")
		configPath  = fs.String("config", "", "YAML or JSON config file")
		envFiles    = fs.String("env", ".env", "Comma list of dotenv files to load")
		verbose     = fs.Bool("v", false, "Verbose logging")
		version     = fs.Bool("version", false, "Print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return app.Config{}, false, err
	}
	if *version {
		return app.Config{}, true, nil
	}

	if err := app.LoadEnvFiles(strings.Split(*envFiles, ",")...); err != nil {
		return app.Config{}, false, fmt.Errorf("load env: %w", err)
	}
	cfg := app.Defaults()
	if *configPath != "" {
		fc, err := app.LoadConfigFile(*configPath)
		if err != nil {
			return cfg, false, fmt.Errorf("load config: %w", err)
		}
		if err := app.ApplyFileConfig(&cfg, fc); err != nil {
			return cfg, false, err
		}
	}
	if err := app.ApplyEnvOverrides(&cfg); err != nil {
		return cfg, false, err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kind":
			cfg.Kind = *kind
		case "out":
			cfg.OutputPath = *out
		case "json":
			cfg.JSON = *asJSON
		case "pdf.out":
			cfg.OutputPDFPath = *pdfOut
		case "chunk.max":
			cfg.ChunkMax = *chunkMax
		case "preview":
			cfg.Preview = *preview
		case "generate":
			gen, err := app.ParseGenerate(*generate)
			if err != nil {
				flagErr = err
			}
			cfg.Generate = gen
		case "quiz.n":
			cfg.QuizCount = *questions
		case "flashcards.n":
			cfg.FlashcardCount = *cards
		case "llm.base":
			cfg.LLMBaseURL = *llmBase
		case "llm.model":
			cfg.LLMModel = *llmModel
		case "llm.key":
			cfg.LLMAPIKey = *llmKey
		case "ai.rate":
			cfg.AIRatePerMinute = *aiRate
		case "proxies":
			if strings.EqualFold(strings.TrimSpace(*proxies), "off") {
				cfg.NoProxies, cfg.Proxies = true, nil
			} else {
				cfg.NoProxies = false
				cfg.Proxies = nil
				for _, p := range strings.Split(*proxies, ",") {
					if p = strings.TrimSpace(p); p != "" {
						cfg.Proxies = append(cfg.Proxies, p)
					}
				}
			}
		case "transcript.lang":
			cfg.TranscriptLang = *lang
		case "ua":
			cfg.UserAgent = *userAgent
		case "cache.dir":
			cfg.CacheDir = *cacheDir
		case "cache.maxAge":
			cfg.CacheMaxAge = *cacheMaxAge
		case "cache.clear":
			cfg.CacheClear = *cacheClear
		case "cache.strictPerms":
			cfg.CacheStrictPerms = *cacheStrict
		case "cache.purge":
			kinds, err := app.ParseCacheKinds(*cachePurge)
			if err != nil {
				flagErr = err
			}
			cfg.CachePurge = kinds
		case "v":
			cfg.Verbose = *verbose
		}
	})
	if flagErr != nil {
		return cfg, false, flagErr
	}

	cfg.Source = *src
	if cfg.Source == "" && fs.NArg() > 0 {
		cfg.Source = strings.Join(fs.Args(), " ")
	}
	return cfg, false, nil
}
