// SPDX-License-Identifier: MIT

// Command daemon runs the teamcast service: the EPG generator, the
// event-group channel lifecycle and the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamcast/teamcast/internal/api"
	"github.com/teamcast/teamcast/internal/cache"
	"github.com/teamcast/teamcast/internal/config"
	"github.com/teamcast/teamcast/internal/dispatch"
	"github.com/teamcast/teamcast/internal/epg"
	"github.com/teamcast/teamcast/internal/lifecycle"
	tclog "github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/match"
	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/provider/espn"
	"github.com/teamcast/teamcast/internal/provider/tsdb"
	"github.com/teamcast/teamcast/internal/store"
	"github.com/teamcast/teamcast/internal/teamcache"
	"github.com/teamcast/teamcast/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// teamcacheRefreshInterval is how often the team/league index rebuilds.
const teamcacheRefreshInterval = 7 * 24 * time.Hour

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("teamcast %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	tclog.Configure(tclog.Config{
		Level:           cfg.LogLevel,
		Service:         "teamcast",
		ComponentLevels: cfg.LogComponentLevels,
	})
	logger := tclog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		Protocol:       cfg.OTLPProtocol,
		ServiceVersion: version,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry init failed")
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("data dir unavailable")
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "teamcast.db"))
	if err != nil {
		logger.Fatal().Err(err).Msg("store open failed")
	}
	defer func() { _ = st.Close() }()

	var responseCache cache.Cache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.RedisAddr}, tclog.WithComponent("cache"))
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable")
		}
		defer func() { _ = rc.Close() }()
		responseCache = rc
	} else {
		responseCache = cache.NewMemoryCache(5 * time.Minute)
	}

	leagues := provider.NewLeagueMap(provider.DefaultMappings())
	if persisted, err := st.ListLeagueMappings(ctx); err == nil && len(persisted) > 0 {
		leagues.Replace(persisted)
	}

	registry := provider.NewRegistry()
	registry.Register(provider.Registration{
		Name: "espn", Priority: 10, Enabled: true,
		Factory: func() provider.Provider {
			opts := []espn.Option{espn.WithTimezone(cfg.Timezone)}
			if cfg.ESPNBaseURL != "" {
				opts = append(opts, espn.WithBaseURL(cfg.ESPNBaseURL))
			}
			return espn.New(leagues, responseCache, cfg.RequestsPerMinute, opts...)
		},
	})
	if cfg.TSDBAPIKey != "" {
		registry.Register(provider.Registration{
			Name: "tsdb", Priority: 20, Enabled: true,
			Factory: func() provider.Provider {
				return tsdb.New(cfg.TSDBAPIKey, leagues, responseCache, cfg.RequestsPerMinute)
			},
		})
	}

	teams := teamcache.New()
	if err := teams.Refresh(ctx, registry, leagues, 8); err != nil {
		logger.Warn().Err(err).Msg("initial team cache refresh failed")
	}
	go func() {
		ticker := time.NewTicker(teamcacheRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := teams.Refresh(ctx, registry, leagues, 8); err != nil {
					logger.Warn().Err(err).Msg("team cache refresh failed")
				}
			}
		}
	}()

	streamCache, err := match.OpenStreamCache(filepath.Join(cfg.DataDir, "streamcache"))
	if err != nil {
		logger.Fatal().Err(err).Msg("stream cache open failed")
	}
	defer func() { _ = streamCache.Close() }()

	aliases, err := st.ListAliases(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("alias load failed")
	}
	keywords, err := st.ListExceptionKeywords(ctx, 0)
	if err != nil {
		logger.Warn().Err(err).Msg("exception keyword load failed")
	}
	overrides, err := st.ListMatchOverrides(ctx, 0)
	if err != nil {
		logger.Warn().Err(err).Msg("match override load failed")
	}

	normalizer := &match.Normalizer{ExceptionKeywords: keywords}
	classifier := &match.Classifier{Overrides: compileOverrides(logger, overrides)}
	teamMatcher := match.NewTeamMatcher(teams, registry, aliases)
	matcher := match.NewMatcher(normalizer, classifier, teamMatcher, teams, registry, leagues, streamCache, cfg.Timezone)
	matcher.ExceptionKeywords = keywords

	settings := epg.Settings{
		Timezone:        cfg.Timezone,
		DaysAhead:       st.GetSettingInt(ctx, "days_ahead", 3),
		Use12HourClock:  st.GetSetting(ctx, "clock", "12h") == "12h",
		ShowTimezone:    st.GetSetting(ctx, "show_timezone", "false") == "true",
		RecentScoreDays: st.GetSettingInt(ctx, "recent_score_days", 3),
		Crossover:       epg.MidnightCrossover(st.GetSetting(ctx, "midnight_crossover", string(epg.CrossoverPostgame))),
		Durations: epg.DurationSettings{
			DefaultMinutes: st.GetSettingInt(ctx, "game_duration_minutes", 180),
			PerSportMinutes: map[string]int{
				"baseball": st.GetSettingInt(ctx, "duration_baseball", 210),
				"football": st.GetSettingInt(ctx, "duration_football", 195),
				"soccer":   st.GetSettingInt(ctx, "duration_soccer", 135),
			},
		},
	}
	orchestrator := epg.NewOrchestrator(registry, leagues, teams, settings)

	var templateWatcher *config.TemplateWatcher
	if cfg.TemplatesPath != "" {
		templateWatcher, err = config.NewTemplateWatcher(cfg.TemplatesPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.TemplatesPath).Msg("template watcher failed")
		}
		defer func() { _ = templateWatcher.Close() }()
	}

	generate := func(ctx context.Context) (*epg.RunResult, error) {
		runID, err := st.StartRun(ctx, time.Now())
		if err != nil {
			return nil, err
		}
		teamConfigs, err := st.ListTeams(ctx)
		if err != nil {
			return nil, err
		}
		templates, err := st.ListTemplates(ctx)
		if err != nil {
			return nil, err
		}
		if templateWatcher != nil {
			for _, t := range templateWatcher.Templates() {
				id, err := st.SaveTemplate(ctx, t)
				if err != nil {
					logger.Warn().Err(err).Str("template", t.Name).Msg("template persist failed")
					continue
				}
				t.ID = id
				templates[id] = t
			}
		}

		result, err := orchestrator.Run(ctx, teamConfigs, templates)
		if err != nil {
			return nil, err
		}
		if err := epg.WriteXMLTV(epg.BuildTV(result.Channels, result.Programs), cfg.XMLTVPath); err != nil {
			return nil, err
		}

		var errs []string
		for _, e := range result.Errors {
			errs = append(errs, e.Team+": "+e.Error)
		}
		if err := st.FinishRun(ctx, runID, time.Now(), result.ChannelsGenerated, result.ChannelsFailed, len(result.Programs), errs); err != nil {
			logger.Warn().Err(err).Msg("run record failed")
		}
		return result, nil
	}

	server := &api.Server{
		Store:     st,
		XMLTVPath: cfg.XMLTVPath,
		Generate:  generate,
	}

	if cfg.MiddlewareURL != "" {
		middleware := dispatch.New(cfg.MiddlewareURL, cfg.MiddlewareToken)
		engine := lifecycle.NewEngine(st, middleware, leagues, settings.Durations, matcher)
		scheduler := lifecycle.NewScheduler(engine, 0)
		scheduler.Start(ctx)
		defer scheduler.Stop()

		server.Engine = engine
		server.Scheduler = scheduler
		server.SyncGroup = func(ctx context.Context, groupID int64) (lifecycle.SyncStats, error) {
			group, err := st.GetGroup(ctx, groupID)
			if err != nil {
				return lifecycle.SyncStats{}, err
			}
			streams, err := middleware.ListStreams(ctx, "")
			if err != nil {
				return lifecycle.SyncStats{}, err
			}
			filters, err := groupFilters(group)
			if err != nil {
				return lifecycle.SyncStats{}, err
			}
			// Group-scoped keywords and overrides are read fresh on every
			// sync so edits apply without a restart.
			if kws, err := st.ListExceptionKeywords(ctx, group.ID); err == nil {
				filters.ExceptionKeywords = kws
			}
			if ovs, err := st.ListMatchOverrides(ctx, group.ID); err == nil {
				filters.Overrides = compileOverrides(logger, ovs)
			}
			streamCache.BumpGeneration()
			results := make([]match.Result, 0, len(streams))
			for _, s := range streams {
				results = append(results, matcher.Match(ctx, match.Stream{ID: s.ID, Name: s.Name}, filters))
			}
			return engine.SyncGroup(ctx, group, results)
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api shutdown incomplete")
	}
}

// compileOverrides compiles stored classifier patterns, skipping any that no
// longer parse.
func compileOverrides(logger zerolog.Logger, rows []store.MatchOverride) []match.OverridePattern {
	out := make([]match.OverridePattern, 0, len(rows))
	for _, row := range rows {
		re, err := regexp.Compile(row.Pattern)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", row.Pattern).Msg("match override skipped")
			continue
		}
		out = append(out, match.OverridePattern{League: row.League, Re: re})
	}
	return out
}

func groupFilters(group store.EventGroup) (match.GroupFilters, error) {
	f := match.GroupFilters{
		IncludeLeagues:   group.IncludeLeagues,
		CandidateLeagues: group.CandidateLeagues,
	}
	if group.IncludeRegex != "" {
		re, err := regexp.Compile(group.IncludeRegex)
		if err != nil {
			return f, fmt.Errorf("group %d include regex: %w", group.ID, err)
		}
		f.Include = re
	}
	if group.ExcludeRegex != "" {
		re, err := regexp.Compile(group.ExcludeRegex)
		if err != nil {
			return f, fmt.Errorf("group %d exclude regex: %w", group.ID, err)
		}
		f.Exclude = re
	}
	return f, nil
}
