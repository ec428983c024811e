package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parley/internal/app"
	"parley/internal/config"
	"parley/internal/db"
	"parley/internal/domain"
	"parley/internal/engine"
	"parley/internal/repo"
	"parley/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley CLI",
	Long: `Parley runs adaptive discovery interviews and scores how ready each
session is for report generation.
Core concepts:
- Workspace: the .parley directory holding only the database; config lives in parley.yml.
- Session: one durable interview, created from an intake profile with its pain points.
- Phases: confirmation -> deepdive -> synthesis -> complete, strictly forward.
- Deep dive: a staged sub-conversation per pain point (current state, failed
  attempts, cost impact, ideal state, stakeholders).
- Milestone: the synthesized finding with ROI and vendor fits, recorded once
  per pain point.
- Confidence: a deterministic score over topic coverage, depth, and quality,
  with hard gates that decide readiness regardless of the number.
- Handoff: the completion payload the report pipeline picks up, delivered via
  webhooks on workshop.completed.
- Event log: diary of everything that happened, view with 'parley log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(confidenceCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func sessionCmd() *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Manage interview sessions"}
	session.AddCommand(sessionCreateCmd())
	session.AddCommand(sessionListCmd())
	session.AddCommand(sessionShowCmd())
	session.AddCommand(sessionDeleteCmd())
	session.AddCommand(sessionStartCmd())
	session.AddCommand(sessionConfirmCmd())
	session.AddCommand(sessionRespondCmd())
	session.AddCommand(sessionMilestoneCmd())
	session.AddCommand(sessionCompleteCmd())
	return session
}

func sessionCreateCmd() *cobra.Command {
	var id, profilePath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session from an intake profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := readProfile(profilePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSession(ctx, engine.CreateSessionOptions{
					ID:      id,
					Profile: profile,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "session id (generated when empty)")
	cmd.Flags().StringVar(&profilePath, "profile", "", "path to intake profile JSON, or - for stdin")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func readProfile(path string) (domain.Profile, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Profile{}, fmt.Errorf("invalid profile json: %w", err)
	}
	return p, nil
}

func sessionListCmd() *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSessions(ctx, phase)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Phase", "Pain Points", "Version", "Created"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.State.Phase, len(s.Profile.PainPoints), s.Version, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "phase filter")
	return cmd
}

func sessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sessionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func sessionStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <session-id>",
		Short: "Start the workshop: detect signals and build summary cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Start(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Session %s started (technical=%t budget_ready=%t decision_maker=%t)\n",
					s.ID, s.State.Signals.Technical, s.State.Signals.BudgetReady, s.State.Signals.DecisionMaker)
				for _, card := range s.State.Confirmation.Cards {
					fmt.Printf("  [%s] %s: %s\n", card.Key, card.Title, card.Body)
				}
				return nil
			})
		},
	}
	return cmd
}

func sessionConfirmCmd() *cobra.Command {
	var priority []string
	cmd := &cobra.Command{
		Use:   "confirm <session-id>",
		Short: "Confirm the summary and enter the deep-dive phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Confirm(ctx, engine.ConfirmOptions{
					SessionID:     args[0],
					PriorityOrder: priority,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Deep-dive order: %s\n", strings.Join(s.State.DeepDiveOrder, ", "))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&priority, "priority", nil, "pain point ids in priority order")
	return cmd
}

func sessionRespondCmd() *cobra.Command {
	var painPoint, message string
	cmd := &cobra.Command{
		Use:   "respond <session-id>",
		Short: "Submit a user turn and print the next question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Respond(ctx, engine.RespondOptions{
					SessionID:   args[0],
					PainPointID: painPoint,
					Message:     message,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("[%s] %s\n", res.Stage, res.Question)
				if res.UsedFallback {
					fmt.Println("(question service unavailable; used templated question)")
				}
				if res.MilestoneReady {
					fmt.Printf("Deep dive complete. Run: parley session milestone %s --pain-point %s\n", args[0], painPoint)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&painPoint, "pain-point", "", "pain point id")
	cmd.Flags().StringVar(&message, "message", "", "user message")
	_ = cmd.MarkFlagRequired("pain-point")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func sessionMilestoneCmd() *cobra.Command {
	var painPoint string
	cmd := &cobra.Command{
		Use:   "milestone <session-id>",
		Short: "Synthesize the milestone for a completed deep dive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Milestone(ctx, args[0], painPoint, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("%s\n%s\n", m.Finding.Title, m.Finding.Summary)
				fmt.Printf("Annual cost: %.0f, potential savings: %.0f (confidence %.2f)\n",
					m.ROI.AnnualCost, m.ROI.PotentialSavings, m.Confidence)
				if m.NeedsManualReview {
					fmt.Println("Flagged for manual review.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&painPoint, "pain-point", "", "pain point id")
	_ = cmd.MarkFlagRequired("pain-point")
	return cmd
}

func sessionCompleteCmd() *cobra.Command {
	var force bool
	var answers []string
	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Evaluate the completion gate and close the workshop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			finalAnswers, err := parseKeyValues(answers)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Complete(ctx, engine.CompleteOptions{
					SessionID:    args[0],
					FinalAnswers: finalAnswers,
					Force:        force,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.Completed {
					fmt.Printf("Not ready: score %.2f (%s)\n", res.Readiness.Score, res.Readiness.Level)
					if len(res.SuggestedTopics) > 0 {
						fmt.Println("Topics needing more material:")
						for _, t := range res.SuggestedTopics {
							fmt.Printf("  - %s\n", t)
						}
					}
					fmt.Println("Re-run with --force to complete anyway (flags the session for manual review).")
					return nil
				}
				fmt.Printf("Completed. Handoff token: %s (milestones=%d, duration=%dm)\n",
					res.Handoff.Token, res.Handoff.MilestoneCount, res.Handoff.DurationMinutes)
				if res.Handoff.NeedsManualReview {
					fmt.Println("Handoff flagged for manual review.")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "complete even below the readiness gate")
	cmd.Flags().StringSliceVar(&answers, "answer", nil, "final answer key=value, repeatable")
	return cmd
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[k] = v
	}
	return out, nil
}

func confidenceCmd() *cobra.Command {
	conf := &cobra.Command{Use: "confidence", Short: "Confidence scoring"}
	conf.AddCommand(confidenceScoreCmd())
	conf.AddCommand(confidenceHistoryCmd())
	return conf
}

func confidenceScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <session-id>",
		Short: "Score the session and persist the breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Confidence(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("Score: %.2f (%s), ready=%t [analyzer %s]\n",
					rep.Readiness.Score, rep.Readiness.Level, rep.Readiness.IsReadyForReport, rep.AnalyzerVersion)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Topic", "Confidence", "Coverage", "Depth", "Specificity", "Actionability"})
				for _, topic := range domain.AllTopics() {
					ts := rep.Topics[topic]
					tw.AppendRow(table.Row{topic, fmt.Sprintf("%.2f", rep.TopicConfidence[topic]), ts.Coverage, ts.Depth, ts.Specificity, ts.Actionability})
				}
				tw.Render()
				g := rep.Readiness.HardGates
				fmt.Printf("Gates: challenges=%t spread=%t pain_point=%t\n", g.ChallengesCovered, g.TopicSpreadMet, g.PainPointFound)
				return nil
			})
		},
	}
	return cmd
}

func confidenceHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show past confidence reports, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListReports(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Created", "Analyzer", "Score", "Level", "Ready"})
				for _, rep := range items {
					tw.AppendRow(table.Row{rep.CreatedAt, rep.AnalyzerVersion, fmt.Sprintf("%.2f", rep.Readiness.Score), rep.Readiness.Level, rep.Readiness.IsReadyForReport})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 20, "number of reports")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name, scopes string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the plaintext is printed exactly once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name, scopes)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "key": plain})
				}
				fmt.Printf("Created key %s for %s\nKey: %s\nStore it now; it cannot be shown again.\n", key.ID, key.ActorID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&scopes, "scopes", "", "comma-separated permissions, e.g. session.force_complete")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Scopes", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.Scopes, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor-id", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage parley.yml",
		Long:  "Config is the rulebook: transcript window, deep-dive cap, generation service endpoints, vendor catalog path, and webhook subscriptions.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configCheckCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default parley.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate parley.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			fmt.Println("config ok")
			return nil
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Session counts by phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.CountSessionsByPhase(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				fmt.Println("Sessions:")
				for _, phase := range []domain.Phase{domain.PhaseConfirmation, domain.PhaseDeepDive, domain.PhaseSynthesis, domain.PhaseComplete} {
					fmt.Printf("  %s: %d\n", phase, counts[string(phase)])
				}
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: session changes, milestone synthesis, confidence runs, and overrides.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var sessionID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, sessionID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			appCtx, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer appCtx.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("PARLEY_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PARLEY_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: appCtx.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Parley API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, repo.Repo{DB: appCtx.DB})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
