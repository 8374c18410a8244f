package grouping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/onuralpArsln/AINewspaper/internal/globaltime"
	"github.com/onuralpArsln/AINewspaper/internal/textsim"
)

const (
	tracerName         = "github.com/onuralpArsln/AINewspaper/internal/grouping"
	failedRunTimeout   = 10 * time.Second
	maxLoggedConflicts = 20
)

// Engine runs one grouping pass per call to Run.
type Engine struct {
	store     Store
	tokenizer *textsim.Tokenizer
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source used for the lookback window and
// run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func NewEngine(store Store, tokenizer *textsim.Tokenizer, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		tokenizer: tokenizer,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       globaltime.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run loads the working set, scores eligible pairs, clusters them around
// existing groups and persists new assignments in one transaction.
func (e *Engine) Run(ctx context.Context, params Params) (Report, error) {
	if e == nil || e.store == nil || e.tokenizer == nil {
		return Report{}, fmt.Errorf("grouping engine is not initialized")
	}
	if err := params.Validate(); err != nil {
		return Report{}, err
	}
	scorer, err := textsim.NewScorer(e.tokenizer, params.Weights)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	report := Report{
		RunID:     uuid.New(),
		DryRun:    params.DryRun,
		StartedAt: e.now().UTC(),
		Changes:   make([]GroupChange, 0),
	}
	logger := e.logger.With().Str("run_id", report.RunID.String()).Logger()

	ctx, span := e.tracer.Start(ctx, "grouping.run", trace.WithAttributes(
		attribute.String("grouping.run_id", report.RunID.String()),
		attribute.Bool("grouping.dry_run", params.DryRun),
		attribute.Float64("grouping.similarity_threshold", params.SimilarityThreshold),
	))
	defer span.End()

	logger.Info().
		Float64("threshold", params.SimilarityThreshold).
		Int("lookback_days", params.LookbackDays).
		Int("max_time_diff_days", params.MaxTimeDiffDays).
		Int("min_group_size", params.MinGroupSize).
		Bool("dry_run", params.DryRun).
		Msg("grouping run started")

	if err := e.run(ctx, logger, scorer, params, &report); err != nil {
		if report.FinishedAt.IsZero() {
			e.finish(&report)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrPersistence) {
			e.recordFailedRun(ctx, logger, params, report, err)
		}
		logger.Error().Err(err).Msg("grouping run failed")
		return report, err
	}

	span.SetAttributes(
		attribute.Int("grouping.groups_created", report.GroupsCreated),
		attribute.Int("grouping.groups_extended", report.GroupsExtended),
		attribute.Int("grouping.pairs_scored", report.PairsScored),
	)
	logger.Info().
		Int("groups_created", report.GroupsCreated).
		Int("groups_extended", report.GroupsExtended).
		Int("articles_grouped", report.ArticlesGrouped).
		Int("articles_evaluated", report.ArticlesEvaluated).
		Int("pairs_scored", report.PairsScored).
		Int("clusters_demoted", report.ClustersDemoted).
		Int("anchor_conflicts", report.AnchorConflicts).
		Dur("duration", report.Duration).
		Msg("grouping run finished")
	return report, nil
}

func (e *Engine) run(ctx context.Context, logger zerolog.Logger, scorer *textsim.Scorer, params Params, report *Report) error {
	tx, err := e.store.BeginRun(ctx)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			return err
		}
		return fmt.Errorf("%w: begin run: %w", ErrPersistence, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	since := report.StartedAt.AddDate(0, 0, -params.LookbackDays)
	loadCtx, loadSpan := e.tracer.Start(ctx, "grouping.load")
	articles, err := tx.LoadWorkingSet(loadCtx, since)
	if err != nil {
		loadSpan.End()
		return fmt.Errorf("%w: load working set: %w", ErrPersistence, err)
	}
	anchorIDs := distinctGroupIDs(articles)
	sizes := map[int64]int{}
	if len(anchorIDs) > 0 {
		sizes, err = tx.GroupSizes(loadCtx, anchorIDs)
		if err != nil {
			loadSpan.End()
			return fmt.Errorf("%w: load group sizes: %w", ErrPersistence, err)
		}
	}
	loadSpan.SetAttributes(attribute.Int("grouping.working_set", len(articles)))
	loadSpan.End()
	logger.Debug().Int("articles", len(articles)).Int("anchors", len(anchorIDs)).Time("since", since).Msg("working set loaded")

	candidates, duplicates := collapseDuplicates(articles)
	pairs := selectPairs(candidates, params.MaxTimeDiff())
	report.ArticlesEvaluated = len(candidates)
	report.DuplicatesSkipped = duplicates
	report.AnchorsLoaded = len(anchorIDs)
	report.PairsScored = len(pairs)
	if params.PairWarnLevel > 0 && len(pairs) > params.PairWarnLevel {
		logger.Warn().
			Int("pairs", len(pairs)).
			Int("warn_level", params.PairWarnLevel).
			Int("articles", len(candidates)).
			Msg("candidate pair count above warning level; consider a shorter lookback or time window")
	}
	logger.Debug().Int("pairs", len(pairs)).Int("duplicates_skipped", duplicates).Msg("candidate pairs selected")

	scoreCtx, scoreSpan := e.tracer.Start(ctx, "grouping.score", trace.WithAttributes(attribute.Int("grouping.pairs", len(pairs))))
	scores, err := scorePairs(scoreCtx, scorer, buildProfiles(scorer, candidates), pairs, params.Workers)
	scoreSpan.End()
	if err != nil {
		return fmt.Errorf("score pairs: %w", err)
	}
	edges := acceptEdges(pairs, scores, params.SimilarityThreshold)
	report.EdgesAccepted = len(edges)

	_, clusterSpan := e.tracer.Start(ctx, "grouping.cluster")
	clusters := buildClusters(candidates, edges)
	plan := planGroups(candidates, clusters.components, sizes, params.MinGroupSize)
	clusterSpan.End()
	report.AnchorConflicts = len(clusters.conflicts)
	report.ClustersDemoted = plan.demoted
	for i, conflict := range clusters.conflicts {
		if i == maxLoggedConflicts {
			logger.Warn().Int("remaining", len(clusters.conflicts)-i).Msg("further anchor conflicts not logged")
			break
		}
		logger.Warn().
			Int64("left_article_id", conflict.leftArticleID).
			Int64("right_article_id", conflict.rightArticleID).
			Int64("left_group_id", conflict.leftGroupID).
			Int64("right_group_id", conflict.rightGroupID).
			Float64("score", conflict.score).
			Msg("edge joins two existing groups; not merged")
	}
	logger.Debug().
		Int("edges", len(edges)).
		Int("creates", len(plan.creates)).
		Int("extends", len(plan.extends)).
		Int("demoted", plan.demoted).
		Msg("clusters built")

	if err := ctx.Err(); err != nil {
		return err
	}

	persistCtx, persistSpan := e.tracer.Start(ctx, "grouping.persist")
	defer persistSpan.End()

	if err := e.apply(persistCtx, tx, plan, params, report); err != nil {
		return err
	}

	status := RunStatusSucceeded
	if params.DryRun {
		status = RunStatusDryRun
	}
	e.finish(report)
	if err := tx.RecordRun(persistCtx, RunRecord{
		RunID:      report.RunID,
		Status:     status,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Params:     params,
		Report:     *report,
	}); err != nil {
		return fmt.Errorf("%w: record run: %w", ErrPersistence, err)
	}
	if err := tx.Commit(persistCtx); err != nil {
		return fmt.Errorf("%w: commit run: %w", ErrPersistence, err)
	}
	committed = true
	return nil
}

func (e *Engine) apply(ctx context.Context, tx RunTx, plan groupPlan, params Params, report *Report) error {
	at := e.now().UTC()

	for _, group := range plan.creates {
		change := GroupChange{Created: true, ArticleIDs: group.newMembers, MemberCount: group.size}
		if !params.DryRun {
			groupID, err := tx.NextGroupID(ctx)
			if err != nil {
				return fmt.Errorf("%w: allocate group id: %w", ErrPersistence, err)
			}
			if err := assignTx(ctx, tx, groupID, group.newMembers); err != nil {
				return err
			}
			if err := tx.SaveGroup(ctx, GroupRecord{GroupID: groupID, MemberCount: group.size, Created: true, RunID: report.RunID, At: at}); err != nil {
				return fmt.Errorf("%w: save group %d: %w", ErrPersistence, groupID, err)
			}
			change.GroupID = groupID
		}
		report.GroupsCreated++
		report.ArticlesGrouped += len(group.newMembers)
		report.Changes = append(report.Changes, change)
	}

	for _, group := range plan.extends {
		if !params.DryRun {
			if err := assignTx(ctx, tx, group.groupID, group.newMembers); err != nil {
				return err
			}
			if err := tx.SaveGroup(ctx, GroupRecord{GroupID: group.groupID, MemberCount: group.size, RunID: report.RunID, At: at}); err != nil {
				return fmt.Errorf("%w: save group %d: %w", ErrPersistence, group.groupID, err)
			}
		}
		report.GroupsExtended++
		report.ArticlesGrouped += len(group.newMembers)
		report.Changes = append(report.Changes, GroupChange{
			GroupID:     group.groupID,
			ArticleIDs:  group.newMembers,
			MemberCount: group.size,
		})
	}

	sort.SliceStable(report.Changes, func(i, j int) bool {
		if report.Changes[i].GroupID != report.Changes[j].GroupID {
			return report.Changes[i].GroupID < report.Changes[j].GroupID
		}
		return report.Changes[i].ArticleIDs[0] < report.Changes[j].ArticleIDs[0]
	})
	return nil
}

// assignTx writes one group's new members and aborts if any of them was
// grouped concurrently.
func assignTx(ctx context.Context, tx RunTx, groupID int64, articleIDs []int64) error {
	affected, err := tx.AssignGroup(ctx, groupID, articleIDs)
	if err != nil {
		return fmt.Errorf("%w: assign group %d: %w", ErrPersistence, groupID, err)
	}
	if affected != int64(len(articleIDs)) {
		return fmt.Errorf("%w: assign group %d: expected %d rows, updated %d", ErrPersistence, groupID, len(articleIDs), affected)
	}
	return nil
}

func (e *Engine) finish(report *Report) {
	report.FinishedAt = e.now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.DurationMS = report.Duration.Milliseconds()
}

func (e *Engine) recordFailedRun(ctx context.Context, logger zerolog.Logger, params Params, report Report, runErr error) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failedRunTimeout)
	defer cancel()

	err := e.store.RecordFailedRun(recordCtx, RunRecord{
		RunID:        report.RunID,
		Status:       RunStatusFailed,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		Params:       params,
		Report:       report,
		ErrorMessage: runErr.Error(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to record failed grouping run")
	}
}

func distinctGroupIDs(articles []Article) []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, article := range articles {
		if !article.Grouped() {
			continue
		}
		if _, ok := seen[*article.EventGroupID]; ok {
			continue
		}
		seen[*article.EventGroupID] = struct{}{}
		ids = append(ids, *article.EventGroupID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
