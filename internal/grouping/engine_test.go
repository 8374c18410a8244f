package grouping

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/onuralpArsln/AINewspaper/internal/textsim"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, store Store) *Engine {
	t.Helper()

	opts, err := textsim.DefaultTokenizerOptions()
	if err != nil {
		t.Fatalf("default tokenizer options: %v", err)
	}
	tok, err := textsim.NewTokenizer(opts)
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}
	return NewEngine(store, tok, zerolog.Nop(), WithClock(func() time.Time { return testNow }))
}

func testArticle(id int64, source, title, body string, published time.Time) Article {
	ts := published
	return Article{
		ID:          id,
		Title:       title,
		Body:        body,
		SourceName:  source,
		PublishedAt: &ts,
		CreatedAt:   testNow.Add(-time.Hour),
	}
}

func groupedArticle(a Article, groupID int64) Article {
	gid := groupID
	a.EventGroupID = &gid
	return a
}

func dayZero() time.Time {
	return testNow.Add(-2 * time.Hour)
}

func scenarioArticles() []Article {
	return []Article{
		testArticle(1, "X", "Merkez Bankası faiz kararını açıkladı",
			"Merkez Bankası politika faizini yüzde 50 seviyesinde sabit tuttu.", dayZero()),
		testArticle(2, "Y", "Merkez Bankası'ndan faiz kararı",
			"Merkez Bankası politika faizini sabit tuttu, karar piyasalarda bekleniyordu.", dayZero()),
		testArticle(3, "Z", "Hava durumu bugün güneşli",
			"Meteoroloji İstanbul için açık ve güneşli bir gün öngördü.", dayZero()),
	}
}

func mustRun(t *testing.T, engine *Engine, params Params) Report {
	t.Helper()

	report, err := engine.Run(context.Background(), params)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return report
}

func TestRunGroupsSimilarArticlesAndLeavesOthers(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	report := mustRun(t, newTestEngine(t, store), DefaultParams())

	if report.GroupsCreated != 1 || report.GroupsExtended != 0 || report.ArticlesGrouped != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.ArticlesEvaluated != 3 || report.PairsScored != 3 {
		t.Fatalf("unexpected evaluation counts: evaluated=%d pairs=%d", report.ArticlesEvaluated, report.PairsScored)
	}
	a, b, c := store.groupOf(1), store.groupOf(2), store.groupOf(3)
	if a == 0 || a != b {
		t.Fatalf("expected A and B in one group, got %d and %d", a, b)
	}
	if c != 0 {
		t.Fatalf("expected C ungrouped, got %d", c)
	}

	wantChanges := []GroupChange{{GroupID: a, Created: true, ArticleIDs: []int64{1, 2}, MemberCount: 2}}
	if !reflect.DeepEqual(report.Changes, wantChanges) {
		t.Fatalf("unexpected changes: %+v", report.Changes)
	}

	runs := store.runLedger()
	if len(runs) != 1 || runs[0].Status != RunStatusSucceeded || runs[0].RunID != report.RunID {
		t.Fatalf("unexpected run ledger: %+v", runs)
	}
}

func TestRunExtendsExistingGroupThroughOtherSource(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	engine := newTestEngine(t, store)
	first := mustRun(t, engine, DefaultParams())
	groupID := store.groupOf(1)
	if first.GroupsCreated != 1 || groupID == 0 {
		t.Fatalf("expected first run to create a group: %+v", first)
	}

	// D shares A's source, so it can only attach through B.
	store.add(testArticle(4, "X", "Merkez Bankası faiz kararı sonrası piyasalar",
		"Merkez Bankası politika faizini sabit tuttu, piyasalar karar sonrası yükseldi.", dayZero().Add(time.Hour)))

	second := mustRun(t, engine, DefaultParams())
	if second.GroupsCreated != 0 || second.GroupsExtended != 1 || second.ArticlesGrouped != 1 {
		t.Fatalf("unexpected second report: %+v", second)
	}
	if second.AnchorsLoaded != 1 {
		t.Fatalf("expected one anchor, got %d", second.AnchorsLoaded)
	}
	for _, id := range []int64{1, 2, 4} {
		if got := store.groupOf(id); got != groupID {
			t.Fatalf("article %d: expected group %d, got %d", id, groupID, got)
		}
	}
	if store.groupOf(3) != 0 {
		t.Fatalf("expected C to stay ungrouped")
	}

	wantChanges := []GroupChange{{GroupID: groupID, ArticleIDs: []int64{4}, MemberCount: 3}}
	if !reflect.DeepEqual(second.Changes, wantChanges) {
		t.Fatalf("unexpected changes: %+v", second.Changes)
	}
}

// Headline-only articles: A and B share three of six distinct title tokens,
// as do D and B, so each pair scores 0.6 * 3/6 = 0.3.
func TestRunGroupsHeadlinesScoringExactlyAtThreshold(t *testing.T) {
	t.Parallel()

	headlines := func() []Article {
		return []Article{
			testArticle(1, "X", "Merkez Bankası faiz kararını açıkladı", "", dayZero()),
			testArticle(2, "Y", "Merkez Bankası'ndan faiz kararı", "", dayZero()),
			testArticle(3, "Z", "Hava durumu bugün güneşli", "", dayZero()),
		}
	}

	cases := []struct {
		name        string
		threshold   float64
		wantGrouped bool
	}{
		{name: "score equal to threshold is accepted", threshold: DefaultSimilarityThreshold, wantGrouped: true},
		{name: "threshold just above score", threshold: 0.30001, wantGrouped: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newMemStore(headlines()...)
			engine := newTestEngine(t, store)
			params := DefaultParams()
			params.SimilarityThreshold = tc.threshold

			first := mustRun(t, engine, params)
			if !tc.wantGrouped {
				if first.GroupsCreated != 0 || first.EdgesAccepted != 0 || len(store.assignments()) != 0 {
					t.Fatalf("expected nothing grouped above the score, got %+v", first)
				}
				return
			}

			groupID := store.groupOf(1)
			if first.GroupsCreated != 1 || groupID == 0 || store.groupOf(2) != groupID {
				t.Fatalf("expected A and B in a new group: %+v", first)
			}
			if store.groupOf(3) != 0 {
				t.Fatalf("expected C to stay ungrouped")
			}

			store.add(testArticle(4, "X", "Merkez Bankası kararı sonrası piyasalar", "", dayZero().Add(time.Hour)))

			second := mustRun(t, engine, params)
			if second.GroupsCreated != 0 || second.GroupsExtended != 1 || second.ArticlesGrouped != 1 {
				t.Fatalf("unexpected second report: %+v", second)
			}
			for _, id := range []int64{1, 2, 4} {
				if got := store.groupOf(id); got != groupID {
					t.Fatalf("article %d: expected group %d, got %d", id, groupID, got)
				}
			}
			if store.groupOf(3) != 0 {
				t.Fatalf("expected C to stay ungrouped after re-run")
			}
		})
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	engine := newTestEngine(t, store)
	mustRun(t, engine, DefaultParams())
	before := store.assignments()

	again := mustRun(t, engine, DefaultParams())
	if again.GroupsCreated != 0 || again.GroupsExtended != 0 || again.ArticlesGrouped != 0 {
		t.Fatalf("expected no changes on re-run, got %+v", again)
	}
	if len(again.Changes) != 0 {
		t.Fatalf("expected empty change list, got %+v", again.Changes)
	}
	if after := store.assignments(); !reflect.DeepEqual(before, after) {
		t.Fatalf("assignments changed on re-run: %v -> %v", before, after)
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	t.Parallel()

	topics := []struct {
		title string
		body  string
	}{
		{"Merkez Bankası faiz kararını açıkladı", "Merkez Bankası politika faizini sabit tuttu ve piyasalar kararı olumlu karşıladı."},
		{"İstanbul'da deprem tatbikatı yapıldı", "AFAD koordinasyonunda İstanbul genelinde deprem tatbikatı düzenlendi, okullar katıldı."},
		{"Milli takım hazırlık maçını kazandı", "Milli futbol takımı hazırlık maçında rakibini iki golle mağlup etti."},
		{"Benzin fiyatlarına yeni zam geldi", "Akaryakıt fiyatlarında benzin litre fiyatına zam yapıldı, motorin sabit kaldı."},
	}
	extras := []string{"son dakika", "gelişme", "detaylar"}

	build := func() []Article {
		var out []Article
		for k := 0; k < 24; k++ {
			topic := topics[k%len(topics)]
			out = append(out, testArticle(
				int64(k+1),
				fmt.Sprintf("kaynak-%d", k%6),
				topic.title+" "+extras[k%len(extras)],
				topic.body,
				testNow.Add(-time.Duration(k)*time.Hour),
			))
		}
		return out
	}

	serialStore := newMemStore(build()...)
	parallelStore := newMemStore(build()...)

	serialParams := DefaultParams()
	serialParams.Workers = 1
	parallelParams := DefaultParams()
	parallelParams.Workers = 8

	serial := mustRun(t, newTestEngine(t, serialStore), serialParams)
	parallel := mustRun(t, newTestEngine(t, parallelStore), parallelParams)

	if serial.GroupsCreated == 0 {
		t.Fatalf("expected groups to be created: %+v", serial)
	}
	if !reflect.DeepEqual(serialStore.assignments(), parallelStore.assignments()) {
		t.Fatalf("assignments differ between worker counts:\n%v\n%v", serialStore.assignments(), parallelStore.assignments())
	}
	if !reflect.DeepEqual(serial.Changes, parallel.Changes) {
		t.Fatalf("changes differ between worker counts:\n%+v\n%+v", serial.Changes, parallel.Changes)
	}
	for i := 1; i < len(serial.Changes); i++ {
		if serial.Changes[i-1].GroupID >= serial.Changes[i].GroupID {
			t.Fatalf("changes not ordered by group id: %+v", serial.Changes)
		}
	}
}

func TestRunNeverPairsSameSource(t *testing.T) {
	t.Parallel()

	store := newMemStore(
		testArticle(1, "Anadolu Ajansı", "Seçim sonuçları açıklandı", "Yüksek Seçim Kurulu kesin sonuçları duyurdu.", dayZero()),
		testArticle(2, "  anadolu ajansı ", "Seçim sonuçları açıklandı", "Yüksek Seçim Kurulu kesin sonuçları duyurdu.", dayZero()),
	)
	report := mustRun(t, newTestEngine(t, store), DefaultParams())
	if report.PairsScored != 0 || report.GroupsCreated != 0 {
		t.Fatalf("expected same-source pair to be skipped: %+v", report)
	}
	if len(store.assignments()) != 0 {
		t.Fatalf("expected no assignments, got %v", store.assignments())
	}
}

func TestRunTemporalBoundary(t *testing.T) {
	t.Parallel()

	title := "Seçim sonuçları açıklandı"
	body := "Yüksek Seçim Kurulu kesin sonuçları duyurdu."
	base := testNow.Add(-60 * time.Hour)

	cases := []struct {
		name    string
		offset  time.Duration
		grouped bool
	}{
		{name: "exactly max diff", offset: 48 * time.Hour, grouped: true},
		{name: "one second beyond", offset: 48*time.Hour + time.Second, grouped: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newMemStore(
				testArticle(1, "X", title, body, base),
				testArticle(2, "Y", title, body, base.Add(tc.offset)),
			)
			mustRun(t, newTestEngine(t, store), DefaultParams())
			grouped := store.groupOf(1) != 0 && store.groupOf(1) == store.groupOf(2)
			if grouped != tc.grouped {
				t.Fatalf("expected grouped=%v, assignments %v", tc.grouped, store.assignments())
			}
		})
	}
}

func TestRunUndatedArticlesPairOnlyWithinIngestionDay(t *testing.T) {
	t.Parallel()

	title := "Seçim sonuçları açıklandı"
	body := "Yüksek Seçim Kurulu kesin sonuçları duyurdu."

	undatedA := testArticle(1, "X", title, body, time.Time{})
	undatedA.PublishedAt = nil
	undatedB := testArticle(2, "Y", title, body, time.Time{})
	undatedB.PublishedAt = nil
	undatedOtherDay := testArticle(3, "Z", title, body, time.Time{})
	undatedOtherDay.PublishedAt = nil
	undatedOtherDay.CreatedAt = testNow.Add(-50 * time.Hour)
	dated := testArticle(4, "W", title, body, dayZero())

	store := newMemStore(undatedA, undatedB, undatedOtherDay, dated)
	report := mustRun(t, newTestEngine(t, store), DefaultParams())

	if report.PairsScored != 1 {
		t.Fatalf("expected only the same-day undated pair, got %d pairs", report.PairsScored)
	}
	if store.groupOf(1) == 0 || store.groupOf(1) != store.groupOf(2) {
		t.Fatalf("expected undated same-day articles grouped: %v", store.assignments())
	}
	if store.groupOf(3) != 0 || store.groupOf(4) != 0 {
		t.Fatalf("expected other-day and dated articles ungrouped: %v", store.assignments())
	}
}

func TestRunEnforcesMinimumGroupSize(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	params := DefaultParams()
	params.MinGroupSize = 3

	report := mustRun(t, newTestEngine(t, store), params)
	if report.GroupsCreated != 0 || report.ClustersDemoted != 1 {
		t.Fatalf("expected one demoted cluster and no groups: %+v", report)
	}
	if len(store.assignments()) != 0 {
		t.Fatalf("expected demoted members to stay ungrouped: %v", store.assignments())
	}
}

func TestRunCountsPersistedMembersTowardMinimumSize(t *testing.T) {
	t.Parallel()

	articles := scenarioArticles()
	store := newMemStore(
		groupedArticle(articles[0], 7),
		groupedArticle(testArticle(5, "Q", "Merkez Bankası faiz", "Faiz kararı.", dayZero()), 7),
		articles[1],
	)
	params := DefaultParams()
	params.MinGroupSize = 3

	report := mustRun(t, newTestEngine(t, store), params)
	if report.GroupsExtended != 1 || store.groupOf(2) != 7 {
		t.Fatalf("expected B to extend group 7: %+v %v", report, store.assignments())
	}
}

func TestRunRefusesToMergeExistingGroups(t *testing.T) {
	t.Parallel()

	title := "Seçim sonuçları açıklandı"
	body := "Yüksek Seçim Kurulu kesin sonuçları duyurdu."
	store := newMemStore(
		groupedArticle(testArticle(1, "X", title, body, dayZero()), 10),
		groupedArticle(testArticle(2, "Y", title, body, dayZero()), 20),
		testArticle(3, "Z", title, body, dayZero()),
	)

	report := mustRun(t, newTestEngine(t, store), DefaultParams())
	if report.AnchorConflicts != 1 {
		t.Fatalf("expected one anchor conflict, got %d", report.AnchorConflicts)
	}
	if store.groupOf(1) != 10 || store.groupOf(2) != 20 {
		t.Fatalf("existing groups changed: %v", store.assignments())
	}
	if store.groupOf(3) != 10 {
		t.Fatalf("expected new article to join the lower-id edge's group, got %d", store.groupOf(3))
	}
}

func TestRunSkipsContentHashDuplicates(t *testing.T) {
	t.Parallel()

	articles := scenarioArticles()
	original := articles[0]
	original.ContentHash = "abc"
	copyOfA := articles[0]
	copyOfA.ID = 10
	copyOfA.SourceName = "W"
	copyOfA.ContentHash = "abc"

	store := newMemStore(original, articles[1], copyOfA)
	report := mustRun(t, newTestEngine(t, store), DefaultParams())

	if report.DuplicatesSkipped != 1 {
		t.Fatalf("expected one duplicate skipped, got %d", report.DuplicatesSkipped)
	}
	if store.groupOf(1) == 0 || store.groupOf(1) != store.groupOf(2) {
		t.Fatalf("expected A and B grouped: %v", store.assignments())
	}
	if store.groupOf(10) != 0 {
		t.Fatalf("expected duplicate to stay ungrouped")
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	params := DefaultParams()
	params.DryRun = true

	report := mustRun(t, newTestEngine(t, store), params)
	if !report.DryRun || report.GroupsCreated != 1 {
		t.Fatalf("unexpected dry-run report: %+v", report)
	}
	if len(report.Changes) != 1 || report.Changes[0].GroupID != 0 {
		t.Fatalf("expected one unnumbered change, got %+v", report.Changes)
	}
	if len(store.assignments()) != 0 {
		t.Fatalf("dry run assigned groups: %v", store.assignments())
	}
	if runs := store.runLedger(); len(runs) != 1 || runs[0].Status != RunStatusDryRun {
		t.Fatalf("unexpected ledger: %+v", runs)
	}
}

func TestRunRejectsInvalidConfigBeforeStoreAccess(t *testing.T) {
	t.Parallel()

	mutations := map[string]func(*Params){
		"threshold above one": func(p *Params) { p.SimilarityThreshold = 1.5 },
		"negative threshold":  func(p *Params) { p.SimilarityThreshold = -0.1 },
		"negative window":     func(p *Params) { p.MaxTimeDiffDays = -1 },
		"zero lookback":       func(p *Params) { p.LookbackDays = 0 },
		"min size one":        func(p *Params) { p.MinGroupSize = 1 },
		"weights":             func(p *Params) { p.Weights = textsim.Weights{Title: 0.8, Body: 0.8} },
	}

	for name, mutate := range mutations {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newMemStore(scenarioArticles()...)
			params := DefaultParams()
			mutate(&params)

			_, err := newTestEngine(t, store).Run(context.Background(), params)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if store.beginCalls != 0 {
				t.Fatalf("store was accessed before validation")
			}
		})
	}
}

func TestRunPersistenceFailureRollsBack(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	store.failSaveGroup = true

	_, err := newTestEngine(t, store).Run(context.Background(), DefaultParams())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(store.assignments()) != 0 {
		t.Fatalf("expected rollback, got %v", store.assignments())
	}
	runs := store.runLedger()
	if len(runs) != 1 || runs[0].Status != RunStatusFailed || runs[0].ErrorMessage == "" {
		t.Fatalf("expected failed run in ledger, got %+v", runs)
	}

	// The run is retryable once the fault clears.
	store.failSaveGroup = false
	report := mustRun(t, newTestEngine(t, store), DefaultParams())
	if report.GroupsCreated != 1 {
		t.Fatalf("expected retry to succeed: %+v", report)
	}
}

func TestRunAbortsWhenArticleGroupedConcurrently(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	store.stealArticle = 2

	_, err := newTestEngine(t, store).Run(context.Background(), DefaultParams())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence on row mismatch, got %v", err)
	}
	if len(store.assignments()) != 0 {
		t.Fatalf("expected rollback, got %v", store.assignments())
	}
}

func TestRunInProgress(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	held, err := store.BeginRun(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	_, err = newTestEngine(t, store).Run(context.Background(), DefaultParams())
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if len(store.runLedger()) != 0 {
		t.Fatalf("refused run should not be recorded")
	}

	_ = held.Rollback(context.Background())
	mustRun(t, newTestEngine(t, store), DefaultParams())
}

func TestRunHonoursCancellation(t *testing.T) {
	t.Parallel()

	store := newMemStore(scenarioArticles()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(t, store).Run(ctx, DefaultParams())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.assignments()) != 0 {
		t.Fatalf("cancelled run wrote assignments")
	}
	if store.locked {
		t.Fatalf("cancelled run left the store locked")
	}
}

func TestRunIgnoresArticlesOutsideLookback(t *testing.T) {
	t.Parallel()

	articles := scenarioArticles()
	articles[1].CreatedAt = testNow.AddDate(0, 0, -8)

	store := newMemStore(articles...)
	report := mustRun(t, newTestEngine(t, store), DefaultParams())
	if report.ArticlesEvaluated != 2 || report.GroupsCreated != 0 {
		t.Fatalf("expected B to fall outside the window: %+v", report)
	}
}
