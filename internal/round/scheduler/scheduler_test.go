package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/channelguessr/core/internal/models"
	"github.com/channelguessr/core/internal/round"
)

type endCall struct {
	roundID uuid.UUID
	status  models.RoundStatus
}

type fakeRoundService struct {
	mu     sync.Mutex
	ends   []endCall
	rounds map[uuid.UUID]*models.Round

	endedCh chan endCall
}

func newFakeRoundService() *fakeRoundService {
	return &fakeRoundService{
		rounds:  make(map[uuid.UUID]*models.Round),
		endedCh: make(chan endCall, 8),
	}
}

func (f *fakeRoundService) EndRound(_ context.Context, roundID uuid.UUID, status models.RoundStatus) (*round.Summary, error) {
	f.mu.Lock()
	f.ends = append(f.ends, endCall{roundID, status})
	f.mu.Unlock()
	f.endedCh <- endCall{roundID, status}
	return nil, nil
}

func (f *fakeRoundService) GetRound(_ context.Context, id uuid.UUID) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[id]
	if !ok {
		return nil, round.ErrRoundNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRoundService) endCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ends)
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) ResolveChannel(_ context.Context, guildID, channelID string) (*models.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Channel{ID: channelID, GuildID: guildID, Name: "general"}, nil
}

type warning struct {
	roundID   uuid.UUID
	remaining time.Duration
}

type fakeNotifier struct {
	warned chan warning
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{warned: make(chan warning, 8)}
}

func (f *fakeNotifier) RoundExpiring(_ context.Context, r *models.Round, remaining time.Duration) error {
	f.warned <- warning{r.ID, remaining}
	return nil
}

type schedFixture struct {
	sched    *Scheduler
	rounds   *fakeRoundService
	resolver *fakeResolver
	notifier *fakeNotifier
	clock    *clockwork.FakeClock
}

func newSchedFixture() *schedFixture {
	rounds := newFakeRoundService()
	resolver := &fakeResolver{}
	notifier := newFakeNotifier()
	clock := clockwork.NewFakeClock()
	return &schedFixture{
		sched:    New(rounds, resolver, notifier, clock),
		rounds:   rounds,
		resolver: resolver,
		notifier: notifier,
		clock:    clock,
	}
}

func waitEnd(t *testing.T, ch chan endCall) endCall {
	t.Helper()
	select {
	case call := <-ch:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for round to end")
		return endCall{}
	}
}

func assertNoEnd(t *testing.T, ch chan endCall) {
	t.Helper()
	select {
	case call := <-ch:
		t.Fatalf("unexpected round end: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleEndsRoundOnDeadline(t *testing.T) {
	f := newSchedFixture()
	roundID := uuid.New()

	f.sched.Schedule(context.Background(), roundID, "g1", "c1", time.Minute)
	f.clock.Advance(time.Minute)

	call := waitEnd(t, f.rounds.endedCh)
	if call.roundID != roundID {
		t.Errorf("ended round = %s, want %s", call.roundID, roundID)
	}
	if call.status != models.RoundStatusCompleted {
		t.Errorf("status = %s, want completed", call.status)
	}
}

func TestScheduleDoesNotFireEarly(t *testing.T) {
	f := newSchedFixture()

	f.sched.Schedule(context.Background(), uuid.New(), "g1", "c1", time.Minute)
	f.clock.Advance(30 * time.Second)

	assertNoEnd(t, f.rounds.endedCh)
}

func TestCancelStopsPendingTimer(t *testing.T) {
	f := newSchedFixture()

	f.sched.Schedule(context.Background(), uuid.New(), "g1", "c1", time.Minute)
	if !f.sched.Cancel("g1", "c1") {
		t.Fatal("Cancel = false, want true for pending timer")
	}
	f.clock.Advance(2 * time.Minute)

	assertNoEnd(t, f.rounds.endedCh)
}

func TestCancelWithoutTimer(t *testing.T) {
	f := newSchedFixture()

	if f.sched.Cancel("g1", "c1") {
		t.Fatal("Cancel = true, want false with nothing scheduled")
	}
}

func TestScheduleReplacesExistingTimer(t *testing.T) {
	f := newSchedFixture()
	first := uuid.New()
	second := uuid.New()

	f.sched.Schedule(context.Background(), first, "g1", "c1", time.Minute)
	f.sched.Schedule(context.Background(), second, "g1", "c1", 2*time.Minute)
	f.clock.Advance(2 * time.Minute)

	call := waitEnd(t, f.rounds.endedCh)
	if call.roundID != second {
		t.Errorf("ended round = %s, want replacement %s", call.roundID, second)
	}
	assertNoEnd(t, f.rounds.endedCh)
}

func TestCancelForGuildStopsOnlyThatGuild(t *testing.T) {
	f := newSchedFixture()
	survivor := uuid.New()

	f.sched.Schedule(context.Background(), uuid.New(), "g1", "c1", time.Minute)
	f.sched.Schedule(context.Background(), uuid.New(), "g1", "c2", time.Minute)
	f.sched.Schedule(context.Background(), survivor, "g2", "c1", time.Minute)

	if n := f.sched.CancelForGuild("g1"); n != 2 {
		t.Fatalf("cancelled = %d, want 2", n)
	}
	f.clock.Advance(time.Minute)

	call := waitEnd(t, f.rounds.endedCh)
	if call.roundID != survivor {
		t.Errorf("ended round = %s, want surviving %s", call.roundID, survivor)
	}
	assertNoEnd(t, f.rounds.endedCh)
}

func TestWarningNotifiesActiveRound(t *testing.T) {
	f := newSchedFixture()
	roundID := uuid.New()
	f.rounds.rounds[roundID] = &models.Round{
		ID: roundID, GuildID: "g1", GameChannelID: "c1",
		Status: models.RoundStatusActive,
	}

	f.sched.ScheduleWarning(context.Background(), roundID, "g1", "c1", 50*time.Second, 10*time.Second)
	f.clock.Advance(50 * time.Second)

	select {
	case w := <-f.notifier.warned:
		if w.roundID != roundID || w.remaining != 10*time.Second {
			t.Errorf("warning = %+v, want round %s with 10s remaining", w, roundID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for warning")
	}
}

func TestWarningStaysSilentForEndedRound(t *testing.T) {
	f := newSchedFixture()
	roundID := uuid.New()
	f.rounds.rounds[roundID] = &models.Round{
		ID: roundID, GuildID: "g1", GameChannelID: "c1",
		Status: models.RoundStatusCompleted,
	}

	f.sched.ScheduleWarning(context.Background(), roundID, "g1", "c1", 50*time.Second, 10*time.Second)
	f.clock.Advance(50 * time.Second)

	select {
	case w := <-f.notifier.warned:
		t.Fatalf("unexpected warning for ended round: %+v", w)
	case <-time.After(50 * time.Millisecond):
	}
}

func restorableRound(guildID, channelID string, deadline time.Time) models.Round {
	d := deadline
	return models.Round{
		ID: uuid.New(), GuildID: guildID, GameChannelID: channelID,
		Status: models.RoundStatusActive, DeadlineAt: &d,
	}
}

func TestRestoreArmsFutureDeadline(t *testing.T) {
	f := newSchedFixture()
	r := restorableRound("g1", "c1", f.clock.Now().Add(time.Minute))

	if n := f.sched.Restore(context.Background(), []models.Round{r}); n != 1 {
		t.Fatalf("restored = %d, want 1", n)
	}
	f.clock.Advance(time.Minute)

	call := waitEnd(t, f.rounds.endedCh)
	if call.roundID != r.ID {
		t.Errorf("ended round = %s, want %s", call.roundID, r.ID)
	}
}

func TestRestoreCompletesPastDeadlinePromptly(t *testing.T) {
	f := newSchedFixture()
	r := restorableRound("g1", "c1", f.clock.Now().Add(-time.Hour))

	if n := f.sched.Restore(context.Background(), []models.Round{r}); n != 1 {
		t.Fatalf("restored = %d, want 1", n)
	}
	f.clock.Advance(time.Millisecond)

	call := waitEnd(t, f.rounds.endedCh)
	if call.status != models.RoundStatusCompleted {
		t.Errorf("status = %s, want completed", call.status)
	}
}

func TestRestoreCancelsUnreachableChannel(t *testing.T) {
	f := newSchedFixture()
	f.resolver.err = errors.New("chat: not found")
	r := restorableRound("g1", "c1", f.clock.Now().Add(time.Minute))

	if n := f.sched.Restore(context.Background(), []models.Round{r}); n != 0 {
		t.Fatalf("restored = %d, want 0", n)
	}
	call := waitEnd(t, f.rounds.endedCh)
	if call.status != models.RoundStatusCancelled {
		t.Errorf("status = %s, want cancelled", call.status)
	}
}

func TestRestoreCancelsRoundWithoutDeadline(t *testing.T) {
	f := newSchedFixture()
	r := models.Round{
		ID: uuid.New(), GuildID: "g1", GameChannelID: "c1",
		Status: models.RoundStatusActive,
	}

	if n := f.sched.Restore(context.Background(), []models.Round{r}); n != 0 {
		t.Fatalf("restored = %d, want 0", n)
	}
	call := waitEnd(t, f.rounds.endedCh)
	if call.status != models.RoundStatusCancelled {
		t.Errorf("status = %s, want cancelled", call.status)
	}
}

func TestContextCancellationStopsTimer(t *testing.T) {
	f := newSchedFixture()
	ctx, cancel := context.WithCancel(context.Background())

	f.sched.Schedule(ctx, uuid.New(), "g1", "c1", time.Minute)
	cancel()

	// Give the goroutine a moment to observe the cancellation before
	// the deadline passes.
	time.Sleep(20 * time.Millisecond)
	f.clock.Advance(time.Minute)

	assertNoEnd(t, f.rounds.endedCh)
}
