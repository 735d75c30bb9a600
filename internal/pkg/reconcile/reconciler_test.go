package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/channelpass/channelpass/app/models"
	"github.com/channelpass/channelpass/internal/pkg/payment"
	"github.com/channelpass/channelpass/internal/pkg/telegram"
)

type fakeLedger struct {
	mu        sync.Mutex
	bySession map[string]*models.MembershipRecord
	nextID    uint
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bySession: map[string]*models.MembershipRecord{}}
}

func (f *fakeLedger) CreateIfSessionAbsent(record *models.MembershipRecord) (bool, *models.MembershipRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := *record.StripeSessionID
	if existing, ok := f.bySession[key]; ok {
		copied := *existing
		return false, &copied, nil
	}
	f.nextID++
	record.ID = f.nextID
	stored := *record
	f.bySession[key] = &stored
	copied := stored
	return true, &copied, nil
}

func (f *fakeLedger) GetBySessionID(sessionID string) (*models.MembershipRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.bySession[sessionID]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) ListActiveBySubscriptionID(subscriptionID string) ([]models.MembershipRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MembershipRecord
	for _, record := range f.bySession {
		if record.StripeSubscriptionID == subscriptionID && !record.Removed() {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListActiveByCustomerID(customerID string) ([]models.MembershipRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MembershipRecord
	for _, record := range f.bySession {
		if record.StripeCustomerID == customerID && !record.Removed() {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (f *fakeLedger) Update(record *models.MembershipRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, existing := range f.bySession {
		if existing.ID == record.ID {
			copied := *record
			f.bySession[key] = &copied
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeDirectory struct {
	mu        sync.Mutex
	channelID string
	link      *models.ChannelLink
	err       error
	calls     int
}

func (f *fakeDirectory) Resolve(_ context.Context, _ string) (string, *models.ChannelLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.channelID, f.link, f.err
}

type fakeGateway struct {
	mu          sync.Mutex
	inviteCalls int
	inviteErr   error
	removeCalls int
	removeErr   error
	removedUser int64
}

func (f *fakeGateway) CreateInvite(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inviteCalls++
	if f.inviteErr != nil {
		return "", f.inviteErr
	}
	return fmt.Sprintf("https://t.me/+invite%d", f.inviteCalls), nil
}

func (f *fakeGateway) RemoveParticipant(_ context.Context, _ string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	f.removedUser = userID
	return f.removeErr
}

type fakeFlagger struct {
	flags map[string]string
}

func newFakeFlagger() *fakeFlagger { return &fakeFlagger{flags: map[string]string{}} }

func (f *fakeFlagger) FlagSession(sessionID, reason string) error {
	f.flags[sessionID] = reason
	return nil
}

func (f *fakeFlagger) ClearSession(sessionID string) error {
	delete(f.flags, sessionID)
	return nil
}

type fakeSink struct {
	calls int
}

func (f *fakeSink) CheckoutCompleted(_ context.Context, _ *payment.PaymentEvent, _ *models.MembershipRecord) error {
	f.calls++
	return nil
}

func testService(ledger *fakeLedger, gateway *fakeGateway) (*Service, *fakeFlagger, *fakeSink) {
	dir := &fakeDirectory{
		channelID: "-1001234",
		link:      &models.ChannelLink{ID: 1, PageID: "page-1", ChannelID: "-1001234", CreatorID: 7},
	}
	flagger := newFakeFlagger()
	sink := &fakeSink{}
	return NewService(ledger, dir, gateway, sink, flagger), flagger, sink
}

func checkoutEvent(sessionID string) *payment.PaymentEvent {
	return &payment.PaymentEvent{
		Kind:           payment.KindCheckoutCompleted,
		SessionID:      sessionID,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		PageID:         "page-1",
		TelegramUserID: "424242",
		Email:          "buyer@example.com",
		AmountTotal:    990,
		Currency:       "eur",
	}
}

func TestCheckoutCreatesInvitedRecord(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, sink := testService(ledger, gateway)

	outcome, err := svc.Apply(context.Background(), checkoutEvent("cs_1"))
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if outcome.Duplicate {
		t.Fatalf("first application must not be a duplicate")
	}
	if outcome.Record.Status != models.MembershipStatusInvited {
		t.Fatalf("expected status invited, got %s", outcome.Record.Status)
	}
	if outcome.InviteLink == "" {
		t.Fatalf("expected an invite link")
	}
	if outcome.Record.CreatorID != 7 || outcome.Record.ChannelID != "-1001234" {
		t.Fatalf("record not wired to the resolved channel: %+v", outcome.Record)
	}
	if sink.calls != 1 {
		t.Fatalf("expected one sink call, got %d", sink.calls)
	}
}

func TestCheckoutReplayReturnsSameInvite(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, sink := testService(ledger, gateway)

	first, err := svc.Apply(context.Background(), checkoutEvent("cs_2"))
	if err != nil {
		t.Fatalf("first Apply returned error: %v", err)
	}
	second, err := svc.Apply(context.Background(), checkoutEvent("cs_2"))
	if err != nil {
		t.Fatalf("second Apply returned error: %v", err)
	}

	if !second.Duplicate {
		t.Fatalf("replay must be reported as duplicate")
	}
	if second.InviteLink != first.InviteLink {
		t.Fatalf("replay returned a different invite: %s vs %s", second.InviteLink, first.InviteLink)
	}
	if gateway.inviteCalls != 1 {
		t.Fatalf("expected a single invite creation, got %d", gateway.inviteCalls)
	}
	if sink.calls != 1 {
		t.Fatalf("sink must not run again on replay, got %d calls", sink.calls)
	}
}

func TestCheckoutReplaySkipsDirectory(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	dir := &fakeDirectory{
		channelID: "-1001234",
		link:      &models.ChannelLink{ID: 1, PageID: "page-1", ChannelID: "-1001234", CreatorID: 7},
	}
	svc := NewService(ledger, dir, gateway, &fakeSink{}, newFakeFlagger())

	first, err := svc.Apply(context.Background(), checkoutEvent("cs_gone"))
	if err != nil {
		t.Fatalf("first Apply returned error: %v", err)
	}

	// The link was unconfigured after the purchase; the replay must still
	// hand back the stored invite without consulting the directory.
	dir.err = errors.New("channel not configured for page")
	second, err := svc.Apply(context.Background(), checkoutEvent("cs_gone"))
	if err != nil {
		t.Fatalf("replay must not resolve the channel: %v", err)
	}
	if !second.Duplicate || second.InviteLink != first.InviteLink {
		t.Fatalf("replay must return the stored invite: %+v", second)
	}
	if dir.calls != 1 {
		t.Fatalf("directory must only be consulted on the first delivery, got %d calls", dir.calls)
	}
}

func TestConcurrentCheckoutCreatesOneRecord(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	const deliveries = 8
	outcomes := make([]*Outcome, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.Apply(context.Background(), checkoutEvent("cs_race"))
		}(i)
	}
	wg.Wait()

	if len(ledger.bySession) != 1 {
		t.Fatalf("expected exactly one persisted record, got %d", len(ledger.bySession))
	}
	stored := ledger.bySession["cs_race"]
	for i := 0; i < deliveries; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d errored: %v", i, errs[i])
		}
		if outcomes[i].InviteLink != stored.InviteLink {
			t.Fatalf("delivery %d returned a different invite than the stored one", i)
		}
	}
}

func TestInviteFailureLeavesNoRecord(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{inviteErr: errors.New("telegram: timeout")}
	svc, flagger, _ := testService(ledger, gateway)

	_, err := svc.Apply(context.Background(), checkoutEvent("cs_3"))
	if !errors.Is(err, ErrInviteIssueFailed) {
		t.Fatalf("expected ErrInviteIssueFailed, got %v", err)
	}
	if len(ledger.bySession) != 0 {
		t.Fatalf("no ledger row may be written when the invite fails")
	}
	if _, ok := flagger.flags["cs_3"]; !ok {
		t.Fatalf("session must be flagged for follow-up")
	}

	// Once the gateway recovers, the redelivered event goes through and the
	// flag is cleared.
	gateway.inviteErr = nil
	outcome, err := svc.Apply(context.Background(), checkoutEvent("cs_3"))
	if err != nil {
		t.Fatalf("retry Apply returned error: %v", err)
	}
	if outcome.Duplicate || outcome.InviteLink == "" {
		t.Fatalf("retry must create the membership: %+v", outcome)
	}
	if _, ok := flagger.flags["cs_3"]; ok {
		t.Fatalf("follow-up flag must be cleared after success")
	}
}

func TestRenewalResetsFailureState(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	if _, err := svc.Apply(context.Background(), checkoutEvent("cs_4")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	failed := &payment.PaymentEvent{Kind: payment.KindPaymentFailed, SubscriptionID: "sub_1", AttemptCount: 2}
	if _, err := svc.Apply(context.Background(), failed); err != nil {
		t.Fatalf("payment failure failed: %v", err)
	}

	renewed := &payment.PaymentEvent{Kind: payment.KindSubscriptionRenewed, SubscriptionID: "sub_1"}
	outcome, err := svc.Apply(context.Background(), renewed)
	if err != nil {
		t.Fatalf("renewal failed: %v", err)
	}

	record := outcome.Record
	if record.Status != models.MembershipStatusActive {
		t.Fatalf("expected status active, got %s", record.Status)
	}
	if record.FailedAttemptCount != 0 || record.GracePeriodStart != nil {
		t.Fatalf("failure state must be reset: count=%d grace=%v", record.FailedAttemptCount, record.GracePeriodStart)
	}
}

func TestPaymentFailureIsIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	if _, err := svc.Apply(context.Background(), checkoutEvent("cs_5")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	failed := &payment.PaymentEvent{Kind: payment.KindPaymentFailed, SubscriptionID: "sub_1", AttemptCount: 1}
	first, err := svc.Apply(context.Background(), failed)
	if err != nil {
		t.Fatalf("first failure event: %v", err)
	}
	if first.Record.Status != models.MembershipStatusPaymentFailed {
		t.Fatalf("expected payment_failed status, got %s", first.Record.Status)
	}
	if first.Record.FailedAttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", first.Record.FailedAttemptCount)
	}
	if first.Record.GracePeriodStart == nil {
		t.Fatalf("grace period must start on the first failed attempt")
	}
	graceStart := *first.Record.GracePeriodStart

	// Same event redelivered: same state, grace period start untouched.
	second, err := svc.Apply(context.Background(), failed)
	if err != nil {
		t.Fatalf("second failure event: %v", err)
	}
	if second.Record.FailedAttemptCount != 1 {
		t.Fatalf("redelivery must not increment the attempt count, got %d", second.Record.FailedAttemptCount)
	}
	if second.Record.GracePeriodStart == nil || !second.Record.GracePeriodStart.Equal(graceStart) {
		t.Fatalf("grace period start must be stable across redeliveries")
	}
}

func TestRepeatedFailuresNeverRemove(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	if _, err := svc.Apply(context.Background(), checkoutEvent("cs_10")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	var outcome *Outcome
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		failed := &payment.PaymentEvent{Kind: payment.KindPaymentFailed, SubscriptionID: "sub_1", AttemptCount: attempt}
		outcome, err = svc.Apply(context.Background(), failed)
		if err != nil {
			t.Fatalf("failure attempt %d: %v", attempt, err)
		}
	}

	record := outcome.Record
	if record.Status != models.MembershipStatusPaymentFailed {
		t.Fatalf("expected payment_failed, got %s", record.Status)
	}
	if record.FailedAttemptCount != 2 {
		t.Fatalf("expected attempt count 2, got %d", record.FailedAttemptCount)
	}
	if record.Removed() || record.RemovedAt != nil {
		t.Fatalf("failed payments alone must never remove the member")
	}
	if gateway.removeCalls != 0 {
		t.Fatalf("no gateway removal may happen during the grace period, got %d", gateway.removeCalls)
	}
}

func TestCancellationRemovesMember(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	if _, err := svc.Apply(context.Background(), checkoutEvent("cs_6")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	canceled := &payment.PaymentEvent{Kind: payment.KindSubscriptionCanceled, SubscriptionID: "sub_1", CustomerID: "cus_1"}
	outcome, err := svc.Apply(context.Background(), canceled)
	if err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}

	record := outcome.Record
	if record.Status != models.MembershipStatusRemoved {
		t.Fatalf("expected status removed, got %s", record.Status)
	}
	if record.RemovedAt == nil || record.RemovalReason != models.RemovalReasonCancellation {
		t.Fatalf("removal bookkeeping missing: %+v", record)
	}
	if gateway.removeCalls != 1 || gateway.removedUser != 424242 {
		t.Fatalf("expected one kick of user 424242, got %d calls for %d", gateway.removeCalls, gateway.removedUser)
	}
}

func TestCancellationCarriesProviderReason(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	if _, err := svc.Apply(context.Background(), checkoutEvent("cs_dun")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// A dunning-driven deletion carries the provider's own reason, which
	// must land on the record instead of the default.
	canceled := &payment.PaymentEvent{
		Kind:               payment.KindSubscriptionCanceled,
		SubscriptionID:     "sub_1",
		CancellationReason: "payment_failed",
	}
	outcome, err := svc.Apply(context.Background(), canceled)
	if err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}
	if outcome.Record.RemovalReason != "payment_failed" {
		t.Fatalf("expected removal reason payment_failed, got %q", outcome.Record.RemovalReason)
	}
}

func TestCancellationParticipantAlreadyGone(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{removeErr: fmt.Errorf("%w: left the channel", telegram.ErrParticipantNotFound)}
	svc, _, _ := testService(ledger, gateway)

	if _, err := svc.Apply(context.Background(), checkoutEvent("cs_7")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	canceled := &payment.PaymentEvent{Kind: payment.KindSubscriptionCanceled, SubscriptionID: "sub_1"}
	outcome, err := svc.Apply(context.Background(), canceled)
	if err != nil {
		t.Fatalf("cancellation must succeed when the user already left: %v", err)
	}
	if outcome.Record.Status != models.MembershipStatusRemoved {
		t.Fatalf("expected status removed, got %s", outcome.Record.Status)
	}
}

func TestCancellationAfterRemovalIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	if _, err := svc.Apply(context.Background(), checkoutEvent("cs_8")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	canceled := &payment.PaymentEvent{Kind: payment.KindSubscriptionCanceled, SubscriptionID: "sub_1", CustomerID: "cus_1"}
	if _, err := svc.Apply(context.Background(), canceled); err != nil {
		t.Fatalf("first cancellation failed: %v", err)
	}

	outcome, err := svc.Apply(context.Background(), canceled)
	if err != nil {
		t.Fatalf("second cancellation must not error: %v", err)
	}
	if !outcome.NoOp {
		t.Fatalf("cancel after removal must be a no-op")
	}
	if gateway.removeCalls != 1 {
		t.Fatalf("the user must only be kicked once, got %d calls", gateway.removeCalls)
	}
}

func TestCancelForUnknownSubscriptionIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	svc, _, _ := testService(ledger, &fakeGateway{})

	canceled := &payment.PaymentEvent{Kind: payment.KindSubscriptionCanceled, SubscriptionID: "sub_nobody"}
	outcome, err := svc.Apply(context.Background(), canceled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.NoOp {
		t.Fatalf("cancel for an unknown subscription must be a no-op")
	}
}

func TestIgnoredEventIsNoOp(t *testing.T) {
	svc, _, _ := testService(newFakeLedger(), &fakeGateway{})

	outcome, err := svc.Apply(context.Background(), &payment.PaymentEvent{Kind: payment.KindIgnored})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.NoOp {
		t.Fatalf("ignored events must be no-ops")
	}
}

func TestManualRemoval(t *testing.T) {
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	svc, _, _ := testService(ledger, gateway)

	outcome, err := svc.Apply(context.Background(), checkoutEvent("cs_9"))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	record := outcome.Record
	if err := svc.RemoveMember(context.Background(), record, ""); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if record.Status != models.MembershipStatusRemoved || record.RemovalReason != models.RemovalReasonManual {
		t.Fatalf("manual removal state wrong: %+v", record)
	}

	// Removing again is a no-op.
	before := gateway.removeCalls
	if err := svc.RemoveMember(context.Background(), record, ""); err != nil {
		t.Fatalf("second RemoveMember failed: %v", err)
	}
	if gateway.removeCalls != before {
		t.Fatalf("removed member must not be kicked again")
	}
}
