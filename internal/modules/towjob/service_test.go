package towjob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"towline/internal/modules/pricing"
	"towline/internal/notify"
	"towline/internal/types"
)

// memStore mirrors the Postgres store's compare-and-swap semantics in memory.
type memStore struct {
	mu     sync.Mutex
	jobs   map[types.ID]*TowJob
	events []Event
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[types.ID]*TowJob)}
}

func (m *memStore) put(j *TowJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
}

func (m *memStore) Create(_ context.Context, j *TowJob) error {
	m.put(j)
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*TowJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, cancelReason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != from || j.StatusVersion != version {
		return false, nil
	}
	j.Status = to
	j.StatusVersion++
	if cancelReason != nil {
		j.CancelReason = cancelReason
	}
	now := time.Now().UTC()
	switch to {
	case StatusArrivedPickup:
		j.ArrivedPickupAt = &now
	case StatusVehicleLoaded:
		j.LoadedAt = &now
	case StatusArrivedDropoff:
		j.ArrivedDropoffAt = &now
	case StatusCompleted:
		j.CompletedAt = &now
	case StatusCancelled:
		j.CancelledAt = &now
	}
	return true, nil
}

func (m *memStore) AcceptJob(_ context.Context, id, driverID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || (j.Status != StatusPending && j.Status != StatusSearching) {
		return false, nil
	}
	d := driverID
	now := time.Now().UTC()
	j.Status = StatusAccepted
	j.StatusVersion++
	j.DriverID = &d
	j.AcceptedAt = &now
	return true, nil
}

func (m *memStore) SetPaymentStatus(_ context.Context, id types.ID, ps PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.PaymentStatus = ps
	}
	return nil
}

func (m *memStore) SetRating(_ context.Context, id types.ID, actorType string, stars int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if actorType == "driver" {
		if j.DriverRating != nil {
			return ErrConflict
		}
		j.DriverRating = &stars
		return nil
	}
	if j.CustomerRating != nil {
		return ErrConflict
	}
	j.CustomerRating = &stars
	return nil
}

func (m *memStore) ListByCustomer(_ context.Context, customerID types.ID, _ int) ([]*TowJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TowJob
	for _, j := range m.jobs {
		if j.CustomerID == customerID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ActiveByDriver(_ context.Context, driverID types.ID) (*TowJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.DriverID != nil && *j.DriverID == driverID && !IsTerminal(j.Status) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) HasActiveByCustomer(_ context.Context, customerID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.CustomerID == customerID && !IsTerminal(j.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

type fakeQuoter struct{}

func (fakeQuoter) Quote(_ context.Context, _ pricing.QuoteCommand) (*pricing.Quote, error) {
	return &pricing.Quote{
		DistanceMiles: 10,
		CustomerPrice: types.Money{Amount: 16100, Currency: types.DefaultCurrency},
		DriverPayout:  types.Money{Amount: 14000, Currency: types.DefaultCurrency},
		PlatformFee:   types.Money{Amount: 2100, Currency: types.DefaultCurrency},
	}, nil
}

type fakePayments struct {
	mu            sync.Mutex
	authorizeErr  error
	captureErr    error
	refundErr     error
	authorized    int
	captured      int
	refunded      int
	refundReasons []string
}

func (f *fakePayments) Authorize(_ context.Context, _ *TowJob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authorizeErr != nil {
		return "", f.authorizeErr
	}
	f.authorized++
	return "pi_test", nil
}

func (f *fakePayments) Capture(_ context.Context, _ *TowJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captured++
	return nil
}

func (f *fakePayments) Refund(_ context.Context, _ *TowJob, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunded++
	f.refundReasons = append(f.refundReasons, reason)
	return nil
}

type fakeSweeper struct {
	mu      sync.Mutex
	expired []types.ID
}

func (f *fakeSweeper) ExpirePending(_ context.Context, jobID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, jobID)
	return nil
}

type sentNotification struct {
	recipient types.ID
	jobID     types.ID
	kind      notify.Kind
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, recipientID, jobID types.ID, kind notify.Kind, _, _ string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{recipient: recipientID, jobID: jobID, kind: kind})
}

func (r *recordingNotifier) byKind(kind notify.Kind) []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentNotification
	for _, s := range r.sent {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func seedJob(store *memStore, status Status, driverID *types.ID) *TowJob {
	j := &TowJob{
		ID:            "job-1",
		CustomerID:    "cust-1",
		DriverID:      driverID,
		Status:        status,
		PaymentStatus: PaymentAuthorized,
		PaymentRef:    "pi_test",
		QuotedPrice:   types.Money{Amount: 16100, Currency: types.DefaultCurrency},
		DriverPayout:  types.Money{Amount: 14000, Currency: types.DefaultCurrency},
		PlatformFee:   types.Money{Amount: 2100, Currency: types.DefaultCurrency},
		CreatedAt:     time.Now().UTC(),
	}
	store.put(j)
	return j
}

func TestCreate_PersistsSearchingWithHold(t *testing.T) {
	store := newMemStore()
	payments := &fakePayments{}
	svc := NewService(store, fakeQuoter{}, payments, nil)

	j, err := svc.Create(context.Background(), CreateCommand{
		CustomerID:    "cust-1",
		Pickup:        types.Point{Lat: 40.7128, Lng: -74.0060},
		Dropoff:       types.Point{Lat: 40.7589, Lng: -73.9851},
		ServiceTypeID: "standard",
		VehicleTypeID: "sedan",
		TowReasonID:   "breakdown",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if j.Status != StatusSearching {
		t.Errorf("status = %s, want searching", j.Status)
	}
	if j.PaymentStatus != PaymentAuthorized || j.PaymentRef != "pi_test" {
		t.Errorf("payment = %s/%s, want authorized/pi_test", j.PaymentStatus, j.PaymentRef)
	}
	if got := j.DriverPayout.Amount + j.PlatformFee.Amount; got != j.QuotedPrice.Amount {
		t.Errorf("payout + fee = %d, want %d", got, j.QuotedPrice.Amount)
	}
	if payments.authorized != 1 {
		t.Errorf("authorize calls = %d, want 1", payments.authorized)
	}
}

func TestCreate_AuthorizeFailureWritesNothing(t *testing.T) {
	store := newMemStore()
	payments := &fakePayments{authorizeErr: errors.New("card declined")}
	svc := NewService(store, fakeQuoter{}, payments, nil)

	_, err := svc.Create(context.Background(), CreateCommand{
		CustomerID:    "cust-1",
		ServiceTypeID: "standard",
		VehicleTypeID: "sedan",
		TowReasonID:   "breakdown",
	})
	if err == nil {
		t.Fatal("expected error when authorization fails")
	}
	if len(store.jobs) != 0 {
		t.Errorf("jobs persisted = %d, want 0", len(store.jobs))
	}
}

func TestCreate_RejectsSecondActiveJob(t *testing.T) {
	store := newMemStore()
	seedJob(store, StatusSearching, nil)
	svc := NewService(store, fakeQuoter{}, &fakePayments{}, nil)

	_, err := svc.Create(context.Background(), CreateCommand{
		CustomerID:    "cust-1",
		ServiceTypeID: "standard",
		VehicleTypeID: "sedan",
		TowReasonID:   "breakdown",
	})
	if !errors.Is(err, ErrActiveJob) {
		t.Fatalf("error = %v, want ErrActiveJob", err)
	}
}

func TestUpdateStatus_OnlyAssignedDriver(t *testing.T) {
	store := newMemStore()
	driver := types.ID("drv-1")
	seedJob(store, StatusAccepted, &driver)
	svc := NewService(store, fakeQuoter{}, &fakePayments{}, nil)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		JobID: "job-1", DriverID: "drv-other", To: StatusEnRoutePickup,
	})
	if !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("error = %v, want ErrNotAssigned", err)
	}
}

func TestUpdateStatus_AcceptedAndCancelledNotSettable(t *testing.T) {
	svc := NewService(newMemStore(), fakeQuoter{}, &fakePayments{}, nil)
	for _, target := range []Status{StatusAccepted, StatusCancelled, StatusSearching, StatusPending} {
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
			JobID: "job-1", DriverID: "drv-1", To: target,
		})
		if !errors.Is(err, ErrBadRequest) {
			t.Errorf("UpdateStatus(to=%s) error = %v, want ErrBadRequest", target, err)
		}
	}
}

func TestUpdateStatus_IllegalAndTerminal(t *testing.T) {
	store := newMemStore()
	driver := types.ID("drv-1")
	seedJob(store, StatusAccepted, &driver)
	svc := NewService(store, fakeQuoter{}, &fakePayments{}, nil)

	// Skipping straight to vehicle_loaded from accepted is illegal.
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		JobID: "job-1", DriverID: "drv-1", To: StatusVehicleLoaded,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}

	store2 := newMemStore()
	seedJob(store2, StatusCompleted, &driver)
	svc2 := NewService(store2, fakeQuoter{}, &fakePayments{}, nil)
	_, err = svc2.UpdateStatus(context.Background(), UpdateStatusCommand{
		JobID: "job-1", DriverID: "drv-1", To: StatusEnRoutePickup,
	})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("error = %v, want ErrTerminalState", err)
	}
}

func TestUpdateStatus_FullDriverFlow(t *testing.T) {
	store := newMemStore()
	driver := types.ID("drv-1")
	seedJob(store, StatusAccepted, &driver)
	payments := &fakePayments{}
	notifier := &recordingNotifier{}
	svc := NewService(store, fakeQuoter{}, payments, nil).
		WithCollaborators(nil, notifier, nil, nil)

	steps := []Status{
		StatusEnRoutePickup, StatusArrivedPickup, StatusVehicleLoaded,
		StatusEnRouteDropoff, StatusArrivedDropoff, StatusCompleted,
	}
	for _, to := range steps {
		if _, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
			JobID: "job-1", DriverID: driver, To: to,
		}); err != nil {
			t.Fatalf("UpdateStatus(%s) error = %v", to, err)
		}
	}

	j, _ := store.Get(context.Background(), "job-1")
	if j.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", j.Status)
	}
	if j.ArrivedPickupAt == nil || j.LoadedAt == nil || j.ArrivedDropoffAt == nil || j.CompletedAt == nil {
		t.Error("milestone timestamps missing after full flow")
	}
	if payments.captured != 1 {
		t.Errorf("capture calls = %d, want 1", payments.captured)
	}
	completed := notifier.byKind(notify.KindJobCompleted)
	if len(completed) != 1 || completed[0].recipient != "cust-1" {
		t.Errorf("completion notifications = %+v, want one to the customer", completed)
	}
	if got := notifier.byKind(notify.KindStatusChanged); len(got) != len(steps)-1 {
		t.Errorf("status notifications = %d, want %d (one per non-final step)", len(got), len(steps)-1)
	}
}

func TestAccept_NotifiesCustomerAndRecordsPriorStatus(t *testing.T) {
	store := newMemStore()
	seedJob(store, StatusPending, nil)
	notifier := &recordingNotifier{}
	svc := NewService(store, fakeQuoter{}, &fakePayments{}, nil).
		WithCollaborators(nil, notifier, nil, nil)

	j, err := svc.Accept(context.Background(), AcceptCommand{JobID: "job-1", DriverID: "drv-1"})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if j.Status != StatusAccepted {
		t.Errorf("status = %s, want accepted", j.Status)
	}

	assigned := notifier.byKind(notify.KindDriverAssigned)
	if len(assigned) != 1 || assigned[0].recipient != "cust-1" || assigned[0].jobID != "job-1" {
		t.Errorf("assignment notifications = %+v, want one to the customer", assigned)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	if ev := store.events[0]; ev.FromStatus != StatusPending || ev.ToStatus != StatusAccepted {
		t.Errorf("audit event %s -> %s, want pending -> accepted", ev.FromStatus, ev.ToStatus)
	}
}

func TestUpdateStatus_CaptureFailureKeepsJobInPriorState(t *testing.T) {
	store := newMemStore()
	driver := types.ID("drv-1")
	seedJob(store, StatusArrivedDropoff, &driver)
	payments := &fakePayments{captureErr: errors.New("gateway timeout")}
	svc := NewService(store, fakeQuoter{}, payments, nil)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		JobID: "job-1", DriverID: driver, To: StatusCompleted,
	})
	if err == nil {
		t.Fatal("expected capture failure to surface")
	}

	j, _ := store.Get(context.Background(), "job-1")
	if j.Status != StatusArrivedDropoff {
		t.Errorf("status = %s, want arrived_dropoff (transition not committed)", j.Status)
	}
	if j.PaymentStatus != PaymentFailed {
		t.Errorf("payment status = %s, want failed", j.PaymentStatus)
	}
	if j.CompletedAt != nil {
		t.Error("completed_at stamped despite failed capture")
	}
}

func TestCancel_RefundsExpiresAndRecordsReason(t *testing.T) {
	store := newMemStore()
	driver := types.ID("drv-1")
	seedJob(store, StatusEnRoutePickup, &driver)
	payments := &fakePayments{}
	sweeper := &fakeSweeper{}
	notifier := &recordingNotifier{}
	svc := NewService(store, fakeQuoter{}, payments, nil).
		WithCollaborators(sweeper, notifier, nil, nil)

	j, err := svc.Cancel(context.Background(), CancelCommand{
		JobID: "job-1", ActorType: "customer", ActorID: "cust-1", Reason: "found a friend with a truck",
	})
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if j.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", j.Status)
	}
	if payments.refunded != 1 {
		t.Errorf("refund calls = %d, want 1", payments.refunded)
	}
	if len(payments.refundReasons) != 1 || payments.refundReasons[0] != "found a friend with a truck" {
		t.Errorf("refund reasons = %v, want the cancel reason threaded through", payments.refundReasons)
	}
	if len(sweeper.expired) != 1 || sweeper.expired[0] != "job-1" {
		t.Errorf("expired offers for %v, want [job-1]", sweeper.expired)
	}
	cancelled := notifier.byKind(notify.KindJobCancelled)
	if len(cancelled) != 1 || cancelled[0].recipient != driver || cancelled[0].jobID != "job-1" {
		t.Errorf("cancel notifications = %+v, want one to the assigned driver", cancelled)
	}
	got, _ := store.Get(context.Background(), "job-1")
	if got.CancelReason == nil || *got.CancelReason != "found a friend with a truck" {
		t.Error("cancel reason not recorded")
	}
}

func TestCancel_TerminalJobRejected(t *testing.T) {
	store := newMemStore()
	seedJob(store, StatusCompleted, nil)
	svc := NewService(store, fakeQuoter{}, &fakePayments{}, nil)

	_, err := svc.Cancel(context.Background(), CancelCommand{JobID: "job-1", ActorType: "customer", ActorID: "cust-1"})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("error = %v, want ErrTerminalState", err)
	}
}

func TestRate(t *testing.T) {
	store := newMemStore()
	driver := types.ID("drv-1")
	seedJob(store, StatusCompleted, &driver)
	svc := NewService(store, fakeQuoter{}, &fakePayments{}, nil)
	ctx := context.Background()

	if err := svc.Rate(ctx, RateCommand{JobID: "job-1", ActorType: "customer", Stars: 0}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("stars=0 error = %v, want ErrBadRequest", err)
	}
	if err := svc.Rate(ctx, RateCommand{JobID: "job-1", ActorType: "robot", Stars: 5}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("bad actor error = %v, want ErrBadRequest", err)
	}
	if err := svc.Rate(ctx, RateCommand{JobID: "job-1", ActorType: "customer", Stars: 5}); err != nil {
		t.Fatalf("Rate() error = %v", err)
	}
	if err := svc.Rate(ctx, RateCommand{JobID: "job-1", ActorType: "customer", Stars: 4}); !errors.Is(err, ErrConflict) {
		t.Errorf("second rating error = %v, want ErrConflict", err)
	}
	if err := svc.Rate(ctx, RateCommand{JobID: "job-1", ActorType: "driver", Stars: 4}); err != nil {
		t.Fatalf("driver Rate() error = %v", err)
	}

	// Ratings only after completion.
	store2 := newMemStore()
	seedJob(store2, StatusEnRoutePickup, &driver)
	svc2 := NewService(store2, fakeQuoter{}, &fakePayments{}, nil)
	if err := svc2.Rate(ctx, RateCommand{JobID: "job-1", ActorType: "customer", Stars: 5}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pre-completion rating error = %v, want ErrInvalidTransition", err)
	}
}
